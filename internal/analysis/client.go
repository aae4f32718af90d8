// Package analysis is the HTTP adapter for the optional text-analysis
// collaborator that enriches batches with an urgency hint and summary.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roimaishar/newser/internal/domain"
)

// Config holds analysis service configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client calls the analysis service with retry and exponential backoff.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "analysis"),
	}
}

type analyzeRequest struct {
	Items []analyzeItem `json:"items"`
}

type analyzeItem struct {
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Source  string `json:"source"`
}

type analyzeResponse struct {
	UrgencyHint string `json:"urgency_hint,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// Analyze submits the batch for enrichment. The caller treats any failure
// as a binary miss; no partial results are returned.
func (c *Client) Analyze(ctx context.Context, items []domain.Item) (*domain.Analysis, error) {
	payload := analyzeRequest{Items: make([]analyzeItem, 0, len(items))}
	for _, item := range items {
		ai := analyzeItem{Title: item.Title, Source: item.Source}
		if item.Summary != nil {
			ai.Summary = *item.Summary
		}
		payload.Items = append(payload.Items, ai)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp *analyzeResponse
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err = c.doRequest(ctx, body)
		if err == nil {
			return &domain.Analysis{
				UrgencyHint: resp.UrgencyHint,
				Summary:     resp.Summary,
			}, nil
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("analysis request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (*analyzeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Newser/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
