// Package rss adapts an RSS/Atom feed into the domain item batch.
package rss

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/roimaishar/newser/internal/domain"
	"github.com/roimaishar/newser/internal/fingerprint"
)

const maxFeedBytes = 5 * 1024 * 1024

// Config holds one feed's settings.
type Config struct {
	Source      string
	URL         string
	Timeout     time.Duration
	LowPriority bool
}

// Source fetches and parses one RSS feed.
type Source struct {
	httpClient  *http.Client
	parser      *gofeed.Parser
	source      string
	url         string
	lowPriority bool
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		parser:      gofeed.NewParser(),
		source:      cfg.Source,
		url:         cfg.URL,
		lowPriority: cfg.LowPriority,
		logger:      logger.With("source", cfg.Source),
	}
}

// ID returns the feed identifier.
func (s *Source) ID() string {
	return s.source
}

// Name returns a human-readable name.
func (s *Source) Name() string {
	return fmt.Sprintf("%s (%s)", s.source, s.url)
}

// FetchItems downloads and parses the feed into domain items.
func (s *Source) FetchItems(ctx context.Context) ([]domain.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Newser/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return s.transform(feed), nil
}

func (s *Source) transform(feed *gofeed.Feed) []domain.Item {
	items := make([]domain.Item, 0, len(feed.Items))

	for _, entry := range feed.Items {
		var publishedAt time.Time
		if entry.PublishedParsed != nil {
			publishedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			publishedAt = *entry.UpdatedParsed
		}

		item := domain.Item{
			ID:          itemID(entry),
			Title:       entry.Title,
			Link:        entry.Link,
			Source:      s.source,
			PublishedAt: publishedAt,
			LowPriority: s.lowPriority,
		}

		if entry.Description != "" {
			desc := entry.Description
			item.Summary = &desc
		}

		item.ContentHash = fingerprint.ContentHash(item)
		items = append(items, item)
	}

	s.logger.Debug("transformed feed items", "count", len(items))

	return items
}

// itemID prefers the feed's GUID and falls back to the link hash.
func itemID(entry *gofeed.Item) string {
	if entry.GUID != "" {
		return entry.GUID
	}
	return fingerprint.LinkHash(entry.Link)
}
