package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roimaishar/newser/internal/domain"
	"github.com/roimaishar/newser/internal/urgency"
)

// Pipeline runs one batch evaluation end to end: fetch, validate, dedupe,
// classify, decide and deliver. Evaluations run sequentially per recipient;
// state mutations inside one evaluation are atomic at store granularity.
type Pipeline struct {
	sources    []Source
	deduper    Deduper
	classifier *urgency.Classifier
	decider    Decider
	stateStore StateStore
	transport  Transport
	analyzer   Analyzer
	recipient  string
	logger     *slog.Logger
}

func NewPipeline(
	sources []Source,
	deduper Deduper,
	classifier *urgency.Classifier,
	decider Decider,
	stateStore StateStore,
	transport Transport,
	analyzer Analyzer,
	recipient string,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		sources:    sources,
		deduper:    deduper,
		classifier: classifier,
		decider:    decider,
		stateStore: stateStore,
		transport:  transport,
		analyzer:   analyzer,
		recipient:  recipient,
		logger:     logger.With("recipient", recipient),
	}
}

// Run evaluates one batch and returns its stats. A store failure aborts the
// whole evaluation with no partial commit, so the batch is safe to re-run.
func (p *Pipeline) Run(ctx context.Context) (*domain.BatchStats, error) {
	startTime := time.Now()

	stats := &domain.BatchStats{Recipient: p.recipient}

	batch := p.fetchAll(ctx)
	stats.Fetched = len(batch)

	valid, invalid := splitInvalid(batch)
	stats.Invalid = len(invalid)
	for _, inv := range invalid {
		p.logger.Warn("excluded invalid item",
			"source", inv.Item.Source,
			"link", inv.Item.Link,
			"reason", inv.Reason,
		)
	}

	result, err := p.deduper.Dedupe(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("dedupe batch: %w", err)
	}
	stats.Unique = len(result.Unique)
	stats.Duplicates = result.DuplicateCount()

	if len(result.Unique) == 0 {
		stats.Duration = time.Since(startTime)
		p.logger.Info("no new items", "fetched", stats.Fetched, "duplicates", stats.Duplicates)
		return stats, nil
	}

	level := p.classifier.BatchUrgency(result.Unique)
	stats.Urgency = level

	decision := p.decider.Decide(level, time.Now())
	stats.Action = decision.Action

	p.logger.Info("batch decided",
		"urgency", level,
		"action", decision.Action,
		"window", decision.Window,
		"story_cap", decision.StoryCap,
		"reason", decision.Reasoning,
	)

	if decision.Action == domain.ActionNotifyNow {
		payload := result.Unique
		if len(payload) > decision.StoryCap {
			payload = payload[:decision.StoryCap]
		}

		analysis := p.enrich(ctx, payload)

		if err := p.transport.Deliver(ctx, decision, payload, analysis); err != nil {
			return stats, fmt.Errorf("deliver notification: %w", err)
		}
		stats.Delivered = true

		state := p.decider.State()
		if err := p.stateStore.Save(ctx, &state); err != nil {
			return stats, fmt.Errorf("save notification state: %w", err)
		}
	}

	stats.Duration = time.Since(startTime)

	p.logger.Info("batch completed",
		"fetched", stats.Fetched,
		"invalid", stats.Invalid,
		"unique", stats.Unique,
		"duplicates", stats.Duplicates,
		"urgency", stats.Urgency,
		"action", stats.Action,
		"delivered", stats.Delivered,
		"duration", stats.Duration,
	)

	return stats, nil
}

// Evict drops known items past the retention period; called by the driver
// between batch evaluations.
func (p *Pipeline) Evict(ctx context.Context) error {
	_, err := p.deduper.Evict(ctx)
	return err
}

func (p *Pipeline) fetchAll(ctx context.Context) []domain.Item {
	var batch []domain.Item
	for _, src := range p.sources {
		items, err := src.FetchItems(ctx)
		if err != nil {
			// A failing feed does not abort the batch.
			p.logger.Error("fetch failed", "source", src.Name(), "error", err)
			continue
		}
		p.logger.Debug("fetched items", "source", src.ID(), "count", len(items))
		batch = append(batch, items...)
	}
	return batch
}

// enrich asks the optional analysis collaborator for a batch summary, which
// rides along in the delivery payload. Failures are logged and ignored: the
// classifier is authoritative and enrichment is best-effort.
func (p *Pipeline) enrich(ctx context.Context, items []domain.Item) *domain.Analysis {
	if p.analyzer == nil {
		return nil
	}
	analysis, err := p.analyzer.Analyze(ctx, items)
	if err != nil {
		p.logger.Warn("analysis enrichment failed", "error", err)
		return nil
	}
	return analysis
}

func splitInvalid(batch []domain.Item) ([]domain.Item, []domain.InvalidItem) {
	valid := make([]domain.Item, 0, len(batch))
	var invalid []domain.InvalidItem

	for _, item := range batch {
		if reason := validate(item); reason != "" {
			invalid = append(invalid, domain.InvalidItem{Item: item, Reason: reason})
			continue
		}
		valid = append(valid, item)
	}
	return valid, invalid
}

func validate(item domain.Item) string {
	hasSummary := item.Summary != nil && *item.Summary != ""
	if item.Title == "" && !hasSummary {
		return "empty title and summary"
	}
	if item.PublishedAt.IsZero() {
		return "missing publication timestamp"
	}
	return ""
}
