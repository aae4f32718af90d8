// Package dedup partitions incoming batches into unique and duplicate items
// against a rolling known-item store.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roimaishar/newser/internal/domain"
	"github.com/roimaishar/newser/internal/fingerprint"
)

//go:generate mockgen -source=dedup.go -destination=mocks/mocks.go -package=mocks

// Store is the known-item persistence consumed by the deduplicator.
// Get returns nil when the hash is unknown.
type Store interface {
	Get(ctx context.Context, hash string) (*domain.KnownItemRecord, error)
	PutBatch(ctx context.Context, records []domain.KnownItemRecord) error
	EvictOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// TransactionManager wraps the staged flush so a batch's store mutations
// apply atomically or not at all.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Duplicate records why one item was dropped and, for intra-batch title
// matches, which accepted item it duplicates.
type Duplicate struct {
	Item    domain.Item
	Rule    string // "content_hash", "title_similarity" or "link"
	MatchID string // ID of the earlier unique item for title_similarity
}

// Result summarizes one batch pass.
type Result struct {
	Unique     []domain.Item
	Duplicates []Duplicate
}

// DuplicateCount returns the number of items dropped from the batch.
func (r *Result) DuplicateCount() int {
	return len(r.Duplicates)
}

// Deduplicator checks incoming items against the known-item store and
// against earlier items in the same batch.
type Deduplicator struct {
	store     Store
	txManager TransactionManager
	threshold float64
	retention time.Duration
	logger    *slog.Logger
}

// New builds a deduplicator. The similarity threshold must be in (0, 1]:
// values outside that range are a configuration error, not clamped.
func New(store Store, txManager TransactionManager, threshold float64, retention time.Duration, logger *slog.Logger) (*Deduplicator, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v out of range (0, 1]", threshold)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention %v must be positive", retention)
	}
	return &Deduplicator{
		store:     store,
		txManager: txManager,
		threshold: threshold,
		retention: retention,
		logger:    logger,
	}, nil
}

// Dedupe processes the batch in input order. For each item it checks, in
// order: content hash against the store, title similarity against items
// already accepted from this batch, and canonical link against the store.
// Survivors are accepted as unique and their hashes staged; the staged set
// is flushed once inside a transaction, so a store failure leaves the batch
// unprocessed and safe to re-run.
func (d *Deduplicator) Dedupe(ctx context.Context, batch []domain.Item) (*Result, error) {
	result := &Result{}
	if len(batch) == 0 {
		return result, nil
	}

	now := time.Now().UTC()
	staged := make(map[string]*domain.KnownItemRecord)
	var flushOrder []string

	stage := func(hash, kind string, firstSeen time.Time) {
		if rec, ok := staged[hash]; ok {
			rec.LastSeen = now
			return
		}
		staged[hash] = &domain.KnownItemRecord{
			ItemHash:  hash,
			Kind:      kind,
			FirstSeen: firstSeen,
			LastSeen:  now,
		}
		flushOrder = append(flushOrder, hash)
	}

	// Reads consult the staged set first so the batch observes its own
	// pending writes.
	lookup := func(hash string) (*domain.KnownItemRecord, error) {
		if rec, ok := staged[hash]; ok {
			return rec, nil
		}
		rec, err := d.store.Get(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("known store read: %w", err)
		}
		return rec, nil
	}

	for _, item := range batch {
		contentHash := item.ContentHash
		if contentHash == "" {
			contentHash = fingerprint.ContentHash(item)
		}

		known, err := lookup(contentHash)
		if err != nil {
			return nil, err
		}
		if known != nil {
			stage(contentHash, known.Kind, known.FirstSeen)
			result.Duplicates = append(result.Duplicates, Duplicate{Item: item, Rule: "content_hash"})
			continue
		}

		if match, score := d.firstSimilar(item, result.Unique); match != nil {
			d.logger.Debug("title similarity duplicate",
				"item", item.ID,
				"matches", match.ID,
				"score", score,
			)
			result.Duplicates = append(result.Duplicates, Duplicate{
				Item:    item,
				Rule:    "title_similarity",
				MatchID: match.ID,
			})
			continue
		}

		linkHash := fingerprint.LinkHash(item.Link)
		if item.Link != "" {
			knownLink, err := lookup(linkHash)
			if err != nil {
				return nil, err
			}
			if knownLink != nil {
				stage(linkHash, knownLink.Kind, knownLink.FirstSeen)
				result.Duplicates = append(result.Duplicates, Duplicate{Item: item, Rule: "link"})
				continue
			}
		}

		item.ContentHash = contentHash
		result.Unique = append(result.Unique, item)
		stage(contentHash, domain.KnownKindContent, now)
		if item.Link != "" {
			stage(linkHash, domain.KnownKindLink, now)
		}
	}

	records := make([]domain.KnownItemRecord, 0, len(flushOrder))
	for _, hash := range flushOrder {
		records = append(records, *staged[hash])
	}

	err := d.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return d.store.PutBatch(txCtx, records)
	})
	if err != nil {
		return nil, fmt.Errorf("flush known items: %w", err)
	}

	d.logger.Debug("deduplicated batch",
		"total", len(batch),
		"unique", len(result.Unique),
		"duplicates", result.DuplicateCount(),
	)

	return result, nil
}

// firstSimilar returns the lowest input-order accepted item whose title
// similarity reaches the threshold, keeping the binding deterministic when
// several candidates match.
func (d *Deduplicator) firstSimilar(item domain.Item, accepted []domain.Item) (*domain.Item, float64) {
	for i := range accepted {
		if score := fingerprint.Similarity(item.Title, accepted[i].Title); score >= d.threshold {
			return &accepted[i], score
		}
	}
	return nil, 0
}

// Evict removes known items older than the configured retention period and
// returns how many were dropped.
func (d *Deduplicator) Evict(ctx context.Context) (int64, error) {
	removed, err := d.store.EvictOlderThan(ctx, d.retention)
	if err != nil {
		return 0, fmt.Errorf("evict known items: %w", err)
	}
	if removed > 0 {
		d.logger.Info("evicted stale known items", "count", removed, "retention", d.retention)
	}
	return removed, nil
}
