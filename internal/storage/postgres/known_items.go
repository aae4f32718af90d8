package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roimaishar/newser/internal/domain"
)

// KnownItemStore persists deduplication hashes with first/last seen times.
type KnownItemStore struct {
	db *sqlx.DB
}

func NewKnownItemStore(db *sqlx.DB) *KnownItemStore {
	return &KnownItemStore{db: db}
}

// Get returns the record for a hash, or nil when the hash is unknown.
func (s *KnownItemStore) Get(ctx context.Context, hash string) (*domain.KnownItemRecord, error) {
	query := `
		SELECT item_hash, kind, first_seen, last_seen
		FROM known_items
		WHERE item_hash = $1`

	var record domain.KnownItemRecord
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &record, query, hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// PutBatch upserts the staged write set in one statement. Re-encounters only
// refresh last_seen; first_seen is kept from the original insert.
func (s *KnownItemStore) PutBatch(ctx context.Context, records []domain.KnownItemRecord) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO known_items (item_hash, kind, first_seen, last_seen) VALUES ")
	args := make([]interface{}, 0, len(records)*4)

	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, rec.ItemHash, rec.Kind, rec.FirstSeen, rec.LastSeen)
	}

	sb.WriteString(`
		ON CONFLICT (item_hash) DO UPDATE SET
			last_seen = EXCLUDED.last_seen`)

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	return err
}

// EvictOlderThan removes records not seen within the retention period.
func (s *KnownItemStore) EvictOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM known_items WHERE last_seen < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
