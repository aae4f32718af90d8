package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/roimaishar/newser/internal/domain"
)

// NotificationStateStore persists the per-recipient notification state.
type NotificationStateStore struct {
	db *sqlx.DB
}

func NewNotificationStateStore(db *sqlx.DB) *NotificationStateStore {
	return &NotificationStateStore{db: db}
}

// Load returns the stored state for a recipient, or an empty state for
// recipients that have never been notified.
func (s *NotificationStateStore) Load(ctx context.Context, recipient string) (*domain.NotificationState, error) {
	query := `
		SELECT id, recipient, last_notified_at, last_urgency_sent
		FROM notification_state
		WHERE recipient = $1`

	var state domain.NotificationState
	err := s.db.GetContext(ctx, &state, query, recipient)
	if err == sql.ErrNoRows {
		return &domain.NotificationState{Recipient: recipient}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Save upserts the state after a notify-now decision.
func (s *NotificationStateStore) Save(ctx context.Context, state *domain.NotificationState) error {
	query := `
		INSERT INTO notification_state (recipient, last_notified_at, last_urgency_sent)
		VALUES ($1, $2, $3)
		ON CONFLICT (recipient) DO UPDATE SET
			last_notified_at = EXCLUDED.last_notified_at,
			last_urgency_sent = EXCLUDED.last_urgency_sent`

	_, err := s.db.ExecContext(ctx, query,
		state.Recipient,
		state.LastNotifiedAt,
		state.LastUrgencySent,
	)
	return err
}
