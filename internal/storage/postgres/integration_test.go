//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roimaishar/newser/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_known_items.up.sql"),
			filepath.Join(migrationsPath, "002_create_notification_state.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM known_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM notification_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestKnownItemStore_GetUnknownHash() {
	store := NewKnownItemStore(s.db)

	record, err := store.Get(s.ctx, "missing-hash")
	s.NoError(err)
	s.Nil(record)
}

func (s *PostgresIntegrationSuite) TestKnownItemStore_PutBatchAndGet() {
	store := NewKnownItemStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	records := []domain.KnownItemRecord{
		{ItemHash: "hash-1", Kind: domain.KnownKindContent, FirstSeen: now, LastSeen: now},
		{ItemHash: "hash-2", Kind: domain.KnownKindLink, FirstSeen: now, LastSeen: now},
	}
	s.NoError(store.PutBatch(s.ctx, records))

	record, err := store.Get(s.ctx, "hash-1")
	s.NoError(err)
	s.Require().NotNil(record)
	s.Equal(domain.KnownKindContent, record.Kind)
	s.WithinDuration(now, record.FirstSeen, time.Second)

	record, err = store.Get(s.ctx, "hash-2")
	s.NoError(err)
	s.Require().NotNil(record)
	s.Equal(domain.KnownKindLink, record.Kind)
}

func (s *PostgresIntegrationSuite) TestKnownItemStore_PutBatch_RefreshKeepsFirstSeen() {
	store := NewKnownItemStore(s.db)
	firstSeen := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	later := time.Now().UTC().Truncate(time.Microsecond)

	s.NoError(store.PutBatch(s.ctx, []domain.KnownItemRecord{
		{ItemHash: "hash-1", Kind: domain.KnownKindContent, FirstSeen: firstSeen, LastSeen: firstSeen},
	}))
	s.NoError(store.PutBatch(s.ctx, []domain.KnownItemRecord{
		{ItemHash: "hash-1", Kind: domain.KnownKindContent, FirstSeen: later, LastSeen: later},
	}))

	record, err := store.Get(s.ctx, "hash-1")
	s.NoError(err)
	s.Require().NotNil(record)
	s.WithinDuration(firstSeen, record.FirstSeen, time.Second)
	s.WithinDuration(later, record.LastSeen, time.Second)
}

func (s *PostgresIntegrationSuite) TestKnownItemStore_PutBatch_Empty() {
	store := NewKnownItemStore(s.db)
	s.NoError(store.PutBatch(s.ctx, nil))
}

func (s *PostgresIntegrationSuite) TestKnownItemStore_EvictOlderThan() {
	store := NewKnownItemStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)
	stale := now.Add(-90 * 24 * time.Hour)

	s.NoError(store.PutBatch(s.ctx, []domain.KnownItemRecord{
		{ItemHash: "fresh", Kind: domain.KnownKindContent, FirstSeen: now, LastSeen: now},
		{ItemHash: "stale", Kind: domain.KnownKindContent, FirstSeen: stale, LastSeen: stale},
	}))

	removed, err := store.EvictOlderThan(s.ctx, 60*24*time.Hour)
	s.NoError(err)
	s.Equal(int64(1), removed)

	record, err := store.Get(s.ctx, "stale")
	s.NoError(err)
	s.Nil(record)

	record, err = store.Get(s.ctx, "fresh")
	s.NoError(err)
	s.NotNil(record)
}

func (s *PostgresIntegrationSuite) TestNotificationStateStore_LoadNewRecipient() {
	store := NewNotificationStateStore(s.db)

	state, err := store.Load(s.ctx, "fresh-recipient")
	s.NoError(err)
	s.Require().NotNil(state)
	s.Equal("fresh-recipient", state.Recipient)
	s.True(state.LastNotifiedAt.IsZero())
}

func (s *PostgresIntegrationSuite) TestNotificationStateStore_SaveAndLoad() {
	store := NewNotificationStateStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	state := &domain.NotificationState{
		Recipient:       "default",
		LastNotifiedAt:  now,
		LastUrgencySent: domain.UrgencyBreaking,
	}
	s.NoError(store.Save(s.ctx, state))

	loaded, err := store.Load(s.ctx, "default")
	s.NoError(err)
	s.Equal("default", loaded.Recipient)
	s.Equal(domain.UrgencyBreaking, loaded.LastUrgencySent)
	s.WithinDuration(now, loaded.LastNotifiedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestNotificationStateStore_SaveUpdatesExisting() {
	store := NewNotificationStateStore(s.db)
	earlier := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.NoError(store.Save(s.ctx, &domain.NotificationState{
		Recipient:       "default",
		LastNotifiedAt:  earlier,
		LastUrgencySent: domain.UrgencyNormal,
	}))
	s.NoError(store.Save(s.ctx, &domain.NotificationState{
		Recipient:       "default",
		LastNotifiedAt:  now,
		LastUrgencySent: domain.UrgencyHigh,
	}))

	loaded, err := store.Load(s.ctx, "default")
	s.NoError(err)
	s.Equal(domain.UrgencyHigh, loaded.LastUrgencySent)
	s.WithinDuration(now, loaded.LastNotifiedAt, time.Second)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM notification_state WHERE recipient = $1", "default"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewKnownItemStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		return store.PutBatch(ctx, []domain.KnownItemRecord{
			{ItemHash: "tx-hash", Kind: domain.KnownKindContent, FirstSeen: now, LastSeen: now},
		})
	})
	s.NoError(err)

	record, err := store.Get(s.ctx, "tx-hash")
	s.NoError(err)
	s.NotNil(record)
}

func (s *PostgresIntegrationSuite) TestTransaction_RollbackLeavesBatchUnapplied() {
	tm := NewTransactionManager(s.db)
	store := NewKnownItemStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := store.PutBatch(ctx, []domain.KnownItemRecord{
			{ItemHash: "rollback-1", Kind: domain.KnownKindContent, FirstSeen: now, LastSeen: now},
			{ItemHash: "rollback-2", Kind: domain.KnownKindLink, FirstSeen: now, LastSeen: now},
		}); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	s.NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM known_items"))
	s.Equal(0, count)
}
