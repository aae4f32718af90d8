package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/roimaishar/newser/internal/dedup"
	"github.com/roimaishar/newser/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	FetchItems(ctx context.Context) ([]domain.Item, error)
}

type Deduper interface {
	Dedupe(ctx context.Context, batch []domain.Item) (*dedup.Result, error)
	Evict(ctx context.Context) (int64, error)
}

type Decider interface {
	Decide(urgency domain.UrgencyLevel, now time.Time) domain.Decision
	State() domain.NotificationState
}

type StateStore interface {
	Load(ctx context.Context, recipient string) (*domain.NotificationState, error)
	Save(ctx context.Context, state *domain.NotificationState) error
}

type Transport interface {
	Deliver(ctx context.Context, decision domain.Decision, items []domain.Item, analysis *domain.Analysis) error
	Close() error
}

type Analyzer interface {
	Analyze(ctx context.Context, items []domain.Item) (*domain.Analysis, error)
}
