package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/roimaishar/newser/internal/domain"
)

// evictEvery controls how often stale known items are dropped.
const evictEvery = 24

// Evaluator runs one batch evaluation and optional store eviction.
type Evaluator interface {
	Run(ctx context.Context) (*domain.BatchStats, error)
	Evict(ctx context.Context) error
}

type Scheduler struct {
	evaluator Evaluator
	interval  time.Duration
	logger    *slog.Logger
	runs      int
}

func NewScheduler(evaluator Evaluator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		evaluator: evaluator,
		interval:  interval,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runBatch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runBatch(ctx)
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context) {
	batchCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := s.evaluator.Run(batchCtx); err != nil {
		s.logger.Error("batch evaluation failed", "error", err)
	}

	s.runs++
	if s.runs%evictEvery == 0 {
		if err := s.evaluator.Evict(batchCtx); err != nil {
			s.logger.Error("eviction failed", "error", err)
		}
	}
}