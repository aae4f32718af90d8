package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/roimaishar/newser/internal/analysis"
	"github.com/roimaishar/newser/internal/config"
	"github.com/roimaishar/newser/internal/dedup"
	"github.com/roimaishar/newser/internal/notify"
	"github.com/roimaishar/newser/internal/publisher"
	"github.com/roimaishar/newser/internal/scheduler"
	"github.com/roimaishar/newser/internal/service"
	"github.com/roimaishar/newser/internal/source/rss"
	"github.com/roimaishar/newser/internal/storage/postgres"
	"github.com/roimaishar/newser/internal/urgency"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration; validation failures are fatal before any batch runs
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	schedule, err := cfg.Windows.Schedule()
	if err != nil {
		logger.Error("failed to build window schedule", "error", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Initialize RabbitMQ delivery transport
	transport, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer transport.Close()

	// Initialize stores
	knownItems := postgres.NewKnownItemStore(db)
	stateStore := postgres.NewNotificationStateStore(db)
	txManager := postgres.NewTransactionManager(db)

	deduper, err := dedup.New(knownItems, txManager, cfg.Dedupe.SimilarityThreshold, cfg.Dedupe.Retention, logger)
	if err != nil {
		logger.Error("failed to build deduplicator", "error", err)
		os.Exit(1)
	}

	classifier := urgency.NewClassifier(cfg.Urgency.BreakingKeywords, cfg.Urgency.VolumeThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore per-recipient notification state
	state, err := stateStore.Load(ctx, cfg.Notify.Recipient)
	if err != nil {
		logger.Error("failed to load notification state", "error", err)
		os.Exit(1)
	}
	decider := notify.NewScheduler(schedule, *state, logger)

	// Initialize feed sources
	sources := make([]service.Source, 0, len(cfg.Feeds.Sources))
	for _, feed := range cfg.Feeds.Sources {
		sources = append(sources, rss.New(rss.Config{
			Source:      feed.Source,
			URL:         feed.URL,
			Timeout:     cfg.Feeds.Timeout,
			LowPriority: feed.LowPriority,
		}, logger))
	}

	// Optional text-analysis enrichment
	var analyzer service.Analyzer
	if cfg.Analysis.BaseURL != "" {
		analyzer = analysis.New(analysis.Config{
			BaseURL:        cfg.Analysis.BaseURL,
			Timeout:        cfg.Analysis.Timeout,
			MaxAttempts:    cfg.Analysis.Retry.MaxAttempts,
			InitialBackoff: cfg.Analysis.Retry.InitialBackoff,
			MaxBackoff:     cfg.Analysis.Retry.MaxBackoff,
		}, logger)
	}

	pipeline := service.NewPipeline(
		sources,
		deduper,
		classifier,
		decider,
		stateStore,
		transport,
		analyzer,
		cfg.Notify.Recipient,
		logger,
	)

	sched := scheduler.NewScheduler(pipeline, cfg.Notify.Interval, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting newser",
		"recipient", cfg.Notify.Recipient,
		"feeds", len(sources),
		"interval", cfg.Notify.Interval,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
