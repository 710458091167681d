package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"program_catalog/internal/api"
	"program_catalog/internal/config"
	"program_catalog/internal/publisher"
	"program_catalog/internal/scheduler"
	"program_catalog/internal/service"
	"program_catalog/internal/storage/memory"
	"program_catalog/internal/storage/postgres"
	"program_catalog/internal/storage/redisstore"
)

type programStore interface {
	service.ProgramStore
	api.Catalog
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = setupLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store programStore
		opts  = []service.Option{service.WithSourceTimeout(cfg.Sync.SourceTimeout)}
	)

	switch cfg.Store.Driver {
	case "memory":
		store = memory.NewProgramStore()
		opts = append(opts, service.WithSourceStates(memory.NewSourceStateStore()))
		logger.Warn("using in-memory store, programs are lost on restart")
	default:
		db, err := sqlx.Connect("postgres", cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("connected to database")

		store = postgres.NewProgramStore(db)
		opts = append(opts,
			service.WithSourceStates(postgres.NewSourceStateStore(db)),
			service.WithRunRecorder(postgres.NewRunRecorder(db, postgres.NewTransactionManager(db))),
		)
	}

	if cfg.Redis.URL != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		opts = append(opts,
			service.WithRunGuard(redisstore.NewRunGuard(rdb, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL)),
			service.WithReportCache(redisstore.NewReportCache(rdb, cfg.Redis.KeyPrefix, cfg.Redis.ReportTTL)),
		)
	}

	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:           cfg.RabbitMQ.URL,
			Exchange:      cfg.RabbitMQ.Exchange,
			RoutingPrefix: cfg.RabbitMQ.RoutingPrefix,
			QueueName:     cfg.RabbitMQ.QueueName,
			BindingKey:    cfg.RabbitMQ.BindingKey,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()

		opts = append(opts, service.WithPublisher(rabbitMQ))
	}

	sources := buildSources(cfg.Sources, logger)
	orchestrator := service.NewOrchestrator(sources, store, logger, opts...)

	var sched *scheduler.Scheduler
	if cfg.Sync.Schedule != "off" {
		sched = scheduler.New(orchestrator, cfg.Sync.Schedule, cfg.Sync.RunTimeout, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	api.NewHandler(orchestrator, store, cfg.Sync.RunTimeout, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting program syncer",
			"addr", cfg.HTTP.Addr,
			"sources", len(sources),
			"store", cfg.Store.Driver,
			"schedule", cfg.Sync.Schedule,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		logger.Error("http server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if sched != nil {
		sched.Stop()
	}
	logger.Info("program syncer stopped")
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
