package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nexuspos/backend/internal/cache"
	"nexuspos/backend/internal/config"
	"nexuspos/backend/internal/events"
	"nexuspos/backend/internal/httpapi"
	"nexuspos/backend/internal/jobs"
	"nexuspos/backend/internal/logging"
	"nexuspos/backend/internal/service"
	"nexuspos/backend/internal/store"
	"nexuspos/backend/internal/store/memory"
	pgstore "nexuspos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Mode: cfg.LogMode, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 4)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("postgres schema", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		seeded, err := memory.NewSeeded(logger.Named("memory-store"))
		if err != nil {
			logger.Fatal("seed in-memory store", zap.Error(err))
		}
		repo = seeded
		logger.Info("repository: in-memory")
	}

	local, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("local cache", zap.Error(err))
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("sale events: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	svc, err := service.New(service.Options{
		Repo:            repo,
		Cache:           local,
		Events:          publisher,
		AuthSecret:      cfg.AuthSecret,
		SessionTTL:      cfg.SessionTTL,
		TaxRatePercent:  cfg.TaxRatePercent,
		Location:        cfg.Location(),
		InitiallyOnline: repo.Ping(ctx) == nil,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("service", zap.Error(err))
	}
	closers = append(closers, svc.Close)
	if err := svc.Restore(ctx); err != nil {
		logger.Warn("restore session failed", zap.Error(err))
	}

	sched := jobs.New(cfg.Location(), logger)
	if err := sched.AddProbe(cfg.ProbeInterval, svc.Monitor()); err != nil {
		logger.Fatal("schedule probe", zap.Error(err))
	}
	if err := sched.AddFlush(cfg.SyncInterval, svc.Queue()); err != nil {
		logger.Fatal("schedule flush", zap.Error(err))
	}
	sched.Start()

	api := httpapi.New(svc, cfg.AllowedOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("NexusPOS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	sched.Stop(shutdownCtx)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Store, func() error, error) {
	logger = logging.Named(logger, "cache")
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rc := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		return rc, rc.Close, nil
	case config.CacheMemory:
		logger.Warn("cache: memory; sessions and queued sales are lost on restart")
		return cache.NewMemoryStore(), nil, nil
	default:
		bc, err := cache.OpenBolt(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("cache: bolt", zap.String("path", cfg.CachePath))
		return bc, bc.Close, nil
	}
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.TaxRatePercent < 0 || cfg.TaxRatePercent > 100 {
		return fmt.Errorf("TAX_RATE_PERCENT must be between 0 and 100, got %v", cfg.TaxRatePercent)
	}
	switch cfg.CacheBackend {
	case config.CacheBolt:
		if cfg.CachePath == "" {
			return fmt.Errorf("CACHE_PATH is required for the bolt cache")
		}
	case config.CacheRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache")
		}
	case config.CacheMemory:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	return nil
}
