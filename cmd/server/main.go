package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gaproadmap/internal/adapters/amqp"
	"gaproadmap/internal/adapters/chain"
	httpadapter "gaproadmap/internal/adapters/http"
	"gaproadmap/internal/adapters/indexer"
	pg "gaproadmap/internal/adapters/postgres"
	rediscache "gaproadmap/internal/adapters/redis"
	"gaproadmap/internal/config"
	"gaproadmap/internal/logging"
	"gaproadmap/internal/ports"
	"gaproadmap/internal/services/chainsync"
	"gaproadmap/internal/services/permissions"
	"gaproadmap/internal/services/roadmap"
	"gaproadmap/internal/workers/refresher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := indexer.New(cfg.Indexer.URL, logger,
		indexer.WithRetry(cfg.Indexer.MaxAttempts, cfg.Indexer.InitialDelay),
		indexer.WithTimeout(cfg.Indexer.Timeout),
	)

	var (
		roadmapOpts []roadmap.Option
		serverOpts  []httpadapter.Option
		cache       ports.UpdatesCache
		jobs        ports.JobRepository
	)

	if cfg.Redis.Addr != "" {
		rdb := rediscache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		c := rediscache.New(rdb, cfg.Redis.TTL)
		cache = c
		roadmapOpts = append(roadmapOpts, roadmap.WithCache(c))
		serverOpts = append(serverOpts, httpadapter.WithReadinessCheck("redis", c.Ping))
		logger.Info("Redis cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	if cfg.DatabaseURL != "" {
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		jobs = db

		processor := refresher.SnapshotProcessor{Source: client, Snapshots: db, Cache: cache, Logger: logger}
		roadmapOpts = append(roadmapOpts, roadmap.WithSnapshots(db), roadmap.WithJobs(db, processor))
		serverOpts = append(serverOpts, httpadapter.WithReadinessCheck("postgres", db.Ping))

		if cfg.RefreshWorkers > 0 {
			refresher.Run(ctx, db, processor, cfg.RefreshWorkers, cfg.RefreshPollInterval, logger)
			logger.Info("Refresh workers started", zap.Int("workers", cfg.RefreshWorkers))
		}
	} else {
		logger.Warn("DATABASE_URL not set, snapshots and refresh jobs disabled")
	}

	if cfg.AMQPURL != "" {
		consumer, err := amqp.NewConsumer(cfg.AMQPURL, "gap-roadmap.indexed", amqp.RoutingKeyIndexed, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()
		consumer.SetHandler(refresher.NewIndexedEventHandler(cache, jobs, logger).Handle)
		serverOpts = append(serverOpts, httpadapter.WithReadinessCheck("amqp", func(context.Context) error {
			if !consumer.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Event consumer stopped", zap.Error(err))
			}
		}()
	}

	if len(cfg.Chains.RPCURLs) > 0 {
		readers := make(map[int64]ports.ChainReader, len(cfg.Chains.RPCURLs))
		for id, url := range cfg.Chains.RPCURLs {
			r := chain.NewReader(url)
			defer r.Close()
			readers[id] = r
		}
		chains := chainsync.New(readers, cfg.Chains.SyncAttempts, cfg.Chains.SyncInterval, logger)
		serverOpts = append(serverOpts, httpadapter.WithChainSync(chains))
	}

	perms := permissions.New(client, cfg.PermissionConcurrency, logger)
	serverOpts = append(serverOpts, httpadapter.WithPermissions(perms))

	svc := roadmap.New(client, logger, roadmapOpts...)
	srv := httpadapter.New(svc, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("Listening", zap.String("addr", cfg.ListenAddr), zap.String("indexer", cfg.Indexer.URL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
