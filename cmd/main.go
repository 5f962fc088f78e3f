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

	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/cache"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/http/api"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/http/swagger"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/mq/stream"
	"github.com/robsheahan/tipping-aggregator-web/internal/adapters/repository"
	app "github.com/robsheahan/tipping-aggregator-web/internal/app"
	"github.com/robsheahan/tipping-aggregator-web/internal/config"
	"github.com/robsheahan/tipping-aggregator-web/pkg/logger"
	"github.com/robsheahan/tipping-aggregator-web/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		// Use stderr since the logger may not be configured yet
		os.Stderr.WriteString("tipping-aggregator: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var logOpts []logger.Option
	if cfg.LogJSON {
		logOpts = append(logOpts, logger.WithJSON())
	}
	if err := logger.Init(logOpts...); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	consensusCache, err := newCache(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	opts := serviceOptions(cfg)
	opts = append(opts,
		app.WithLogger(log),
		app.WithStore(store),
		app.WithCache(consensusCache),
	)
	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		opts = append(opts, app.WithPublisher(
			stream.NewKafkaPublisher(stream.NewWriter(brokers), cfg.KafkaConsensusTopic, cfg.KafkaPollTopic),
		))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, svc, api.WithCORSOrigins(cfg.CORSOrigins()...)),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return svc.Run(gctx) })

	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})

	if len(brokers) > 0 {
		consumer := stream.NewConsumer(stream.NewReader(stream.ReaderConfig{
			Brokers: brokers,
			Topic:   cfg.KafkaSnapshotTopic,
			GroupID: cfg.KafkaGroupID,
		}), svc, cfg.KafkaSnapshotTopic)
		g.Go(func() error {
			defer func() {
				if err := consumer.Close(); err != nil {
					log.Warn(ctx, "closing kafka reader failed", logger.Error(err))
				}
			}()
			log.Info(gctx, "consuming snapshots", logger.String("topic", cfg.KafkaSnapshotTopic))
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("snapshot consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		// Wait for shutdown signal or a failed sibling
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config) []app.Option {
	return []app.Option{
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithConsensusConfig(cfg.Consensus()),
		app.WithScoringConfig(cfg.Scoring()),
		app.WithWeightingConfig(cfg.Weighting()),
		app.WithPollingPolicy(cfg.Polling()),
		app.WithRecomputeParallelism(cfg.RecomputeParallelism),
		app.WithSchedule(
			time.Duration(cfg.PollTickSeconds)*time.Second,
			time.Duration(cfg.PerformanceRecomputeMinutes)*time.Minute,
			time.Duration(cfg.WeightsRecomputeMinutes)*time.Minute,
		),
	}
}

func newStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		st, err := repository.NewPostgresStore(ctx, repository.PostgresConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		return repository.NewMemoryStore(), nil
	}
}

func newCache(ctx context.Context, cfg *config.Config) (cache.ConsensusCache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(cfg.CacheTTL()), nil
	}
	rc, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

func newRouter(ctx context.Context, svc *app.Service, opts ...api.ServerOption) http.Handler {
	r := api.NewServer(svc, opts...).Router(ctx)
	swagger.Register(ctx, r)
	return r
}

// startServiceMetricsUpdater refreshes service gauges until ctx is cancelled.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
