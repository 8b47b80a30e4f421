package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"backend", cfg.Index.Backend,
		"batch_size", cfg.Index.BatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	sinks := []progress.Sink{progress.NewLog(slog.Default().With("component", "build-progress"), 100)}
	var (
		completeProducer *kafka.Producer
		progressProducer *kafka.Producer
		progressSink     *progress.Kafka
	)
	if cfg.Kafka.Enabled {
		completeProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer completeProducer.Close()
		progressProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexProgress)
		defer progressProducer.Close()
		progressSink = progress.NewKafka(progressProducer, "build-progress", 50, time.Second)
		progressSink.Start(ctx)
		sinks = append(sinks, progressSink)
		slog.Info("kafka publishing enabled",
			"complete_topic", cfg.Kafka.Topics.IndexComplete,
			"progress_topic", cfg.Kafka.Topics.IndexProgress,
		)
	}

	engine, err := indexer.NewEngine(cfg.Index, m, progress.Multi(sinks...))
	if err != nil {
		slog.Error("failed to create index engine", "error", err)
		os.Exit(1)
	}
	if completeProducer != nil {
		engine.OnBuild(indexer.PublishBuilds(completeProducer))
	}

	checker := health.NewChecker()
	checker.Register("index", health.IndexCheck(func() (bool, int) {
		return engine.Ready(), len(engine.Current().Documents)
	}))

	var src source.Source
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		src = source.NewPostgres(db, cfg.Postgres.Table)
		checker.Register("postgres", health.PingCheck(db.Ping))
		slog.Info("postgres document source enabled", "table", cfg.Postgres.Table)
	} else {
		slog.Warn("no document source configured, rebuilds disabled")
	}

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping))
			engine.OnSwap(func(prev, _ *indexer.Snapshot) {
				if err := queryCache.InvalidateGeneration(context.Background(), prev.Generation); err != nil {
					slog.Warn("stale cache generation not flushed", "generation", prev.Generation, "error", err)
				}
			})
			slog.Info("search cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	if cfg.Kafka.Enabled && src != nil {
		reindex := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Reindex, consumer.HandleReindex(engine, src))
		ic := consumer.New(reindex)
		go func() {
			if err := ic.Start(ctx); err != nil {
				slog.Error("reindex consumer error", "error", err)
			}
		}()
		defer reindex.Close()
	}

	if cfg.Index.BuildOnStart && src != nil {
		if _, err := engine.StartRebuild(src, nil); err != nil {
			slog.Error("initial build not started", "error", err)
		}
	}

	exec := executor.New(engine, cfg.Search.MaxResults)
	h := handler.New(exec, engine, src, queryCache, m)

	mux := http.NewServeMux()
	rebuildLimit := rate.Inf
	if cfg.Server.RebuildPerMinute > 0 {
		rebuildLimit = rate.Every(time.Minute / time.Duration(cfg.Server.RebuildPerMinute))
	}
	rebuildLimiter := rate.NewLimiter(rebuildLimit, 1)
	h.Register(mux, middleware.RateLimit(rebuildLimiter))
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		engine.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	if progressSink != nil {
		progressSink.Close()
	}

	slog.Info("search service stopped")
}
