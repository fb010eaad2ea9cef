package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/expansion"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting expansion service", "port", cfg.Server.Port, "docstore", cfg.DocStore.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var store docstore.Store
	if backend, err := docstore.ParseBackend(cfg.DocStore.Backend); err != nil {
		slog.Error("invalid docstore backend", "error", err)
		os.Exit(1)
	} else if backend != docstore.BackendSegment {
		store, err = docstore.Open(ctx, cfg)
		if err != nil {
			slog.Error("failed to open docstore", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	open := expansion.Opener(cfg, store, m)
	service, err := open(ctx)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	stats := service.IndexStats()
	slog.Info("index loaded", "base_name", stats.BaseName, "documents", stats.Documents, "terms", stats.Terms)

	var cache *expansion.Cache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, expansion caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		cache = expansion.NewCache(redisClient, cfg.Indexer.BaseName, cfg.Redis.CacheTTL).
			WithMetrics(m).
			WithComputeTimeout(cfg.Server.WriteTimeout)
		slog.Info("expansion cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExpansionEvents)
	defer eventProducer.Close()
	collector := expansion.NewCollector(eventProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	h := expansion.NewHandler(service, cache, collector, expansion.NewStats(), m)

	// every replica reloads, so each one consumes under its own group
	reloadCfg := cfg.Kafka
	host, _ := os.Hostname()
	reloadCfg.ConsumerGroup = fmt.Sprintf("%s-reload-%s", cfg.Kafka.ConsumerGroup, host)
	reloads := kafka.NewConsumer(reloadCfg, cfg.Kafka.Topics.IndexComplete,
		expansion.HandleIndexBuilt(cfg.Indexer.BaseName, h, open))
	go func() {
		if err := reloads.Start(ctx); err != nil {
			slog.Error("index reload consumer error", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		current := h.Service().IndexStats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", current.Documents),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if store != nil {
		checker.Register("docstore", func(ctx context.Context) health.ComponentHealth {
			if _, err := store.Vector(ctx, 0); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("expansion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	if err := h.Swap(nil).Close(); err != nil {
		slog.Warn("closing index failed", "error", err)
	}
	slog.Info("expansion service stopped")
}
