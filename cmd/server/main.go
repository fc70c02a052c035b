package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/connectorgw/internal/cache"
	"github.com/JonMunkholm/connectorgw/internal/config"
	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
	_ "github.com/JonMunkholm/connectorgw/internal/core/tools" // Register all transforms
	"github.com/JonMunkholm/connectorgw/internal/executor"
	"github.com/JonMunkholm/connectorgw/internal/fetch"
	"github.com/JonMunkholm/connectorgw/internal/logging"
	"github.com/JonMunkholm/connectorgw/internal/metrics"
	"github.com/JonMunkholm/connectorgw/internal/pipeline"
	"github.com/JonMunkholm/connectorgw/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"cache_backend", cfg.Cache.Backend,
		"runner_max_concurrent", cfg.Runner.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"sql_enabled", cfg.Database.SQLEnabled(),
	)

	ctx := context.Background()
	collector := metrics.New()

	router := fetch.Router{}
	httpFetcher := fetch.NewHTTP(fetch.HTTPConfig{
		Timeout:            cfg.Upstream.Timeout,
		MaxRetries:         cfg.Upstream.MaxRetries,
		InitialBackoff:     cfg.Upstream.InitialBackoff,
		MaxBackoff:         cfg.Upstream.MaxBackoff,
		InsecureSkipVerify: cfg.Upstream.InsecureSkipVerify,
		BreakerThreshold:   cfg.Upstream.BreakerThreshold,
		BreakerTimeout:     cfg.Upstream.BreakerTimeout,
		MaxBodyBytes:       cfg.Upstream.MaxBodyBytes,
	}, collector)
	router.URL = httpFetcher

	if cfg.Database.SQLEnabled() {
		pool, err := connectDatabase(ctx, &cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		router.SQL = fetch.NewSQL(pool, collector)
	}

	catalog, err := connector.LoadCatalog(core.Default, cfg.Connectors.Dir, cfg.Connectors.Builtin)
	if err != nil {
		slog.Error("failed to load connectors", "error", err)
		os.Exit(1)
	}
	slog.Info("connectors loaded", "count", catalog.Len(), "transforms", core.Default.Len())
	for _, spec := range catalog.All() {
		slog.Debug("connector", "name", spec.Name(), "route", spec.Route(), "execution", spec.ExecutionMode())
	}

	var origin, response cache.Cache
	var upstream fetch.Fetcher = router
	if cfg.Cache.OriginEnabled {
		origin = mustCache(cfg, metrics.CacheOrigin)
		defer origin.Close()
		upstream = fetch.NewCached(router, origin, cfg.Cache.TTL, metrics.CacheOrigin, collector)
	}
	if cfg.Cache.ResponseEnabled {
		response = mustCache(cfg, metrics.CacheResponse)
		defer response.Close()
	}

	runner := pipeline.New(core.Default, upstream)
	runner.DefaultTimeout = cfg.Runner.DefaultTimeout

	exec, err := executor.New(executor.Options{
		Catalog:     catalog,
		Runner:      runner,
		Origin:      origin,
		OriginTTL:   cfg.Cache.TTL,
		Response:    response,
		ResponseTTL: cfg.Cache.TTL,
		Limiter:     core.NewRunLimiter(cfg.Runner.MaxConcurrent, cfg.Runner.MaxWait),
		Metrics:     collector,
	})
	if err != nil {
		slog.Error("failed to create executor", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(web.Options{
		Executor: exec,
		Config:   cfg,
		Registry: core.Default,
		Breakers: httpFetcher,
	})

	// Cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	var caches []cache.Cache
	for _, c := range []cache.Cache{origin, response} {
		if c != nil {
			caches = append(caches, c)
		}
	}
	go cache.StartSweeper(jobCtx, cfg.Cache.SweepInterval, caches...)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Let runs whose callers went away finish committing their caches
		if active := exec.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for connector runs to complete", "active", active)
			if err := exec.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("connector runs did not complete in time", "error", err)
			}
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDatabase(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func mustCache(cfg *config.Config, name string) cache.Cache {
	c, err := cache.New(cache.Options{
		Name:       name,
		Backend:    cfg.Cache.Backend,
		TTL:        cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		RedisURL:   cfg.Cache.RedisURL,
		KeyPrefix:  cfg.Cache.KeyPrefix,
	})
	if err != nil {
		slog.Error("failed to create cache", "cache", name, "error", err)
		os.Exit(1)
	}
	return c
}
