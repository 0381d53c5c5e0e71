package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"mailtpl/internal/cache"
	"mailtpl/internal/config"
	"mailtpl/internal/httpapi"
	"mailtpl/internal/pkg/logger"
	"mailtpl/internal/pkg/shutdown"
	"mailtpl/internal/ports"
	"mailtpl/internal/repositories/postgres"
	"mailtpl/internal/repositories/sqlite"
	"mailtpl/internal/templates"
)

const serviceName = "mailtpl-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{ServiceName: serviceName}).LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: serviceName,
		AddSource:   cfg.LogSource,
	})
	log.Info("starting template API", "store_driver", cfg.StoreDriver)

	if err := run(cfg, log); err != nil {
		log.LogFatal("template API stopped with error", err)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	repo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	shutdownMgr.Register("store", func(ctx context.Context) error {
		return repo.Close()
	})

	var (
		rdb          *redis.Client
		versionCache ports.VersionCache = cache.Noop{}
	)
	if cfg.RedisAddr != "" {
		log.Info("connecting to Redis", "addr", cfg.RedisAddr)
		rdb, err = cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = shutdownMgr.Shutdown()
			return err
		}
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		versionCache = cache.NewRedisVersionCache(rdb, cfg.VersionCacheTTL)
		log.Info("Redis connected, version cache enabled", "ttl", cfg.VersionCacheTTL.String())
	} else {
		log.Info("REDIS_ADDR not set, version cache disabled")
	}

	store := templates.New(templates.Deps{
		Repo:  repo,
		Cache: versionCache,
		Log:   log,
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Store:            store,
		DB:               repo,
		StoreDriver:      cfg.StoreDriver,
		RDB:              rdb,
		Log:              log,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		RequestTimeout:   cfg.RequestTimeout,
		ProcessRateLimit: cfg.ProcessRateLimit,
		ProcessRateBurst: cfg.ProcessRateBurst,

		RateLimitClientHeader: cfg.RateLimitClientHeader,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Registered last so it stops first, before the store and cache close.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Returns on a signal, or when the listener fails and cancels gctx.
		return shutdownMgr.WaitWithContext(gctx)
	})

	return g.Wait()
}

func openRepository(ctx context.Context, cfg config.Config, log *logger.Logger) (ports.TemplateRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		log.Info("connecting to PostgreSQL")
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		repo, err := postgres.Open(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("PostgreSQL connected")
		return repo, nil
	default:
		log.Info("opening SQLite store", "path", cfg.SQLitePath)
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}
