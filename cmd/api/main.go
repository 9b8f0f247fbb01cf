package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kursadbilgin/hrp-console/internal/config"
	"github.com/kursadbilgin/hrp-console/internal/handler"
	"github.com/kursadbilgin/hrp-console/internal/infra/postgresql"
	"github.com/kursadbilgin/hrp-console/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/hrp-console/internal/infra/redis"
	"github.com/kursadbilgin/hrp-console/internal/observability"
	"github.com/kursadbilgin/hrp-console/internal/orchestrator"
	"github.com/kursadbilgin/hrp-console/internal/override"
	"github.com/kursadbilgin/hrp-console/internal/repository"
	"github.com/kursadbilgin/hrp-console/internal/transport"
	"github.com/kursadbilgin/hrp-console/internal/upstream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer deps.close(logger)

	app := newApp(deps)

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()
	logger.Info("hrp-console api started",
		zap.Int("port", cfg.APIPort),
		zap.String("overrideBackend", cfg.OverrideBackend),
		zap.String("batchesDialect", cfg.BatchesDialect),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	if cfg.ClearOverridesOnShutdown {
		clearCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deps.overrides.Clear(clearCtx)
		logger.Info("cleared status overrides on shutdown")
	}
}

type dependencies struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	overrides *override.Store
	pipeline  *orchestrator.Orchestrator
	client    *upstream.Client

	sqlDB *sql.DB
	rdb   *redis.Client
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	persistence, err := deps.buildPersistence(ctx)
	if err != nil {
		return nil, err
	}
	deps.overrides = override.NewStore(ctx, persistence, logger)

	dialect, err := upstream.ParseDialect(cfg.BatchesDialect)
	if err != nil {
		return nil, err
	}
	restyClient := resty.New().
		SetBaseURL(cfg.UpstreamBaseURL).
		SetTimeout(time.Duration(cfg.UpstreamTimeoutSec) * time.Second)
	deps.client, err = upstream.NewClientWithResty(restyClient, dialect)
	if err != nil {
		return nil, err
	}

	deps.pipeline, err = orchestrator.New(deps.client, deps.overrides, deps.metrics, logger)
	if err != nil {
		return nil, err
	}

	return deps, nil
}

func (d *dependencies) buildPersistence(ctx context.Context) (override.Persistence, error) {
	switch d.cfg.OverrideBackend {
	case config.OverrideBackendMemory:
		return nil, nil

	case config.OverrideBackendRedis:
		rdb, err := infraredis.NewRedis(d.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		d.rdb = rdb
		return infraredis.NewOverridePersistence(rdb)

	case config.OverrideBackendPostgres:
		db, err := postgresql.NewPostgres(d.cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres initialization failed: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			return nil, fmt.Errorf("database migrations failed: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
		}
		d.sqlDB = sqlDB
		return repository.NewGormOverrideRepo(db), nil

	default:
		return nil, fmt.Errorf("unknown override backend %q", d.cfg.OverrideBackend)
	}
}

func (d *dependencies) close(logger *zap.Logger) {
	if d.sqlDB != nil {
		if err := d.sqlDB.Close(); err != nil {
			logger.Warn("postgres close failed", zap.Error(err))
		}
	}
	if d.rdb != nil {
		if err := d.rdb.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}
}

func newApp(deps *dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(deps.logger),
		DisableStartupMessage: true,
	})

	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(deps.metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, deps.sqlDB, deps.rdb)
	app.Get("/metrics", adaptor.HTTPHandler(deps.metrics.Handler()))

	if err := handler.RegisterDashboardRoutes(app, deps.pipeline, deps.client); err != nil {
		deps.logger.Fatal("route registration failed", zap.Error(err))
	}

	return app
}
