package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/analytics"
	"github.com/smukkama/energy-kpi/internal/database"
	"github.com/smukkama/energy-kpi/internal/hierarchy"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/kpicache"
	"github.com/smukkama/energy-kpi/internal/metrics"
	"github.com/smukkama/energy-kpi/internal/planner"
	"github.com/smukkama/energy-kpi/pkg/config"
)

// App holds the wired KPI core shared by the server and the reporter
type App struct {
	DB           *database.DB
	Redis        *redis.Client
	Metrics      *metrics.Metrics
	Orchestrator *analytics.Orchestrator
}

// New connects to the backing services and wires the KPI core
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Connected to database", zap.String("host", cfg.Database.Host))

	app := &App{DB: db}

	var cache kpicache.Cache = kpicache.NewMemory(cfg.KPI.CacheTTL)
	if cfg.Redis.Enabled {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		cache = kpicache.NewRedis(app.Redis, cfg.KPI.CacheTTL, logger)
		logger.Info("Using Redis KPI cache", zap.String("addr", cfg.Redis.Addr))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(reg)

	store := database.NewMeasurementStore(db)
	directory := hierarchy.NewCachedDirectory(database.NewDirectory(db), cfg.KPI.DirectoryTTL)
	meta := database.NewMetadata(db)

	engine := kpi.NewEngine(store, planner.New(cfg.KPI.Location), kpi.NewAggregator(logger, cfg.KPI.QualityWarning), app.Metrics, logger)
	rollup := hierarchy.NewRollup(directory, engine, logger)

	generators := analytics.DefaultGenerators(analytics.Deps{
		Reader:     kpi.NewFallbackResolver(store, app.Metrics, logger),
		Metadata:   meta,
		Thresholds: meta,
		Rollup:     rollup,
		Location:   cfg.KPI.Location,
	})
	timeouts := analytics.Timeouts{Light: cfg.KPI.FastGeneratorTimeout, Heavy: cfg.KPI.SlowGeneratorTimeout}
	app.Orchestrator = analytics.NewOrchestrator(rollup, cache, meta, generators, timeouts, app.Metrics, logger)

	return app, nil
}

// Close releases the database and Redis connections
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
