package main

import (
	"context"
	"fmt"
	"log"

	"logistics/internal/routing/coordinator"
	"logistics/internal/routing/matrix"
	"logistics/internal/routing/metrics"
	"logistics/internal/routing/repository"
	"logistics/internal/routing/service"
	"logistics/internal/routing/solver"
	"logistics/migrations"
	"logistics/pkg/cache"
	"logistics/pkg/config"
	"logistics/pkg/database"
	"logistics/pkg/logger"
	pkgmetrics "logistics/pkg/metrics"
	"logistics/pkg/server"
	"logistics/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadWithServiceDefaults("routing-core", 50060)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	ctx := context.Background()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.Init(ctx, telemetry.Config{
			Enabled:     cfg.Tracing.Enabled,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
			Environment: cfg.App.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			logger.Log.Warn("Failed to init telemetry", "error", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.Background()); err != nil {
					logger.Log.Warn("Failed to shutdown telemetry", "error", err)
				}
			}()
			logger.Log.Info("Telemetry initialized", "endpoint", cfg.Tracing.Endpoint)
		}
	}

	pkgmetrics.InitMetrics(cfg.Metrics.Namespace, cfg.App.Name)
	metrics.Init(cfg.Metrics.Namespace)

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(
			ctx,
			db.Pool(),
			&cfg.Database,
			migrations.PostgresMigrations,
			"postgres",
		); err != nil {
			logger.Fatal("failed to run migrations", "error", err)
		}
	}

	routeRepo := repository.NewPostgresRouteRepository(db)
	tempRepo := repository.NewPostgresTempAssignmentRepository(db)
	dataSource := service.NewPostgresDataSource(db, tempRepo)

	fallback := matrix.NewHaversineProvider(cfg.Routing.FallbackSpeedMPH)
	var real matrix.Provider = matrix.NewRealProvider(cfg.Routing.OSRMBaseURL, cfg.Routing.OSRMMaxLocations, cfg.Routing.OSRMRequestTimeout)

	var matrixCache *cache.MatrixCache
	if cfg.Cache.Enabled {
		baseCache, err := cache.New(cache.FromConfig(&cfg.Cache))
		if err != nil {
			logger.Log.Warn("failed to create cache, continuing without matrix cache", "error", err)
		} else {
			matrixCache = cache.NewMatrixCache(baseCache, cfg.Routing.MatrixCacheTTL)
		}
	}

	matrixProvider := matrix.NewCachingProvider(real, fallback, matrixCache, cfg.Routing.MatrixCacheTTL, cfg.Routing.MatrixCoordPrecision)

	vrp := solver.NewVRPSolver()
	pool := solver.NewPool(cfg.Routing.SolverWorkerPoolSize)
	coord := coordinator.New(dataSource, matrixProvider, vrp, pool)

	// routingService satisfies service.Service; transport registration
	// (gRPC/HTTP handler) is out of Core scope (spec §1 Non-goals), so only
	// the health/reflection server below is exposed for now.
	var routingService service.Service = service.New(coord, routeRepo, tempRepo, dataSource, dataSource, vrp, pool)

	srv := server.New(cfg)

	logger.Info("Starting routing-core service",
		"port", cfg.GRPC.Port,
		"environment", cfg.App.Environment,
		"version", cfg.App.Version,
		"service_type", fmt.Sprintf("%T", routingService),
	)

	if err := srv.Run(); err != nil {
		logger.Fatal("server failed", "error", err)
	}
}
