package bootstrap

import (
	"context"
	"fmt"

	"github.com/atmopics/share/common/cache"
	"github.com/atmopics/share/common/config"
	"github.com/atmopics/share/common/db"
	"github.com/atmopics/share/common/logger"
	rediscommon "github.com/atmopics/share/common/redis"
	"github.com/atmopics/share/common/telemetry"
)

// Setup initializes all service components
// This is the main entry point for all services
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	useCache := !options.skipCache && cfg.Cache.Enabled

	// 3. Initialize database (only the postgres cache needs it)
	if useCache && cfg.Cache.Backend == "postgres" {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, cfg, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if err := components.DB.Migrate(ctx, cache.Schema); err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
	}

	// 4. Initialize redis (redis cache or shared rate limiting)
	if (useCache && cfg.Cache.Backend == "redis") || cfg.RateLimit.Backend == "redis" {
		components.Redis, err = rediscommon.Connect(ctx, cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Initialize cache (if not skipped)
	if useCache {
		components.Logger.Info("initializing cache", "backend", cfg.Cache.Backend)

		switch cfg.Cache.Backend {
		case "memory":
			components.Cache = cache.NewMemoryCache(components.Logger)
		case "redis":
			components.Cache = cache.NewRedisCache(components.Redis, serviceName+":cache:")
		case "postgres":
			pg := cache.NewPostgresCache(components.DB)
			components.Cache = pg
			components.startPurge(pg, cfg.Cache.PurgeInterval)
		default:
			components.Shutdown(ctx)
			return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing cache")
			return components.Cache.Close()
		})
	}

	// 6. Initialize telemetry (if not skipped). Tracing is always installed,
	// pprof only when enabled.
	if !options.skipTelemetry {
		components.Telemetry, err = telemetry.New(ctx, telemetry.Options{
			ServiceName:    serviceName,
			Environment:    cfg.Service.Environment,
			PprofPort:      cfg.Telemetry.PprofPort,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
			SampleRate:     cfg.Telemetry.SampleRate,
			SpanProcessors: options.spanProcessors,
		}, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}

		if cfg.Telemetry.EnablePprof {
			if err := components.Telemetry.Start(ctx); err != nil {
				components.Logger.Warn("failed to start telemetry", "error", err)
			}
		}
		components.addCleanup(func() error {
			return components.Telemetry.Close(context.Background())
		})
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}
