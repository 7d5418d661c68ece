package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/atmopics/share/common/cache"
	"github.com/atmopics/share/common/config"
	"github.com/atmopics/share/common/db"
	"github.com/atmopics/share/common/logger"
	rediscommon "github.com/atmopics/share/common/redis"
	"github.com/atmopics/share/common/telemetry"
)

// Components holds all initialized service dependencies
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *rediscommon.Client
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	// Internal
	cleanupFuncs []func() error
}

// Shutdown performs graceful shutdown of all components
// Should be called with defer after Setup()
func (c *Components) Shutdown(ctx context.Context) error {
	c.Logger.Info("shutting down components")

	var errors []error

	// Run cleanup functions in reverse order (LIFO)
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		if err := c.cleanupFuncs[i](); err != nil {
			errors = append(errors, err)
			c.Logger.Error("cleanup error", "error", err)
		}
	}
	c.cleanupFuncs = nil

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %v", errors)
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health checks health of all components
func (c *Components) Health(ctx context.Context) map[string]error {
	status := make(map[string]error)

	if c.DB != nil {
		status["database"] = c.DB.Health(ctx)
	}
	if c.Redis != nil {
		status["redis"] = c.Redis.Ping(ctx)
	}
	// Memory cache is always healthy

	return status
}

// AddCleanup registers a cleanup function run by Shutdown
func (c *Components) AddCleanup(fn func() error) {
	c.addCleanup(fn)
}

func (c *Components) addCleanup(fn func() error) {
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

type purgeRunner interface {
	RunPurge(ctx context.Context, interval time.Duration, log *logger.Logger)
}

// startPurge runs a cache sweep in the background until Shutdown
func (c *Components) startPurge(p purgeRunner, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.RunPurge(ctx, interval, c.Logger)
	}()

	c.addCleanup(func() error {
		cancel()
		<-done
		return nil
	})
}
