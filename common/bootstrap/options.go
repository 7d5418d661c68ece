package bootstrap

import (
	"github.com/atmopics/share/common/config"
	"github.com/atmopics/share/common/logger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the bootstrap process
type Option func(*options)

type options struct {
	skipCache      bool
	skipTelemetry  bool
	customLogger   *logger.Logger
	customConfig   *config.Config
	spanProcessors []sdktrace.SpanProcessor
}

// WithoutCache skips cache initialization
func WithoutCache() Option {
	return func(o *options) {
		o.skipCache = true
	}
}

// WithoutTelemetry skips telemetry initialization
func WithoutTelemetry() Option {
	return func(o *options) {
		o.skipTelemetry = true
	}
}

// WithCustomLogger uses a custom logger instead of creating one
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.customLogger = log
	}
}

// WithCustomConfig uses a custom config instead of loading from env
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.customConfig = cfg
	}
}

// WithSpanProcessor adds a processor that sees every ended span, next to
// the configured exporter
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

func defaultOptions() *options {
	return &options{}
}
