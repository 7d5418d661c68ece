package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/atmopics/share/common/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes for pipeline stages
const (
	AttrStage      = attribute.Key("atmo.stage")
	AttrDID        = attribute.Key("atmo.did")
	AttrCollection = attribute.Key("atmo.collection")
	AttrRKey       = attribute.Key("atmo.rkey")
)

// Options configures tracing and profiling
type Options struct {
	ServiceName  string
	Environment  string
	PprofPort    int
	OTLPEndpoint string // host:port of an OTLP gRPC collector, empty keeps spans in process
	OTLPInsecure bool
	SampleRate   float64

	// SpanProcessors receive every ended span in addition to the exporter
	SpanProcessors []sdktrace.SpanProcessor
}

// Telemetry holds observability components
type Telemetry struct {
	log       *logger.Logger
	provider  *sdktrace.TracerProvider
	tracer    trace.Tracer
	pprofAddr string
	pprof     *http.Server
}

// New installs an SDK tracer provider as the global provider. Spans are
// batched to the OTLP collector when one is configured.
func New(ctx context.Context, opts Options, log *logger.Logger) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(opts.ServiceName),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(opts.SampleRate))),
	}

	if opts.OTLPEndpoint != "" {
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.OTLPEndpoint)}
		if opts.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	for _, sp := range opts.SpanProcessors {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(sp))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing initialized",
		"endpoint", opts.OTLPEndpoint,
		"sample_rate", opts.SampleRate,
	)

	return &Telemetry{
		log:       log,
		provider:  provider,
		tracer:    provider.Tracer("github.com/atmopics/share/" + opts.ServiceName),
		pprofAddr: fmt.Sprintf("localhost:%d", opts.PprofPort),
	}, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Start starts the pprof endpoint
func (t *Telemetry) Start(ctx context.Context) error {
	t.pprof = &http.Server{Addr: t.pprofAddr, Handler: http.DefaultServeMux}
	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := t.pprof.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	return nil
}

// Close flushes pending spans and stops the pprof endpoint
func (t *Telemetry) Close(ctx context.Context) error {
	var errs []error
	if t.pprof != nil {
		errs = append(errs, t.pprof.Shutdown(ctx))
	}
	errs = append(errs, t.provider.Shutdown(ctx))
	return errors.Join(errs...)
}

// TrackStage opens a span for one pipeline stage. The returned func ends it,
// recording err and the stage duration.
func (t *Telemetry) TrackStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	kv := make([]attribute.KeyValue, 0, len(attrs)+1)
	kv = append(kv, AttrStage.String(stage))
	kv = append(kv, attrs...)

	ctx, span := t.tracer.Start(ctx, stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kv...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		t.RecordDuration(stage, start)
	}
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}
