package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names the tracer and meter handed to the planner.
const instrumentationName = "courseplanner"

// Providers holds the initialized observability providers.
type Providers struct {
	// Tracer is the named tracer for creating spans.
	Tracer trace.Tracer

	// Meter is the named meter for creating instruments.
	Meter metric.Meter

	// Logger is the context-aware structured logger.
	Logger *slog.Logger

	// Shutdown flushes all pending telemetry and releases resources.
	// Must be called before process exit.
	Shutdown func(ctx context.Context) error
}

// Init initializes OpenTelemetry tracing, metrics, and structured logging.
// When OTLPEndpoint is empty, no-op providers are used with zero export overhead.
func Init(cfg Config) (Providers, error) {
	pipe := pipeline{
		tracerProvider: nooptrace.NewTracerProvider(),
		meterProvider:  noopmetric.NewMeterProvider(),
	}

	if cfg.OTLPEndpoint != "" {
		err := pipe.export(context.Background(), cfg)
		if err != nil {
			return Providers{}, errors.Join(err, pipe.flush(context.Background()))
		}
	}

	otel.SetTracerProvider(pipe.tracerProvider)
	otel.SetMeterProvider(pipe.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return Providers{
		Tracer: pipe.tracerProvider.Tracer(instrumentationName),
		Meter:  pipe.meterProvider.Meter(instrumentationName),
		Logger: buildLogger(cfg),
		Shutdown: func(ctx context.Context) error {
			deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return pipe.flush(deadlineCtx)
		},
	}, nil
}

// pipeline is the pair of providers a run reports through, plus whatever has to be
// flushed when the run ends.
type pipeline struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	flushers       []func(context.Context) error
}

// export replaces the no-op providers with SDK providers that push spans and metrics
// to the OTLP collector over gRPC.
func (p *pipeline) export(ctx context.Context, cfg Config) error {
	res := serviceResource(cfg)

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}

	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spanExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(selectSampler(cfg)),
	)
	p.tracerProvider = tp
	p.flushers = append(p.flushers, tp.Shutdown)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	p.meterProvider = mp
	p.flushers = append(p.flushers, mp.Shutdown)

	return nil
}

func (p *pipeline) flush(ctx context.Context) error {
	errs := make([]error, 0, len(p.flushers))
	for _, flush := range p.flushers {
		errs = append(errs, flush(ctx))
	}

	return errors.Join(errs...)
}

// serviceResource describes this process to the collector: service name and version,
// deployment environment and the courseplanner mode (cli or menu).
func serviceResource(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	for key, value := range map[attribute.Key]string{
		semconv.ServiceVersionKey:        cfg.ServiceVersion,
		semconv.DeploymentEnvironmentKey: cfg.Environment,
		"app.mode":                       string(cfg.Mode),
	} {
		if value != "" {
			attrs = append(attrs, key.String(value))
		}
	}

	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// selectSampler samples every root span unless a ratio below one is configured.
// Child spans follow their parent's decision.
func selectSampler(cfg Config) sdktrace.Sampler {
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func buildLogger(cfg Config) *slog.Logger {
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	} else {
		inner = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}
