package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls the process-wide tracer provider.
type Config struct {
	ServiceName string

	// OTLPEndpoint is the host:port of an OTLP/HTTP collector. When
	// empty no spans leave the process; they still mint trace ids so
	// log lines stay correlated.
	OTLPEndpoint string

	// SampleRatio is the parent-based sampling ratio. Values outside
	// (0, 1] mean sample everything.
	SampleRatio float64
}

var (
	initOnce   sync.Once
	initErr    error
	providerMu sync.RWMutex
	tracerProv *sdktrace.TracerProvider
)

// Init installs the global tracer provider. Only the first call takes
// effect; later calls return the first call's result.
func Init(cfg Config) error {
	initOnce.Do(func() {
		ctx := context.Background()

		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		))
		if err != nil {
			initErr = err
			return
		}

		ratio := cfg.SampleRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 1
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
			sdktrace.WithResource(res),
		}

		if cfg.OTLPEndpoint != "" {
			exporter, err := otlptracehttp.New(ctx,
				otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
				otlptracehttp.WithInsecure(),
			)
			if err != nil {
				initErr = err
				return
			}
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}

		tp := sdktrace.NewTracerProvider(opts...)

		providerMu.Lock()
		tracerProv = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})

	return initErr
}

// Shutdown flushes buffered spans and stops the tracer provider.
func Shutdown(ctx context.Context) error {
	providerMu.RLock()
	tp := tracerProv
	providerMu.RUnlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span and mirrors its trace id into this package's
// context keys so spans and log lines correlate.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}

	return ctx, span
}
