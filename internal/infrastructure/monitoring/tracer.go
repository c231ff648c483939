package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerConfig controls where spans are exported. An empty Endpoint runs the
// tracer with no exporter wired, which still produces valid in-process spans
// (useful for tests and for runs where OTEL_EXPORTER_OTLP_ENDPOINT is unset).
type TracerConfig struct {
	ServiceName string
	Endpoint    string // host:port of an OTLP/HTTP collector, e.g. "localhost:4318"
	Insecure    bool
}

// NewTracerProvider builds an OTel TracerProvider for the harness's run
// traces (one trace per test, spans per turn and per tool call). The
// returned shutdown func must be called to flush buffered spans on exit.
func NewTracerProvider(ctx context.Context, cfg TracerConfig, logger *zap.Logger) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("build otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	logger.Info("tracer provider configured",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("exporter_enabled", cfg.Endpoint != ""))

	return tp, tp.Shutdown, nil
}

// StartTestSpan opens the root span for a single test execution.
func StartTestSpan(ctx context.Context, taskID, modelID, taskType string) (context.Context, trace.Span) {
	tracer := otel.Tracer("evalharness/executor")
	return tracer.Start(ctx, "run_test", trace.WithAttributes(
		attribute.String("test.id", taskID),
		attribute.String("test.model_id", modelID),
		attribute.String("test.task_type", taskType),
	))
}

// StartTurnSpan opens a child span for one conversation turn.
func StartTurnSpan(ctx context.Context, turnIndex int) (context.Context, trace.Span) {
	tracer := otel.Tracer("evalharness/executor")
	return tracer.Start(ctx, "turn", trace.WithAttributes(
		attribute.Int("turn.index", turnIndex),
	))
}

// StartToolSpan opens a child span for one simulated tool invocation.
func StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	tracer := otel.Tracer("evalharness/executor")
	return tracer.Start(ctx, "tool_call", trace.WithAttributes(
		attribute.String("tool.name", toolName),
	))
}

// EndSpan records err (if any) on span and closes it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
