// Package tracing configures OpenTelemetry tracing for the ledger engine,
// exporting spans via OTLP/gRPC when an endpoint is configured.
package tracing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dodopay/ledger"

var tracer = otel.Tracer(tracerName)

// Init configures the global tracer provider against an OTLP collector at
// endpoint. If endpoint is empty, tracing stays a no-op.
func Init(ctx context.Context, endpoint string, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", "dodopay-ledger"),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized", "endpoint", endpoint)
	return tp.Shutdown, nil
}

// StartSpan starts a span named name with optional attributes, under the
// package tracer (used by internal/ledger).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// TenantID returns a tenant_id span attribute.
func TenantID(id string) attribute.KeyValue { return attribute.String("tenant_id", id) }

// AccountID returns an account_id span attribute.
func AccountID(id string) attribute.KeyValue { return attribute.String("account_id", id) }

// Amount returns an amount span attribute.
func Amount(amount string) attribute.KeyValue { return attribute.String("amount", amount) }

// IdempotencyKey returns an idempotency_key span attribute.
func IdempotencyKey(key string) attribute.KeyValue { return attribute.String("idempotency_key", key) }

// Elapsed returns a duration_ms span attribute, useful for manual timing.
func Elapsed(d time.Duration) attribute.KeyValue {
	return attribute.Int64("duration_ms", d.Milliseconds())
}
