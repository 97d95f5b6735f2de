// Package telemetry exports bdcollect's traces, metrics and logs to an OTLP
// gRPC collector over a single connection. [NewLogHandler] tees slog records
// into whichever log provider is installed.
//
// Call [Setup] once during startup and defer the returned [ShutdownFunc].
// Without it the global providers stay no-ops.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/njoerd114/bdcollect/internal/config"
)

const defaultServiceName = "bdcollect"

// ShutdownFunc flushes and closes everything Setup started. Call it with a
// fresh context; the main one is usually cancelled by then.
type ShutdownFunc func(context.Context) error

// closers runs shutdown hooks in reverse registration order.
type closers []func(context.Context) error

func (c closers) shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup installs global trace, metric and log providers exporting to the
// collector in cfg. version is reported as service.version. The returned
// ShutdownFunc is never nil.
func Setup(ctx context.Context, cfg *config.TelemetryConfig, version string) (ShutdownFunc, error) {
	if cfg == nil {
		return noopShutdown, errors.New("telemetry config is nil")
	}

	res, err := newResource(cfg.ServiceName, version)
	if err != nil {
		return noopShutdown, err
	}

	conn, err := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(transportCreds(cfg.Insecure)))
	if err != nil {
		return noopShutdown, fmt.Errorf("dialling OTLP collector at %q: %w", cfg.OTLPEndpoint, err)
	}
	cs := closers{func(context.Context) error {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("closing OTLP connection: %w", err)
		}
		return nil
	}}

	steps := []func(context.Context, *grpc.ClientConn, map[string]string, *resource.Resource) (func(context.Context) error, error){
		installTracing,
		installMetrics,
		installLogs,
	}
	for _, step := range steps {
		stop, err := step(ctx, conn, cfg.Headers, res)
		if err != nil {
			_ = cs.shutdown(ctx)
			return noopShutdown, err
		}
		cs = append(cs, stop)
	}
	return cs.shutdown, nil
}

func newResource(serviceName, version string) (*resource.Resource, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	// Schemaless so resource.Default()'s semconv version never conflicts.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("building OTel resource: %w", err)
	}
	return res, nil
}

func transportCreds(plaintext bool) credentials.TransportCredentials {
	if plaintext {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(nil)
}

func installTracing(ctx context.Context, conn *grpc.ClientConn, headers map[string]string, res *resource.Resource) (func(context.Context) error, error) {
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn), otlptracegrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return wrapShutdown("trace provider", tp.Shutdown), nil
}

func installMetrics(ctx context.Context, conn *grpc.ClientConn, headers map[string]string, res *resource.Resource) (func(context.Context) error, error) {
	exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn), otlpmetricgrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return wrapShutdown("metric provider", mp.Shutdown), nil
}

func installLogs(ctx context.Context, conn *grpc.ClientConn, headers map[string]string, res *resource.Resource) (func(context.Context) error, error) {
	exp, err := otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(conn), otlploggrpc.WithHeaders(headers))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)
	return wrapShutdown("log provider", lp.Shutdown), nil
}

func wrapShutdown(what string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s shutdown: %w", what, err)
		}
		return nil
	}
}

func noopShutdown(context.Context) error { return nil }
