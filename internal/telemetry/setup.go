// Package telemetry installs the OpenTelemetry providers the configurator
// reports spans and activation counters to.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables read by InitProvider.
const (
	EnvExporter   = "VKCONFIG_OTEL_EXPORTER"
	EnvInstanceID = "VKCONFIG_INSTANCE_ID"
)

// ShutdownTimeout bounds the flush of buffered spans on exit.
const ShutdownTimeout = 5 * time.Second

const serviceName = "vkconfig"

// exporters builds the span exporter and, optionally, the metric exporter for
// one VKCONFIG_OTEL_EXPORTER value.
type exporters func(ctx context.Context) (sdktrace.SpanExporter, sdkmetric.Exporter, error)

// Diagnostics go to stderr so they never mix with command output.
var registry = map[string]exporters{
	"stdout": func(context.Context) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
		spans, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return spans, metrics, nil
	},
	"otlp-grpc": func(ctx context.Context) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
		spans, err := otlptrace.New(ctx, otlptracegrpc.NewClient())
		if err != nil {
			return nil, nil, fmt.Errorf("otlp grpc exporter: %w", err)
		}
		return spans, nil, nil
	},
	"otlp-http": func(ctx context.Context) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
		spans, err := otlptrace.New(ctx, otlptracehttp.NewClient())
		if err != nil {
			return nil, nil, fmt.Errorf("otlp http exporter: %w", err)
		}
		return spans, nil, nil
	},
}

var aliases = map[string]string{"otlp": "otlp-grpc"}

// Exporters lists the accepted exporter names.
func Exporters() []string {
	names := []string{"none"}
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names[1:])
	return names
}

// InitProvider configures global OpenTelemetry providers from
// VKCONFIG_OTEL_EXPORTER. Telemetry is off unless an exporter is named.
func InitProvider(ctx context.Context) (func(context.Context) error, error) {
	return InitProviderFor(ctx, os.Getenv(EnvExporter))
}

// InitProviderFor installs the providers for the named exporter. Unknown
// names leave telemetry off and are reported.
func InitProviderFor(ctx context.Context, exporter string) (func(context.Context) error, error) {
	name := strings.ToLower(strings.TrimSpace(exporter))
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	if name == "" || name == "none" {
		return noopShutdown, nil
	}
	build, ok := registry[name]
	if !ok {
		return noopShutdown, fmt.Errorf("unknown %s %q (accepted: %s)", EnvExporter, exporter, strings.Join(Exporters(), ", "))
	}
	spans, metrics, err := build(ctx)
	if err != nil {
		return nil, err
	}
	return installProvider(ctx, spans, metrics)
}

func noopShutdown(context.Context) error { return nil }

func installProvider(ctx context.Context, spans sdktrace.SpanExporter, metrics sdkmetric.Exporter) (func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceInstanceIDKey.String(hashInstanceID()),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	shutdowns := make([]func(context.Context) error, 0, 2)
	if metrics != nil {
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown)

	return func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdowns {
			if err := shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, nil
}

// hashInstanceID identifies the machine without exporting its hostname.
func hashInstanceID() string {
	input := os.Getenv(EnvInstanceID)
	if input == "" {
		input, _ = os.Hostname()
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
