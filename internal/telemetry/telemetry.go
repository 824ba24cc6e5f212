// Package telemetry installs the OpenTelemetry providers used by the
// orchestration core
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kode4food/foreman/internal/config"
)

// Telemetry holds the providers installed by Setup. A signal that is not
// enabled keeps the global no-op provider
type Telemetry struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logger *sdklog.LoggerProvider
}

const instrumentation = "github.com/kode4food/foreman"

// Setup installs a stdout exporter for every enabled signal and registers
// its provider globally
func Setup(
	ctx context.Context, cfg config.TelemetryConfig, service string,
	w io.Writer,
) (*Telemetry, error) {
	res := resource.NewSchemaless(attribute.String("service.name", service))
	t := &Telemetry{}

	if cfg.Traces {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, err
		}
		t.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(t.tracer)
	}

	if cfg.Metrics {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, errors.Join(err, t.Shutdown(ctx))
		}
		t.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(t.meter)
	}

	if cfg.Logs {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, errors.Join(err, t.Shutdown(ctx))
		}
		t.logger = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(t.logger)
	}
	return t, nil
}

// Handler returns base, also forwarding every record to the OpenTelemetry
// log pipeline when log export is enabled
func (t *Telemetry) Handler(base slog.Handler) slog.Handler {
	if t.logger == nil {
		return base
	}
	return fanout{
		base,
		otelslog.NewHandler(instrumentation,
			otelslog.WithLoggerProvider(t.logger),
		),
	}
}

// Shutdown flushes and stops every installed provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracer != nil {
		errs = append(errs, t.tracer.Shutdown(ctx))
	}
	if t.meter != nil {
		errs = append(errs, t.meter.Shutdown(ctx))
	}
	if t.logger != nil {
		errs = append(errs, t.logger.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
