// Package telemetry wires OpenTelemetry metrics for tecp-ledgerd: a
// RED-style counter/histogram set over ledger HTTP operations,
// adapted from core/pkg/observability/observability.go but
// trimmed to the metrics half only (this module's go.mod carries the
// metrics SDK and OTLP-gRPC metric exporter, not the trace exporter).
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config configures the metrics provider. A zero-valued Config disables
// export entirely and every recorded metric is a no-op.
type Config struct {
	OTLPEndpoint string // e.g. "localhost:4317"; empty disables export
	Insecure     bool
}

// Provider holds the RED metrics tecp-ledgerd emits: operation counts,
// error counts, and duration histograms, keyed by an "op" attribute
// (internal/ledgerd tracks "append" and "proof").
type Provider struct {
	provider *sdkmetric.MeterProvider // nil when telemetry is disabled
	meter    metric.Meter

	opCounter    metric.Int64Counter
	errCounter   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// New constructs a Provider. With an empty OTLPEndpoint, it returns a
// Provider backed by the OpenTelemetry no-op meter so every call site
// can unconditionally call Record*/Track without a nil check.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.OTLPEndpoint == "" {
		return newNoop()
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)

	p := &Provider{provider: mp, meter: mp.Meter("tecp.ledger")}
	if err := p.initMetrics(); err != nil {
		return nil, err
	}
	return p, nil
}

func newNoop() (*Provider, error) {
	p := &Provider{meter: noop.NewMeterProvider().Meter("tecp.ledger")}
	return p, p.initMetrics()
}

func (p *Provider) initMetrics() error {
	var err error
	p.opCounter, err = p.meter.Int64Counter("tecp.ledger.operations.total",
		metric.WithDescription("Total ledger operations processed"), metric.WithUnit("{operation}"))
	if err != nil {
		return err
	}
	p.errCounter, err = p.meter.Int64Counter("tecp.ledger.errors.total",
		metric.WithDescription("Total ledger operation errors"), metric.WithUnit("{error}"))
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("tecp.ledger.operation.duration",
		metric.WithDescription("Ledger operation duration"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0))
	return err
}

// Track records one operation's outcome and duration. Call the
// returned func when the operation completes, passing its error (or
// nil on success).
func (p *Provider) Track(ctx context.Context, op string) func(error) {
	start := time.Now()
	attrs := metric.WithAttributes(opAttr(op))
	p.opCounter.Add(ctx, 1, attrs)
	return func(err error) {
		p.durationHist.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil {
			p.errCounter.Add(ctx, 1, attrs)
		}
	}
}

// Shutdown flushes and stops the metric provider. A no-op when
// telemetry is disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

func opAttr(op string) attribute.KeyValue {
	return attribute.String("op", op)
}
