package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes engine-level instruments.
type Metrics struct {
	mutations            metric.Int64Counter
	undos                metric.Int64Counter
	availabilityConflict metric.Int64Counter
	creditMovements      metric.Int64Counter
	eventsDropped        metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "guesthouse"
	}
	meter := provider.Meter(name)

	mutations, err := meter.Int64Counter("guesthouse_mutations_total")
	if err != nil {
		return nil, err
	}
	undos, err := meter.Int64Counter("guesthouse_undo_total")
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("guesthouse_availability_conflicts_total")
	if err != nil {
		return nil, err
	}
	credit, err := meter.Int64Counter("guesthouse_credit_movements_total")
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("guesthouse_events_dropped_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		mutations:            mutations,
		undos:                undos,
		availabilityConflict: conflicts,
		creditMovements:      credit,
		eventsDropped:        dropped,
	}, nil
}

// NewNoop returns instruments bound to a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordMutation counts a committed mutation of an entity.
func (m *Metrics) RecordMutation(ctx context.Context, entityType, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity_type", strings.TrimSpace(entityType)),
		attribute.String("operation", strings.TrimSpace(operation)),
	)
	m.mutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordUndo counts undo attempts by outcome.
func (m *Metrics) RecordUndo(ctx context.Context, entityType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity_type", strings.TrimSpace(entityType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.undos.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAvailabilityConflict counts rejected room assignments.
func (m *Metrics) RecordAvailabilityConflict(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.availabilityConflict.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCreditMovement counts credit entries by kind.
func (m *Metrics) RecordCreditMovement(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))
	m.creditMovements.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventDropped counts change events discarded by a full subscriber.
func (m *Metrics) RecordEventDropped(ctx context.Context, entityType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("entity_type", strings.TrimSpace(entityType)))
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"entity_type": {},
	"operation":   {},
	"outcome":     {},
	"source":      {},
	"kind":        {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
