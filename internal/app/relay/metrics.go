package relay

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics tracks outbound event publishing for the relay service. It
// satisfies the publisher metrics interfaces of the bus implementations.
type Metrics struct {
	published     metric.Int64Counter
	publishErrors metric.Int64Counter
}

// NewMetrics creates the relay metric instruments on the provided meter
// provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("mediarelay")

	published, err := meter.Int64Counter("relay_events_published_total",
		metric.WithDescription("Total outbound events accepted by the bus"))
	if err != nil {
		return nil, fmt.Errorf("creating published counter: %w", err)
	}

	publishErrors, err := meter.Int64Counter("relay_publish_errors_total",
		metric.WithDescription("Total outbound publish failures"))
	if err != nil {
		return nil, fmt.Errorf("creating publish error counter: %w", err)
	}

	return &Metrics{published: published, publishErrors: publishErrors}, nil
}

// IncEventPublished counts an accepted outbound event.
func (m *Metrics) IncEventPublished(ctx context.Context, topic string) {
	m.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

// IncPublishError counts a failed outbound publish.
func (m *Metrics) IncPublishError(ctx context.Context, topic string) {
	m.publishErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}
