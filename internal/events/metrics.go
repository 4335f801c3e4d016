package events

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsPublisher counts envelopes by event type before handing them to the
// wrapped Publisher.
type MetricsPublisher struct {
	next   Publisher
	events metric.Int64Counter
}

var _ Publisher = (*MetricsPublisher)(nil)

// NewMetricsPublisher instruments next with an order_events_total counter.
func NewMetricsPublisher(next Publisher, mp metric.MeterProvider) (*MetricsPublisher, error) {
	meter := mp.Meter("timeseats.events")
	events, err := meter.Int64Counter("order_events_total",
		metric.WithDescription("Order lifecycle events published"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsPublisher{next: next, events: events}, nil
}

// Publish counts the envelope and forwards it.
func (p *MetricsPublisher) Publish(ctx context.Context, e Envelope) {
	p.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", e.EventType)))
	p.next.Publish(ctx, e)
}
