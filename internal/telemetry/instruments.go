package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the counters shared by ingestion, availability and the
// resolver
type Instruments struct {
	ingestEvents    metric.Int64Counter
	decisions       metric.Int64Counter
	reservations    metric.Int64Counter
	resolveDuration metric.Float64Histogram
}

// NewInstruments registers the instruments on m. A nil meter uses the
// global scope.
func NewInstruments(m metric.Meter) *Instruments {
	if m == nil {
		m = Meter("")
	}
	ingest, _ := m.Int64Counter("bugrouter.ingest.events",
		metric.WithDescription("Change events processed, by outcome"),
	)
	decisions, _ := m.Int64Counter("bugrouter.assignment.decisions",
		metric.WithDescription("Assignment decisions emitted, by outcome and reason"),
	)
	reservations, _ := m.Int64Counter("bugrouter.availability.reservations",
		metric.WithDescription("Reservation attempts, by outcome"),
	)
	dur, _ := m.Float64Histogram("bugrouter.assignment.duration",
		metric.WithDescription("Resolution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &Instruments{
		ingestEvents:    ingest,
		decisions:       decisions,
		reservations:    reservations,
		resolveDuration: dur,
	}
}

// IngestEvents counts n events with the given outcome
func (i *Instruments) IngestEvents(ctx context.Context, outcome string, n int64) {
	if i == nil || n == 0 {
		return
	}
	i.ingestEvents.Add(ctx, n, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Decision counts one emitted decision
func (i *Instruments) Decision(ctx context.Context, escalated bool, reason string, took time.Duration) {
	if i == nil {
		return
	}
	outcome := "assigned"
	if escalated {
		outcome = "escalated"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	)
	i.decisions.Add(ctx, 1, attrs)
	i.resolveDuration.Record(ctx, float64(took.Microseconds())/1000, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Reservation counts one reservation attempt
func (i *Instruments) Reservation(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
