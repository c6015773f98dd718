package navigation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/breatheroute/routenav/internal/traps"
)

const meterName = "github.com/breatheroute/routenav/internal/navigation"

// Metrics holds the OpenTelemetry instruments for navigation.
type Metrics struct {
	trapTransitions  metric.Int64Counter
	events           metric.Int64Counter
	executeDuration  metric.Float64Histogram
	activeNavigators metric.Int64UpDownCounter
}

// NewMetrics creates navigation metrics on mp, or on the global meter
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	trapTransitions, err := meter.Int64Counter(
		"navigation.trap.transitions",
		metric.WithDescription("Number of trap state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter(
		"navigation.events",
		metric.WithDescription("Number of navigation events published"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	executeDuration, err := meter.Float64Histogram(
		"navigation.trap.execute.duration",
		metric.WithDescription("Duration of trap evaluation per position update in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	activeNavigators, err := meter.Int64UpDownCounter(
		"navigation.sessions.active",
		metric.WithDescription("Number of open navigation sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		trapTransitions:  trapTransitions,
		events:           events,
		executeDuration:  executeDuration,
		activeNavigators: activeNavigators,
	}, nil
}

// RecordTransition counts a trap transition.
func (m *Metrics) RecordTransition(ctx context.Context, event traps.Event, state traps.State) {
	m.trapTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trap.event", string(event)),
		attribute.String("trap.state", string(state)),
	))
}

// RecordEvent counts a published navigation event.
func (m *Metrics) RecordEvent(ctx context.Context, typ EventType) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(typ))))
}

// RecordExecute records the duration of one trap evaluation pass.
func (m *Metrics) RecordExecute(ctx context.Context, d time.Duration) {
	m.executeDuration.Record(ctx, d.Seconds())
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) {
	m.activeNavigators.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed(ctx context.Context) {
	m.activeNavigators.Add(ctx, -1)
}
