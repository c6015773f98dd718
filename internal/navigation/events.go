package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/provider/resilience"
	"github.com/breatheroute/routenav/internal/traps"
)

// EventType identifies a navigation event.
type EventType string

// Navigation event types.
const (
	EventRouteChanged        EventType = "ROUTE_CHANGED"
	EventNavigationStarted   EventType = "NAVIGATION_STARTED"
	EventStepChanged         EventType = "STEP_CHANGED"
	EventTrapTransition      EventType = "TRAP_TRANSITION"
	EventPositionChanged     EventType = "POSITION_CHANGED"
	EventNavigationCompleted EventType = "NAVIGATION_COMPLETED"
	EventNavigationStopped   EventType = "NAVIGATION_STOPPED"
)

// Event is something that happened to a navigation session.
type Event struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Type       EventType         `json:"type"`
	Time       time.Time         `json:"time"`
	Mode       Mode              `json:"mode"`
	Route      string            `json:"route,omitempty"`
	Bearing    float64           `json:"bearing,omitempty"`
	StepIndex  *int              `json:"step_index,omitempty"`
	Step       *directions.Step  `json:"step,omitempty"`
	NextStep   *directions.Step  `json:"next_step,omitempty"`
	Transition *traps.Transition `json:"transition,omitempty"`
	Position   *geo.Position     `json:"position,omitempty"`
}

// Sink receives navigation events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// DiscardSink drops every event.
type DiscardSink struct{}

// Publish does nothing.
func (DiscardSink) Publish(context.Context, Event) error { return nil }

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs every event.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs ev. Position updates are logged at debug level.
func (s *LogSink) Publish(_ context.Context, ev Event) error {
	level := zerolog.InfoLevel
	if ev.Type == EventPositionChanged {
		level = zerolog.DebugLevel
	}

	e := s.logger.WithLevel(level).
		Str("event_id", ev.ID).
		Str("session_id", ev.SessionID).
		Str("event", string(ev.Type)).
		Str("mode", string(ev.Mode))

	if ev.StepIndex != nil {
		e = e.Int("step_index", *ev.StepIndex)
	}
	if ev.Step != nil {
		e = e.Str("maneuver", ev.Step.Maneuver.Type).Str("instructions", ev.Step.Instructions)
	}
	if ev.Transition != nil {
		e = e.Int("trap_id", ev.Transition.Trap.ID).
			Str("trap_event", string(ev.Transition.Event)).
			Str("state", string(ev.Transition.State))
	}
	if ev.Position != nil {
		e = e.Float64("lat", ev.Position.Coordinate.Latitude).
			Float64("lon", ev.Position.Coordinate.Longitude).
			Float64("heading", ev.Position.Heading)
	}

	e.Msg("navigation event")
	return nil
}

// RecorderSink keeps the most recent events in memory.
type RecorderSink struct {
	mu     sync.RWMutex
	limit  int
	events []Event
}

// NewRecorderSink creates a recorder holding at most limit events; zero or
// less keeps everything.
func NewRecorderSink(limit int) *RecorderSink {
	return &RecorderSink{limit: limit}
}

// Publish records ev, evicting the oldest event when full.
func (s *RecorderSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
	if s.limit > 0 && len(s.events) > s.limit {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.limit:]...)
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (s *RecorderSink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Event, len(s.events))
	copy(result, s.events)
	return result
}

// Types returns the recorded event types, oldest first.
func (s *RecorderSink) Types() []EventType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]EventType, len(s.events))
	for i, ev := range s.events {
		result[i] = ev.Type
	}
	return result
}

// MultiSink publishes to every sink and joins their errors.
type MultiSink []Sink

// Publish sends ev to all sinks, even when some fail.
func (m MultiSink) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GuardedSink publishes through a circuit breaker with retries.
type GuardedSink struct {
	sink  Sink
	guard *resilience.Guard
}

// NewGuardedSink wraps sink with guard.
func NewGuardedSink(sink Sink, guard *resilience.Guard) *GuardedSink {
	return &GuardedSink{sink: sink, guard: guard}
}

// Publish sends ev through the guard.
func (s *GuardedSink) Publish(ctx context.Context, ev Event) error {
	return s.guard.Do(ctx, func(ctx context.Context) error {
		return s.sink.Publish(ctx, ev)
	})
}
