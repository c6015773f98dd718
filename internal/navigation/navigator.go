// Package navigation drives a trap engine along a decoded route: it watches
// one step at a time, advances when the traveller leaves a step and reports
// completion when the destination is reached.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/traps"
)

// Defaults for Config.
const (
	DefaultRouteStepDistance = 15.0
)

// Predefined errors for navigation.
var (
	// ErrNoRoute is returned when navigation is started without a route.
	ErrNoRoute = errors.New("no route to navigate")

	// ErrEmptyRoute is returned for a route without steps.
	ErrEmptyRoute = errors.New("route has no steps")

	// ErrPublish wraps sink failures. Navigation state is already updated
	// when it is returned.
	ErrPublish = errors.New("publishing navigation event")
)

// Mode is the navigator's display mode.
type Mode string

// Navigator modes.
const (
	ModeIdle       Mode = "IDLE"
	ModeRoute      Mode = "ROUTE"
	ModeNavigation Mode = "NAVIGATION"
)

// Config holds configuration for a Navigator.
type Config struct {
	// SessionID tags every event; a random UUID is used when empty.
	SessionID string

	// RouteStepDistance is the outer radius of every step trap in meters (default: 15).
	RouteStepDistance float64

	// InnerTolerance, CenterTolerance and CourseTolerance tune the step traps.
	// Zero values select the trap engine defaults.
	InnerTolerance  float64
	CenterTolerance float64
	CourseTolerance float64

	// Sink receives navigation events. Nil discards them.
	Sink Sink

	// Metrics records navigation metrics when set.
	Metrics *Metrics

	// Logger for navigation operations.
	Logger zerolog.Logger

	// Now returns the event time (default: time.Now).
	Now func() time.Time
}

// Snapshot is a point-in-time view of a Navigator.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Mode      Mode              `json:"mode"`
	Route     *directions.Route `json:"route,omitempty"`
	StepIndex *int              `json:"step_index,omitempty"`
	Step      *directions.Step  `json:"step,omitempty"`
	Position  *geo.Position     `json:"position,omitempty"`
	Traps     []traps.Trap      `json:"traps"`
}

// Navigator follows a single traveller along a route.
//
// SetPosition calls are serialized. Trap callbacks run on the goroutine that
// called SetPosition while it holds the navigator lock; events they produce
// are published after the lock is released, in order.
type Navigator struct {
	id      string
	options traps.Options
	sink    Sink
	metrics *Metrics
	logger  zerolog.Logger
	now     func() time.Time
	engine  *traps.Engine

	publishMu sync.Mutex // orders publishing across calls

	mu        sync.Mutex
	mode      Mode
	route     *directions.Route
	current   int // index of the watched step, -1 when none
	stepIndex int // index of the step to watch next
	position  *geo.Position
	pending   []Event
	closed    bool
}

// New creates a new Navigator in IDLE mode.
func New(cfg Config) *Navigator {
	id := cfg.SessionID
	if id == "" {
		id = uuid.New().String()
	}

	distance := cfg.RouteStepDistance
	if distance == 0 {
		distance = DefaultRouteStepDistance
	}

	sink := cfg.Sink
	if sink == nil {
		sink = DiscardSink{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger.With().Str("session_id", id).Logger()

	return &Navigator{
		id: id,
		options: traps.Options{
			Distance:        distance,
			InnerTolerance:  cfg.InnerTolerance,
			CenterTolerance: cfg.CenterTolerance,
			CourseTolerance: cfg.CourseTolerance,
		}.WithDefaults(),
		sink:    sink,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
		engine:  traps.NewEngine(traps.EngineConfig{Logger: logger}),
		mode:    ModeIdle,
		current: -1,
	}
}

// ID returns the session ID attached to every event.
func (n *Navigator) ID() string {
	return n.id
}

// Options returns the effective step trap tuning.
func (n *Navigator) Options() traps.Options {
	return n.options
}

// ShowRoute displays route without navigating it. Any running navigation
// is dropped.
func (n *Navigator) ShowRoute(ctx context.Context, route directions.Route) error {
	if len(route.Steps) == 0 {
		return ErrEmptyRoute
	}

	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	n.engine.Clear()
	n.route = &route
	n.mode = ModeRoute
	n.current = -1
	n.stepIndex = 0
	n.emit(Event{Type: EventRouteChanged, Route: route.Title})
	events := n.drain()
	n.mu.Unlock()

	n.logger.Info().
		Str("route", route.Title).
		Int("step_count", len(route.Steps)).
		Msg("route changed")

	return n.publish(ctx, events)
}

// Start navigates the route set by ShowRoute from its first step.
func (n *Navigator) Start(ctx context.Context) error {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	if n.route == nil {
		n.mu.Unlock()
		return ErrNoRoute
	}

	n.engine.Clear()
	n.mode = ModeNavigation
	bearing := n.route.InitialBearing
	n.emit(Event{Type: EventNavigationStarted, Route: n.route.Title, Bearing: bearing})
	err := n.updateStep(0)
	if err != nil {
		n.mode = ModeRoute
		n.pending = nil
	}
	events := n.drain()
	n.mu.Unlock()

	if err != nil {
		return err
	}

	n.logger.Info().
		Float64("initial_bearing", bearing).
		Msg("navigation started")

	return n.publish(ctx, events)
}

// Navigate is ShowRoute followed by Start.
func (n *Navigator) Navigate(ctx context.Context, route directions.Route) error {
	if err := n.ShowRoute(ctx, route); err != nil {
		return err
	}
	return n.Start(ctx)
}

// Stop ends navigation and keeps the route on display.
func (n *Navigator) Stop(ctx context.Context) error {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	if n.mode != ModeNavigation {
		n.mu.Unlock()
		return nil
	}

	n.engine.Clear()
	n.mode = ModeRoute
	n.current = -1
	n.stepIndex = 0
	n.emit(Event{Type: EventNavigationStopped})
	events := n.drain()
	n.mu.Unlock()

	n.logger.Info().Msg("navigation stopped")

	return n.publish(ctx, events)
}

// Close ends the session in any mode: traps are dropped, the route is cleared
// and a final NAVIGATION_STOPPED is published. Later calls do nothing.
func (n *Navigator) Close(ctx context.Context) error {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}

	n.closed = true
	n.engine.Clear()
	n.emit(Event{Type: EventNavigationStopped})
	n.mode = ModeIdle
	n.route = nil
	n.current = -1
	n.stepIndex = 0
	events := n.drain()
	n.mu.Unlock()

	n.logger.Info().Msg("navigator closed")

	return n.publish(ctx, events)
}

// SetPosition feeds the next position to the trap engine. Position events
// are only emitted while navigating.
func (n *Navigator) SetPosition(ctx context.Context, pos geo.Position) error {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	start := time.Now()
	n.engine.Execute(pos)
	if n.metrics != nil {
		n.metrics.RecordExecute(ctx, time.Since(start))
	}

	p := pos
	n.position = &p
	if n.mode == ModeNavigation {
		n.emit(Event{Type: EventPositionChanged, Position: &p})
	}
	events := n.drain()
	n.mu.Unlock()

	return n.publish(ctx, events)
}

// Snapshot returns the current navigator state.
func (n *Navigator) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := Snapshot{
		SessionID: n.id,
		Mode:      n.mode,
		Traps:     n.engine.Traps(),
	}
	if n.route != nil {
		route := *n.route
		s.Route = &route
		if n.current >= 0 && n.current < len(route.Steps) {
			i := n.current
			step := route.Steps[i]
			s.StepIndex = &i
			s.Step = &step
		}
	}
	if n.position != nil {
		p := *n.position
		s.Position = &p
	}
	return s
}

// Mode returns the current mode.
func (n *Navigator) Mode() Mode {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode
}

// updateStep watches step i, with step i+1 as its exit course. Indexes past
// the last step are ignored. Callers hold n.mu.
func (n *Navigator) updateStep(i int) error {
	if n.route == nil || i < 0 || i >= len(n.route.Steps) {
		return nil
	}

	step := n.route.Steps[i]
	watched := trapStep(n.route, i)

	var next *traps.Step
	var nextStep *directions.Step
	if i+1 < len(n.route.Steps) {
		s := trapStep(n.route, i+1)
		next = &s
		ns := n.route.Steps[i+1]
		nextStep = &ns
	}

	if _, err := n.engine.WatchStep(watched, next, n.options, n.onTrap); err != nil {
		return fmt.Errorf("watching step %d: %w", i, err)
	}

	n.current = i
	n.stepIndex = i + 1

	index := i
	n.emit(Event{Type: EventStepChanged, StepIndex: &index, Step: &step, NextStep: nextStep})

	n.logger.Debug().
		Int("step_index", i).
		Str("maneuver", step.Maneuver.Type).
		Bool("final", step.Final).
		Msg("step changed")

	return nil
}

// trapStep converts route step i for the trap engine. The final flag step is
// anchored where the route ends rather than on the copied start of the last
// step, so arriving at the destination reaches its center.
func trapStep(route *directions.Route, i int) traps.Step {
	step := route.Steps[i]
	start := step.Start

	if step.Final {
		switch {
		case i > 0 && route.Steps[i-1].End != nil:
			start = *route.Steps[i-1].End
		case route.Destination.Coordinate != (geo.Coordinate{}):
			start = route.Destination.Coordinate
		}
	}

	return traps.Step{
		Index:    i,
		Start:    start,
		Bearing:  step.Bearing,
		Distance: step.Distance.Value,
	}
}

// onTrap runs inside SetPosition with n.mu held.
func (n *Navigator) onTrap(trap traps.Trap, event traps.Event, state traps.State) {
	if n.mode != ModeNavigation {
		return
	}

	transition := traps.Transition{Trap: trap, Event: event, State: state}
	index := trap.Step.Index
	n.emit(Event{Type: EventTrapTransition, StepIndex: &index, Transition: &transition})
	if n.metrics != nil {
		n.metrics.RecordTransition(context.Background(), event, state)
	}

	if trap.NextStep == nil && trap.IsCenter() {
		n.engine.Clear()
		n.mode = ModeIdle
		n.current = -1
		n.emit(Event{Type: EventNavigationCompleted, StepIndex: &index})

		n.logger.Info().
			Int("step_index", index).
			Msg("navigation completed")
		return
	}

	if trap.IsLeaving() {
		if err := n.updateStep(n.stepIndex); err != nil {
			n.logger.Error().Err(err).Int("step_index", n.stepIndex).Msg("failed to advance step")
		}
	}
}

// emit queues ev for publishing. Callers hold n.mu.
func (n *Navigator) emit(ev Event) {
	ev.ID = uuid.New().String()
	ev.SessionID = n.id
	ev.Time = n.now()
	ev.Mode = n.mode
	n.pending = append(n.pending, ev)
}

// drain takes the queued events. Callers hold n.mu.
func (n *Navigator) drain() []Event {
	events := n.pending
	n.pending = nil
	return events
}

// publish sends events to the sink. Sink failures are logged and returned
// joined, each wrapping ErrPublish.
func (n *Navigator) publish(ctx context.Context, events []Event) error {
	var errs []error
	for _, ev := range events {
		if n.metrics != nil {
			n.metrics.RecordEvent(ctx, ev.Type)
		}
		if err := n.sink.Publish(ctx, ev); err != nil {
			n.logger.Warn().
				Err(err).
				Str("event", string(ev.Type)).
				Msg("failed to publish navigation event")
			errs = append(errs, fmt.Errorf("%w %s: %w", ErrPublish, ev.Type, err))
		}
	}
	return errors.Join(errs...)
}
