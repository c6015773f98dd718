package traps

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/geo"
)

// EngineConfig holds configuration for the trap engine.
type EngineConfig struct {
	// Logger for engine operations.
	Logger zerolog.Logger
}

// Engine owns a set of traps and advances them on every position update.
//
// Execute must be fed from one logical position stream at a time, in time
// order. Callbacks run after the engine lock is released, so they may add
// traps; those are evaluated from the next update on.
type Engine struct {
	logger zerolog.Logger

	mu      sync.Mutex
	counter int
	traps   []entry // ordered by trap ID
}

type entry struct {
	trap     Trap
	callback Callback
}

type firing struct {
	transition Transition
	callback   Callback
}

// NewEngine creates a new trap engine.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		logger: cfg.Logger,
	}
}

// Add registers a trap in state OUTSIDE and returns its snapshot.
func (e *Engine) Add(spec Spec, cb Callback) (Trap, error) {
	if err := validate(spec); err != nil {
		return Trap{}, err
	}

	if spec.NextStep != nil {
		next := *spec.NextStep
		spec.NextStep = &next
	}

	e.mu.Lock()
	e.counter++
	trap := Trap{ID: e.counter, State: StateOutside, Spec: spec}
	e.traps = append(e.traps, entry{trap: trap, callback: cb})
	e.mu.Unlock()

	e.logger.Debug().
		Int("trap_id", trap.ID).
		Str("kind", string(trap.Kind)).
		Int("step_index", trap.Step.Index).
		Msg("trap added")

	return trap, nil
}

// WatchRadius adds a circle trap that fires WITHIN_RADIUS while a position is
// closer than radius meters to c.
func (e *Engine) WatchRadius(c geo.Coordinate, radius float64, cb Callback) (Trap, error) {
	return e.Add(Spec{
		Kind:       KindCircle,
		Coordinate: c,
		Radius:     radius,
	}, cb)
}

// WatchStep adds a step trap centered on step.Start. The outer radius is
// opts.Distance, or the step's own distance when that is zero; the inner and
// center radii are fractions of it.
func (e *Engine) WatchStep(step Step, next *Step, opts Options, cb Callback) (Trap, error) {
	opts = opts.WithDefaults()

	for name, v := range map[string]float64{
		"inner tolerance":  opts.InnerTolerance,
		"center tolerance": opts.CenterTolerance,
	} {
		if !(v > 0 && v <= 1) {
			return Trap{}, fmt.Errorf("%w: %s %v not in (0, 1]", ErrInvalidTrapSpec, name, v)
		}
	}
	if !(opts.CourseTolerance > 0) {
		return Trap{}, fmt.Errorf("%w: course tolerance %v", ErrInvalidTrapSpec, opts.CourseTolerance)
	}

	distance := opts.Distance
	if distance == 0 {
		distance = step.Distance
	}

	return e.Add(Spec{
		Kind:            KindStep,
		Coordinate:      step.Start,
		InnerRadius:     distance * opts.InnerTolerance,
		CenterRadius:    distance * opts.CenterTolerance,
		OuterRadius:     distance,
		CourseTolerance: opts.CourseTolerance,
		Step:            step,
		NextStep:        next,
	}, cb)
}

// Execute evaluates every non-expired trap against pos. Each trap makes at
// most one transition per call. Expired traps are kept; see Prune.
func (e *Engine) Execute(pos geo.Position) []Transition {
	e.mu.Lock()
	var fired []firing
	for i := range e.traps {
		en := &e.traps[i]
		if en.trap.IsExpired() {
			continue
		}

		event, next, ok := evaluate(en.trap, pos)
		if !ok {
			continue
		}

		en.trap.State = next
		fired = append(fired, firing{
			transition: Transition{Trap: en.trap, Event: event, State: next},
			callback:   en.callback,
		})
	}
	e.mu.Unlock()

	if len(fired) == 0 {
		return nil
	}

	transitions := make([]Transition, len(fired))
	for i, f := range fired {
		t := f.transition
		transitions[i] = t

		e.logger.Debug().
			Int("trap_id", t.Trap.ID).
			Int("step_index", t.Trap.Step.Index).
			Str("event", string(t.Event)).
			Str("state", string(t.State)).
			Msg("trap transition")

		if f.callback != nil {
			f.callback(t.Trap, t.Event, t.State)
		}
	}

	return transitions
}

// Trap returns the current snapshot of the trap with the given ID.
func (e *Engine) Trap(id int) (Trap, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := sort.Search(len(e.traps), func(i int) bool { return e.traps[i].trap.ID >= id })
	if i < len(e.traps) && e.traps[i].trap.ID == id {
		return e.traps[i].trap, true
	}
	return Trap{}, false
}

// Traps returns snapshots of all traps ordered by ID.
func (e *Engine) Traps() []Trap {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]Trap, len(e.traps))
	for i, en := range e.traps {
		result[i] = en.trap
	}
	return result
}

// Prune discards expired traps and returns how many were removed.
func (e *Engine) Prune() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.traps[:0]
	for _, en := range e.traps {
		if !en.trap.IsExpired() {
			kept = append(kept, en)
		}
	}
	removed := len(e.traps) - len(kept)
	// Drop references held by the tail.
	for i := len(kept); i < len(e.traps); i++ {
		e.traps[i] = entry{}
	}
	e.traps = kept
	return removed
}

// Clear discards every trap. IDs keep increasing.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traps = nil
}

// evaluate returns the transition trap t makes at pos, if any.
func evaluate(t Trap, pos geo.Position) (Event, State, bool) {
	switch t.Kind {
	case KindCircle:
		if geo.WithinRadius(pos.Coordinate, t.Coordinate, t.Radius) {
			return EventWithinRadius, t.State, true
		}
		return "", t.State, false

	case KindStep:
		return evaluateStep(t, pos)
	}

	return "", t.State, false
}

func evaluateStep(t Trap, pos geo.Position) (Event, State, bool) {
	insideOuter := geo.WithinRadius(pos.Coordinate, t.Coordinate, t.OuterRadius)
	insideInner := geo.WithinRadius(pos.Coordinate, t.Coordinate, t.InnerRadius)

	switch t.State {
	case StateOutside:
		if !insideOuter {
			break
		}
		if geo.IsWithinCourse(t.Step.Bearing, pos.Heading, t.CourseTolerance) {
			return EventEnteringOnCourse, StateEntered, true
		}
		return EventEnteringOffCourse, StateEntered, true

	case StateEntered:
		if insideOuter {
			return EventInside, StateInside, true
		}

	case StateInside:
		if insideInner {
			return EventInsideCenter, StateCenter, true
		}

	case StateCenter:
		if !insideOuter || insideInner {
			break
		}
		bearing := t.Step.Bearing
		if t.NextStep != nil {
			bearing = t.NextStep.Bearing
		}
		if geo.IsWithinCourse(bearing, pos.Heading, t.CourseTolerance) {
			return EventLeavingOnCourse, StateLeaving, true
		}
		return EventLeavingOffCourse, StateLeaving, true

	case StateLeaving:
		if !insideOuter && !insideInner {
			return EventLeaving, StateLeft, true
		}

	case StateLeft:
		return EventExpired, StateExpired, true
	}

	return "", t.State, false
}

func validate(spec Spec) error {
	switch spec.Kind {
	case KindCircle:
		if !positive(spec.Radius) {
			return fmt.Errorf("%w: circle radius %v", ErrInvalidTrapSpec, spec.Radius)
		}
	case KindStep:
		for name, r := range map[string]float64{
			"outer radius":  spec.OuterRadius,
			"inner radius":  spec.InnerRadius,
			"center radius": spec.CenterRadius,
		} {
			if !positive(r) {
				return fmt.Errorf("%w: %s %v", ErrInvalidTrapSpec, name, r)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrapSpec, spec.Kind)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
