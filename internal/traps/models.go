// Package traps implements nested-radius geofences ("traps") that advance
// through a one-way state sequence as a moving position approaches, settles
// on and departs from a route step.
package traps

import (
	"errors"

	"github.com/breatheroute/routenav/internal/geo"
)

// ErrInvalidTrapSpec is returned for an unknown trap kind or a radius that is
// not positive.
var ErrInvalidTrapSpec = errors.New("invalid trap spec")

// Default tuning for step traps.
const (
	DefaultInnerTolerance  = 0.75
	DefaultCenterTolerance = 0.10
	DefaultCourseTolerance = 30.0
)

// Kind discriminates the trap shape.
type Kind string

// Trap kinds.
const (
	KindCircle Kind = "CIRCLE"
	KindStep   Kind = "STEP"
)

// State is a trap's position in its lifecycle.
type State string

// Trap states in their only permitted order.
const (
	StateOutside State = "OUTSIDE"
	StateEntered State = "ENTERED"
	StateInside  State = "INSIDE"
	StateCenter  State = "CENTER"
	StateLeaving State = "LEAVING"
	StateLeft    State = "LEFT"
	StateExpired State = "EXPIRED"
)

var stateRank = map[State]int{
	StateOutside: 0,
	StateEntered: 1,
	StateInside:  2,
	StateCenter:  3,
	StateLeaving: 4,
	StateLeft:    5,
	StateExpired: 6,
}

// Rank returns the state's position in the lifecycle, or -1 if unknown.
func (s State) Rank() int {
	r, ok := stateRank[s]
	if !ok {
		return -1
	}
	return r
}

// Event names a transition.
type Event string

// Trap events.
const (
	EventEnteringOnCourse  Event = "ENTERING_ON_COURSE"
	EventEnteringOffCourse Event = "ENTERING_OFF_COURSE"
	EventInside            Event = "INSIDE"
	EventInsideCenter      Event = "INSIDE_CENTER"
	EventLeavingOnCourse   Event = "LEAVING_ON_COURSE"
	EventLeavingOffCourse  Event = "LEAVING_OFF_COURSE"
	EventLeaving           Event = "LEAVING"
	EventExpired           Event = "EXPIRED"
	// EventWithinRadius is fired by circle traps on every update inside the radius.
	EventWithinRadius Event = "WITHIN_RADIUS"
)

// Step is the part of a route step a step trap needs.
type Step struct {
	Index    int            `json:"index"`
	Start    geo.Coordinate `json:"start"`
	Bearing  float64        `json:"bearing"`
	Distance float64        `json:"distance"`
}

// Spec describes a trap to add.
type Spec struct {
	Kind       Kind           `json:"kind"`
	Coordinate geo.Coordinate `json:"coordinate"`

	// Radius applies to circle traps.
	Radius float64 `json:"radius,omitempty"`

	// Step trap geometry, in meters and degrees.
	InnerRadius     float64 `json:"inner_radius,omitempty"`
	CenterRadius    float64 `json:"center_radius,omitempty"`
	OuterRadius     float64 `json:"outer_radius,omitempty"`
	CourseTolerance float64 `json:"course_tolerance,omitempty"`
	Step            Step    `json:"step"`
	NextStep        *Step   `json:"next_step,omitempty"`
}

// Trap is a snapshot of a registered trap.
type Trap struct {
	ID    int   `json:"id"`
	State State `json:"state"`
	Spec
}

// Is reports whether the trap is in state s.
func (t Trap) Is(s State) bool { return t.State == s }

// IsOutside reports whether the trap has not been entered yet.
func (t Trap) IsOutside() bool { return t.Is(StateOutside) }

// IsEntered reports whether the trap was just entered.
func (t Trap) IsEntered() bool { return t.Is(StateEntered) }

// IsInside reports whether the trap is inside its outer radius.
func (t Trap) IsInside() bool { return t.Is(StateInside) }

// IsCenter reports whether the trap reached its inner radius.
func (t Trap) IsCenter() bool { return t.Is(StateCenter) }

// IsLeaving reports whether the trap is between inner and outer radius on the way out.
func (t Trap) IsLeaving() bool { return t.Is(StateLeaving) }

// IsLeft reports whether the trap was left.
func (t Trap) IsLeft() bool { return t.Is(StateLeft) }

// IsExpired reports whether the trap is inert and safe to discard.
func (t Trap) IsExpired() bool { return t.Is(StateExpired) }

// Callback is invoked for every transition of the trap it was registered with.
type Callback func(trap Trap, event Event, state State)

// Transition is the result of a trap firing during Execute.
type Transition struct {
	Trap  Trap  `json:"trap"`
	Event Event `json:"event"`
	State State `json:"state"`
}

// Options tunes a step trap. Zero values select the defaults.
type Options struct {
	// Distance is the outer radius in meters; zero uses the step's own distance.
	Distance float64
	// InnerTolerance is the inner radius as a fraction of the outer (default: 0.75).
	InnerTolerance float64
	// CenterTolerance is the center radius as a fraction of the outer (default: 0.10).
	CenterTolerance float64
	// CourseTolerance is the allowed heading deviation in degrees (default: 30).
	CourseTolerance float64
}

// WithDefaults fills zero tolerances with the package defaults.
func (o Options) WithDefaults() Options {
	if o.InnerTolerance == 0 {
		o.InnerTolerance = DefaultInnerTolerance
	}
	if o.CenterTolerance == 0 {
		o.CenterTolerance = DefaultCenterTolerance
	}
	if o.CourseTolerance == 0 {
		o.CourseTolerance = DefaultCourseTolerance
	}
	return o
}
