package traps_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/traps"
)

var stepStart = geo.Coordinate{Latitude: 52.0, Longitude: 4.0}

// at returns a position offset meters east of stepStart (west when negative).
func at(offset, heading float64) geo.Position {
	bearing := 90.0
	if offset < 0 {
		bearing = 270
		offset = -offset
	}
	return geo.Position{
		Coordinate: geo.Destination(stepStart, offset, bearing),
		Heading:    heading,
	}
}

func newEngine() *traps.Engine {
	return traps.NewEngine(traps.EngineConfig{})
}

func TestEngine_StepTrap_EndToEnd(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Index: 0, Start: stepStart, Bearing: 90, Distance: 100}
	next := traps.Step{Index: 1, Start: geo.Destination(stepStart, 100, 90), Bearing: 90, Distance: 50}

	var events []traps.Event
	trap, err := engine.WatchStep(step, &next, traps.Options{}, func(_ traps.Trap, event traps.Event, _ traps.State) {
		events = append(events, event)
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, trap.OuterRadius)
	assert.Equal(t, 75.0, trap.InnerRadius)
	assert.InDelta(t, 10.0, trap.CenterRadius, 1e-9)
	assert.Equal(t, 30.0, trap.CourseTolerance)

	// 5 m/s sampled once per second, heading east through the step start.
	var polled []traps.Transition
	for offset := -202.0; offset <= 130; offset += 5 {
		polled = append(polled, engine.Execute(at(offset, 90))...)
	}

	expected := []traps.Event{
		traps.EventEnteringOnCourse,
		traps.EventInside,
		traps.EventInsideCenter,
		traps.EventLeavingOnCourse,
		traps.EventLeaving,
		traps.EventExpired,
	}
	assert.Equal(t, expected, events)

	require.Len(t, polled, len(expected))
	states := make([]traps.State, len(polled))
	for i, p := range polled {
		states[i] = p.State
		assert.Equal(t, trap.ID, p.Trap.ID)
		assert.Equal(t, p.State, p.Trap.State)
	}
	assert.Equal(t, []traps.State{
		traps.StateEntered,
		traps.StateInside,
		traps.StateCenter,
		traps.StateLeaving,
		traps.StateLeft,
		traps.StateExpired,
	}, states)

	final, ok := engine.Trap(trap.ID)
	require.True(t, ok)
	assert.True(t, final.IsExpired())
}

func TestEngine_StepTrap_TransitionPoints(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 90, Distance: 100}
	trap, err := engine.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)

	firedAt := map[traps.Event]float64{}
	for offset := -202.0; offset <= 130; offset += 5 {
		for _, tr := range engine.Execute(at(offset, 90)) {
			firedAt[tr.Event] = offset
		}
	}

	assert.Equal(t, -97.0, firedAt[traps.EventEnteringOnCourse])
	assert.Equal(t, -92.0, firedAt[traps.EventInside])
	assert.Equal(t, -72.0, firedAt[traps.EventInsideCenter])
	// No next step: leaving is checked against the step's own bearing.
	assert.Equal(t, 78.0, firedAt[traps.EventLeavingOnCourse])
	assert.Equal(t, 103.0, firedAt[traps.EventLeaving])
	assert.Equal(t, 108.0, firedAt[traps.EventExpired])

	snapshot, ok := engine.Trap(trap.ID)
	require.True(t, ok)
	assert.True(t, snapshot.IsExpired())
}

func TestEngine_StepTrap_OffCourse(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 90, Distance: 100}
	next := traps.Step{Bearing: 0}
	_, err := engine.WatchStep(step, &next, traps.Options{}, nil)
	require.NoError(t, err)

	var events []traps.Event
	// Approach heading west while actually travelling east.
	for offset := -102.0; offset <= 110; offset += 5 {
		heading := 90.0
		if offset < -90 {
			heading = 270
		}
		for _, tr := range engine.Execute(at(offset, heading)) {
			events = append(events, tr.Event)
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, traps.EventEnteringOffCourse, events[0])
	// Heading 90 does not match the next step's bearing of 0.
	assert.Contains(t, events, traps.EventLeavingOffCourse)
	assert.NotContains(t, events, traps.EventLeavingOnCourse)
}

func TestEngine_StepTrap_CourseWindowWrapsNorth(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 350, Distance: 100}
	_, err := engine.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)

	transitions := engine.Execute(at(-50, 5))
	require.Len(t, transitions, 1)
	assert.Equal(t, traps.EventEnteringOnCourse, transitions[0].Event)
}

func TestEngine_StepTrap_OptionsOverrideDistance(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 90, Distance: 300}
	trap, err := engine.WatchStep(step, nil, traps.Options{
		Distance:        15,
		InnerTolerance:  0.5,
		CenterTolerance: 0.2,
		CourseTolerance: 45,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, traps.KindStep, trap.Kind)
	assert.Equal(t, stepStart, trap.Coordinate)
	assert.Equal(t, 15.0, trap.OuterRadius)
	assert.Equal(t, 7.5, trap.InnerRadius)
	assert.Equal(t, 3.0, trap.CenterRadius)
	assert.Equal(t, 45.0, trap.CourseTolerance)
	assert.True(t, trap.IsOutside())
}

func TestEngine_FixedPointIdempotence(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 90, Distance: 100}
	trap, err := engine.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)

	pos := at(-50, 90)

	var states []traps.State
	for i := 0; i < 20; i++ {
		for _, tr := range engine.Execute(pos) {
			states = append(states, tr.State)
		}
	}

	// Each guard holds at the point exactly once; CENTER needs the position to move out.
	assert.Equal(t, []traps.State{traps.StateEntered, traps.StateInside, traps.StateCenter}, states)

	snapshot, _ := engine.Trap(trap.ID)
	assert.True(t, snapshot.IsCenter())

	outside := newEngine()
	_, err = outside.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		assert.Empty(t, outside.Execute(at(-150, 90)))
	}
}

func TestEngine_StepTrap_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))

	for run := 0; run < 50; run++ {
		engine := newEngine()
		step := traps.Step{Start: stepStart, Bearing: rng.Float64() * 360, Distance: 20 + rng.Float64()*80}
		trap, err := engine.WatchStep(step, nil, traps.Options{}, nil)
		require.NoError(t, err)

		last := traps.StateOutside.Rank()
		for i := 0; i < 200; i++ {
			pos := geo.Position{
				Coordinate: geo.Destination(stepStart, rng.Float64()*150, rng.Float64()*360),
				Heading:    rng.Float64() * 360,
			}
			for _, tr := range engine.Execute(pos) {
				rank := tr.State.Rank()
				require.Equal(t, last+1, rank, "run %d: %s after rank %d", run, tr.State, last)
				last = rank
			}
		}

		snapshot, ok := engine.Trap(trap.ID)
		require.True(t, ok)
		assert.Equal(t, last, snapshot.State.Rank())
	}
}

func TestEngine_LeftExpiresUnconditionally(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 90, Distance: 100}
	trap, err := engine.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)

	for _, offset := range []float64{-90, -90, -10, 80, 120} {
		engine.Execute(at(offset, 90))
	}
	snapshot, _ := engine.Trap(trap.ID)
	require.True(t, snapshot.IsLeft())

	// Even back at the center, a left trap only expires.
	transitions := engine.Execute(at(0, 90))
	require.Len(t, transitions, 1)
	assert.Equal(t, traps.EventExpired, transitions[0].Event)

	assert.Empty(t, engine.Execute(at(0, 90)))
}

func TestEngine_CircleTrap(t *testing.T) {
	engine := newEngine()

	var hits int
	trap, err := engine.WatchRadius(stepStart, 10, func(tr traps.Trap, event traps.Event, state traps.State) {
		hits++
		assert.Equal(t, traps.EventWithinRadius, event)
		assert.Equal(t, traps.StateOutside, state)
	})
	require.NoError(t, err)
	assert.Equal(t, traps.KindCircle, trap.Kind)

	assert.Empty(t, engine.Execute(at(-20, 0)))
	assert.Len(t, engine.Execute(at(-5, 0)), 1)
	assert.Len(t, engine.Execute(at(3, 0)), 1)
	assert.Empty(t, engine.Execute(at(12, 0)))
	assert.Equal(t, 2, hits)

	snapshot, _ := engine.Trap(trap.ID)
	assert.True(t, snapshot.IsOutside())
}

func TestEngine_CallbackMayAddTraps(t *testing.T) {
	engine := newEngine()

	var added []traps.Trap
	_, err := engine.WatchRadius(stepStart, 10, func(traps.Trap, traps.Event, traps.State) {
		tr, err := engine.WatchRadius(stepStart, 10, nil)
		require.NoError(t, err)
		added = append(added, tr)
	})
	require.NoError(t, err)

	first := engine.Execute(at(0, 0))
	require.Len(t, first, 1)
	require.Len(t, added, 1)

	// The trap added by the callback is evaluated from the next update.
	second := engine.Execute(at(0, 0))
	require.Len(t, second, 2)
	assert.Equal(t, added[0].ID, second[1].Trap.ID)
}

func TestEngine_IDsAndSnapshots(t *testing.T) {
	engine := newEngine()

	a, err := engine.WatchRadius(stepStart, 5, nil)
	require.NoError(t, err)
	b, err := engine.WatchRadius(stepStart, 5, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)
	assert.Len(t, engine.Traps(), 2)

	_, ok := engine.Trap(99)
	assert.False(t, ok)

	engine.Clear()
	assert.Empty(t, engine.Traps())

	c, err := engine.WatchRadius(stepStart, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ID)
}

func TestEngine_NextStepIsCopied(t *testing.T) {
	engine := newEngine()

	next := traps.Step{Bearing: 45}
	trap, err := engine.WatchStep(traps.Step{Start: stepStart, Distance: 10}, &next, traps.Options{}, nil)
	require.NoError(t, err)

	next.Bearing = 180
	snapshot, _ := engine.Trap(trap.ID)
	require.NotNil(t, snapshot.NextStep)
	assert.Equal(t, 45.0, snapshot.NextStep.Bearing)
}

func TestEngine_Prune(t *testing.T) {
	engine := newEngine()

	step := traps.Step{Start: stepStart, Bearing: 90, Distance: 100}
	expiring, err := engine.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)
	for _, offset := range []float64{-90, -90, -10, 80, 120, 130} {
		engine.Execute(at(offset, 90))
	}

	staying, err := engine.WatchStep(step, nil, traps.Options{}, nil)
	require.NoError(t, err)

	// Expired traps are never removed implicitly.
	assert.Len(t, engine.Traps(), 2)

	assert.Equal(t, 1, engine.Prune())
	_, ok := engine.Trap(expiring.ID)
	assert.False(t, ok)
	_, ok = engine.Trap(staying.ID)
	assert.True(t, ok)
	assert.Equal(t, 0, engine.Prune())
}

func TestEngine_InvalidSpecs(t *testing.T) {
	engine := newEngine()

	tests := []struct {
		name string
		add  func() (traps.Trap, error)
	}{
		{
			name: "unknown kind",
			add: func() (traps.Trap, error) {
				return engine.Add(traps.Spec{Kind: "SQUARE", Radius: 10}, nil)
			},
		},
		{
			name: "zero circle radius",
			add:  func() (traps.Trap, error) { return engine.WatchRadius(stepStart, 0, nil) },
		},
		{
			name: "negative circle radius",
			add:  func() (traps.Trap, error) { return engine.WatchRadius(stepStart, -5, nil) },
		},
		{
			name: "step without distance",
			add: func() (traps.Trap, error) {
				return engine.WatchStep(traps.Step{Start: stepStart}, nil, traps.Options{}, nil)
			},
		},
		{
			name: "inner tolerance above one",
			add: func() (traps.Trap, error) {
				return engine.WatchStep(traps.Step{Start: stepStart, Distance: 10}, nil, traps.Options{InnerTolerance: 1.5}, nil)
			},
		},
		{
			name: "negative course tolerance",
			add: func() (traps.Trap, error) {
				return engine.WatchStep(traps.Step{Start: stepStart, Distance: 10}, nil, traps.Options{CourseTolerance: -1}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.add()
			assert.ErrorIs(t, err, traps.ErrInvalidTrapSpec)
		})
	}

	assert.Empty(t, engine.Traps())
}

func TestState_Rank(t *testing.T) {
	order := []traps.State{
		traps.StateOutside,
		traps.StateEntered,
		traps.StateInside,
		traps.StateCenter,
		traps.StateLeaving,
		traps.StateLeft,
		traps.StateExpired,
	}
	for i, s := range order {
		assert.Equal(t, i, s.Rank())
	}
	assert.Equal(t, -1, traps.State("BOGUS").Rank())
}
