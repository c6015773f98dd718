package navigation

import (
	"context"
	"errors"
	"time"

	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/simulator"
)

// SimulationResult summarizes a simulation run.
type SimulationResult struct {
	Ticks     int           `json:"ticks"`
	Positions int           `json:"positions"`
	Turns     int           `json:"turns"`
	Elapsed   time.Duration `json:"elapsed"`
	Mode      Mode          `json:"mode"`
}

// SimulationHost feeds simulated positions into a Navigator.
type SimulationHost struct {
	ctx context.Context
	n   *Navigator
	err error
}

// Host returns a simulator host that forwards positions to n. Publish
// failures are logged by the navigator and otherwise ignored; any other
// error is kept and reported by Err.
func (n *Navigator) Host(ctx context.Context) *SimulationHost {
	return &SimulationHost{ctx: ctx, n: n}
}

// UpdateBearing is a no-op; the heading travels with the next position.
func (h *SimulationHost) UpdateBearing(float64, time.Duration) {}

// SetPosition forwards pos to the navigator.
func (h *SimulationHost) SetPosition(pos geo.Position) {
	if err := h.n.SetPosition(h.ctx, pos); err != nil && !errors.Is(err, ErrPublish) && h.err == nil {
		h.err = err
	}
}

// Err returns the first non-publish error seen.
func (h *SimulationHost) Err() error {
	return h.err
}

// SimulateVirtual navigates n's route with a simulator, draining every tick
// without sleeping. Navigation is started first when it is not running. The
// run ends when the route is exhausted or ctx is done.
func SimulateVirtual(ctx context.Context, n *Navigator, cfg simulator.Config) (SimulationResult, error) {
	if n.Mode() != ModeNavigation {
		if err := n.Start(ctx); err != nil && !errors.Is(err, ErrPublish) {
			return SimulationResult{}, err
		}
	}

	snap := n.Snapshot()
	if snap.Route == nil {
		return SimulationResult{}, ErrNoRoute
	}

	h := n.Host(ctx)
	sim := simulator.New(h, cfg)
	sim.Start(snap.Route)

	var result SimulationResult
	for {
		if err := ctx.Err(); err != nil {
			sim.Stop()
			return result, err
		}

		ev, ok := sim.Tick()
		if !ok {
			break
		}

		result.Ticks++
		result.Elapsed += ev.Delay
		if ev.Advanced {
			result.Positions++
		} else {
			result.Turns++
		}

		if err := h.Err(); err != nil {
			sim.Stop()
			return result, err
		}
	}

	result.Mode = n.Mode()
	return result, nil
}
