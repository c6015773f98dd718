// Package simulator replays a decoded route as a stream of synthetic
// positions, one per meter, slowing down for turns.
package simulator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
)

// Defaults for Config.
const (
	DefaultSpeed         = 30 * time.Millisecond
	DefaultTurnSpeed     = 700 * time.Millisecond
	DefaultTurnThreshold = 10.0
)

// Host receives the simulated stream.
type Host interface {
	// UpdateBearing rotates the host towards bearing over the given duration.
	UpdateBearing(bearing float64, duration time.Duration)
	// SetPosition delivers the next position.
	SetPosition(pos geo.Position)
}

// Config holds configuration for the simulator.
type Config struct {
	// Speed is the delay between regular ticks (default: 30ms).
	Speed time.Duration

	// TurnSpeed is the delay after a turn (default: 700ms).
	TurnSpeed time.Duration

	// TurnThreshold is the bearing change in degrees that counts as a turn (default: 10).
	TurnThreshold float64

	// Logger for simulator operations.
	Logger zerolog.Logger
}

// Point is a densified route point tagged with its segment bearing.
type Point struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Bearing    float64        `json:"bearing"`
}

// Event describes one tick.
type Event struct {
	// Delay is how long to wait before the next tick.
	Delay time.Duration
	// Point is the point handled by the tick.
	Point Point
	// Advanced is false when the tick only turned the host.
	Advanced bool
}

// Simulator drives a Host along a route.
type Simulator struct {
	host          Host
	speed         time.Duration
	turnSpeed     time.Duration
	turnThreshold float64
	logger        zerolog.Logger

	mu          sync.Mutex
	points      []Point
	index       int
	lastBearing float64
	hasBearing  bool
	stop        chan struct{}
}

// New creates a new simulator for host.
func New(host Host, cfg Config) *Simulator {
	speed := cfg.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}

	turnSpeed := cfg.TurnSpeed
	if turnSpeed == 0 {
		turnSpeed = DefaultTurnSpeed
	}

	turnThreshold := cfg.TurnThreshold
	if turnThreshold == 0 {
		turnThreshold = DefaultTurnThreshold
	}

	return &Simulator{
		host:          host,
		speed:         speed,
		turnSpeed:     turnSpeed,
		turnThreshold: turnThreshold,
		logger:        cfg.Logger,
	}
}

// Start loads route, replacing any point list from a previous Start. It does
// not tick; call Tick or Run.
func (s *Simulator) Start(route *directions.Route) {
	points := Densify(route.Coordinates())

	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	s.points = points
	s.index = 0
	s.lastBearing = 0
	s.hasBearing = false
	s.stop = make(chan struct{})
	s.mu.Unlock()

	s.logger.Debug().
		Int("point_count", len(points)).
		Str("route", route.Title).
		Msg("simulation started")
}

// Tick handles one point. It returns false once the cursor has run past the
// last point, at which time the point list is dropped.
func (s *Simulator) Tick() (Event, bool) {
	s.mu.Lock()
	if s.index >= len(s.points) {
		finished := s.points != nil
		s.points = nil
		s.index = 0
		s.mu.Unlock()
		if finished {
			s.logger.Debug().Msg("simulation finished")
		}
		return Event{}, false
	}

	point := s.points[s.index]
	ev := Event{Delay: s.speed, Point: point, Advanced: true}

	// A bearing change beyond the threshold stops the host and turns it first.
	if s.hasBearing && geo.AngleBetween(point.Bearing, s.lastBearing) >= s.turnThreshold {
		ev.Advanced = false
		ev.Delay = s.turnSpeed
	}
	s.lastBearing = point.Bearing
	s.hasBearing = true
	if ev.Advanced {
		s.index++
	}
	s.mu.Unlock()

	s.host.UpdateBearing(point.Bearing, s.turnSpeed)
	if ev.Advanced {
		s.host.SetPosition(geo.Position{
			Coordinate: point.Coordinate,
			Heading:    point.Bearing,
		})
	}

	return ev, true
}

// Run ticks until the route is exhausted, Stop is called or ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()

	for {
		ev, ok := s.Tick()
		if !ok {
			return nil
		}

		timer := time.NewTimer(ev.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-stop:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Stop cancels a running simulation and drops the point list.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.points = nil
	s.index = 0
}

// Remaining returns the number of points not yet delivered.
func (s *Simulator) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points) - s.index
}

// Densify expands coords into one point per meter. Each pair at distance d
// (rounded to whole meters) yields the d-1 points strictly between them;
// pairs closer than that yield the first point. Pairs with a bearing of
// exactly 0 are skipped, which drops duplicates. The last coordinate closes
// the list, tagged with the last emitted bearing.
func Densify(coords []geo.Coordinate) []Point {
	var points []Point

	for i := 0; i+1 < len(coords); i++ {
		from, to := coords[i], coords[i+1]

		bearing := geo.Bearing(from, to)
		if bearing == 0 {
			continue
		}

		distance := math.Round(geo.Distance(from, to))
		if distance <= 1 {
			points = append(points, Point{Coordinate: from, Bearing: bearing})
			continue
		}

		for x := 1.0; x < distance; x++ {
			points = append(points, Point{
				Coordinate: geo.Destination(from, x, bearing),
				Bearing:    bearing,
			})
		}
	}

	if len(points) > 0 {
		points = append(points, Point{
			Coordinate: coords[len(coords)-1],
			Bearing:    points[len(points)-1].Bearing,
		})
	}

	return points
}
