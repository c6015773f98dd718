package navigation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/simulator"
)

// Store errors.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRouteIndex is returned when the requested route is not in the response.
	ErrRouteIndex = errors.New("route index out of range")
)

// DefaultEventLimit is the number of events kept per session.
const DefaultEventLimit = 256

// StoreConfig holds configuration for the session store.
type StoreConfig struct {
	// Navigation is the template for every session's navigator. Its
	// SessionID and Sink are replaced per session.
	Navigation Config

	// Sink receives the events of every session in addition to the
	// session's own recorder.
	Sink Sink

	// Simulator configures simulation runs.
	Simulator simulator.Config

	// EventLimit is the number of events kept per session (default: 256).
	EventLimit int

	// Logger for store operations.
	Logger zerolog.Logger
}

// CreateRequest describes a new session.
type CreateRequest struct {
	// Routes are the decoded alternatives; RouteIndex picks one.
	Routes     []directions.Route
	RouteIndex int
	// Navigate starts navigation immediately instead of only showing the route.
	Navigate bool
}

// Session is a navigator with its recent events.
type Session struct {
	ID        string
	CreatedAt time.Time

	navigator *Navigator
	recorder  *RecorderSink

	mu        sync.Mutex // serializes positions and simulations
	updatedAt time.Time
}

// Navigator returns the session's navigator.
func (s *Session) Navigator() *Navigator {
	return s.navigator
}

// Snapshot returns the navigator state.
func (s *Session) Snapshot() Snapshot {
	return s.navigator.Snapshot()
}

// Events returns the session's recent events, oldest first.
func (s *Session) Events() []Event {
	return s.recorder.Events()
}

// UpdatedAt returns the time of the last position or simulation.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Store keeps navigation sessions in memory.
type Store struct {
	cfg    StoreConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a new in-memory session store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.EventLimit == 0 {
		cfg.EventLimit = DefaultEventLimit
	}

	return &Store{
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session on the chosen route.
func (st *Store) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.RouteIndex < 0 || req.RouteIndex >= len(req.Routes) {
		return nil, fmt.Errorf("%w: %d of %d", ErrRouteIndex, req.RouteIndex, len(req.Routes))
	}
	route := req.Routes[req.RouteIndex]

	id := uuid.New().String()
	recorder := NewRecorderSink(st.cfg.EventLimit)

	var sink Sink = recorder
	if st.cfg.Sink != nil {
		sink = MultiSink{recorder, st.cfg.Sink}
	}

	navCfg := st.cfg.Navigation
	navCfg.SessionID = id
	navCfg.Sink = sink
	navigator := New(navCfg)

	var err error
	if req.Navigate {
		err = navigator.Navigate(ctx, route)
	} else {
		err = navigator.ShowRoute(ctx, route)
	}
	if err != nil && !errors.Is(err, ErrPublish) {
		return nil, err
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        id,
		CreatedAt: now,
		navigator: navigator,
		recorder:  recorder,
		updatedAt: now,
	}

	st.mu.Lock()
	st.sessions[id] = session
	st.mu.Unlock()

	if m := navCfg.Metrics; m != nil {
		m.SessionOpened(ctx)
	}

	st.logger.Info().
		Str("session_id", id).
		Str("route", route.Title).
		Bool("navigate", req.Navigate).
		Msg("session created")

	return session, nil
}

// Get retrieves a session by ID.
func (st *Store) Get(_ context.Context, id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns all sessions ordered by creation time.
func (st *Store) List(_ context.Context) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Delete closes and removes a session. The session's final
// NAVIGATION_STOPPED event reaches the sinks whatever its mode.
func (st *Store) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	err := s.navigator.Close(ctx)
	s.mu.Unlock()
	if err != nil && !errors.Is(err, ErrPublish) {
		return err
	}

	if m := st.cfg.Navigation.Metrics; m != nil {
		m.SessionClosed(ctx)
	}

	st.logger.Info().Str("session_id", id).Msg("session deleted")
	return nil
}

// Start begins navigation of a session's route.
func (st *Store) Start(ctx context.Context, id string) (Snapshot, error) {
	s, err := st.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.navigator.Start(ctx); err != nil && !errors.Is(err, ErrPublish) {
		return Snapshot{}, err
	}
	return s.navigator.Snapshot(), nil
}

// Stop ends navigation of a session and keeps its route.
func (st *Store) Stop(ctx context.Context, id string) (Snapshot, error) {
	s, err := st.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.navigator.Stop(ctx); err != nil && !errors.Is(err, ErrPublish) {
		return Snapshot{}, err
	}
	return s.navigator.Snapshot(), nil
}

// SetPosition feeds positions to a session in order.
func (st *Store) SetPosition(ctx context.Context, id string, positions ...geo.Position) (Snapshot, error) {
	s, err := st.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range positions {
		if err := s.navigator.SetPosition(ctx, pos); err != nil && !errors.Is(err, ErrPublish) {
			return Snapshot{}, err
		}
	}
	s.updatedAt = time.Now().UTC()

	return s.navigator.Snapshot(), nil
}

// Simulate drives a session along its route in virtual time.
func (st *Store) Simulate(ctx context.Context, id string) (SimulationResult, error) {
	s, err := st.Get(ctx, id)
	if err != nil {
		return SimulationResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	simCfg := st.cfg.Simulator
	simCfg.Logger = st.logger.With().Str("session_id", id).Logger()

	result, err := SimulateVirtual(ctx, s.navigator, simCfg)
	s.updatedAt = time.Now().UTC()
	if err != nil {
		return result, err
	}

	st.logger.Info().
		Str("session_id", id).
		Int("ticks", result.Ticks).
		Dur("elapsed", result.Elapsed).
		Str("mode", string(result.Mode)).
		Msg("simulation finished")

	return result, nil
}

// Count returns the number of open sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
