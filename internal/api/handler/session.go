package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/api/models"
	"github.com/breatheroute/routenav/internal/api/response"
	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/navigation"
)

// Content types of the debug endpoints.
const (
	ContentTypeGeoJSON = "application/geo+json"
	ContentTypeKML     = "application/vnd.google-earth.kml+xml"
)

// SessionHandler handles navigation session endpoints.
type SessionHandler struct {
	store   *navigation.Store
	decoder *directions.Decoder
	logger  zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store *navigation.Store, decoder *directions.Decoder, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		store:   store,
		decoder: decoder,
		logger:  logger,
	}
}

// CreateSession handles POST /v1/sessions - open a session on a route of a
// directions response.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var input models.CreateSessionRequest
	if !decodeBody(w, r, &input) {
		return
	}

	routes, err := h.decoder.DecodeJSON(input.Directions)
	if err != nil {
		writeDecodeError(w, r, err)
		return
	}

	session, err := h.store.Create(r.Context(), navigation.CreateRequest{
		Routes:     routes,
		RouteIndex: input.RouteIndex,
		Navigate:   input.Navigate,
	})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/sessions/%s", session.ID)
	response.Created(w, r, location, models.NewSession(session))
}

// ListSessions handles GET /v1/sessions - list open sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.List(r.Context())

	list := models.SessionList{Sessions: make([]models.SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		list.Sessions = append(list.Sessions, models.NewSessionSummary(s))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetSession handles GET /v1/sessions/{sessionId} - get a session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSession(session))
}

// DeleteSession handles DELETE /v1/sessions/{sessionId} - stop and remove a
// session.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// StartNavigation handles POST /v1/sessions/{sessionId}/start.
func (h *SessionHandler) StartNavigation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Start)
}

// StopNavigation handles POST /v1/sessions/{sessionId}/stop.
func (h *SessionHandler) StopNavigation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Stop)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (navigation.Snapshot, error)) {
	id := chi.URLParam(r, "sessionId")
	if _, err := fn(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeSession(w, r, id)
}

// UpdatePositions handles POST /v1/sessions/{sessionId}/positions - feed
// location fixes to the navigator in order.
func (h *SessionHandler) UpdatePositions(w http.ResponseWriter, r *http.Request) {
	var input models.PositionsRequest
	if !decodeBody(w, r, &input) {
		return
	}

	positions := make([]geo.Position, len(input.Positions))
	for i, p := range input.Positions {
		positions[i] = p.Position()
	}

	id := chi.URLParam(r, "sessionId")
	if _, err := h.store.SetPosition(r.Context(), id, positions...); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.writeSession(w, r, id)
}

// Simulate handles POST /v1/sessions/{sessionId}/simulate - drive the
// session along its route in virtual time.
func (h *SessionHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	result, err := h.store.Simulate(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	session, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.SimulationResponse{
		Simulation: result,
		Navigation: session.Snapshot(),
	})
}

// ListEvents handles GET /v1/sessions/{sessionId}/events - recent events of
// a session, oldest first.
func (h *SessionHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.EventList{Events: session.Events()})
}

// DebugGeoJSON handles GET /v1/sessions/{sessionId}/debug.geojson - the
// session route and its trap shapes as GeoJSON.
func (h *SessionHandler) DebugGeoJSON(w http.ResponseWriter, r *http.Request) {
	route, shapes, ok := h.debugShapes(w, r)
	if !ok {
		return
	}

	fc := navigation.DebugGeoJSON(route, shapes)
	response.Stream(w, r, ContentTypeGeoJSON, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(fc)
	})
}

// DebugKML handles GET /v1/sessions/{sessionId}/debug.kml - the session
// route and its trap shapes as KML.
func (h *SessionHandler) DebugKML(w http.ResponseWriter, r *http.Request) {
	route, shapes, ok := h.debugShapes(w, r)
	if !ok {
		return
	}

	response.Stream(w, r, ContentTypeKML, func(w io.Writer) error {
		return navigation.WriteDebugKML(w, route, shapes)
	})
}

func (h *SessionHandler) debugShapes(w http.ResponseWriter, r *http.Request) (directions.Route, []navigation.Shape, bool) {
	session, ok := h.session(w, r)
	if !ok {
		return directions.Route{}, nil, false
	}

	snap := session.Snapshot()
	if snap.Route == nil {
		response.Conflict(w, r, "session has no route")
		return directions.Route{}, nil, false
	}

	shapes := navigation.DebugShapes(*snap.Route, session.Navigator().Options())
	return *snap.Route, shapes, true
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*navigation.Session, bool) {
	session, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeStoreError(w, r, err)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) writeSession(w http.ResponseWriter, r *http.Request, id string) {
	session, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSession(session))
}

func (h *SessionHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, navigation.ErrSessionNotFound):
		response.NotFound(w, r, "session not found")
	case errors.Is(err, navigation.ErrRouteIndex), errors.Is(err, navigation.ErrEmptyRoute):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, navigation.ErrNoRoute):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request cancelled")
	default:
		h.logger.Error().Err(err).
			Str("session_id", chi.URLParam(r, "sessionId")).
			Msg("session operation failed")
		response.InternalError(w, r, "session operation failed")
	}
}
