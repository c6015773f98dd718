package models

import (
	"encoding/json"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/geocoder"
	"github.com/breatheroute/routenav/internal/navigation"
)

// MaxPositionsPerRequest bounds a position batch.
const MaxPositionsPerRequest = 500

// DecodeResponse is the result of decoding a directions payload.
type DecodeResponse struct {
	Routes []directions.Route `json:"routes"`
}

// GeocodeResponse is the result of minimizing a geocoding payload.
type GeocodeResponse struct {
	Results []geocoder.MinimizedResult `json:"results"`
}

// CreateSessionRequest opens a navigation session on a route of a raw
// Google Directions response.
type CreateSessionRequest struct {
	Directions json.RawMessage `json:"directions" validate:"required"`
	RouteIndex int             `json:"routeIndex" validate:"gte=0"`
	Navigate   bool            `json:"navigate"`
}

// PositionInput is a single location fix.
type PositionInput struct {
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon      *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Heading  float64  `json:"heading" validate:"gte=0,lt=360"`
	Altitude *float64 `json:"altitude,omitempty"`
}

// Position converts the input into a navigation position. Inputs must be
// validated first.
func (p PositionInput) Position() geo.Position {
	return geo.Position{
		Coordinate: geo.Coordinate{Latitude: *p.Lat, Longitude: *p.Lon},
		Heading:    p.Heading,
		Altitude:   p.Altitude,
	}
}

// PositionsRequest feeds positions to a session in order.
type PositionsRequest struct {
	Positions []PositionInput `json:"positions" validate:"required,min=1,max=500,dive"`
}

// Session describes a navigation session.
type Session struct {
	ID         string              `json:"id"`
	CreatedAt  Timestamp           `json:"createdAt"`
	UpdatedAt  Timestamp           `json:"updatedAt"`
	Navigation navigation.Snapshot `json:"navigation"`
}

// SessionSummary is the list form of a session.
type SessionSummary struct {
	ID        string          `json:"id"`
	CreatedAt Timestamp       `json:"createdAt"`
	UpdatedAt Timestamp       `json:"updatedAt"`
	Mode      navigation.Mode `json:"mode"`
	Route     string          `json:"route,omitempty"`
}

// SessionList is a list of sessions.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
}

// EventList is the recent events of a session, oldest first.
type EventList struct {
	Events []navigation.Event `json:"events"`
}

// SimulationResponse is the outcome of a simulation run.
type SimulationResponse struct {
	Simulation navigation.SimulationResult `json:"simulation"`
	Navigation navigation.Snapshot         `json:"navigation"`
}

// NewSession builds the response form of s.
func NewSession(s *navigation.Session) Session {
	return Session{
		ID:         s.ID,
		CreatedAt:  Timestamp(s.CreatedAt),
		UpdatedAt:  Timestamp(s.UpdatedAt()),
		Navigation: s.Snapshot(),
	}
}

// NewSessionSummary builds the list form of s.
func NewSessionSummary(s *navigation.Session) SessionSummary {
	snap := s.Snapshot()
	summary := SessionSummary{
		ID:        s.ID,
		CreatedAt: Timestamp(s.CreatedAt),
		UpdatedAt: Timestamp(s.UpdatedAt()),
		Mode:      snap.Mode,
	}
	if snap.Route != nil {
		summary.Route = snap.Route.Title
	}
	return summary
}
