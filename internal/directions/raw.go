package directions

import (
	"bytes"
	"encoding/json"
)

// Response is the raw Google Directions API document.
type Response struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Routes       []RawRoute `json:"routes"`
}

// RawRoute is a single route of a directions response.
type RawRoute struct {
	Summary          string      `json:"summary"`
	Bounds           RawBounds   `json:"bounds"`
	Legs             []RawLeg    `json:"legs"`
	OverviewPolyline RawPolyline `json:"overview_polyline"`
	Warnings         []string    `json:"warnings,omitempty"`
	Copyrights       string      `json:"copyrights,omitempty"`
}

// RawBounds is the viewport of a route.
type RawBounds struct {
	NorthEast LatLng `json:"northeast"`
	SouthWest LatLng `json:"southwest"`
}

// LatLng is the API's coordinate representation.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RawLeg is one origin-to-waypoint section of a route.
type RawLeg struct {
	StartAddress  string    `json:"start_address"`
	EndAddress    string    `json:"end_address"`
	StartLocation LatLng    `json:"start_location"`
	EndLocation   LatLng    `json:"end_location"`
	Distance      TextValue `json:"distance"`
	Duration      TextValue `json:"duration"`
	Steps         []RawStep `json:"steps"`
}

// RawStep is a single maneuver of a leg.
type RawStep struct {
	StartLocation    LatLng      `json:"start_location"`
	EndLocation      LatLng      `json:"end_location"`
	Distance         TextValue   `json:"distance"`
	Duration         TextValue   `json:"duration"`
	TravelMode       string      `json:"travel_mode"`
	HTMLInstructions string      `json:"html_instructions"`
	Maneuver         RawManeuver `json:"maneuver"`
	Polyline         RawPolyline `json:"polyline"`
}

// RawPolyline wraps an encoded polyline string.
type RawPolyline struct {
	Points string `json:"points"`
}

// RawManeuver carries the hyphenated maneuver code of a step. The public API
// sends a bare string ("turn-right"); some clients wrap it in an object with
// a type field. Both forms are accepted.
type RawManeuver struct {
	Type string `json:"type"`
}

// UnmarshalJSON accepts either "turn-right" or {"type":"turn-right"}.
func (m *RawManeuver) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		m.Type = ""
		return nil
	}

	if data[0] == '"' {
		return json.Unmarshal(data, &m.Type)
	}

	type plain RawManeuver
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*m = RawManeuver(p)
	return nil
}

// MarshalJSON writes the maneuver in the public API's bare string form.
func (m RawManeuver) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Type)
}
