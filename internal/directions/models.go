// Package directions turns Google Directions API responses into navigable routes.
package directions

import (
	"errors"
	"fmt"

	"github.com/breatheroute/routenav/internal/geo"
)

// Sentinel errors for directions decoding.
var (
	ErrNoRouteFound      = errors.New("no route found")
	ErrMalformedPolyline = errors.New("malformed polyline")
)

// StatusOK is the status of a successful directions response.
const StatusOK = "OK"

// DefaultDirectionType is the maneuver used when a step carries none.
const DefaultDirectionType = "straight"

// FlagManeuver marks the synthetic last step of every route.
const FlagManeuver = "flag"

// APIError is returned when the directions API reports a non-OK status.
type APIError struct {
	Status  string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("directions api %s: %s", e.Status, e.Message)
}

// TextValue pairs a display string with its numeric value: meters for
// distances, seconds for durations.
type TextValue struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// Maneuver is a step's turn instruction.
type Maneuver struct {
	// Name is the camel-cased code, e.g. "turnRight".
	Name string `json:"name"`
	// Type is the raw hyphenated code, e.g. "turn-right".
	Type string `json:"type"`
}

// PolylineType classifies how a polyline is presented.
type PolylineType string

// Polyline types.
const (
	PolylineRoute            PolylineType = "ROUTE"
	PolylineRouteAlternative PolylineType = "ROUTE_ALTERNATIVE"
	PolylinePending          PolylineType = "PENDING"
	PolylineNext             PolylineType = "NEXT"
)

// Polyline is the decoded geometry of a step.
type Polyline struct {
	Coordinates []geo.Coordinate `json:"coordinates"`
	Type        PolylineType     `json:"type"`
}

// MarkerType classifies a route marker.
type MarkerType string

// Marker types.
const (
	MarkerOrigin        MarkerType = "ORIGIN"
	MarkerDestination   MarkerType = "DESTINATION"
	MarkerPositionDot   MarkerType = "POSITION_DOT"
	MarkerPositionArrow MarkerType = "POSITION_ARROW"
)

// Marker is a labelled point on the route.
type Marker struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Type       MarkerType     `json:"type"`
}

// Step is one maneuver segment of a route.
type Step struct {
	Compass  *geo.Compass `json:"compass,omitempty"`
	Maneuver Maneuver     `json:"maneuver"`
	// Bearing points from this step's start towards the next step's start.
	Bearing      float64         `json:"bearing"`
	Mode         string          `json:"mode,omitempty"`
	Start        geo.Coordinate  `json:"start"`
	End          *geo.Coordinate `json:"end,omitempty"`
	Polyline     Polyline        `json:"polyline"`
	Duration     TextValue       `json:"duration"`
	Distance     TextValue       `json:"distance"`
	Instructions string          `json:"instructions"`
	Final        bool            `json:"final,omitempty"`
}

// Bounds is the viewport of a route.
type Bounds struct {
	BoundingBox [2]geo.Coordinate `json:"bounding_box"`
	Center      geo.Coordinate    `json:"center"`
	NorthEast   geo.Coordinate    `json:"north_east"`
	SouthWest   geo.Coordinate    `json:"south_west"`
}

// Location is an addressed endpoint of a route.
type Location struct {
	Address    string         `json:"address"`
	LatLng     LatLng         `json:"latlng"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

// Route is a decoded, navigable route. Steps and Polylines are parallel and
// the last step is always the flag step.
type Route struct {
	Title          string     `json:"title"`
	Markers        []Marker   `json:"markers"`
	Steps          []Step     `json:"steps"`
	Polylines      []Polyline `json:"polylines"`
	Bounds         Bounds     `json:"bounds"`
	InitialBearing float64    `json:"initial_bearing"`
	Duration       TextValue  `json:"duration"`
	Distance       TextValue  `json:"distance"`
	Origin         Location   `json:"origin"`
	Destination    Location   `json:"destination"`
}

// Step returns the step at index i.
func (r *Route) Step(i int) (Step, bool) {
	if i < 0 || i >= len(r.Steps) {
		return Step{}, false
	}
	return r.Steps[i], true
}

// Coordinates flattens every step's polyline into one ordered list.
func (r *Route) Coordinates() []geo.Coordinate {
	var n int
	for _, s := range r.Steps {
		n += len(s.Polyline.Coordinates)
	}

	coords := make([]geo.Coordinate, 0, n)
	for _, s := range r.Steps {
		coords = append(coords, s.Polyline.Coordinates...)
	}
	return coords
}

func toCoordinate(ll LatLng) geo.Coordinate {
	return geo.Coordinate{Latitude: ll.Lat, Longitude: ll.Lng}
}
