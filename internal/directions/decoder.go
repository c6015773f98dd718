package directions

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/pkg/polyline"
)

// DecoderConfig holds configuration for the directions decoder.
type DecoderConfig struct {
	// Precision is the polyline precision in decimal places (default: 5).
	Precision int

	// DefaultDirectionType is used for steps without a maneuver (default: "straight").
	DefaultDirectionType string

	// Logger for decoder operations.
	Logger zerolog.Logger
}

// Decoder converts raw directions responses into routes.
type Decoder struct {
	precision            int
	defaultDirectionType string
	logger               zerolog.Logger
}

// NewDecoder creates a new directions decoder.
func NewDecoder(cfg DecoderConfig) *Decoder {
	precision := cfg.Precision
	if precision <= 0 {
		precision = polyline.DefaultPrecision
	}

	defaultDirectionType := cfg.DefaultDirectionType
	if defaultDirectionType == "" {
		defaultDirectionType = DefaultDirectionType
	}

	return &Decoder{
		precision:            precision,
		defaultDirectionType: defaultDirectionType,
		logger:               cfg.Logger,
	}
}

// Precision returns the polyline precision used by the decoder.
func (d *Decoder) Precision() int {
	return d.precision
}

// Decode reads a directions JSON document from r and returns its routes.
func (d *Decoder) Decode(r io.Reader) ([]Route, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding directions response: %w", err)
	}
	return d.Resolve(&resp)
}

// DecodeJSON is Decode over an in-memory document.
func (d *Decoder) DecodeJSON(data []byte) ([]Route, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding directions response: %w", err)
	}
	return d.Resolve(&resp)
}

// Resolve checks the response status and parses its routes. A non-OK status
// yields an *APIError; a response with no usable route yields ErrNoRouteFound.
func (d *Decoder) Resolve(resp *Response) ([]Route, error) {
	if resp.Status != StatusOK {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		d.logger.Warn().
			Str("status", resp.Status).
			Str("error_message", msg).
			Msg("directions api returned non-OK status")
		return nil, &APIError{Status: resp.Status, Message: msg}
	}

	routes, err := d.Parse(resp)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return nil, ErrNoRouteFound
	}
	return routes, nil
}

// Parse converts every route of resp. Only the first leg of a route is used;
// routes without legs are dropped. The status field is not inspected.
func (d *Decoder) Parse(resp *Response) ([]Route, error) {
	if len(resp.Routes) == 0 {
		return []Route{}, nil
	}

	routes := make([]Route, 0, len(resp.Routes))
	for i, raw := range resp.Routes {
		if len(raw.Legs) == 0 {
			d.logger.Debug().
				Int("route_index", i).
				Str("summary", raw.Summary).
				Msg("skipping route without legs")
			continue
		}

		route, err := d.parseRoute(raw)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		routes = append(routes, route)
	}

	d.logger.Debug().
		Int("route_count", len(routes)).
		Int("raw_route_count", len(resp.Routes)).
		Msg("parsed directions")

	return routes, nil
}

func (d *Decoder) parseRoute(raw RawRoute) (Route, error) {
	leg := raw.Legs[0]

	markers := []Marker{
		{Coordinate: toCoordinate(leg.StartLocation), Type: MarkerOrigin},
		{Coordinate: toCoordinate(leg.EndLocation), Type: MarkerDestination},
	}

	steps := make([]Step, 0, len(leg.Steps)+1)
	for i := range leg.Steps {
		var next *RawStep
		if i+1 < len(leg.Steps) {
			next = &leg.Steps[i+1]
		}

		step, err := d.ParseStep(leg.Steps[i], next)
		if err != nil {
			return Route{}, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}

	var initialBearing float64
	if len(steps) > 0 {
		initialBearing = steps[0].Bearing
	}

	steps = append(steps, finalStep(leg, steps))

	polylines := make([]Polyline, len(steps))
	for i, s := range steps {
		polylines[i] = s.Polyline
	}

	ne := toCoordinate(raw.Bounds.NorthEast)
	sw := toCoordinate(raw.Bounds.SouthWest)

	return Route{
		Title:     raw.Summary,
		Markers:   markers,
		Steps:     steps,
		Polylines: polylines,
		Bounds: Bounds{
			BoundingBox: [2]geo.Coordinate{ne, sw},
			Center:      geo.Center(ne, sw),
			NorthEast:   ne,
			SouthWest:   sw,
		},
		InitialBearing: initialBearing,
		Duration:       leg.Duration,
		Distance:       leg.Distance,
		Origin: Location{
			Address:    leg.StartAddress,
			LatLng:     leg.StartLocation,
			Coordinate: toCoordinate(leg.StartLocation),
		},
		Destination: Location{
			Address:    leg.EndAddress,
			LatLng:     leg.EndLocation,
			Coordinate: toCoordinate(leg.EndLocation),
		},
	}, nil
}

// finalStep builds the flag step that terminates every route. It copies the
// last real step; a leg without steps anchors it on the leg itself.
func finalStep(leg RawLeg, steps []Step) Step {
	final := Step{
		Final:        true,
		Maneuver:     Maneuver{Name: FlagManeuver, Type: FlagManeuver},
		Polyline:     Polyline{Coordinates: []geo.Coordinate{}, Type: PolylineRoute},
		Instructions: leg.EndAddress,
	}

	if len(steps) == 0 {
		start := toCoordinate(leg.StartLocation)
		final.Start = start
		final.Bearing = geo.Bearing(start, toCoordinate(leg.EndLocation))
		if c, ok := geo.DecodeCompass(final.Bearing); ok {
			final.Compass = &c
		}
		final.Duration = leg.Duration
		final.Distance = leg.Distance
		return final
	}

	last := steps[len(steps)-1]
	final.Bearing = last.Bearing
	final.Compass = last.Compass
	final.Start = last.Start
	final.Duration = last.Duration
	final.Distance = last.Distance
	return final
}

// ParseStep converts a raw step. The bearing looks ahead to the next step's
// start when there is one, otherwise to the step's own end.
func (d *Decoder) ParseStep(raw RawStep, next *RawStep) (Step, error) {
	start := toCoordinate(raw.StartLocation)
	end := toCoordinate(raw.EndLocation)

	target := end
	if next != nil {
		target = toCoordinate(next.StartLocation)
	}
	bearing := geo.Bearing(start, target)

	coords, err := DecodePolyline(raw.Polyline.Points, d.precision)
	if err != nil {
		return Step{}, err
	}

	step := Step{
		Maneuver:     d.DecodeManeuver(raw),
		Bearing:      bearing,
		Mode:         raw.TravelMode,
		Start:        start,
		End:          &end,
		Polyline:     Polyline{Coordinates: coords, Type: PolylineRoute},
		Duration:     raw.Duration,
		Distance:     raw.Distance,
		Instructions: raw.HTMLInstructions,
	}
	if c, ok := geo.DecodeCompass(bearing); ok {
		step.Compass = &c
	}

	return step, nil
}

// DecodeManeuver camel-cases the step's hyphenated maneuver code, falling back
// to the configured default direction type.
func (d *Decoder) DecodeManeuver(raw RawStep) Maneuver {
	code := raw.Maneuver.Type
	if code == "" {
		code = d.defaultDirectionType
	}

	return Maneuver{Name: camelCase(code), Type: code}
}

func camelCase(code string) string {
	parts := strings.Split(code, "-")

	var b strings.Builder
	b.Grow(len(code))
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(p[size:])
	}
	return b.String()
}

// DecodePolyline decodes an encoded polyline into coordinates.
func DecodePolyline(encoded string, precision int) ([]geo.Coordinate, error) {
	points, err := polyline.Decode(encoded, precision)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPolyline, err)
	}

	coords := make([]geo.Coordinate, len(points))
	for i, p := range points {
		coords[i] = geo.Coordinate{Latitude: p.Lat, Longitude: p.Lon}
	}
	return coords, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(coords []geo.Coordinate, precision int) string {
	points := make([]polyline.Coordinate, len(coords))
	for i, c := range coords {
		points[i] = polyline.Coordinate{Lat: c.Latitude, Lon: c.Longitude}
	}
	return polyline.Encode(points, precision)
}
