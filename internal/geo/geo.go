// Package geo holds the geometry vocabulary shared by the route decoder, the
// trap engine and the simulator: coordinates, positions, great-circle bearing,
// haversine distance and destination-point projection.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Coordinate is a point in decimal degrees. Values are taken as given; callers
// supply valid ranges.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point converts the coordinate into an orb point (longitude first).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// FromPoint converts an orb point back into a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Latitude: p.Lat(), Longitude: p.Lon()}
}

// Position is a single fix from a location provider or the simulator.
type Position struct {
	Coordinate Coordinate `json:"coordinate"`
	Heading    float64    `json:"heading"`
	Altitude   *float64   `json:"altitude,omitempty"`
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	return orbgeo.DistanceHaversine(a.Point(), b.Point())
}

// Bearing returns the great-circle initial bearing from one coordinate to
// another, normalized to [0, 360).
func Bearing(from, to Coordinate) float64 {
	return NormalizeBearing(orbgeo.Bearing(from.Point(), to.Point()))
}

// NormalizeBearing folds any angle in degrees into [0, 360).
func NormalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	// -0 and values that round up to 360 both land on 0.
	if b >= 360 || b == 0 {
		return 0
	}
	return b
}

// Destination projects a point distance meters away from c along bearing.
func Destination(c Coordinate, distance, bearing float64) Coordinate {
	return FromPoint(orbgeo.PointAtBearingAndDistance(c.Point(), bearing, distance))
}

// Center returns the great-circle midpoint between a and b.
func Center(a, b Coordinate) Coordinate {
	return FromPoint(orbgeo.Midpoint(a.Point(), b.Point()))
}

// WithinRadius reports whether point lies strictly closer than radius meters
// to center.
func WithinRadius(point, center Coordinate, radius float64) bool {
	return Distance(point, center) < radius
}

// AngleBetween returns the smallest angle between two bearings, in [0, 180].
func AngleBetween(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// IsWithinCourse reports whether heading falls inside the open window
// (bearing-tolerance, bearing+tolerance), treated as circular over 0-360.
// Windows that straddle north on either side are handled.
func IsWithinCourse(bearing, heading, tolerance float64) bool {
	if tolerance <= 0 {
		return false
	}
	if tolerance >= 180 {
		return true
	}
	return AngleBetween(bearing, heading) < tolerance
}
