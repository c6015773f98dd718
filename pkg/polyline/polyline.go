// Package polyline provides encoding and decoding utilities for Google's polyline algorithm.
// The polyline algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	gopolyline "github.com/twpayne/go-polyline"
)

// DefaultPrecision is the number of decimal places used by Google Directions polylines.
const DefaultPrecision = 5

// ErrMalformed is returned when an encoded polyline ends in the middle of a value
// or carries a latitude without its longitude.
var ErrMalformed = errors.New("malformed polyline")

// Coordinate represents a geographic point with latitude and longitude.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Decode decodes a polyline-encoded string into a slice of coordinates.
// A precision of zero or less selects DefaultPrecision.
//
// Deltas are accumulated as integers and scaled once per point, so decoding
// reproduces the reference vectors exactly.
func Decode(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return []Coordinate{}, nil
	}

	factor := math.Pow10(normalizePrecision(precision))

	coords := make([]Coordinate, 0, len(encoded)/4)
	index := 0
	lat := 0
	lon := 0

	for index < len(encoded) {
		latDelta, newIndex, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = newIndex
		lat += latDelta

		// A lone latitude is as broken as a truncated byte.
		if index >= len(encoded) {
			return nil, ErrMalformed
		}

		lonDelta, newIndex, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = newIndex
		lon += lonDelta

		coords = append(coords, Coordinate{
			Lat: float64(lat) / factor,
			Lon: float64(lon) / factor,
		})
	}

	return coords, nil
}

// decodeValue decodes a single value from the polyline at the given index.
// Returns the decoded delta value and the new index position.
func decodeValue(encoded string, index int) (int, int, error) {
	shift := 0
	result := 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrMalformed
		}

		b := int(encoded[index]) - 63
		index++
		if b < 0 || b > 0x3f {
			return 0, index, ErrMalformed
		}

		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
		if shift > 60 {
			return 0, index, ErrMalformed
		}
	}

	// Apply two's complement for negative values
	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes a slice of coordinates into a polyline-encoded string.
func Encode(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	codec := gopolyline.Codec{Dim: 2, Scale: math.Pow10(normalizePrecision(precision))}

	values := make([][]float64, len(coords))
	for i, c := range coords {
		values[i] = []float64{c.Lat, c.Lon}
	}

	return string(codec.EncodeCoords(nil, values))
}

// Length calculates the total length of a polyline in meters using the haversine formula.
func Length(coords []Coordinate) float64 {
	if len(coords) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(coords); i++ {
		total += haversineDistance(coords[i-1], coords[i])
	}
	return total
}

func normalizePrecision(precision int) int {
	if precision <= 0 {
		return DefaultPrecision
	}
	return precision
}

// haversineDistance calculates the distance between two coordinates in meters.
const earthRadiusMeters = 6371000

func haversineDistance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
