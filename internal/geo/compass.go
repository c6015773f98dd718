package geo

import "math"

// Direction is a compass label.
type Direction string

// Compass directions.
const (
	North     Direction = "north"
	NorthEast Direction = "northeast"
	East      Direction = "east"
	SouthEast Direction = "southeast"
	South     Direction = "south"
	SouthWest Direction = "southwest"
	West      Direction = "west"
	NorthWest Direction = "northwest"
)

var (
	detailDirections = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}
	simpleDirections = []Direction{North, East, South, West}
)

// Compass labels a bearing with one of eight octants and one of four cardinals.
type Compass struct {
	Detail Direction `json:"detail"`
	Simple Direction `json:"simple"`
}

// DecodeCompass buckets bearing into equal-width sectors. The bucket index is
// ceil(bearing/width)-1 clamped to the table, so 0 and the first sector share
// north. A negative bearing has no compass.
func DecodeCompass(bearing float64) (Compass, bool) {
	if bearing < 0 || math.IsNaN(bearing) {
		return Compass{}, false
	}

	return Compass{
		Detail: bucket(bearing, detailDirections),
		Simple: bucket(bearing, simpleDirections),
	}, true
}

func bucket(bearing float64, table []Direction) Direction {
	idx := int(math.Ceil(bearing/(360/float64(len(table))))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(table)-1 {
		idx = len(table) - 1
	}
	return table[idx]
}
