package geo

// arcSegments is the number of chords used to approximate an arc.
const arcSegments = 32

// ArcPolygon returns the arc of radius meters around c that sweeps clockwise
// from initialBearing to finalBearing. The result has arcSegments+1 points,
// both ends included.
func ArcPolygon(c Coordinate, initialBearing, finalBearing, radius float64) []Coordinate {
	if initialBearing > finalBearing {
		finalBearing += 360
	}
	delta := (finalBearing - initialBearing) / arcSegments

	result := make([]Coordinate, 0, arcSegments+1)
	for i := 0; i <= arcSegments; i++ {
		result = append(result, Destination(c, radius, NormalizeBearing(initialBearing+float64(i)*delta)))
	}
	return result
}

// Circle returns a closed ring approximating a circle of radius meters
// around c.
func Circle(c Coordinate, radius float64) []Coordinate {
	ring := ArcPolygon(c, 0, 360, radius)
	// Close exactly on the first vertex.
	ring[len(ring)-1] = ring[0]
	return ring
}

// CourseWedge returns a closed polygon covering the course window around
// bearing: the apex at c and an arc of radius meters from bearing-tolerance
// to bearing+tolerance.
func CourseWedge(c Coordinate, bearing, tolerance, radius float64) []Coordinate {
	arc := ArcPolygon(c, NormalizeBearing(bearing-tolerance), NormalizeBearing(bearing+tolerance), radius)

	ring := make([]Coordinate, 0, len(arc)+2)
	ring = append(ring, c)
	ring = append(ring, arc...)
	ring = append(ring, c)
	return ring
}
