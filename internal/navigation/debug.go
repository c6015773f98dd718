package navigation

import (
	"fmt"
	"image/color"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-kml"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/traps"
)

// ShapeKind names a debug shape.
type ShapeKind string

// Debug shape kinds, one set per step.
const (
	ShapeOuter  ShapeKind = "outer"
	ShapeInner  ShapeKind = "inner"
	ShapeCenter ShapeKind = "center"
	ShapeCourse ShapeKind = "course"
)

var shapeColors = map[ShapeKind]color.RGBA{
	ShapeOuter:  {R: 0x00, G: 0x00, B: 0xff, A: 0xff},
	ShapeInner:  {R: 0xff, G: 0x00, B: 0x00, A: 0xff},
	ShapeCenter: {R: 0x00, G: 0x80, B: 0x00, A: 0xff},
	ShapeCourse: {R: 0x00, G: 0x00, B: 0xff, A: 0xff},
}

// Shape is a closed ring drawn around a step to visualise its trap.
type Shape struct {
	StepIndex int              `json:"step_index"`
	Kind      ShapeKind        `json:"kind"`
	Radius    float64          `json:"radius"`
	Ring      []geo.Coordinate `json:"ring"`
}

// DebugShapes returns the trap radii and the course window of every step of
// route, as the navigator would watch them with opts.
func DebugShapes(route directions.Route, opts traps.Options) []Shape {
	opts = opts.WithDefaults()
	distance := opts.Distance
	if distance == 0 {
		distance = DefaultRouteStepDistance
	}

	shapes := make([]Shape, 0, 4*len(route.Steps))
	for i := range route.Steps {
		step := trapStep(&route, i)

		for _, c := range []struct {
			kind   ShapeKind
			radius float64
		}{
			{kind: ShapeOuter, radius: distance},
			{kind: ShapeInner, radius: distance * opts.InnerTolerance},
			{kind: ShapeCenter, radius: distance * opts.CenterTolerance},
		} {
			shapes = append(shapes, Shape{
				StepIndex: i,
				Kind:      c.kind,
				Radius:    c.radius,
				Ring:      geo.Circle(step.Start, c.radius),
			})
		}

		shapes = append(shapes, Shape{
			StepIndex: i,
			Kind:      ShapeCourse,
			Radius:    distance,
			Ring:      geo.CourseWedge(step.Start, step.Bearing, opts.CourseTolerance, distance),
		})
	}

	return shapes
}

// DebugGeoJSON returns the shapes as a feature collection of polygons plus
// the route line.
func DebugGeoJSON(route directions.Route, shapes []Shape) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	line := make(orb.LineString, 0)
	for _, c := range route.Coordinates() {
		line = append(line, c.Point())
	}
	if len(line) > 1 {
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		f.Properties["title"] = route.Title
		fc.Append(f)
	}

	for _, s := range shapes {
		ring := make(orb.Ring, len(s.Ring))
		for i, c := range s.Ring {
			ring[i] = c.Point()
		}

		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["kind"] = string(s.Kind)
		f.Properties["step_index"] = s.StepIndex
		f.Properties["radius"] = s.Radius
		f.Properties["stroke"] = hexColor(shapeColors[s.Kind])
		fc.Append(f)
	}

	return fc
}

// WriteDebugKML writes the shapes and the route line as a KML document.
func WriteDebugKML(w io.Writer, route directions.Route, shapes []Shape) error {
	children := make([]kml.Element, 0, len(shapes)+6)
	children = append(children, kml.Name(route.Title))

	styles := make(map[ShapeKind]string, len(shapeColors))
	for _, kind := range []ShapeKind{ShapeOuter, ShapeInner, ShapeCenter, ShapeCourse} {
		style := kml.SharedStyle(string(kind),
			kml.LineStyle(kml.Color(shapeColors[kind]), kml.Width(2)),
			kml.PolyStyle(kml.Fill(false)),
		)
		styles[kind] = style.URL()
		children = append(children, style)
	}

	if coords := route.Coordinates(); len(coords) > 1 {
		children = append(children, kml.Placemark(
			kml.Name("route"),
			kml.LineString(kml.Coordinates(kmlCoordinates(coords)...)),
		))
	}

	for _, s := range shapes {
		children = append(children, kml.Placemark(
			kml.Name(fmt.Sprintf("step %d %s", s.StepIndex, s.Kind)),
			kml.StyleURL(styles[s.Kind]),
			kml.Polygon(
				kml.OuterBoundaryIs(
					kml.LinearRing(kml.Coordinates(kmlCoordinates(s.Ring)...)),
				),
			),
		))
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func kmlCoordinates(coords []geo.Coordinate) []kml.Coordinate {
	result := make([]kml.Coordinate, len(coords))
	for i, c := range coords {
		result[i] = kml.Coordinate{Lon: c.Longitude, Lat: c.Latitude}
	}
	return result
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
