package directions_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/routenav/internal/directions"
	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/pkg/polyline"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/amsterdam.json")
	require.NoError(t, err)
	return data
}

func TestDecoder_DecodeJSON(t *testing.T) {
	d := directions.NewDecoder(directions.DecoderConfig{})

	routes, err := d.DecodeJSON(loadFixture(t))
	require.NoError(t, err)

	// The alternative without legs is filtered out.
	require.Len(t, routes, 1)
	route := routes[0]

	assert.Equal(t, "Damstraat", route.Title)
	require.Len(t, route.Steps, 4)
	assert.Len(t, route.Polylines, len(route.Steps))

	t.Run("markers", func(t *testing.T) {
		require.Len(t, route.Markers, 2)
		assert.Equal(t, directions.MarkerOrigin, route.Markers[0].Type)
		assert.Equal(t, geo.Coordinate{Latitude: 52.3702, Longitude: 4.8952}, route.Markers[0].Coordinate)
		assert.Equal(t, directions.MarkerDestination, route.Markers[1].Type)
		assert.Equal(t, geo.Coordinate{Latitude: 52.372, Longitude: 4.903}, route.Markers[1].Coordinate)
	})

	t.Run("steps", func(t *testing.T) {
		first := route.Steps[0]
		assert.Equal(t, directions.Maneuver{Name: "straight", Type: "straight"}, first.Maneuver)
		assert.InDelta(t, 90, first.Bearing, 0.01)
		assert.Equal(t, "DRIVING", first.Mode)
		assert.Equal(t, 299.0, first.Distance.Value)
		assert.Equal(t, "0.3 km", first.Distance.Text)
		assert.Equal(t, []geo.Coordinate{
			{Latitude: 52.3702, Longitude: 4.8952},
			{Latitude: 52.3702, Longitude: 4.8974},
			{Latitude: 52.3702, Longitude: 4.8996},
		}, first.Polyline.Coordinates)
		require.NotNil(t, first.End)
		assert.Equal(t, geo.Coordinate{Latitude: 52.3702, Longitude: 4.8996}, *first.End)
		assert.False(t, first.Final)

		second := route.Steps[1]
		assert.Equal(t, directions.Maneuver{Name: "turnLeft", Type: "turn-left"}, second.Maneuver)
		// Due north towards the next step's start.
		assert.InDelta(t, 0, second.Bearing, 1e-9)
		require.NotNil(t, second.Compass)
		assert.Equal(t, geo.Compass{Detail: geo.North, Simple: geo.North}, *second.Compass)

		third := route.Steps[2]
		assert.Equal(t, directions.Maneuver{Name: "turnRight", Type: "turn-right"}, third.Maneuver)
		assert.InDelta(t, 90, third.Bearing, 0.01)
	})

	t.Run("final step", func(t *testing.T) {
		last := route.Steps[len(route.Steps)-1]
		third := route.Steps[2]

		assert.True(t, last.Final)
		assert.Equal(t, directions.FlagManeuver, last.Maneuver.Type)
		assert.Equal(t, directions.FlagManeuver, last.Maneuver.Name)
		assert.Empty(t, last.Polyline.Coordinates)
		assert.NotNil(t, last.Polyline.Coordinates)
		assert.Nil(t, last.End)
		assert.Equal(t, third.Start, last.Start)
		assert.Equal(t, third.Bearing, last.Bearing)
		assert.Equal(t, third.Compass, last.Compass)
		assert.Equal(t, third.Distance, last.Distance)
		assert.Equal(t, "Nieuwmarkt 4, 1012 CR Amsterdam, Netherlands", last.Instructions)
	})

	t.Run("route summary", func(t *testing.T) {
		assert.Equal(t, route.Steps[0].Bearing, route.InitialBearing)
		assert.Equal(t, 730.0, route.Distance.Value)
		assert.Equal(t, 180.0, route.Duration.Value)
		assert.Equal(t, "Dam, 1012 JS Amsterdam, Netherlands", route.Origin.Address)
		assert.Equal(t, directions.LatLng{Lat: 52.372, Lng: 4.903}, route.Destination.LatLng)

		ne := route.Bounds.NorthEast
		sw := route.Bounds.SouthWest
		assert.Equal(t, [2]geo.Coordinate{ne, sw}, route.Bounds.BoundingBox)
		assert.InDelta(t, geo.Distance(ne, route.Bounds.Center), geo.Distance(sw, route.Bounds.Center), 0.01)
		assert.InDelta(t, 52.3711, route.Bounds.Center.Latitude, 1e-4)
		assert.InDelta(t, 4.8991, route.Bounds.Center.Longitude, 1e-4)
	})

	t.Run("flattened coordinates", func(t *testing.T) {
		assert.Len(t, route.Coordinates(), 9)
	})
}

func TestDecoder_Decode_Reader(t *testing.T) {
	d := directions.NewDecoder(directions.DecoderConfig{})

	f, err := os.Open("testdata/amsterdam.json")
	require.NoError(t, err)
	defer f.Close()

	routes, err := d.Decode(f)
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestDecoder_Resolve_Errors(t *testing.T) {
	d := directions.NewDecoder(directions.DecoderConfig{})

	t.Run("non-OK status with message", func(t *testing.T) {
		_, err := d.DecodeJSON([]byte(`{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid.","routes":[]}`))

		var apiErr *directions.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "REQUEST_DENIED", apiErr.Status)
		assert.Equal(t, "The provided API key is invalid.", apiErr.Message)
	})

	t.Run("non-OK status without message", func(t *testing.T) {
		_, err := d.DecodeJSON([]byte(`{"status":"ZERO_RESULTS","routes":[]}`))

		var apiErr *directions.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Unknown error", apiErr.Message)
	})

	t.Run("OK without routes", func(t *testing.T) {
		_, err := d.DecodeJSON([]byte(`{"status":"OK","routes":[]}`))
		assert.ErrorIs(t, err, directions.ErrNoRouteFound)
	})

	t.Run("OK with only legless routes", func(t *testing.T) {
		_, err := d.DecodeJSON([]byte(`{"status":"OK","routes":[{"summary":"x","legs":[]}]}`))
		assert.ErrorIs(t, err, directions.ErrNoRouteFound)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := d.DecodeJSON([]byte(`{"status":`))
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "decoding directions response"))
	})

	t.Run("malformed polyline", func(t *testing.T) {
		_, err := d.DecodeJSON([]byte(`{"status":"OK","routes":[{"legs":[{"steps":[
			{"start_location":{"lat":1,"lng":1},"end_location":{"lat":1,"lng":2},"polyline":{"points":"_p~iF~ps|"}}
		]}]}]}`))
		assert.ErrorIs(t, err, directions.ErrMalformedPolyline)
		assert.ErrorIs(t, err, polyline.ErrMalformed)
	})
}

func TestDecoder_Parse(t *testing.T) {
	d := directions.NewDecoder(directions.DecoderConfig{})

	t.Run("zero routes", func(t *testing.T) {
		routes, err := d.Parse(&directions.Response{Status: "OK"})
		require.NoError(t, err)
		assert.NotNil(t, routes)
		assert.Empty(t, routes)
	})

	t.Run("only the first leg is used", func(t *testing.T) {
		resp := &directions.Response{
			Routes: []directions.RawRoute{{
				Legs: []directions.RawLeg{
					{
						EndAddress: "first leg end",
						Steps: []directions.RawStep{{
							StartLocation: directions.LatLng{Lat: 0, Lng: 0},
							EndLocation:   directions.LatLng{Lat: 0, Lng: 1},
						}},
					},
					{
						EndAddress: "second leg end",
						Steps: []directions.RawStep{
							{StartLocation: directions.LatLng{Lat: 0, Lng: 1}, EndLocation: directions.LatLng{Lat: 1, Lng: 1}},
							{StartLocation: directions.LatLng{Lat: 1, Lng: 1}, EndLocation: directions.LatLng{Lat: 2, Lng: 1}},
						},
					},
				},
			}},
		}

		routes, err := d.Parse(resp)
		require.NoError(t, err)
		require.Len(t, routes, 1)
		assert.Len(t, routes[0].Steps, 2)
		assert.Equal(t, "first leg end", routes[0].Steps[1].Instructions)
	})

	t.Run("leg without steps", func(t *testing.T) {
		resp := &directions.Response{
			Routes: []directions.RawRoute{{
				Legs: []directions.RawLeg{{
					EndAddress:    "here",
					StartLocation: directions.LatLng{Lat: 0, Lng: 0},
					EndLocation:   directions.LatLng{Lat: 0, Lng: 1},
				}},
			}},
		}

		routes, err := d.Parse(resp)
		require.NoError(t, err)
		require.Len(t, routes, 1)
		require.Len(t, routes[0].Steps, 1)
		assert.True(t, routes[0].Steps[0].Final)
		assert.Equal(t, 0.0, routes[0].InitialBearing)
		assert.InDelta(t, 90, routes[0].Steps[0].Bearing, 1e-9)
	})
}

func TestDecoder_FinalStepAlwaysFlag(t *testing.T) {
	d := directions.NewDecoder(directions.DecoderConfig{})

	for n := 0; n < 6; n++ {
		steps := make([]directions.RawStep, n)
		for i := range steps {
			steps[i] = directions.RawStep{
				StartLocation: directions.LatLng{Lat: float64(i) * 0.001, Lng: 4},
				EndLocation:   directions.LatLng{Lat: float64(i+1) * 0.001, Lng: 4},
				Polyline:      directions.RawPolyline{Points: "_p~iF~ps|U"},
			}
		}

		routes, err := d.Parse(&directions.Response{Routes: []directions.RawRoute{{Legs: []directions.RawLeg{{Steps: steps}}}}})
		require.NoError(t, err)
		require.Len(t, routes, 1)

		r := routes[0]
		require.Len(t, r.Steps, n+1)
		assert.Len(t, r.Polylines, len(r.Steps))
		last := r.Steps[len(r.Steps)-1]
		assert.Equal(t, "flag", last.Maneuver.Type, "steps=%d", n)
		assert.Empty(t, last.Polyline.Coordinates, "steps=%d", n)
	}
}

func TestDecoder_DecodeManeuver(t *testing.T) {
	tests := []struct {
		code     string
		expected directions.Maneuver
	}{
		{code: "turn-right", expected: directions.Maneuver{Name: "turnRight", Type: "turn-right"}},
		{code: "turn-slight-left", expected: directions.Maneuver{Name: "turnSlightLeft", Type: "turn-slight-left"}},
		{code: "roundabout-left", expected: directions.Maneuver{Name: "roundaboutLeft", Type: "roundabout-left"}},
		{code: "merge", expected: directions.Maneuver{Name: "merge", Type: "merge"}},
		{code: "", expected: directions.Maneuver{Name: "straight", Type: "straight"}},
	}

	d := directions.NewDecoder(directions.DecoderConfig{})
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			raw := directions.RawStep{Maneuver: directions.RawManeuver{Type: tt.code}}
			assert.Equal(t, tt.expected, d.DecodeManeuver(raw))
		})
	}

	custom := directions.NewDecoder(directions.DecoderConfig{DefaultDirectionType: "keep-left"})
	assert.Equal(t, directions.Maneuver{Name: "keepLeft", Type: "keep-left"}, custom.DecodeManeuver(directions.RawStep{}))
}

func TestDecoder_ParseStep_BearingLooksAhead(t *testing.T) {
	d := directions.NewDecoder(directions.DecoderConfig{})

	step := directions.RawStep{
		StartLocation: directions.LatLng{Lat: 0, Lng: 0},
		EndLocation:   directions.LatLng{Lat: 0, Lng: 1},
	}
	next := directions.RawStep{
		StartLocation: directions.LatLng{Lat: 1, Lng: 0},
	}

	alone, err := d.ParseStep(step, nil)
	require.NoError(t, err)
	assert.InDelta(t, 90, alone.Bearing, 1e-9)

	ahead, err := d.ParseStep(step, &next)
	require.NoError(t, err)
	assert.InDelta(t, 0, ahead.Bearing, 1e-9)
	assert.Equal(t, geo.Coordinate{Latitude: 0, Longitude: 1}, *ahead.End)
}

func TestPolylineHelpers(t *testing.T) {
	coords, err := directions.DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@", 5)
	require.NoError(t, err)
	require.Len(t, coords, 3)
	assert.Equal(t, geo.Coordinate{Latitude: 38.5, Longitude: -120.2}, coords[0])

	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", directions.EncodePolyline(coords, 5))
}
