// Package geocoder reduces Google Geocoding API results to the handful of
// address parts a navigation host displays.
package geocoder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/breatheroute/routenav/internal/geo"
)

// AddressComponentMapping maps the first type of a Google address component
// to its minimized key.
var AddressComponentMapping = map[string]string{
	"street_number":               "number",
	"route":                       "street",
	"postal_code":                 "zip",
	"country":                     "country",
	"locality":                    "city",
	"administrative_area_level_1": "state",
	"administrative_area_level_2": "county",
}

// Response is the raw Geocoding API document.
type Response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []Result `json:"results"`
}

// Result is a single geocoding match.
type Result struct {
	AddressComponents []AddressComponent `json:"address_components"`
	FormattedAddress  string             `json:"formatted_address"`
	Geometry          Geometry           `json:"geometry"`
	PlaceID           string             `json:"place_id,omitempty"`
	Types             []string           `json:"types,omitempty"`
}

// AddressComponent is one part of an address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Geometry holds a result's location.
type Geometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	LocationType string `json:"location_type,omitempty"`
}

// Name is the short and long form of an address part.
type Name struct {
	Short string `json:"short"`
	Long  string `json:"long"`
}

// MinimizedResult is the reduced form of a Result.
type MinimizedResult struct {
	Components map[string]Name `json:"components"`
	Address    string          `json:"address"`
	Coordinate geo.Coordinate  `json:"coordinate"`
}

// StatusError is returned for a non-OK geocoding response.
type StatusError struct {
	Status  string
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("geocoding api %s", e.Status)
	}
	return fmt.Sprintf("geocoding api %s: %s", e.Status, e.Message)
}

// Decode reads a geocoding document and returns its minimized results.
func Decode(r io.Reader) ([]MinimizedResult, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding geocoding response: %w", err)
	}
	if resp.Status != "OK" {
		return nil, &StatusError{Status: resp.Status, Message: resp.ErrorMessage}
	}
	return MinimizeResults(resp.Results), nil
}

// MinimizeResults reduces every result to its mapped components, formatted
// address and coordinate.
func MinimizeResults(results []Result) []MinimizedResult {
	minimized := make([]MinimizedResult, len(results))
	for i, r := range results {
		minimized[i] = MinimizedResult{
			Components: MinimizeAddressComponents(r.AddressComponents),
			Address:    r.FormattedAddress,
			Coordinate: geo.Coordinate{
				Latitude:  r.Geometry.Location.Lat,
				Longitude: r.Geometry.Location.Lng,
			},
		}
	}
	return minimized
}

// MinimizeAddressComponents keys components by the mapping of their first
// type. Unmapped components are dropped; a later component wins over an
// earlier one with the same key.
func MinimizeAddressComponents(components []AddressComponent) map[string]Name {
	result := make(map[string]Name)
	for _, c := range components {
		if len(c.Types) == 0 {
			continue
		}
		key, ok := AddressComponentMapping[c.Types[0]]
		if !ok {
			continue
		}
		result[key] = Name{Short: c.ShortName, Long: c.LongName}
	}
	return result
}
