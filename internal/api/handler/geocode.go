package handler

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/breatheroute/routenav/internal/api/models"
	"github.com/breatheroute/routenav/internal/api/response"
	"github.com/breatheroute/routenav/internal/geocoder"
)

// GeocodeHandler handles geocoding endpoints.
type GeocodeHandler struct{}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler() *GeocodeHandler {
	return &GeocodeHandler{}
}

// Minimize handles POST /v1/geocode:minimize - reduce a Google Geocoding
// response to its mapped address components.
func (h *GeocodeHandler) Minimize(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	results, err := geocoder.Decode(bytes.NewReader(data))
	if err != nil {
		var statusErr *geocoder.StatusError
		if errors.As(err, &statusErr) {
			response.UpstreamError(w, r, statusErr.Error())
			return
		}
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	response.JSON(w, r, http.StatusOK, models.GeocodeResponse{Results: results})
}
