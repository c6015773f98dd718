package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/api/models"
	"github.com/breatheroute/routenav/internal/api/response"
	"github.com/breatheroute/routenav/internal/directions"
)

// DirectionsHandler handles route decoding endpoints.
type DirectionsHandler struct {
	decoder *directions.Decoder
	logger  zerolog.Logger
}

// NewDirectionsHandler creates a new DirectionsHandler.
func NewDirectionsHandler(decoder *directions.Decoder, logger zerolog.Logger) *DirectionsHandler {
	return &DirectionsHandler{decoder: decoder, logger: logger}
}

// Decode handles POST /v1/directions:decode - decode a Google Directions
// response into routes.
func (h *DirectionsHandler) Decode(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}

	routes, err := h.decoder.DecodeJSON(data)
	if err != nil {
		writeDecodeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.DecodeResponse{Routes: routes})
}

// writeDecodeError maps decoder failures onto problem responses. Errors
// reported by the directions API itself are upstream errors; everything
// else is a malformed payload.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *directions.APIError
	switch {
	case errors.As(err, &apiErr):
		response.UpstreamError(w, r, apiErr.Error())
	case errors.Is(err, directions.ErrNoRouteFound):
		response.UpstreamError(w, r, err.Error())
	default:
		response.BadRequest(w, r, err.Error(), nil)
	}
}
