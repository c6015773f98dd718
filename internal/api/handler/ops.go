// Package handler provides HTTP handlers for the routenav API.
package handler

import (
	"net/http"
	"time"

	"github.com/breatheroute/routenav/internal/api/models"
	"github.com/breatheroute/routenav/internal/api/response"
	"github.com/breatheroute/routenav/internal/navigation"
	"github.com/breatheroute/routenav/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	store     *navigation.Store
}

// NewOpsHandler creates a new OpsHandler. registry and store may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, store *navigation.Store) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		store:     store,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. The service is
// not ready while any event backend has an open circuit.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	for _, b := range h.backends() {
		if b.Status == models.HealthStatusFail {
			response.ServiceUnavailable(w, r, "event backend "+b.Name+" is unavailable")
			return
		}
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - session count and backend status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	backends := h.backends()

	status := models.SystemStatus{
		Status:   models.HealthStatusOK,
		Time:     models.Timestamp(time.Now()),
		Backends: backends,
	}
	if h.store != nil {
		status.Sessions = h.store.Count()
	}
	for _, b := range backends {
		switch {
		case b.Status == models.HealthStatusFail:
			status.Status = models.HealthStatusFail
		case b.Status == models.HealthStatusDegraded && status.Status == models.HealthStatusOK:
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) backends() []models.BackendStatus {
	if h.registry == nil {
		return []models.BackendStatus{}
	}

	all := h.registry.GetAllHealth()
	result := make([]models.BackendStatus, 0, len(all))
	for _, health := range all {
		b := models.BackendStatus{
			Name:          health.Name,
			Status:        models.HealthStatusOK,
			CircuitState:  health.CircuitState.String(),
			LastSuccessAt: timestampPtr(health.LastSuccessAt),
			LastFailureAt: timestampPtr(health.LastFailureAt),
		}
		switch {
		case health.IsUnhealthy():
			b.Status = models.HealthStatusFail
		case health.IsDegraded():
			b.Status = models.HealthStatusDegraded
		}
		if health.LastError != "" {
			msg := health.LastError
			b.Message = &msg
		}
		result = append(result, b)
	}
	return result
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	return models.TimestampPtr(*t)
}
