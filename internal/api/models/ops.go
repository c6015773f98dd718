package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus represents the status of the service and its event backends.
type SystemStatus struct {
	Status   HealthStatus    `json:"status"`
	Time     Timestamp       `json:"time"`
	Sessions int             `json:"sessions"`
	Backends []BackendStatus `json:"backends"`
}

// BackendStatus represents the status of an event backend.
type BackendStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
