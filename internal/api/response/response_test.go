package response_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/breatheroute/routenav/internal/api/middleware"
	"github.com/breatheroute/routenav/internal/api/models"
	"github.com/breatheroute/routenav/internal/api/response"
)

// requestWithContext creates an HTTP request that has been processed by the RequestID middleware
// to populate the context with a request ID.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()

	// Process through RequestID middleware to set up context
	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(rec, req)

	// Reset the recorder for actual test use
	rec = httptest.NewRecorder()

	return processedReq, rec
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/ops/health")

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	requestID := rec.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Error("expected X-Request-Id header to be set")
	}
	if len(requestID) < 10 {
		t.Errorf("expected request ID to be a valid ID, got %q", requestID)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", contentType)
	}
}

func TestJSON_WithoutRequestID(t *testing.T) {
	// Create request without middleware (no request ID in context)
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// Should not have X-Request-Id if context doesn't have it
	requestID := rec.Header().Get("X-Request-Id")
	if requestID != "" {
		t.Errorf("expected no X-Request-Id header when not in context, got %q", requestID)
	}
}

func TestCreated_IncludesRequestIDAndLocation(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/sessions")

	response.Created(rec, req, "/v1/sessions/3f2c", map[string]string{"session_id": "3f2c"})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}

	requestID := rec.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Error("expected X-Request-Id header to be set")
	}

	location := rec.Header().Get("Location")
	if location != "/v1/sessions/3f2c" {
		t.Errorf("expected Location /v1/sessions/3f2c, got %q", location)
	}
}

func TestNoContent_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodDelete, "/v1/sessions/abc")

	response.NoContent(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}

	requestID := rec.Header().Get("X-Request-Id")
	if requestID == "" {
		t.Error("expected X-Request-Id header to be set")
	}

	// 204 should have no body
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for 204, got %q", rec.Body.String())
	}
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		write    func(http.ResponseWriter, *http.Request)
		wantCode int
		wantType string
	}{
		{
			name:     "not found",
			method:   http.MethodGet,
			path:     "/v1/sessions/missing",
			write:    func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "session not found") },
			wantCode: http.StatusNotFound,
			wantType: models.ProblemTypeNotFound,
		},
		{
			name:     "method not allowed",
			method:   http.MethodPut,
			path:     "/v1/sessions",
			write:    response.MethodNotAllowed,
			wantCode: http.StatusMethodNotAllowed,
			wantType: models.ProblemTypeMethodNotAllowed,
		},
		{
			name:     "conflict",
			method:   http.MethodPost,
			path:     "/v1/sessions/abc/start",
			write:    func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "session has no route") },
			wantCode: http.StatusConflict,
			wantType: models.ProblemTypeConflict,
		},
		{
			name:     "upstream",
			method:   http.MethodPost,
			path:     "/v1/directions:decode",
			write:    func(w http.ResponseWriter, r *http.Request) { response.UpstreamError(w, r, "directions api NOT_FOUND") },
			wantCode: http.StatusUnprocessableEntity,
			wantType: models.ProblemTypeUpstream,
		},
		{
			name:     "too many requests",
			method:   http.MethodPost,
			path:     "/v1/sessions/abc/positions",
			write:    func(w http.ResponseWriter, r *http.Request) { response.TooManyRequests(w, r, "rate limit exceeded") },
			wantCode: http.StatusTooManyRequests,
			wantType: models.ProblemTypeTooManyRequests,
		},
		{
			name:     "internal",
			method:   http.MethodPost,
			path:     "/v1/sessions/abc/simulate",
			write:    func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "something went wrong") },
			wantCode: http.StatusInternalServerError,
			wantType: models.ProblemTypeInternal,
		},
		{
			name:     "unavailable",
			method:   http.MethodGet,
			path:     "/v1/ops/ready",
			write:    func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "event backend down") },
			wantCode: http.StatusServiceUnavailable,
			wantType: models.ProblemTypeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, tt.method, tt.path)

			tt.write(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("expected problem content type, got %q", ct)
			}

			var problem models.Problem
			if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
				t.Fatalf("failed to decode Problem response: %v", err)
			}
			if problem.Type != tt.wantType {
				t.Errorf("expected type %q, got %q", tt.wantType, problem.Type)
			}
			if problem.Status != tt.wantCode {
				t.Errorf("expected problem status %d, got %d", tt.wantCode, problem.Status)
			}
			if problem.Instance != tt.path {
				t.Errorf("expected instance %q, got %q", tt.path, problem.Instance)
			}
			if problem.TraceID == "" || problem.TraceID != rec.Header().Get("X-Request-Id") {
				t.Errorf("expected traceId to match X-Request-Id, got %q", problem.TraceID)
			}
		})
	}
}

func TestBadRequest_IncludesTraceID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/sessions")

	fieldErrors := []models.FieldError{
		{Field: "routeIndex", Message: "is required"},
	}
	response.BadRequest(rec, req, "request validation failed", fieldErrors)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	var problem models.Problem
	if err := json.NewDecoder(rec.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode Problem response: %v", err)
	}

	if problem.TraceID == "" {
		t.Error("expected traceId to be set in Problem response")
	}
	if problem.Instance != "/v1/sessions" {
		t.Errorf("expected instance /v1/test, got %q", problem.Instance)
	}
}

func TestJSON_NilData(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/sessions/abc/events")

	response.JSON(rec, req, http.StatusOK, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// Body should be empty when data is nil
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}
}

func TestRequestIDPropagation(t *testing.T) {
	// Test that incoming X-Request-Id header is preserved
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", http.NoBody)
	req.Header.Set("X-Request-Id", "client-request-123")
	rec := httptest.NewRecorder()

	// Process through RequestID middleware
	var processedReq *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processedReq = r
	}))
	handler.ServeHTTP(rec, req)

	// Verify the client's request ID was preserved in context
	requestID := middleware.GetRequestID(processedReq.Context())
	if requestID != "client-request-123" {
		t.Errorf("expected client request ID to be preserved, got %q", requestID)
	}

	// Now use the response functions with the processed request
	rec = httptest.NewRecorder()
	response.JSON(rec, processedReq, http.StatusOK, map[string]string{"status": "ok"})

	// Verify the response contains the client's request ID
	respRequestID := rec.Header().Get("X-Request-Id")
	if respRequestID != "client-request-123" {
		t.Errorf("expected response X-Request-Id to match client's, got %q", respRequestID)
	}
}

// Verify context.Background() returns empty request ID.
func TestGetRequestID_EmptyContext(t *testing.T) {
	requestID := middleware.GetRequestID(context.Background())
	if requestID != "" {
		t.Errorf("expected empty request ID for background context, got %q", requestID)
	}
}

func TestStream_WritesBody(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/sessions/abc/debug.kml")

	response.Stream(rec, req, "application/vnd.google-earth.kml+xml", func(w io.Writer) error {
		_, err := io.WriteString(w, "<kml/>")
		return err
	})

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.google-earth.kml+xml" {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header to be set")
	}
	if body := rec.Body.String(); body != "<kml/>" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestStream_EncoderFailure(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/v1/sessions/abc/debug.kml")

	response.Stream(rec, req, "application/vnd.google-earth.kml+xml", func(w io.Writer) error {
		_, _ = io.WriteString(w, "<kml")
		return errors.New("broken")
	})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "<kml") {
		t.Error("partial body should not be written")
	}
}
