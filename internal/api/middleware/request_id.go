// Package middleware provides the HTTP middleware stack of the routenav API:
// request correlation, tracing, metrics, access logging, recovery, security
// headers, content negotiation and rate limiting.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// maxRequestIDLength bounds client supplied request IDs.
const maxRequestIDLength = 128

type requestIDKey struct{}

// RequestID tags every request with an ID. A client's X-Request-Id is kept
// when present and at most maxRequestIDLength bytes; otherwise a "req_" ID is
// generated. The ID is echoed in the response header, becomes the traceId of
// problem responses and the request.id span attribute, and is logged with the
// session ID by the access logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > maxRequestIDLength {
			id = "req_" + uuid.New().String()[:22]
		}

		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// GetRequestID returns the ID set by RequestID, or "" outside it.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
