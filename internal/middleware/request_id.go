package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// RequestIDKey is the context key for request ids.
const RequestIDKey ContextKey = "request_id"

// RequestIDHeader is the header carrying the request id. Clients may
// append "/<client id>" to the value they send; the suffix is preserved
// end to end so server logs can be tied back to a client instance.
const RequestIDHeader = "X-Request-Id"

// RequestID tags each request with a unique id. An id supplied by the
// client is kept as-is, otherwise a fresh UUID is generated. The id is
// stored on the context and echoed on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			w.Header().Set(RequestIDHeader, id)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request id from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// SplitClientID splits a request id into its id and client-id parts.
func SplitClientID(id string) (string, string) {
	base, client, _ := strings.Cut(id, "/")
	return base, client
}
