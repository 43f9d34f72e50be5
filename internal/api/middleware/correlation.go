package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	identitySinkKey  contextKey = "identity_sink"
)

// maxCorrelationIDLen bounds client-supplied ids before they reach logs.
const maxCorrelationIDLen = 128

// CorrelationID reads the X-Correlation-ID header from the incoming request.
// If absent or oversized, a new UUID is generated. The value is stored on
// the request context and echoed back in the response header.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation ID stored by the middleware.
// Returns an empty string if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

func withIdentitySink(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identitySinkKey, id)
}

// Authenticated wraps the auth middleware so the request logger sees the
// caller's identity once it has been resolved.
func Authenticated(authn func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sink, ok := r.Context().Value(identitySinkKey).(*auth.Identity); ok {
				*sink = auth.FromContext(r.Context())
			}
			next.ServeHTTP(w, r)
		})
		return authn(record)
	}
}
