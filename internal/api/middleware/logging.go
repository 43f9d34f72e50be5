package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/innovativedesigner773/best-ecormmerce-sub001/internal/auth"
)

// statusRecorder captures the status code written by the handler so it can
// be logged after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger emits one structured line per completed request. Server
// errors log at error level, client errors at warn. /health and /metrics
// are logged at debug so probes and scrapes do not flood the output.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// The auth middleware runs deeper in the chain; capture the
			// identity it stores by handing it a pointer on the way down.
			var id auth.Identity
			next.ServeHTTP(rec, r.WithContext(withIdentitySink(r.Context(), &id)))

			level := zapcore.InfoLevel
			switch {
			case rec.status >= 500:
				level = zapcore.ErrorLevel
			case rec.status >= 400:
				level = zapcore.WarnLevel
			case r.URL.Path == "/health" || r.URL.Path == "/ready" || r.URL.Path == "/metrics":
				level = zapcore.DebugLevel
			}

			if ce := logger.Check(level, "http request"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", rec.status),
					zap.Duration("latency", time.Since(start)),
					zap.String("correlation_id", GetCorrelationID(r.Context())),
					zap.String("subject", id.Subject),
					zap.String("remote_addr", r.RemoteAddr),
				)
			}
		})
	}
}
