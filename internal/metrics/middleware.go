package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// HTTPMiddleware records request count, latency and in-flight requests.
// Requests are labelled by route pattern so account IDs and symbols do not
// become label values; unrouted requests are labelled "unmatched".
func HTTPMiddleware(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reg.InFlightInc()
			defer reg.InFlightDec()

			start := time.Now()
			rw := record(w)
			next.ServeHTTP(rw, r)

			reg.RecordRequest(r.Method, routeLabel(r), rw.status, time.Since(start).Seconds())
		})
	}
}

// routeLabel returns the matched chi pattern, read after the handler ran.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return "unmatched"
}

// LoggingMiddleware logs one line per request and tags the response with
// an X-Request-ID header, reusing the caller's ID when present.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			start := time.Now()
			rw := record(w)
			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Duration("took", time.Since(start)),
				zap.String("client_ip", clientIP(r)),
			}
			switch {
			case rw.status >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case rw.status >= http.StatusBadRequest:
				logger.Warn("http request", fields...)
			default:
				logger.Debug("http request", fields...)
			}
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
