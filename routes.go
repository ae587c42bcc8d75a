package oauth

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/security"
)

// Route paths.
const (
	PathAuthorize    = "/oauth/authorize"
	PathToken        = "/oauth/token"
	PathVerifyMobile = "/oauth/verify-mobile"
	PathHealth       = "/health"
	PathMetrics      = "/metrics"
)

// Routes returns the complete HTTP surface:
//
//	GET|POST /oauth/authorize
//	POST     /oauth/token
//	POST     /oauth/verify-mobile
//	GET      /health
//	GET      /metrics (when the Prometheus exporter is configured)
//	OPTIONS  any path
//
// Every response carries the CORS headers and an X-Request-ID. Unknown
// paths get 404 not_found and panics become 500 server_error.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathAuthorize, h.observe(endpointAuthorize, h.ServeAuthorization))
	mux.Handle(PathToken, h.observe(endpointToken, h.ServeToken))
	if h.verifier != nil {
		mux.Handle(PathVerifyMobile, h.observe(endpointVerifyMobile, h.ServeVerifyMobile))
	}
	mux.HandleFunc(PathHealth, h.ServeHealth)
	if inst := h.server.Instrumentation; inst != nil && inst.PrometheusHandler() != nil {
		mux.Handle(PathMetrics, inst.PrometheusHandler())
	}
	mux.Handle("/", h.observe(endpointNotFound, h.serveNotFound))

	return security.RequestIDMiddleware(h.cors(h.recoverPanics(mux)))
}

// cors applies the CORS policy to every response and answers preflight
// requests before routing.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			h.ServePreflightRequest(w, r)
			return
		}
		h.config.CORS.Apply(w)
		next.ServeHTTP(w, r)
	})
}

// recoverPanics turns a handler panic into a generic 500 response.
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.ErrorContext(r.Context(), "Panic while serving request",
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()))
			h.writeError(w, ErrorCodeServerError, descInternalError, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// observe wraps an endpoint with a span and request metrics.
func (h *Handler) observe(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		var span trace.Span
		ctx := r.Context()
		if h.tracer != nil {
			ctx, span = h.tracer.Start(ctx, "oauth.http."+endpoint)
			defer span.End()
			r = r.WithContext(ctx)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
		if rec.status >= http.StatusBadRequest {
			instrumentation.SetSpanError(span, http.StatusText(rec.status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		h.recordHTTPMetrics(ctx, endpoint, r.Method, rec.status, startTime)
	})
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}
	duration := float64(time.Since(startTime).Microseconds()) / 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
