package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/terror/internal/capture"
)

const healthCheckTimeout = 2 * time.Second

// Options tunes optional router behaviour.
type Options struct {
	// Registry collects router metrics and backs /metrics. Nil uses the
	// prometheus default registry.
	Registry *prometheus.Registry
	// SmokeRoutes mounts GET /fail/{kind}.
	SmokeRoutes bool
}

// Router wires HTTP endpoints to the capture pipeline.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	capturer *capture.Capturer
	dbHealth func(context.Context) error
	metrics  http.Handler

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, capturer *capture.Capturer, dbHealth func(context.Context) error, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		capturer: capturer,
		dbHealth: dbHealth,
		metrics:  promhttp.Handler(),
	}
	var reg prometheus.Registerer
	if opts.Registry != nil {
		reg = opts.Registry
		r.metrics = promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
	}
	r.initMetrics(reg)
	r.register(opts)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handle mounts a failing handler; its errors and panics are captured.
func (r *Router) Handle(pattern string, h HandlerFunc) {
	r.mux.Handle(pattern, r.audit(pattern, ErrorHandler(r.capturer, h).ServeHTTP))
}

func (r *Router) register(opts Options) {
	r.mux.HandleFunc("GET /healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("GET /metrics", r.audit("/metrics", r.metrics.ServeHTTP))
	if opts.SmokeRoutes {
		r.Handle("GET /fail/{kind}", handleFail)
	}
	r.mux.HandleFunc("/", r.audit("/", r.notFound))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if errorID := recorder.Header().Get(capture.ErrorIDHeader); errorID != "" {
			fields = append(fields, "error_id", errorID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) notFound(w http.ResponseWriter, req *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
