package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jive_http_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ActiveSessions tracks currently active MCP sessions per transport
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jive_active_sessions",
			Help: "Number of active MCP sessions",
		},
		[]string{"transport"},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jive_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "action", "status"},
	)

	// ToolCallDuration tracks how long tool calls run
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jive_tool_call_duration_seconds",
			Help:    "Tool call duration in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 300},
		},
		[]string{"tool"},
	)

	// WorkItems tracks stored work items per namespace
	WorkItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jive_work_items",
			Help: "Number of stored work items",
		},
		[]string{"namespace"},
	)

	// NamespacesTotal tracks the number of namespaces
	NamespacesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jive_namespaces",
			Help: "Total number of namespaces",
		},
	)

	// SearchQueries counts search executions per mode
	SearchQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jive_search_queries_total",
			Help: "Total number of search queries",
		},
		[]string{"mode"},
	)

	// EmbeddingReady reports embedder readiness (1 ready, 0 not)
	EmbeddingReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jive_embedding_ready",
			Help: "Whether the embedding model is initialised",
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath collapses parameterised routes to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/mcp", "/mcp/", "/metrics", "/tools", "/tools/execute", "/namespaces", "/ws":
		return path
	default:
		if strings.HasPrefix(path, "/mcp/") {
			return "/mcp/{namespace}"
		}
		if strings.HasPrefix(path, "/namespaces/") {
			return "/namespaces/{name}"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordToolCall records an MCP tool invocation
func RecordToolCall(tool, action, status string, duration time.Duration) {
	ToolCalls.WithLabelValues(tool, action, status).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordSearch records one search query
func RecordSearch(mode string) {
	SearchQueries.WithLabelValues(mode).Inc()
}

// SetWorkItems sets the stored item count for a namespace
func SetWorkItems(namespace string, count float64) {
	WorkItems.WithLabelValues(namespace).Set(count)
}

// SetNamespacesTotal sets the namespace count
func SetNamespacesTotal(count float64) {
	NamespacesTotal.Set(count)
}

// SetEmbeddingReady flags embedder readiness
func SetEmbeddingReady(ready bool) {
	if ready {
		EmbeddingReady.Set(1)
	} else {
		EmbeddingReady.Set(0)
	}
}
