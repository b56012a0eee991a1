// server.go wires the tool registry, session table, and namespace stores into
// the HTTP transport. POST /mcp carries JSON-RPC, GET /mcp streams
// notifications over SSE, and the same path upgrades to WebSocket when the
// client asks for it. A small REST surface (/health, /tools, /namespaces)
// exists for operators and non-MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/jivehq/jive/internal/audit"
	"github.com/jivehq/jive/internal/cleanup"
	"github.com/jivehq/jive/internal/config"
	"github.com/jivehq/jive/internal/embedding"
	"github.com/jivehq/jive/internal/execution"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/metrics"
	"github.com/jivehq/jive/internal/namespace"
	"github.com/jivehq/jive/internal/search"
	"github.com/jivehq/jive/internal/session"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/syncdata"
	"github.com/jivehq/jive/internal/workitem"
)

const (
	// sessionHeader carries the MCP session id on HTTP.
	sessionHeader = "Mcp-Session-Id"

	// maxBodyBytes caps one HTTP JSON-RPC request.
	maxBodyBytes = 1 << 20

	// sseHeartbeatEvery paces keepalive notifications on the SSE stream.
	sseHeartbeatEvery = 30 * time.Second

	shutdownGrace = 10 * time.Second
)

// Server hosts the MCP protocol over every transport and owns the shared
// managers behind it.
type Server struct {
	cfg        *config.Config
	sessions   *session.Manager
	registry   *Registry
	namespaces *namespace.Manager
	embedder   *embedding.Lazy
	engine     *workitem.Engine
	searcher   *search.Engine
	executions *execution.Manager
	syncer     *syncdata.Syncer
	backups    *syncdata.Backups

	httpServer  *http.Server
	startedAt   time.Time
	prewarmOnce sync.Once
}

// NewServer assembles a server around the given managers and registers the
// tool set.
func NewServer(
	cfg *config.Config,
	namespaces *namespace.Manager,
	embedder *embedding.Lazy,
	engine *workitem.Engine,
	searcher *search.Engine,
	executions *execution.Manager,
	syncer *syncdata.Syncer,
	backups *syncdata.Backups,
) *Server {
	s := &Server{
		cfg:        cfg,
		sessions:   session.NewManager(),
		registry:   NewRegistry(cfg.ToolTimeout),
		namespaces: namespaces,
		embedder:   embedder,
		engine:     engine,
		searcher:   searcher,
		executions: executions,
		syncer:     syncer,
		backups:    backups,
		startedAt:  time.Now(),
	}

	s.registerAllTools(s.registry)
	registerLegacyNames(s.registry)

	metrics.SetEmbeddingReady(embedder.Ready())
	s.refreshNamespaceGauge()
	return s
}

// Registry exposes the tool registry, mainly for tests and the stdio loop.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Serve runs the HTTP transport until Shutdown or a listener error.
func (s *Server) Serve(addr string) error {
	handler := s.buildHandler()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("🌐 MCP server listening on %s", addr)
	logger.Info("   POST /mcp and /mcp/{namespace} for JSON-RPC, GET /mcp for SSE, /ws for WebSocket")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// buildHandler assembles the router and middleware chain. Order matters:
// request ids first so every later log line carries one, then rate limiting,
// then metrics; CORS wraps the outside.
func (s *Server) buildHandler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/mcp", s.handleMCPPost).Methods(http.MethodPost)
	r.HandleFunc("/mcp/{namespace}", s.handleMCPPost).Methods(http.MethodPost)
	r.HandleFunc("/mcp", s.handleMCPStream).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	r.HandleFunc("/tools", s.handleToolsIndex).Methods(http.MethodGet)
	r.HandleFunc("/tools/execute", s.handleToolsExecute).Methods(http.MethodPost)
	r.HandleFunc("/namespaces", s.handleNamespacesList).Methods(http.MethodGet)
	r.HandleFunc("/namespaces", s.handleNamespacesCreate).Methods(http.MethodPost)
	r.HandleFunc("/namespaces/{name}", s.handleNamespaceStats).Methods(http.MethodGet)
	r.HandleFunc("/namespaces/{name}", s.handleNamespaceDelete).Methods(http.MethodDelete)

	limiter := newRateLimiter(s.cfg.Security.RateLimitRPS, s.cfg.Security.RateLimitBurst)

	var handler http.Handler = r
	handler = metrics.Middleware(handler)
	handler = rateLimitMiddleware(limiter)(handler)
	handler = requestMiddleware(handler)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.Security.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", sessionHeader},
		ExposedHeaders: []string{sessionHeader},
	})
	return c.Handler(handler)
}

// Shutdown drains the HTTP server and closes every shared manager.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.sessions.Close()
	s.executions.Close()
	s.namespaces.CloseAll()
	return err
}

// Close shuts the server down with the default grace period.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("shutdown did not drain cleanly: %v", err)
	}
}

// handleMCPPost serves one JSON-RPC request per HTTP POST. A missing session
// header runs in sessionless mode; a stale one is rejected so the client
// reinitialises.
func (s *Server) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	urlNS := mux.Vars(r)["namespace"]

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeRPC(w, http.StatusRequestEntityTooLarge,
			rpcError(nil, codeInvalidRequest, "request body exceeds %d bytes: %v", maxBodyBytes, err))
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, http.StatusBadRequest, parseError(err))
		return
	}

	scope := &callScope{
		transport:    session.TransportHTTP,
		urlNamespace: urlNS,
		sessionless:  true,
	}
	if id := r.Header.Get(sessionHeader); id != "" {
		sess, ok := s.sessions.Get(id)
		if !ok {
			writeRPC(w, http.StatusNotFound, rpcError(req.ID, codeInvalidSession, "unknown session %q; reinitialize", id))
			return
		}
		scope.sess = sess
		scope.sessionless = false
	}

	resp := s.process(r.Context(), &req, scope)

	// initialize creates the session inside process; echo whichever session
	// the request ended up on.
	if scope.sess != nil {
		w.Header().Set(sessionHeader, scope.sess.ID)
	}

	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	status := http.StatusOK
	if scope.denied {
		status = http.StatusForbidden
	}
	writeRPC(w, status, resp)
}

// handleMCPStream serves GET /mcp: a WebSocket upgrade when requested,
// otherwise a server-sent-event notification stream.
func (s *Server) handleMCPStream(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r, false)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusNotImplemented)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, notification("notifications/initialized", nil))
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected (%s)", r.RemoteAddr)
			return
		case t := <-ticker.C:
			writeSSE(w, notification("notifications/heartbeat", map[string]any{
				"timestamp": t.UTC().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// notification builds a JSON-RPC notification payload.
func notification(method string, params any) *JSONRPCRequest {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: raw}
}

func writeSSE(w io.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeRPC(w http.ResponseWriter, status int, resp *JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to write JSON-RPC response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to write response: %v", err)
	}
}

// handleHealth reports the liveness snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	nsList, err := s.namespaces.List()
	nsCount := 0
	if err == nil {
		nsCount = len(nsList)
	}

	payload := map[string]any{
		"status":          "healthy",
		"version":         serverVersion,
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"sessions":        s.sessions.Count(),
		"namespaces":      nsCount,
		"embedding_ready": s.embedder.Ready(),
	}
	if _, _, pct, err := cleanup.DiskUsage(s.cfg.Database.DataPath); err == nil {
		payload["disk_used_percent"] = math.Round(pct*10) / 10
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleToolsIndex lists tool schemas without requiring a session.
func (s *Server) handleToolsIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toolListResult{Tools: s.registry.GetAllTools()})
}

type toolsExecuteRequest struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Namespace string          `json:"namespace"`
}

// handleToolsExecute is the REST wrapper over tools/call: same dispatch, the
// raw envelope instead of MCP content framing.
func (s *Server) handleToolsExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, fail(CodeValidation, "request body exceeds %d bytes", maxBodyBytes))
		return
	}

	var req toolsExecuteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(CodeValidation, "invalid request body: %v", err))
		return
	}
	if req.Tool == "" {
		writeJSON(w, http.StatusBadRequest, fail(CodeValidation, "tool is required"))
		return
	}

	ns, err := s.namespaces.Resolve("", "", req.Namespace)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, failErr(err))
		return
	}
	store, err := s.namespaces.Store(ns)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failErr(err))
		return
	}

	call := &ToolCall{Name: req.Tool, Namespace: ns, Store: store}
	result, err := s.registry.CallTool(WithToolCall(r.Context(), call), req.Tool, req.Arguments)
	if err != nil {
		writeJSON(w, http.StatusNotFound, fail(CodeValidation, "%v", err))
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) handleNamespacesList(w http.ResponseWriter, r *http.Request) {
	list, err := s.namespaces.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, failErr(err))
		return
	}
	metrics.SetNamespacesTotal(float64(len(list)))
	writeJSON(w, http.StatusOK, map[string]any{"namespaces": list, "total": len(list)})
}

func (s *Server) handleNamespacesCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(CodeValidation, "invalid request body: %v", err))
		return
	}

	meta, err := s.namespaces.Create(req.Name)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, os.ErrExist) {
			status = http.StatusConflict
		}
		writeJSON(w, status, failErr(err))
		return
	}
	audit.Log(&audit.Event{
		Operation: audit.OpNamespaceCreate,
		Namespace: meta.Namespace,
		RequestID: RequestIDFrom(r.Context()),
		Success:   true,
	})
	s.refreshNamespaceGauge()
	writeJSON(w, http.StatusCreated, okMsg(meta, "Created namespace %q", meta.Namespace))
}

func (s *Server) handleNamespaceStats(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !s.namespaces.Exists(name) {
		writeJSON(w, http.StatusNotFound, failErr(fmt.Errorf("%w: %s", namespace.ErrNotFound, name)))
		return
	}

	counts, err := s.namespaces.Stats(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, namespace.ErrNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(err, namespace.ErrInvalidName) || errors.Is(err, namespace.ErrReserved) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, failErr(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"namespace": name, "tables": counts})
}

func (s *Server) handleNamespaceDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	err := s.namespaces.Delete(name)
	switch {
	case err == nil:
		audit.Log(&audit.Event{
			Operation: audit.OpNamespaceDelete,
			Namespace: name,
			RequestID: RequestIDFrom(r.Context()),
			Success:   true,
		})
		s.refreshNamespaceGauge()
		writeJSON(w, http.StatusOK, okMsg(nil, "Deleted namespace %q", name))
	case errors.Is(err, namespace.ErrNotFound):
		writeJSON(w, http.StatusNotFound, failErr(err))
	case errors.Is(err, namespace.ErrProtected):
		writeJSON(w, http.StatusBadRequest, failErr(err))
	default:
		writeJSON(w, http.StatusInternalServerError, failErr(err))
	}
}

// refreshItemGauge republishes the stored-item gauge after a mutation.
func (s *Server) refreshItemGauge(call *ToolCall) {
	if call == nil || call.Store == nil {
		return
	}
	if n, err := call.Store.CountWorkItems(storage.Predicate{}); err == nil {
		metrics.SetWorkItems(call.Namespace, float64(n))
	}
}

func (s *Server) refreshNamespaceGauge() {
	if list, err := s.namespaces.List(); err == nil {
		metrics.SetNamespacesTotal(float64(len(list)))
	}
}
