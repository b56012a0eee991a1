// websocket.go carries JSON-RPC over WebSocket frames. GET /mcp with an
// Upgrade header speaks full MCP (initialize first, like stdio); /ws is the
// permissive variant for generic event clients: sessionless dispatch, a
// connection_ack greeting, and echo-acks for frames that are not JSON-RPC.
package mcp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/session"
)

const wsMaxMessageBytes = 1 << 20

// handleWS serves the /ws endpoint.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.serveWebSocket(w, r, true)
}

// serveWebSocket upgrades the connection and runs the per-connection
// read loop. Frames are processed in arrival order.
func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, generic bool) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkWSOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn("websocket upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(wsMaxMessageBytes)

	scope := &callScope{
		transport:    session.TransportWebSocket,
		urlNamespace: "",
		sessionless:  generic,
	}
	defer func() {
		if scope.sess != nil {
			s.sessions.Delete(scope.sess.ID)
		}
	}()

	if generic {
		if err := conn.WriteJSON(map[string]any{"type": "connection_ack"}); err != nil {
			return
		}
	}

	logger.Debug("websocket connected from %s (generic=%v)", r.RemoteAddr, generic)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket closed from %s: %v", r.RemoteAddr, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var req JSONRPCRequest
		unmarshalErr := json.Unmarshal(data, &req)
		if generic && (unmarshalErr != nil || req.JSONRPC != "2.0") {
			// Non-protocol frames get acknowledged and echoed back.
			_ = conn.WriteJSON(map[string]any{"type": "ack", "echo": string(data)})
			continue
		}
		if unmarshalErr != nil {
			if writeErr := conn.WriteJSON(parseError(unmarshalErr)); writeErr != nil {
				return
			}
			continue
		}

		resp := s.process(r.Context(), &req, scope)
		if resp == nil {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("websocket write failed: %v", err)
			return
		}
	}
}

// checkWSOrigin mirrors the CORS origin list for upgrade requests.
func (s *Server) checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
