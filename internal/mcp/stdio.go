// stdio.go runs the newline-delimited JSON-RPC conversation editors and CLI
// clients speak: one request per stdin line, one response per stdout line,
// diagnostics on stderr only. stdout stays protocol-clean.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/session"
)

const (
	// stdioMaxLineBytes caps one JSON-RPC line on stdin.
	stdioMaxLineBytes = 10 << 20

	// stdioHandshakeTimeout is how long the loop waits for initialize before
	// declaring the session unusable.
	stdioHandshakeTimeout = 30 * time.Second
)

// StdioLoop serves the MCP protocol over an in/out byte stream pair.
type StdioLoop struct {
	server *Server
	in     io.Reader
	out    io.Writer
}

// NewStdioLoop builds a loop bound to the given streams, normally os.Stdin
// and os.Stdout.
func NewStdioLoop(server *Server, in io.Reader, out io.Writer) *StdioLoop {
	return &StdioLoop{server: server, in: in, out: out}
}

// Run reads requests until EOF or ctx cancellation. Requests are handled
// strictly in arrival order. A connection that never initializes within the
// handshake window keeps draining, but every later request is refused.
func (l *StdioLoop) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 0, 64*1024), stdioMaxLineBytes)

	scope := &callScope{transport: session.TransportStdio}
	defer func() {
		if scope.sess != nil {
			l.server.sessions.Delete(scope.sess.ID)
		}
	}()

	var handshakeMissed atomic.Bool
	handshakeTimer := time.AfterFunc(stdioHandshakeTimeout, func() {
		handshakeMissed.Store(true)
		logger.Warn("no initialize within %s on stdio; refusing requests until restart", stdioHandshakeTimeout)
	})
	defer handshakeTimer.Stop()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			l.reply(parseError(err))
			continue
		}

		// A missed handshake poisons the whole connection, a late initialize
		// included.
		if handshakeMissed.Load() && scope.sess == nil {
			if req.IsNotification() {
				continue
			}
			l.reply(rpcError(req.ID, codeInvalidSession,
				"initialize did not arrive within %s; restart the connection", stdioHandshakeTimeout))
			continue
		}

		resp := l.server.process(ctx, &req, scope)
		if scope.sess != nil {
			handshakeTimer.Stop()
		}
		if resp != nil {
			l.reply(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read failed: %w", err)
	}
	logger.Info("stdin closed; stdio transport shutting down")
	return nil
}

// reply writes one response line. Write failures are logged, not fatal; the
// loop finds out via the next read when the peer is really gone.
func (l *StdioLoop) reply(resp *JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error("failed to marshal stdio response: %v", err)
		return
	}
	data = append(data, '\n')
	if _, err := l.out.Write(data); err != nil {
		logger.Error("failed to write stdio response: %v", err)
	}
}
