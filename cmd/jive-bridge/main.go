// jive-bridge connects a stdio-only MCP client to a running Jive HTTP
// server. It reads one JSON-RPC request per stdin line, forwards it as an
// HTTP POST, and writes the response as one stdout line.
//
// The first initialize response carries an Mcp-Session-Id header; the bridge
// pins it and replays it on every later request so the whole stdio
// conversation maps onto one server session. Notifications (HTTP 204) produce
// no output line. stdout stays protocol-clean; diagnostics go to stderr.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	sessionHeader = "Mcp-Session-Id"

	// maxLineBytes caps one JSON-RPC line on stdin, matching the server's
	// own stdio limit.
	maxLineBytes = 10 << 20

	requestTimeout = 120 * time.Second
)

type bridge struct {
	endpoint  string
	sessionID string
	client    *http.Client
	out       io.Writer
}

func main() {
	serverURL := flag.String("server", "", "Jive MCP server URL (default http://localhost:3454/mcp, or JIVE_SERVER_URL)")
	namespace := flag.String("namespace", "", "Route every request to this namespace")
	flag.Parse()

	endpoint := *serverURL
	if endpoint == "" {
		endpoint = os.Getenv("JIVE_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:3454/mcp"
	}
	if *namespace != "" {
		endpoint = strings.TrimRight(endpoint, "/") + "/" + *namespace
	}

	b := &bridge{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
		out:      os.Stdout,
	}

	fmt.Fprintf(os.Stderr, "jive-bridge: forwarding stdio to %s\n", endpoint)

	if err := b.run(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "jive-bridge: %v\n", err)
		os.Exit(1)
	}
}

func (b *bridge) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		b.forward(line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdin read failed: %w", err)
	}
	fmt.Fprintln(os.Stderr, "jive-bridge: stdin closed, shutting down")
	return nil
}

// forward posts one request line and writes the reply, if any. Transport
// failures are surfaced to the client as JSON-RPC errors so it is never left
// waiting on a response that cannot come.
func (b *bridge) forward(line []byte) {
	req, err := http.NewRequest(http.MethodPost, b.endpoint, bytes.NewReader(line))
	if err != nil {
		b.replyError(line, "cannot build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if b.sessionID != "" {
		req.Header.Set(sessionHeader, b.sessionID)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.replyError(line, "server unreachable: %v", err)
		return
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(sessionHeader); id != "" && id != b.sessionID {
		b.sessionID = id
		fmt.Fprintf(os.Stderr, "jive-bridge: session %s\n", id)
	}

	// Notifications are acknowledged with no body.
	if resp.StatusCode == http.StatusNoContent {
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.replyError(line, "reading response failed: %v", err)
		return
	}

	b.writeLine(bytes.TrimSpace(body))
}

// replyError synthesizes a JSON-RPC internal error for the request on the
// given line. Notifications get no reply.
func (b *bridge) replyError(line []byte, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "jive-bridge: "+format+"\n", args...)

	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil || len(probe.ID) == 0 || string(probe.ID) == "null" {
		return
	}

	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      probe.ID,
		"error": map[string]interface{}{
			"code":    -32603,
			"message": fmt.Sprintf(format, args...),
		},
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	b.writeLine(data)
}

func (b *bridge) writeLine(data []byte) {
	if len(data) == 0 {
		return
	}
	data = append(data, '\n')
	if _, err := b.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "jive-bridge: stdout write failed: %v\n", err)
	}
}
