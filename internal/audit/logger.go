// Package audit records destructive and administrative operations as JSON
// lines, separate from the debug log. One line per event, append-only.
package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Operation names an auditable action.
type Operation string

const (
	OpNamespaceCreate Operation = "namespace.create"
	OpNamespaceDelete Operation = "namespace.delete"
	OpWorkItemDelete  Operation = "work_item.delete"
	OpBackupCreate    Operation = "backup.create"
	OpBackupRestore   Operation = "backup.restore"
	OpSyncImport      Operation = "sync.import"
)

// Event is one audit log entry.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Operation  Operation      `json:"operation"`
	Namespace  string         `json:"namespace,omitempty"`
	WorkItemID string         `json:"work_item_id,omitempty"`
	BackupID   string         `json:"backup_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// Logger appends audit events through a JSON slog handler.
type Logger struct {
	logger  *slog.Logger
	file    *os.File
	enabled bool
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	defaultMu     sync.Mutex
)

// Default returns the shared audit logger. Until Init runs it writes to
// stderr, which keeps stdout clean for the stdio transport.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(os.Stderr, true)
	}
	return defaultLogger
}

// Init points the shared logger at <logDir>/audit.jsonl.
func Init(logDir string) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	l := New(f, true)
	l.file = f

	defaultMu.Lock()
	old := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// New builds an audit logger writing JSON lines to w.
func New(w io.Writer, enabled bool) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{
		logger:  slog.New(handler),
		enabled: enabled,
	}
}

// SetEnabled turns audit logging on or off.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Close releases the backing file, if any.
func (l *Logger) Close() {
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// Log records one audit event.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()
	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit", "true"),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}
	if event.Namespace != "" {
		attrs = append(attrs, slog.String("namespace", event.Namespace))
	}
	if event.WorkItemID != "" {
		attrs = append(attrs, slog.String("work_item_id", event.WorkItemID))
	}
	if event.BackupID != "" {
		attrs = append(attrs, slog.String("backup_id", event.BackupID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Details != nil {
		detailsJSON, _ := json.Marshal(event.Details)
		attrs = append(attrs, slog.String("details", string(detailsJSON)))
	}

	l.logger.Info("AUDIT", attrs...)
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op Operation, namespace string, details map[string]any) {
	l.Log(&Event{
		Operation: op,
		Namespace: namespace,
		Success:   true,
		Details:   details,
	})
}

// LogFailure records a failed operation.
func (l *Logger) LogFailure(op Operation, namespace string, err error, details map[string]any) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	l.Log(&Event{
		Operation: op,
		Namespace: namespace,
		Success:   false,
		Error:     errMsg,
		Details:   details,
	})
}

// Convenience functions using the shared logger.

func Log(event *Event) {
	Default().Log(event)
}

func LogSuccess(op Operation, namespace string, details map[string]any) {
	Default().LogSuccess(op, namespace, details)
}

func LogFailure(op Operation, namespace string, err error, details map[string]any) {
	Default().LogFailure(op, namespace, err, details)
}
