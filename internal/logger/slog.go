package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

var (
	slogger  *slog.Logger
	slogFile *os.File
)

// Context keys for structured logging.
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeySessionID contextKey = "session_id"
	ContextKeyNamespace contextKey = "namespace"
)

// slogLevel maps the package's level gate onto slog's.
func slogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitSlog initializes the structured logger. console follows the same rule
// as Init: pass os.Stderr when serving stdio. jsonOutput selects the JSON
// handler for machine-read logs.
func InitSlog(logDir string, console io.Writer, jsonOutput bool, minLevel Level) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	logFileName := "jive-" + time.Now().Format("2006-01-02") + ".log"
	logFilePath := filepath.Join(logDir, logFileName)

	var err error
	slogFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	if console == nil {
		console = os.Stdout
	}
	writer := io.MultiWriter(console, slogFile)

	opts := &slog.HandlerOptions{Level: slogLevel(minLevel)}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)
	return nil
}

// CloseSlog closes the structured log file.
func CloseSlog() error {
	if slogFile != nil {
		return slogFile.Close()
	}
	return nil
}

// Slog returns the slog.Logger instance for structured logging.
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

// WithContext returns a logger carrying the request, session, and namespace
// fields present in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := Slog()

	if requestID := ctx.Value(ContextKeyRequestID); requestID != nil {
		l = l.With("request_id", requestID)
	}
	if sessionID := ctx.Value(ContextKeySessionID); sessionID != nil {
		l = l.With("session_id", sessionID)
	}
	if ns := ctx.Value(ContextKeyNamespace); ns != nil {
		l = l.With("namespace", ns)
	}
	return l
}

// InfoContext logs an info message with context fields.
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// ErrorContext logs an error with context fields.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// WarnContext logs a warning with context fields.
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// DebugContext logs debug info with context fields.
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// Critical logs at error severity with a critical=true attribute; the level
// vocabulary has no slog severity above error.
func Critical(msg string, args ...any) {
	Slog().Error(msg, append(args, "critical", true)...)
}
