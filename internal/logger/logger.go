package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	instance *Logger
	once     sync.Once
)

// Level gates which messages reach the writers.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a configured level name to a Level. CRITICAL collapses into
// ERROR. Unknown names default to INFO.
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR", "CRITICAL":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger handles dual logging to console and file. The console writer is
// injected so the stdio transport can route every diagnostic to stderr;
// stdout belongs to the protocol stream there.
type Logger struct {
	infoLogger  *log.Logger
	errorLogger *log.Logger
	logFile     *os.File
	minLevel    Level
	mu          sync.Mutex
}

// Init initializes the global logger instance. console receives non-error
// output (pass os.Stderr when serving stdio); errors always go to stderr.
func Init(logDir string, console io.Writer, minLevel Level) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(logDir, console, minLevel)
	})
	return initErr
}

// newLogger creates a new logger that writes to both console and file
func newLogger(logDir string, console io.Writer, minLevel Level) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFileName := fmt.Sprintf("jive-%s.log", time.Now().Format("2006-01-02"))
	logFilePath := filepath.Join(logDir, logFileName)

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	if console == nil {
		console = os.Stdout
	}
	infoWriter := io.MultiWriter(console, logFile)
	errorWriter := io.MultiWriter(os.Stderr, logFile)

	return &Logger{
		infoLogger:  log.New(infoWriter, "", log.LstdFlags),
		errorLogger: log.New(errorWriter, "ERROR: ", log.LstdFlags),
		logFile:     logFile,
		minLevel:    minLevel,
	}, nil
}

// Close closes the log file
func Close() error {
	if instance != nil && instance.logFile != nil {
		return instance.logFile.Close()
	}
	return nil
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	if instance != nil && instance.minLevel <= LevelDebug {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.infoLogger.Printf("DEBUG: "+format, v...)
	}
}

// Info logs an informational message
func Info(format string, v ...interface{}) {
	if instance != nil && instance.minLevel <= LevelInfo {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.infoLogger.Printf(format, v...)
	}
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	if instance != nil && instance.minLevel <= LevelWarn {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.infoLogger.Printf("WARN: "+format, v...)
	}
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.errorLogger.Printf(format, v...)
	}
}

// Println logs a simple message
func Println(v ...interface{}) {
	if instance != nil && instance.minLevel <= LevelInfo {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.infoLogger.Println(v...)
	}
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	if instance != nil && instance.minLevel <= LevelInfo {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.infoLogger.Printf(format, v...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		instance.errorLogger.Fatal(v...)
		instance.mu.Unlock()
	} else {
		log.Fatal(v...)
	}
}

// Fatalf logs a formatted fatal error and exits
func Fatalf(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		instance.errorLogger.Fatalf(format, v...)
		instance.mu.Unlock()
	} else {
		log.Fatalf(format, v...)
	}
}
