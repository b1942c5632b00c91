// Package debug provides the bootstrap's file logger.
// Logging is enabled by the --debug flag or the FERRY_DEBUG setting.
// Logs are written to ~/.ferry/debug.log unless a path is supplied, and the
// file is truncated on each launch.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// LogFileName is the name of the debug log file.
	LogFileName = "debug.log"
	// LogDirName is the name of the directory containing the log file.
	LogDirName = ".ferry"
)

var (
	mu      sync.RWMutex
	enabled bool
	logger  *log.Logger
	logFile *os.File

	// getLogPath is a function variable to allow overriding in tests.
	getLogPath = defaultGetLogPath
)

type initSettings struct {
	path string
}

// Option configures Init.
type Option func(*initSettings)

// WithLogPath writes the log to path instead of ~/.ferry/debug.log.
func WithLogPath(path string) Option {
	return func(s *initSettings) {
		s.path = path
	}
}

// Init initializes the debug logging system.
// If enable is false, all logging operations become no-ops.
func Init(enable bool, opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	settings := initSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	enabled = enable
	if !enable {
		logger = log.New(io.Discard, "", 0)
		return nil
	}

	logPath := settings.path
	if logPath == "" {
		p, err := getLogPath()
		if err != nil {
			return fmt.Errorf("determine log path: %w", err)
		}
		logPath = p
	}

	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	//nolint:gosec // G304: Log path is computed from user home or settings
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f

	logger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	logger.Printf("=== Ferry debug log started at %s (pid %d) ===", time.Now().Format(time.RFC3339), os.Getpid())

	return nil
}

// Close closes the debug log file if open.
// Safe to call even if logging is disabled.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// Log writes a debug message if debug logging is enabled.
// Arguments are handled in the manner of fmt.Print.
func Log(v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Print(v...)
}

// Logf writes a formatted debug message if debug logging is enabled.
// Arguments are handled in the manner of fmt.Printf.
func Logf(format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if !enabled || logger == nil {
		return
	}
	logger.Printf(format, v...)
}

// Enabled returns whether debug logging is currently enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Scope prefixes every message with a bracketed tag such as "[Updates]".
type Scope string

// Logf writes a formatted message prefixed with the scope tag.
func (s Scope) Logf(format string, v ...any) {
	Logf("["+string(s)+"] "+format, v...)
}

// Log writes a message prefixed with the scope tag.
func (s Scope) Log(v ...any) {
	Log(append([]any{"[" + string(s) + "] "}, v...)...)
}

func defaultGetLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, LogDirName, LogFileName), nil
}

// GetLogPath returns the default path of the debug log file.
func GetLogPath() (string, error) {
	return getLogPath()
}
