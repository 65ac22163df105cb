// Package build provides the rotating log writer shared by every citadel-runtime
// subsystem logger.
package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// RotatingLogWriter wraps a log rotator and dispatches to per-subsystem
// backends created by GenSubLogger.
type RotatingLogWriter struct {
	rotator    *rotator.Rotator
	backend    *btclog.Backend
	subsystems map[string]btclog.Logger
	logLevel   btclog.Level
}

// NewRotatingLogWriter returns a writer with no rotator attached; callers
// must call InitLogRotator before logging output appears on disk.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{
		subsystems: make(map[string]btclog.Logger),
		logLevel:   btclog.LevelInfo,
	}
}

// InitLogRotator opens (creating if necessary) the log file at logFile,
// rotating it once it exceeds maxSizeMB megabytes, and keeps up to
// maxRotations old copies around.
func (r *RotatingLogWriter) InitLogRotator(logFile string, maxSizeMB, maxRotations int) error {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return fmt.Errorf("create log directory %s: %w", logDir, err)
	}

	rot, err := rotator.New(logFile, int64(maxSizeMB*1024), false, maxRotations)
	if err != nil {
		return fmt.Errorf("create log rotator: %w", err)
	}
	r.rotator = rot

	r.backend = btclog.NewBackend(r)
	return nil
}

// Write implements io.Writer, fanning log bytes out to the console and the
// rotator (when initialized).
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	os.Stdout.Write(b)
	if r.rotator != nil {
		return r.rotator.Write(b)
	}
	return len(b), nil
}

// GenSubLogger creates a logger for the named subsystem, tagged to include
// the subsystem name in every line.
func (r *RotatingLogWriter) GenSubLogger(subsystem string) btclog.Logger {
	if r.backend == nil {
		return btclog.NewBackend(os.Stdout).Logger(subsystem)
	}
	return r.backend.Logger(subsystem)
}

// RegisterSubLogger associates a logger instance with a subsystem tag so
// SetLogLevel can later retarget its verbosity.
func (r *RotatingLogWriter) RegisterSubLogger(subsystem string, logger btclog.Logger) {
	r.subsystems[subsystem] = logger
}

// SetLogLevel adjusts the verbosity of a single registered subsystem.
func (r *RotatingLogWriter) SetLogLevel(subsystem string, level btclog.Level) {
	if logger, ok := r.subsystems[subsystem]; ok {
		logger.SetLevel(level)
	}
}

// SetLogLevels adjusts the verbosity of every registered subsystem.
func (r *RotatingLogWriter) SetLogLevels(level btclog.Level) {
	r.logLevel = level
	for _, logger := range r.subsystems {
		logger.SetLevel(level)
	}
}

// Close flushes and closes the underlying rotator, if any.
func (r *RotatingLogWriter) Close() error {
	if r.rotator != nil {
		return r.rotator.Close()
	}
	return nil
}

// NewSubLogger returns a logger for subsystem using gen when non-nil, or a
// disabled placeholder logger otherwise — used to give package-level logger
// variables a safe zero value before SetupLoggers runs.
func NewSubLogger(subsystem string, gen func(string) btclog.Logger) btclog.Logger {
	if gen == nil {
		return btclog.Disabled
	}
	return gen(subsystem)
}
