// Package reactdown renders markdown documents whose fenced reactjs,
// reactts, reactjsx and reacttsx blocks are compiled, executed in a sandbox
// and, for the markup dialects, mounted as live component trees.
package reactdown

import (
	"sync"

	"go.uber.org/zap"

	"github.com/livetemplate/reactdown/internal/dialect"
	"github.com/livetemplate/reactdown/internal/engine"
)

// Child is the lifecycle capability a host drives for each block occurrence.
// OnAttach is called once when the block enters the rendered document and
// OnDetach once when it leaves, always after OnAttach.
type Child interface {
	OnAttach() error
	OnDetach()
}

// Runner compiles and executes block source.
type Runner interface {
	CompileAndRun(source string, d dialect.Dialect) (*engine.ExportRecord, error)
}

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the package logger. It is a no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogger installs l as the package logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}
