package monitor

import (
	"sync"

	"go.uber.org/zap"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// Logger returns the package logger. It is a no-op logger by default.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the package logger. Pass nil to silence logging.
func SetLogger(log *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if log == nil {
		log = zap.NewNop()
	}
	logger = log
}
