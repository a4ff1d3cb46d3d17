package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap logger writing to a file. The terminal UI owns stdout,
// so the client never logs there.
type Logger struct {
	file *os.File
	*zap.Logger
}

// NewLogger creates a new logger appending JSON lines to filePath.
func NewLogger(filePath, level string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.AddSync(file), lvl)
	return &Logger{file: file, Logger: zap.New(core)}, nil
}

// NewConsoleLogger logs human readable lines to stderr. Used by the relay.
func NewConsoleLogger(level string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Close flushes and closes the log file
func (l *Logger) Close() {
	_ = l.Sync()
	if l.file != nil {
		l.file.Close()
	}
}
