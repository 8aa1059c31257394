// Package logging owns the process-wide zap logger. It is initialised once at
// startup with a console sink on stderr and a rotating JSON file sink;
// components obtain named child loggers through Named.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the sinks built by Init.
type Config struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string

	// File is the path of the rotating log file. Empty disables the file sink.
	File string

	// MaxSizeMB is the size at which the file is rotated (default: 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default: 5).
	MaxBackups int
}

var (
	mu       sync.RWMutex
	root     = zap.NewNop()
	closeFns []func() error
)

// Init builds the process-wide logger. Calling it again replaces the previous
// logger; loggers already handed out keep writing to the old sinks.
func Init(cfg Config) (*zap.Logger, error) {
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 5
	}

	level := parseLevel(cfg.Level)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	var closers []func() error
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(rotator), level))
		closers = append(closers, rotator.Close)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named("app")

	mu.Lock()
	root = logger
	closeFns = closers
	mu.Unlock()

	return logger, nil
}

// L returns the process-wide logger (a no-op logger before Init).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Named returns a child logger for a component, e.g. Named("persona").
func Named(component string) *zap.Logger {
	return L().Named(component)
}

// Sync flushes buffered entries and closes the rotating file.
func Sync() {
	mu.RLock()
	logger, closers := root, closeFns
	mu.RUnlock()

	_ = logger.Sync()
	for _, c := range closers {
		_ = c()
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
