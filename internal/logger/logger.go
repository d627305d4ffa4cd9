// Package logger is the logging collaborator of the allocator packages.
//
// L discards everything until Init is called, so library code can log
// unconditionally. Init builds a zap logger writing either to stderr or to a
// rotated file.
package logger

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// L is the global logger instance. It discards all output by default.
var L = zap.NewNop()

const (
	defaultMaxSize = 64 // megabytes
	retentionDays  = 30
)

// Options configures the logger initialization.
type Options struct {
	Enabled    bool   // If false, all logging is discarded
	Level      string // debug, info, warn, error. Default: info
	Format     string // console or json. Default: console
	Filename   string // Log file; empty writes to stderr
	MaxSize    int    // Megabytes before rotation. Default: 64
	MaxDays    int    // Days to keep rotated files. Default: 30
	MaxBackups int    // Rotated files to keep; 0 keeps all
}

// Init configures the global logger. Call from main() before any log calls.
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	L = l
	return nil
}

// New builds a logger from opts without touching L.
func New(opts Options) (*zap.Logger, error) {
	if !opts.Enabled {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(strings.ToLower(defaultString(opts.Level, "info")))
	if err != nil {
		return nil, errors.Wrapf(err, "logger: bad level %q", opts.Level)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch defaultString(opts.Format, "console") {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, errors.Newf("logger: unknown format %q", opts.Format)
	}

	var sink zapcore.WriteSyncer
	if opts.Filename == "" {
		sink = zapcore.Lock(os.Stderr)
	} else {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    defaultInt(opts.MaxSize, defaultMaxSize),
			MaxAge:     defaultInt(opts.MaxDays, retentionDays),
			MaxBackups: opts.MaxBackups,
		})
	}

	core := zapcore.NewCore(enc, sink, level)
	return zap.New(core, zap.AddStacktrace(zapcore.DPanicLevel)), nil
}

// Named returns a child of L for one component.
func Named(name string) *zap.Logger { return L.Named(name) }

// Sync flushes buffered entries of L.
func Sync() error { return L.Sync() }

// Debug logs a debug message with optional fields.
func Debug(msg string, fields ...zap.Field) { L.Debug(msg, fields...) }

// Info logs an info message with optional fields.
func Info(msg string, fields ...zap.Field) { L.Info(msg, fields...) }

// Warn logs a warning message with optional fields.
func Warn(msg string, fields ...zap.Field) { L.Warn(msg, fields...) }

// Error logs an error message with optional fields.
func Error(msg string, fields ...zap.Field) { L.Error(msg, fields...) }

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func defaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
