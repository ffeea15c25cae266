// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// zap has no level between debug and info, so verbose takes debug's slot
// and debug goes one below it.
const (
	zapDebug   = zapcore.DebugLevel - 1
	zapVerbose = zapcore.DebugLevel
)

// Logger writes levelled messages through zap with short level labels
// and optional timestamps.  Loggers derived with With share the parent's
// output and settings at the time of the call.
type Logger struct {
	level      LogLevel
	output     io.Writer
	format     string // "console" or "json"
	timestamps bool
	fields     []zap.Field

	mu sync.Mutex
	zl *zap.Logger
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	l := &Logger{
		level:      LogLevel(verbosity),
		output:     os.Stderr,
		format:     "console",
		timestamps: verbosity >= 3, // auto-enable timestamps in debug mode
	}
	l.rebuild()
	return l
}

// SetTimestamps enables or disables timestamp prefixes.
func (l *Logger) SetTimestamps(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = on
	l.rebuild()
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
	l.rebuild()
}

// SetFormat selects the "console" or "json" encoder.
func (l *Logger) SetFormat(format string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	l.rebuild()
}

// Level returns the current log level.
func (l *Logger) Level() LogLevel { return l.level }

// With returns a child logger that adds key/value pairs to every line.
func (l *Logger) With(kv ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := append([]zap.Field(nil), l.fields...)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	child := &Logger{
		level:      l.level,
		output:     l.output,
		format:     l.format,
		timestamps: l.timestamps,
		fields:     fields,
	}
	child.rebuild()
	return child
}

// Zap exposes the underlying logger for structured callers such as the
// HTTP access log.
func (l *Logger) Zap() *zap.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.Zap().Sync()
}

// Info prints when verbosity ≥ 1.  Labelled [INF].
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.InfoLevel, format, args...)
	}
}

// Warn prints when verbosity ≥ 1.  Labelled [WRN].
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogNormal {
		l.write(zapcore.WarnLevel, format, args...)
	}
}

// Verbose prints when verbosity ≥ 2.  Labelled [VRB].
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LogVerbose {
		l.write(zapVerbose, format, args...)
	}
}

// Debug prints when verbosity ≥ 3.  Labelled [DBG].
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogDebug {
		l.write(zapDebug, format, args...)
	}
}

// Error always prints regardless of verbosity.  Labelled [ERR].
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(zapcore.ErrorLevel, format, args...)
}

func (l *Logger) write(lvl zapcore.Level, format string, args ...interface{}) {
	zl := l.Zap()
	if ce := zl.Check(lvl, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// rebuild recreates the zap core.  Callers hold mu (or own l exclusively).
func (l *Logger) rebuild() {
	enc := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		NameKey:          "logger",
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	if l.timestamps {
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	var encoder zapcore.Encoder
	if l.format == "json" {
		encoder = zapcore.NewJSONEncoder(enc)
	} else {
		encoder = zapcore.NewConsoleEncoder(enc)
	}

	// Verbosity gating happens in the methods above; the core accepts all.
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(l.output)),
		zap.LevelEnablerFunc(func(zapcore.Level) bool { return true }))
	l.zl = zap.New(core).With(l.fields...)
}

func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch lvl {
	case zapDebug:
		enc.AppendString("[DBG]")
	case zapVerbose:
		enc.AppendString("[VRB]")
	case zapcore.InfoLevel:
		enc.AppendString("[INF]")
	case zapcore.WarnLevel:
		enc.AppendString("[WRN]")
	case zapcore.ErrorLevel:
		enc.AppendString("[ERR]")
	default:
		enc.AppendString("[" + lvl.CapitalString()[:3] + "]")
	}
}
