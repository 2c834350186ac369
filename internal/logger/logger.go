package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Brownie44l1/mb-classifier-api/internal/env"
)

type options struct {
	level     slog.Leveler
	logToFile bool
	logFile   string
	maxSizeMB int
	output    io.Writer
}

// Option configures the logger built by New.
type Option func(*options)

// WithLevel sets the minimum level. Pass a *slog.LevelVar to change the
// level after the logger is built.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) { o.level = level }
}

// WithLogToFile toggles the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) { o.logToFile = enabled }
}

// WithLogFile sets the path of the rotating log file.
func WithLogFile(path string) Option {
	return func(o *options) { o.logFile = path }
}

// WithMaxSizeMB sets the size at which the log file is rotated.
func WithMaxSizeMB(size int) Option {
	return func(o *options) { o.maxSizeMB = size }
}

// WithOutput replaces stderr as the console sink.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New builds a logger for the given environment. Development gets a
// colourised console handler, everything else gets JSON. When file logging is
// enabled, records are also written as JSON to a rotating file.
func New(e env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level:     slog.LevelInfo,
		logFile:   "logs/mb-classifier.log",
		maxSizeMB: 50,
		output:    os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	var console slog.Handler
	if e.IsProduction() {
		console = slog.NewJSONHandler(o.output, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.output, &tint.Options{
			Level:      o.level,
			TimeFormat: time.Kitchen,
		})
	}

	if !o.logToFile {
		return slog.New(console)
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}

	return slog.New(slogmulti.Fanout(
		console,
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level}),
	))
}

// ParseLevel parses debug/info/warn/error, falling back to info.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
