// Package logging provides category-keyed structured logging, mirroring
// the teacher's config-driven per-category logger (internal/logging in
// theRebelliousNerd-codenerd) but backed by zerolog rather than a
// hand-rolled log.Logger, since the teacher has no logging library of its
// own (SPEC_FULL.md §10.1).
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Category names a logging subsystem. Each category gets its own log file
// under <dataRoot>/logs/<category>.log, same layout as the teacher's
// .nerd/logs/ tree.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryStorage       Category = "storage"
	CategoryGraph         Category = "graph"
	CategoryExecution     Category = "execution"
	CategoryScheduler     Category = "scheduler"
	CategoryWatchdog      Category = "watchdog"
	CategoryOrchestration Category = "orchestration"
	CategoryEvents        Category = "events"
	CategoryMetrics       Category = "metrics"
)

// Logger wraps a zerolog.Logger bound to one Category.
type Logger struct {
	zl   zerolog.Logger
	file *os.File
}

var (
	mu       sync.Mutex
	loggers  = make(map[Category]*Logger)
	dataRoot string
	level    zerolog.Level = zerolog.InfoLevel
	jsonMode bool
)

// Configure sets the data root (for per-category log files) and level for
// all loggers created from this point on. Call once at startup.
func Configure(root, lvl string, jsonFormat bool) {
	mu.Lock()
	defer mu.Unlock()
	dataRoot = root
	jsonMode = jsonFormat
	if parsed, err := zerolog.ParseLevel(lvl); err == nil {
		level = parsed
	}
}

// Get returns (creating if necessary) the Logger for a Category.
func Get(cat Category) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	l := newLogger(cat)
	loggers[cat] = l
	return l
}

func newLogger(cat Category) *Logger {
	var writers []io.Writer
	console := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: jsonMode}
	writers = append(writers, console)

	var f *os.File
	if dataRoot != "" {
		dir := filepath.Join(dataRoot, "logs")
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if file, err := os.OpenFile(filepath.Join(dir, string(cat)+".log"),
				os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				f = file
				writers = append(writers, f)
			}
		}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Str("category", string(cat)).Logger()

	return &Logger{zl: zl, file: f}
}

// With returns a child logger with additional structured fields attached.
func (l *Logger) With(fields map[string]any) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zl: ctx.Logger(), file: l.file}
}

func (l *Logger) Debug(format string, args ...any) { l.zl.Debug().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Info(format string, args ...any)  { l.zl.Info().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Warn(format string, args ...any)  { l.zl.Warn().Msg(fmt.Sprintf(format, args...)) }
func (l *Logger) Error(format string, args ...any) { l.zl.Error().Msg(fmt.Sprintf(format, args...)) }

// Close flushes and closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// CloseAll closes every category logger's file handle. Call on shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		l.Close()
	}
}
