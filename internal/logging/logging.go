// Package logging provides config-driven, category-scoped structured
// logging for memtask. Each category writes to its own file under
// <root>/.memtask/logs/; when debug mode is off, logging is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names one of the store's subsystems.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryConfig    Category = "config"
	CategoryStore     Category = "store"     // memory document store
	CategoryTask      Category = "task"      // task hierarchy store
	CategoryIndex     Category = "index"     // hybrid sqlite indexer
	CategoryWatcher   Category = "watcher"   // fsnotify debounce pipeline
	CategoryPath      Category = "path"      // semantic path manager
	CategoryMigrate   Category = "migrate"   // atomic folder migration
	CategoryBroadcast Category = "broadcast" // change fanout
	CategoryLinker    Category = "linker"    // task<->memory linker
	CategoryRatelimit Category = "ratelimit" // automation token bucket + debounce
)

// Settings mirrors the relevant parts of config.LoggingConfig, kept
// separate to avoid an import cycle with internal/config.
type Settings struct {
	DebugMode  bool
	Categories map[string]bool // per-category on/off; absent == enabled when DebugMode
	Level      string          // debug|info|warn|error
	JSONFormat bool
}

const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	settings Settings
	level    = LevelInfo
	ready    bool
)

// Initialize sets the logs directory and settings. Call once at
// startup; safe to call again (e.g. after a config reload) to apply
// new settings, though already-open per-category files keep writing.
func Initialize(root string, s Settings) error {
	mu.Lock()
	defer mu.Unlock()

	settings = s
	switch s.Level {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}

	if !s.DebugMode {
		logsDir = ""
		ready = true
		return nil
	}

	logsDir = filepath.Join(root, ".memtask", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("logging: create logs dir: %w", err)
	}
	ready = true
	return nil
}

func categoryEnabled(cat Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(cat)]
	if !ok {
		return true
	}
	return enabled
}

// Logger wraps a zap SugaredLogger scoped to one category; the zero
// value is a safe no-op logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

// Get returns (creating if needed) the logger for a category.
func Get(cat Category) *Logger {
	if !categoryEnabled(cat) {
		return &Logger{category: cat}
	}

	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	if logsDir == "" {
		return &Logger{category: cat}
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", cat, date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return &Logger{category: cat}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if settings.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.DebugLevel)
	zl := zap.New(core).With(zap.String("category", string(cat)))

	l := &Logger{category: cat, sugar: zl.Sugar(), file: f}
	loggers[cat] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil || level > LevelDebug {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil || level > LevelInfo {
		return
	}
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil || level > LevelWarn {
		return
	}
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// WithFields returns a derived logger carrying structured key/value context.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{category: l.category, sugar: l.sugar.With(args...), file: l.file}
}

// Timer measures and logs the duration of an operation at Debug level.
type Timer struct {
	logger    *Logger
	operation string
	start     time.Time
}

// StartTimer begins timing operation under category; call Stop when done.
func StartTimer(cat Category, operation string) *Timer {
	return &Timer{logger: Get(cat), operation: operation, start: time.Now()}
}

// Stop logs the elapsed duration and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.logger.Debug("%s took %s", t.operation, d)
	return d
}

// StopWithThreshold logs at Warn level if the elapsed duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	d := time.Since(t.start)
	if d > threshold {
		t.logger.Warn("%s took %s (over %s threshold)", t.operation, d, threshold)
	} else {
		t.logger.Debug("%s took %s", t.operation, d)
	}
	return d
}

// Sync flushes all open category loggers; call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
	}
}

// IsDebugMode reports whether logging is enabled at all.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return settings.DebugMode
}
