package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"tradebot/pkg/boterr"
	"tradebot/pkg/config"
)

const (
	defaultFormat = "text"
	defaultLevel  = "info"

	defaultFileMaxSizeMB  = 50
	defaultFileMaxBackups = 3
	defaultFileMaxAgeDays = 14

	envLogFormat    = "TRADEBOT_LOG_FORMAT"
	envLogLevel     = "TRADEBOT_LOG_LEVEL"
	envLogAddSource = "TRADEBOT_LOG_ADD_SOURCE"
	envLogFile      = "TRADEBOT_LOG_FILE"
)

// LogEntry is one JSON log line. Keys that identify a component, an event or
// an update are lifted out of the field map so lines can be correlated.
type LogEntry struct {
	Level         string         `json:"level"`
	Timestamp     string         `json:"timestamp"`
	Component     string         `json:"component,omitempty"`
	EventSeq      *int64         `json:"event_seq,omitempty"`
	UpdateID      *int64         `json:"update_id,omitempty"`
	Message       string         `json:"message"`
	Error         string         `json:"error,omitempty"`
	ErrorCategory string         `json:"error_category,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
	Caller        string         `json:"caller,omitempty"`
}

// settings is the logging configuration after environment overrides.
type settings struct {
	format    string
	level     slog.Level
	addSource bool
}

func resolve(cfg config.LoggingConfig) (settings, error) {
	format := strings.ToLower(envOr(envLogFormat, cfg.Format))
	if format == "" {
		format = defaultFormat
	}
	if format != "json" && format != "text" {
		return settings{}, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(envOr(envLogLevel, cfg.Level))
	if err != nil {
		return settings{}, err
	}

	addSource := cfg.AddSource
	if raw := strings.TrimSpace(os.Getenv(envLogAddSource)); raw != "" {
		addSource = parseBool(raw)
	}

	return settings{format: format, level: level, addSource: addSource}, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}

// New builds the process logger. When a log file is configured, entries are
// written to stderr and to a size-rotated file.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, sinkFor(cfg, os.Stderr))
}

func newWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	if s.format == "json" {
		return slog.New(&jsonHandler{settings: s, out: &lockedWriter{w: w}}), nil
	}

	return slog.New(charmLog.NewWithOptions(w, charmLog.Options{
		Level:           charmLevel(s.level),
		ReportTimestamp: true,
		ReportCaller:    s.addSource,
		TimeFormat:      time.TimeOnly,
		Formatter:       charmLog.TextFormatter,
	})), nil
}

func sinkFor(cfg config.LoggingConfig, console io.Writer) io.Writer {
	path := envOr(envLogFile, cfg.File)
	if path == "" {
		return console
	}

	return io.MultiWriter(console, rotatingFile(path, cfg))
}

func rotatingFile(path string, cfg config.LoggingConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    positiveOr(cfg.MaxSizeMB, defaultFileMaxSizeMB),
		MaxBackups: positiveOr(cfg.MaxBackups, defaultFileMaxBackups),
		MaxAge:     positiveOr(cfg.MaxAgeDays, defaultFileMaxAgeDays),
	}
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseLevel(text string) (slog.Level, error) {
	switch strings.ToLower(text) {
	case "":
		return parseLevel(defaultLevel)
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", text)
	}
}

func parseBool(input string) bool {
	switch strings.ToLower(input) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) writeLine(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(append(line, '\n'))
	return err
}

// jsonHandler writes one LogEntry per record. Attributes bound with With are
// kept unresolved and replayed on every record.
type jsonHandler struct {
	settings
	out    *lockedWriter
	bound  []slog.Attr
	prefix string
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := &LogEntry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Message:   record.Message,
	}
	for _, attr := range h.bound {
		entry.add(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		if h.prefix != "" {
			attr.Key = h.prefix + attr.Key
		}
		entry.add(attr)
		return true
	})
	if h.addSource {
		entry.Caller = caller(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return h.out.writeLine(line)
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = make([]slog.Attr, 0, len(h.bound)+len(attrs))
	next.bound = append(next.bound, h.bound...)
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		next.bound = append(next.bound, attr)
	}
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (e *LogEntry) add(attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	switch attr.Key {
	case "component":
		if attr.Value.Kind() == slog.KindString {
			e.Component = attr.Value.String()
			return
		}
	case "event_seq", "update_id":
		if attr.Value.Kind() == slog.KindInt64 {
			id := attr.Value.Int64()
			if attr.Key == "event_seq" {
				e.EventSeq = &id
			} else {
				e.UpdateID = &id
			}
			return
		}
	}

	if err, ok := attr.Value.Any().(error); ok && attr.Value.Kind() == slog.KindAny {
		if e.Error == "" {
			e.Error = err.Error()
			var categorized *boterr.Error
			if errors.As(err, &categorized) {
				e.ErrorCategory = categorized.Category
			}
			return
		}
	}

	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[attr.Key] = plain(attr.Value)
}

// plain converts a resolved slog value into something encoding/json renders
// readably.
func plain(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := value.Group()
		out := make(map[string]any, len(group))
		for _, item := range group {
			out[item.Key] = plain(item.Value.Resolve())
		}
		return out
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		if s, ok := value.Any().(fmt.Stringer); ok {
			return s.String()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

func caller(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}
