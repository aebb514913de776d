package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is log severity
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel converts a string to a Level, defaulting to INFO
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or a file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"`
	JSONFormat  bool   `json:"json_format"`
}

// Logger emits structured log lines. Message arguments are strictly
// alternating key/value pairs; there is no printf interpretation. A dangling
// value is recorded under "!BADKEY" rather than dropped.
type Logger struct {
	out         io.Writer
	outMu       *sync.Mutex
	level       Level
	component   string
	fields      []kv
	json        bool
	includeFile bool
}

type kv struct {
	key   string
	value interface{}
}

// New creates a logger from config. An unopenable file path falls back to
// stdout.
func New(cfg *Config) *Logger {
	var out io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			out = f
		}
	}

	return &Logger{
		out:         out,
		outMu:       &sync.Mutex{},
		level:       ParseLevel(cfg.Level),
		component:   cfg.Component,
		json:        cfg.JSONFormat,
		includeFile: cfg.IncludeFile,
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Default returns the process-wide logger, creating a JSON stdout logger at
// INFO on first use
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(&Config{Level: "INFO", Component: "app", JSONFormat: true})
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

func (l *Logger) child() *Logger {
	cp := *l
	cp.fields = append([]kv(nil), l.fields...)
	return &cp
}

// WithComponent returns a logger tagged with the given component
func (l *Logger) WithComponent(component string) *Logger {
	cp := l.child()
	cp.component = component
	return cp
}

// WithField returns a logger carrying an extra field on every line
func (l *Logger) WithField(key string, value interface{}) *Logger {
	cp := l.child()
	cp.fields = append(cp.fields, kv{key, value})
	return cp
}

// WithError returns a logger carrying the error as a field; a nil error
// returns the receiver unchanged
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug logs at DEBUG with key/value pairs
func (l *Logger) Debug(msg string, keyvals ...interface{}) { l.emit(DEBUG, msg, keyvals) }

// Info logs at INFO with key/value pairs
func (l *Logger) Info(msg string, keyvals ...interface{}) { l.emit(INFO, msg, keyvals) }

// Warn logs at WARN with key/value pairs
func (l *Logger) Warn(msg string, keyvals ...interface{}) { l.emit(WARN, msg, keyvals) }

// Error logs at ERROR with key/value pairs
func (l *Logger) Error(msg string, keyvals ...interface{}) { l.emit(ERROR, msg, keyvals) }

// Fatal logs at FATAL and exits
func (l *Logger) Fatal(msg string, keyvals ...interface{}) {
	l.emit(FATAL, msg, keyvals)
	os.Exit(1)
}

// entry is the JSON line shape
type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) emit(level Level, msg string, keyvals []interface{}) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
	}
	if l.includeFile {
		if _, file, line, ok := runtime.Caller(2); ok {
			if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
				file = file[idx+1:]
			}
			e.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	pairs := collectPairs(l.fields, keyvals)
	if len(pairs) > 0 {
		e.Fields = make(map[string]interface{}, len(pairs))
		for _, p := range pairs {
			e.Fields[p.key] = p.value
		}
	}

	l.outMu.Lock()
	defer l.outMu.Unlock()
	if l.json {
		data, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(l.out, `{"level":"ERROR","message":"log entry not serializable: %v"}`+"\n", err)
			return
		}
		l.out.Write(append(data, '\n'))
		return
	}
	l.out.Write([]byte(formatText(e, pairs)))
}

// collectPairs merges the logger's bound fields with call-site key/value
// arguments. Non-string keys and a dangling final value go under "!BADKEY";
// error values are flattened to their string form.
func collectPairs(bound []kv, keyvals []interface{}) []kv {
	pairs := append([]kv(nil), bound...)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 >= len(keyvals) {
			pairs = append(pairs, kv{"!BADKEY", keyvals[i]})
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		value := keyvals[i+1]
		if err, isErr := value.(error); isErr && err != nil {
			value = err.Error()
		}
		pairs = append(pairs, kv{key, value})
	}
	return pairs
}

// formatText renders one human-readable line with fields sorted by key
func formatText(e entry, pairs []kv) string {
	var b strings.Builder
	ts := e.Timestamp
	if len(ts) > 19 {
		ts = ts[:19] // drop sub-second noise in text mode
	}
	b.WriteString(ts)
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("%-5s", e.Level))
	if e.Component != "" {
		b.WriteString(" [")
		b.WriteString(e.Component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(e.Message)

	sorted := append([]kv(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].key < sorted[j].key })
	for _, p := range sorted {
		b.WriteString(" ")
		b.WriteString(p.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(p.value))
	}
	if e.Caller != "" {
		b.WriteString(" (")
		b.WriteString(e.Caller)
		b.WriteString(")")
	}
	b.WriteString("\n")
	return b.String()
}

// Package-level helpers on the default logger

func Debug(msg string, keyvals ...interface{}) { Default().Debug(msg, keyvals...) }
func Info(msg string, keyvals ...interface{})  { Default().Info(msg, keyvals...) }
func Warn(msg string, keyvals ...interface{})  { Default().Warn(msg, keyvals...) }
func Error(msg string, keyvals ...interface{}) { Default().Error(msg, keyvals...) }

// WithComponent tags the default logger with a component
func WithComponent(component string) *Logger {
	return Default().WithComponent(component)
}
