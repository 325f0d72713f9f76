// Package logger emits structured JSON log lines for the integration service.
// Every entry carries the "klaviyo-webflow" service tag; contact data
// (emails, phone numbers) is redacted unless redaction is switched off.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

const serviceName = "klaviyo-webflow"

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a Level.
// Unknown values resolve to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	level     Level
	mu        sync.Mutex
	redactPII bool
	out       io.Writer
	fields    []interface{}
}

var defaultLogger = &Logger{level: INFO, redactPII: true, out: os.Stderr}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII = r }

// SetOutput redirects the default logger. Tests use this to capture entries.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// Component returns a logger that stamps every entry with component=name and
// shares the default logger's level, output and redaction settings.
func Component(name string) *Entry {
	return &Entry{fields: []interface{}{"component", name}}
}

// Entry is a field-carrying view of the default logger.
type Entry struct {
	fields   []interface{}
	verbatim bool
}

// With returns a copy of the entry with extra key/value pairs attached.
func (e *Entry) With(fields ...interface{}) *Entry {
	merged := make([]interface{}, 0, len(e.fields)+len(fields))
	merged = append(merged, e.fields...)
	merged = append(merged, fields...)
	return &Entry{fields: merged, verbatim: e.verbatim}
}

// Verbatim returns a copy of the entry that skips PII redaction. It is meant
// for explicit debug output where the operator asked to see raw values.
func (e *Entry) Verbatim() *Entry {
	return &Entry{fields: e.fields, verbatim: true}
}

func (e *Entry) Debug(msg string, fields ...interface{}) { e.emit(DEBUG, msg, fields) }

func (e *Entry) Info(msg string, fields ...interface{}) { e.emit(INFO, msg, fields) }

func (e *Entry) Warn(msg string, fields ...interface{}) { e.emit(WARN, msg, fields) }

func (e *Entry) Error(msg string, fields ...interface{}) { e.emit(ERROR, msg, fields) }

func (e *Entry) emit(level Level, msg string, fields []interface{}) {
	all := append(e.fields[:len(e.fields):len(e.fields)], fields...)
	defaultLogger.write(level, msg, defaultLogger.redactPII && !e.verbatim, all)
}

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.write(level, msg, l.redactPII, fields)
}

func (l *Logger) write(level Level, msg string, redact bool, fields []interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":    time.Now().UTC().Format(time.RFC3339),
		"level":   levelNames[level],
		"service": serviceName,
		"msg":     msg,
	}

	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if redact {
			val = redactPIIValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+[1-9][0-9]{7,14}`)
)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || strings.Contains(key, "subscriber") {
		return RedactEmail(val)
	}
	if strings.Contains(key, "phone") {
		return RedactPhone(val)
	}
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return phoneRegex.ReplaceAllStringFunc(val, RedactPhone)
}
