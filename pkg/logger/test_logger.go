package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures log entries so tests can assert on them. Loggers
// derived with WithField/WithFields record into the parent's entry list.
type TestLogger struct {
	mu      sync.Mutex
	entries []Entry
	fields  map[string]interface{}
	parent  *TestLogger
	zerolog *zerolog.Logger
}

var _ Logger = (*TestLogger)(nil)

// Entry is a single captured log entry.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a logger that records entries instead of emitting them.
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{zerolog: &nop}
}

// root returns the logger that owns the entry list.
func (l *TestLogger) root() *TestLogger {
	if l.parent != nil {
		return l.parent
	}
	return l
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Fields: merged})
}

func (l *TestLogger) Debug(msg string) { l.record("debug", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("info", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("warn", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("error", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("debug", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("info", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("warn", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("error", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TestLogger{fields: merged, parent: l.root(), zerolog: l.zerolog}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *TestLogger) GetZerolog() *zerolog.Logger { return l.zerolog }

// Entries returns a copy of all captured entries.
func (l *TestLogger) Entries() []Entry {
	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// EntriesByLevel returns captured entries at the given level.
func (l *TestLogger) EntriesByLevel(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// HasMessage reports whether an entry with the given message was recorded.
func (l *TestLogger) HasMessage(text string) bool {
	for _, e := range l.Entries() {
		if e.Message == text {
			return true
		}
	}
	return false
}

// Clear drops all captured entries.
func (l *TestLogger) Clear() {
	r := l.root()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}
