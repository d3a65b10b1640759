// Package logtest provides a recording migrator.Logger for tests.
package logtest

import (
	"context"
	"sync"
)

// Entry is one recorded log call.
type Entry struct {
	Level   string
	Msg     string
	Keyvals []interface{}
}

// Value returns the value logged for key, or nil.
func (e Entry) Value(key string) interface{} {
	for i := 0; i+1 < len(e.Keyvals); i += 2 {
		if k, ok := e.Keyvals[i].(string); ok && k == key {
			return e.Keyvals[i+1]
		}
	}
	return nil
}

// Logger records every call. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
}

// New returns an empty recording logger.
func New() *Logger {
	return &Logger{}
}

func (l *Logger) record(level, msg string, keyvals []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Keyvals: keyvals})
}

// Debug implements migrator.Logger.
func (l *Logger) Debug(_ context.Context, msg string, keyvals ...interface{}) {
	l.record("debug", msg, keyvals)
}

// Info implements migrator.Logger.
func (l *Logger) Info(_ context.Context, msg string, keyvals ...interface{}) {
	l.record("info", msg, keyvals)
}

// Warn implements migrator.Logger.
func (l *Logger) Warn(_ context.Context, msg string, keyvals ...interface{}) {
	l.record("warn", msg, keyvals)
}

// Error implements migrator.Logger.
func (l *Logger) Error(_ context.Context, msg string, keyvals ...interface{}) {
	l.record("error", msg, keyvals)
}

// Entries returns a copy of the recorded entries.
func (l *Logger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Level returns the recorded entries at level.
func (l *Logger) Level(level string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
