package logger

import (
	"fmt"
	"slices"
	"sync"
)

// TestLogEntry is a single captured log entry.
type TestLogEntry struct {
	Severity string
	Message  string
}

// TestLogger captures log entries in memory for assertions in tests.
type TestLogger struct {
	mu       sync.Mutex
	prefixes []string
	metadata map[string]interface{}
	entries  []TestLogEntry
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a Logger that records every entry it receives.
func NewTestLogger() *TestLogger {
	return &TestLogger{metadata: map[string]interface{}{}}
}

// Entries returns a copy of all captured entries.
func (t *TestLogger) Entries() []TestLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TestLogEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *TestLogger) record(severity, msg string, args ...interface{}) {
	t.mu.Lock()
	t.entries = append(t.entries, TestLogEntry{
		Severity: severity,
		Message:  fmt.Sprintf(msg, args...),
	})
	t.mu.Unlock()
}

func (t *TestLogger) With(metadata map[string]interface{}) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range metadata {
		t.metadata[k] = v
	}
	return t
}

func (t *TestLogger) WithPrefix(prefix string) Logger {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.prefixes, prefix) {
		t.prefixes = append(t.prefixes, prefix)
	}
	return t
}

func (t *TestLogger) IsLevelEnabled(LogLevel) bool { return true }

func (t *TestLogger) Trace(msg string, args ...interface{}) { t.record("TRACE", msg, args...) }
func (t *TestLogger) Debug(msg string, args ...interface{}) { t.record("DEBUG", msg, args...) }
func (t *TestLogger) Info(msg string, args ...interface{})  { t.record("INFO", msg, args...) }
func (t *TestLogger) Warn(msg string, args ...interface{})  { t.record("WARN", msg, args...) }
func (t *TestLogger) Error(msg string, args ...interface{}) { t.record("ERROR", msg, args...) }

// Fatal records the entry but does not exit, so tests can assert on it.
func (t *TestLogger) Fatal(msg string, args ...interface{}) { t.record("FATAL", msg, args...) }
