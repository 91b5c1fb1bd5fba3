package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

// JSONLogEntry is the shape of a single structured log line. The field names
// follow the JSON format expected by Cloud Logging so entries can be ingested
// without a transform step.
type JSONLogEntry struct {
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Message   string                 `json:"message"`
	Severity  string                 `json:"severity,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Component string                 `json:"component,omitempty"`
}

type jsonLogger struct {
	prefixes  []string
	metadata  map[string]interface{}
	component string
	out       io.Writer
	logLevel  LogLevel
	now       func() time.Time // overridable for tests
}

var _ Logger = (*jsonLogger)(nil)

func (j *jsonLogger) clone() *jsonLogger {
	prefixes := make([]string, len(j.prefixes))
	copy(prefixes, j.prefixes)
	metadata := make(map[string]interface{}, len(j.metadata))
	for k, v := range j.metadata {
		metadata[k] = v
	}
	return &jsonLogger{
		prefixes:  prefixes,
		metadata:  metadata,
		component: j.component,
		out:       j.out,
		logLevel:  j.logLevel,
		now:       j.now,
	}
}

func (j *jsonLogger) With(metadata map[string]interface{}) Logger {
	l := j.clone()
	for k, v := range metadata {
		l.metadata[k] = v
	}
	if c, ok := metadata["component"].(string); ok {
		l.component = c
	}
	return l
}

func (j *jsonLogger) WithPrefix(prefix string) Logger {
	l := j.clone()
	if !slices.Contains(l.prefixes, prefix) {
		l.prefixes = append(l.prefixes, prefix)
	}
	return l
}

func (j *jsonLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= j.logLevel
}

func (j *jsonLogger) log(level LogLevel, msg string, args ...interface{}) {
	if level < j.logLevel {
		return
	}
	message := fmt.Sprintf(msg, args...)
	if len(j.prefixes) > 0 {
		message = strings.Join(j.prefixes, " ") + " " + message
	}
	entry := JSONLogEntry{
		Timestamp: j.now(),
		Message:   message,
		Severity:  level.String(),
		Metadata:  j.metadata,
		Component: j.component,
	}
	if len(entry.Metadata) == 0 {
		entry.Metadata = nil
	}
	buf, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: json.Marshal: %v\n", err)
		return
	}
	fmt.Fprintln(j.out, string(buf))
}

func (j *jsonLogger) Trace(msg string, args ...interface{}) {
	j.log(LevelTrace, msg, args...)
}

func (j *jsonLogger) Debug(msg string, args ...interface{}) {
	j.log(LevelDebug, msg, args...)
}

func (j *jsonLogger) Info(msg string, args ...interface{}) {
	j.log(LevelInfo, msg, args...)
}

func (j *jsonLogger) Warn(msg string, args ...interface{}) {
	j.log(LevelWarn, msg, args...)
}

func (j *jsonLogger) Error(msg string, args ...interface{}) {
	j.log(LevelError, msg, args...)
}

func (j *jsonLogger) Fatal(msg string, args ...interface{}) {
	j.log(LevelError, msg, args...)
	os.Exit(1)
}

// NewJSONLogger returns a Logger that writes one JSON entry per line to out.
func NewJSONLogger(out io.Writer, level LogLevel) Logger {
	if out == nil {
		out = os.Stdout
	}
	return &jsonLogger{
		out:      out,
		logLevel: level,
		metadata: map[string]interface{}{},
		now:      time.Now,
	}
}
