package logger

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/log"
)

// otelLogger forwards entries to an OpenTelemetry log.Logger.
type otelLogger struct {
	prefixes []string
	metadata map[string]log.Value
	logLevel LogLevel
	emitter  log.Logger
}

var _ Logger = (*otelLogger)(nil)

func toLogValue(unknown interface{}) log.Value {
	switch v := unknown.(type) {
	case string:
		return log.StringValue(v)
	case bool:
		return log.BoolValue(v)
	case int:
		return log.IntValue(v)
	case int64:
		return log.Int64Value(v)
	case float64:
		return log.Float64Value(v)
	case []byte:
		return log.BytesValue(v)
	case []interface{}:
		values := make([]log.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return log.SliceValue(values...)
	case map[string]interface{}:
		kvs := make([]log.KeyValue, 0, len(v))
		for key, val := range v {
			kvs = append(kvs, log.KeyValue{Key: key, Value: toLogValue(val)})
		}
		return log.MapValue(kvs...)
	default:
		return log.StringValue(fmt.Sprintf("%v", v))
	}
}

func (o *otelLogger) clone() *otelLogger {
	prefixes := make([]string, len(o.prefixes))
	copy(prefixes, o.prefixes)
	metadata := make(map[string]log.Value, len(o.metadata))
	for k, v := range o.metadata {
		metadata[k] = v
	}
	return &otelLogger{
		prefixes: prefixes,
		metadata: metadata,
		logLevel: o.logLevel,
		emitter:  o.emitter,
	}
}

func (o *otelLogger) With(metadata map[string]interface{}) Logger {
	l := o.clone()
	for k, v := range metadata {
		l.metadata[k] = toLogValue(v)
	}
	return l
}

func (o *otelLogger) WithPrefix(prefix string) Logger {
	l := o.clone()
	if !slices.Contains(l.prefixes, prefix) {
		l.prefixes = append(l.prefixes, prefix)
	}
	return l
}

func (o *otelLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= o.logLevel
}

func (o *otelLogger) log(level LogLevel, severity log.Severity, msg string, args ...interface{}) {
	if level < o.logLevel {
		return
	}
	message := fmt.Sprintf(msg, args...)
	if len(o.prefixes) > 0 {
		message = strings.Join(o.prefixes, " ") + " " + message
	}
	now := time.Now()
	var record log.Record
	record.SetBody(log.StringValue(message))
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	for k, v := range o.metadata {
		record.AddAttributes(log.KeyValue{Key: k, Value: v})
	}
	o.emitter.Emit(context.Background(), record)
}

func (o *otelLogger) Trace(msg string, args ...interface{}) {
	o.log(LevelTrace, log.SeverityTrace, msg, args...)
}

func (o *otelLogger) Debug(msg string, args ...interface{}) {
	o.log(LevelDebug, log.SeverityDebug, msg, args...)
}

func (o *otelLogger) Info(msg string, args ...interface{}) {
	o.log(LevelInfo, log.SeverityInfo, msg, args...)
}

func (o *otelLogger) Warn(msg string, args ...interface{}) {
	o.log(LevelWarn, log.SeverityWarn, msg, args...)
}

func (o *otelLogger) Error(msg string, args ...interface{}) {
	o.log(LevelError, log.SeverityError, msg, args...)
}

func (o *otelLogger) Fatal(msg string, args ...interface{}) {
	o.log(LevelError, log.SeverityError, msg, args...)
	os.Exit(1)
}

// NewOtelLogger returns a Logger that emits records through the provided
// OpenTelemetry log.Logger.
func NewOtelLogger(emitter log.Logger, level LogLevel) Logger {
	return &otelLogger{
		emitter:  emitter,
		logLevel: level,
		metadata: map[string]log.Value{},
	}
}
