package logging

import (
	"context"
	"encoding/json"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coreguard/coreguard/internal/observability"
	"github.com/coreguard/coreguard/internal/version"
)

const SchemaVersion = "1.0"

// eventPrefix namespaces event names for log pipelines.
const eventPrefix = version.Name + "."

type jsonlLogger struct {
	writer   io.Writer
	closer   io.Closer
	minLevel int
	mu       sync.Mutex
}

type logEntry struct {
	Timestamp        string         `json:"ts"`
	Level            string         `json:"level"`
	Event            string         `json:"event,omitempty"`
	Component        string         `json:"component"`
	OpID             string         `json:"op_id"`
	SchemaVersion    string         `json:"schema_version"`
	CoreguardVersion string         `json:"coreguard_version,omitempty"`
	GoVersion        string         `json:"go_version,omitempty"`
	Message          string         `json:"msg,omitempty"`
	Fields           map[string]any `json:"fields,omitempty"`
}

func newEntry(level, component string) logEntry {
	return logEntry{
		Timestamp:        time.Now().Format(time.RFC3339Nano),
		Level:            level,
		Component:        component,
		SchemaVersion:    SchemaVersion,
		CoreguardVersion: version.BuildVersion(),
		GoVersion:        runtime.Version(),
	}
}

// eventComponent is the first dotted segment of an event name ("forward.complete" -> "forward").
func eventComponent(event string) string {
	component, _, _ := strings.Cut(event, ".")
	return component
}

func kvFields(fields []any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			out[key] = fields[i+1]
		}
	}
	return out
}

func (j *jsonlLogger) log(level, component, msg string, fields ...any) {
	if levelPriority(level) < j.minLevel {
		return
	}

	entry := newEntry(level, component)
	entry.Message = msg
	entry.Fields = kvFields(fields)

	j.writeEntry(entry)
}

func (j *jsonlLogger) event(ctx context.Context, level, event string, fields map[string]any) {
	if levelPriority(level) < j.minLevel {
		return
	}

	entry := newEntry(level, eventComponent(event))
	entry.Event = eventPrefix + event
	entry.OpID = observability.OpID(ctx)
	entry.Fields = fields

	j.writeEntry(entry)
}

func (j *jsonlLogger) Event(ctx context.Context, event string, fields map[string]any) {
	j.event(ctx, LevelInfo, event, fields)
}

func (j *jsonlLogger) WarnEvent(ctx context.Context, event string, fields map[string]any) {
	j.event(ctx, LevelWarn, event, fields)
}

func (j *jsonlLogger) writeEntry(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return // silently skip malformed entries
	}
	data = append(data, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	_, _ = j.writer.Write(data) // best effort
}

func (j *jsonlLogger) Debug(component, msg string, fields ...any) {
	j.log(LevelDebug, component, msg, fields...)
}

func (j *jsonlLogger) Info(component, msg string, fields ...any) {
	j.log(LevelInfo, component, msg, fields...)
}

func (j *jsonlLogger) Warn(component, msg string, fields ...any) {
	j.log(LevelWarn, component, msg, fields...)
}

func (j *jsonlLogger) Error(component, msg string, fields ...any) {
	j.log(LevelError, component, msg, fields...)
}

func (j *jsonlLogger) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
