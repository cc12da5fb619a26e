package logging

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreguard/coreguard/internal/observability"
)

// textLogger writes one human readable line per entry:
//
//	2024-05-01T10:00:00Z INFO  forward complete op_id=... method=getblockcount
type textLogger struct {
	writer   io.Writer
	closer   io.Closer
	minLevel int
	mu       sync.Mutex
}

func (t *textLogger) write(level, component, msg string, opID string, fields map[string]any) {
	if levelPriority(level) < t.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, " %-5s %s: %s", strings.ToUpper(level), component, msg)
	if opID != "" {
		b.WriteString(" op_id=" + opID)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	b.WriteByte('\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.writer, b.String())
}

func (t *textLogger) Debug(component, msg string, fields ...any) {
	t.write(LevelDebug, component, msg, "", kvFields(fields))
}

func (t *textLogger) Info(component, msg string, fields ...any) {
	t.write(LevelInfo, component, msg, "", kvFields(fields))
}

func (t *textLogger) Warn(component, msg string, fields ...any) {
	t.write(LevelWarn, component, msg, "", kvFields(fields))
}

func (t *textLogger) Error(component, msg string, fields ...any) {
	t.write(LevelError, component, msg, "", kvFields(fields))
}

func (t *textLogger) Event(ctx context.Context, event string, fields map[string]any) {
	t.write(LevelInfo, eventComponent(event), event, observability.OpID(ctx), fields)
}

func (t *textLogger) WarnEvent(ctx context.Context, event string, fields map[string]any) {
	t.write(LevelWarn, eventComponent(event), event, observability.OpID(ctx), fields)
}

func (t *textLogger) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
