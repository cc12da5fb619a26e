package audit

import (
	"context"
	"time"

	"github.com/coreguard/coreguard/internal/observability"
)

// MaxErrorLength is the maximum length for error strings in records.
const MaxErrorLength = 2048

// Session tracks one call from acceptance to envelope.
type Session struct {
	ctx        context.Context
	start      time.Time
	method     string
	path       string
	batchIndex *int
	params     []any
}

// Start session. batchIndex is negative for single calls.
func Start(ctx context.Context, method, path string, batchIndex int, params []any) *Session {
	s := &Session{
		ctx:    ctx,
		start:  time.Now(),
		method: method,
		path:   path,
		params: params,
	}
	if batchIndex >= 0 {
		idx := batchIndex
		s.batchIndex = &idx
	}
	return s
}

// Finish writes the record. Without a writer in the context it does nothing.
func (s *Session) Finish(result Result, rewritten bool) error {
	w := From(s.ctx)
	if w == nil {
		return nil
	}

	params, wasRedacted := RedactParams(s.params)
	result.Error = truncateError(result.Error)

	return w.Write(Record{
		SchemaVersion:  SchemaVersion,
		OpID:           observability.OpID(s.ctx),
		TsStart:        s.start.Format(time.RFC3339Nano),
		TsEnd:          time.Now().Format(time.RFC3339Nano),
		Method:         s.method,
		Path:           s.path,
		BatchIndex:     s.batchIndex,
		Params:         params,
		ParamsRedacted: wasRedacted,
		Rewritten:      rewritten,
		Result:         result,
	})
}

// truncateError helper
func truncateError(s string) string {
	if len(s) <= MaxErrorLength {
		return s
	}
	return s[:MaxErrorLength-3] + "..."
}
