package proxy

import (
	"context"
	"encoding/json"
	"sync"
)

type recordedCall struct {
	Path   string
	Method string
	Params []any
}

// fakeCaller stands in for the node. respond defaults to echoing the method name.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(ctx context.Context, path, method string, params []any) (json.RawMessage, error)
}

func (f *fakeCaller) Call(ctx context.Context, path, method string, params []any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Path: path, Method: method, Params: params})
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(ctx, path, method, params)
	}
	b, _ := json.Marshal(method)
	return b, nil
}

func (f *fakeCaller) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedCall, len(f.calls))
	copy(out, f.calls)
	return out
}
