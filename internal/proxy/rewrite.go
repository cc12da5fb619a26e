package proxy

import (
	"encoding/json"
	"fmt"

	"github.com/wI2L/jsondiff"
)

// RescanKey is forced to false in every object parameter that carries it.
const RescanKey = "rescan"

// NormalizeParams returns the params to forward. Object elements holding a rescan key
// are copied with rescan set to false; params itself is never modified.
// changed reports whether any rescan value was not already false.
func NormalizeParams(params []any) (out []any, changed bool) {
	out = make([]any, len(params))
	for i, p := range params {
		obj, ok := p.(map[string]any)
		if !ok {
			out[i] = p
			continue
		}
		v, has := obj[RescanKey]
		if !has {
			out[i] = p
			continue
		}
		if b, isBool := v.(bool); !isBool || b {
			changed = true
		}
		cp := make(map[string]any, len(obj))
		for k, val := range obj {
			cp[k] = val
		}
		cp[RescanKey] = false
		out[i] = cp
	}
	return out, changed
}

// rewritePatch describes the difference between what the caller sent and what is
// forwarded, one "op path" entry per JSON Patch operation.
func rewritePatch(before, after []any) ([]string, error) {
	src, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	dst, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal normalized params: %w", err)
	}
	patch, err := jsondiff.CompareJSON(src, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}

	ops := make([]string, 0, len(patch))
	for _, op := range patch {
		ops = append(ops, fmt.Sprintf("%s %s", op.Type, op.Path))
	}
	return ops, nil
}
