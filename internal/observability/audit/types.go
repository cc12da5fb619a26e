// Package audit writes one evidence record per forwarded call.
package audit

// SchemaVersion of Record.
const SchemaVersion = "1.0"

// Record structure
type Record struct {
	SchemaVersion  string `json:"schema_version"`
	OpID           string `json:"op_id"`
	TsStart        string `json:"ts_start"`
	TsEnd          string `json:"ts_end"`
	Method         string `json:"method"`
	Path           string `json:"path,omitempty"`
	BatchIndex     *int   `json:"batch_index,omitempty"`
	Params         []any  `json:"params"`
	ParamsRedacted bool   `json:"params_redacted,omitempty"`
	// Rewritten is set when the rescan guard changed the forwarded params.
	Rewritten bool   `json:"rewritten,omitempty"`
	Result    Result `json:"result"`
}

// Result of the call as seen by the caller.
type Result struct {
	Status string `json:"status"` // "success" or "fail"
	Kind   string `json:"kind,omitempty"`
	Code   int    `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}
