package proxy

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseRequest_Single(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantMethod string
		wantParams []any
		wantErr    string
	}{
		{
			name:       "method only",
			body:       `{"method":"getblockcount"}`,
			wantMethod: "getblockcount",
			wantParams: []any{},
		},
		{
			name:       "with params",
			body:       `{"method":"getblockhash","params":[100]}`,
			wantMethod: "getblockhash",
			wantParams: []any{json.Number("100")},
		},
		{
			name:       "null params default to empty",
			body:       `{"method":"uptime","params":null}`,
			wantMethod: "uptime",
			wantParams: []any{},
		},
		{
			name:       "non-string method rendered as JSON",
			body:       `{"method":42}`,
			wantMethod: "42",
			wantParams: []any{},
		},
		{
			name:       "null method",
			body:       `{"method":null}`,
			wantMethod: "null",
			wantParams: []any{},
		},
		{
			name:    "missing method",
			body:    `{"params":[]}`,
			wantErr: "malformed request: no method supplied",
		},
		{
			name:    "scalar body",
			body:    `"getblockcount"`,
			wantErr: "malformed request: no method supplied",
		},
		{
			name:    "object params",
			body:    `{"method":"getblockhash","params":{"height":1}}`,
			wantErr: "malformed request: params must be an array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ParseRequest([]byte(tt.body))
			if req.Kind != KindSingle {
				t.Fatalf("Kind = %v, want single", req.Kind)
			}
			if req.Invalid != nil {
				t.Fatalf("unexpected request-level error %q", req.Invalid.Error.Message)
			}
			if len(req.Calls) != 1 {
				t.Fatalf("len(Calls) = %d, want 1", len(req.Calls))
			}
			call := req.Calls[0]

			if tt.wantErr != "" {
				if call.Invalid == nil {
					t.Fatalf("expected invalid call %q", tt.wantErr)
				}
				if call.Invalid.Error.Message != tt.wantErr {
					t.Errorf("message = %q, want %q", call.Invalid.Error.Message, tt.wantErr)
				}
				if call.Invalid.Error.Code != DefaultErrorCode {
					t.Errorf("code = %d, want %d", call.Invalid.Error.Code, DefaultErrorCode)
				}
				return
			}
			if call.Invalid != nil {
				t.Fatalf("unexpected invalid call %q", call.Invalid.Error.Message)
			}
			if call.Method != tt.wantMethod || !call.HasMethod {
				t.Errorf("Method = %q (has=%v), want %q", call.Method, call.HasMethod, tt.wantMethod)
			}
			if !reflect.DeepEqual(call.Params, tt.wantParams) {
				t.Errorf("Params = %#v, want %#v", call.Params, tt.wantParams)
			}
		})
	}
}

func TestParseRequest_Batch(t *testing.T) {
	body := `[{"method":"getblockcount"}, {"params":[]}, 7, {"method":"x","params":"y"}, {"method":"uptime"}]`
	req := ParseRequest([]byte(body))

	if req.Kind != KindBatch || req.Invalid != nil {
		t.Fatalf("Kind = %v, Invalid = %v", req.Kind, req.Invalid)
	}
	if len(req.Calls) != 5 {
		t.Fatalf("len(Calls) = %d, want 5", len(req.Calls))
	}

	want := []string{
		"",
		"malformed request item: no method supplied",
		"malformed request item: no method supplied",
		"malformed request item: params must be an array",
		"",
	}
	for i, call := range req.Calls {
		got := ""
		if call.Invalid != nil {
			got = call.Invalid.Error.Message
			if call.Invalid.Kind != KindMalformedItem {
				t.Errorf("item %d kind = %s, want %s", i, call.Invalid.Kind, KindMalformedItem)
			}
		}
		if got != want[i] {
			t.Errorf("item %d error = %q, want %q", i, got, want[i])
		}
	}
}

func TestParseRequest_RequestLevelErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind RequestKind
		msg  string
	}{
		{"empty batch", `[]`, KindBatch, "empty-list"},
		{"invalid json", `{"method":`, KindSingle, "malformed request: invalid JSON body"},
		{"empty body", ``, KindSingle, "malformed request: invalid JSON body"},
		{"trailing garbage", `{"method":"uptime"} {}`, KindSingle, "malformed request: invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := ParseRequest([]byte(tt.body))
			if req.Invalid == nil {
				t.Fatal("expected request-level error")
			}
			if req.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", req.Kind, tt.kind)
			}
			if req.Invalid.Error.Message != tt.msg {
				t.Errorf("message = %q, want %q", req.Invalid.Error.Message, tt.msg)
			}
			if len(req.Calls) != 0 {
				t.Errorf("Calls should be empty, got %d", len(req.Calls))
			}
		})
	}
}

func TestParseRequest_PreservesNumbers(t *testing.T) {
	req := ParseRequest([]byte(`{"method":"m","params":[18446744073709551615, 0.00000001, 1e-8]}`))
	want := []any{json.Number("18446744073709551615"), json.Number("0.00000001"), json.Number("1e-8")}
	if !reflect.DeepEqual(req.Calls[0].Params, want) {
		t.Errorf("Params = %#v, want %#v", req.Calls[0].Params, want)
	}
}

func TestReadRequest_BodyTooLarge(t *testing.T) {
	body := `{"method":"uptime","params":["` + strings.Repeat("a", MaxRequestBodySize) + `"]}`
	req := ReadRequest(bytes.NewReader([]byte(body)))
	if req.Invalid == nil || req.Invalid.Error.Message != "malformed request: body too large" {
		t.Fatalf("expected body too large, got %+v", req.Invalid)
	}
}

func TestReadRequest_AtLimit(t *testing.T) {
	prefix := `{"method":"uptime","params":["`
	suffix := `"]}`
	body := prefix + strings.Repeat("a", MaxRequestBodySize-len(prefix)-len(suffix)) + suffix
	req := ReadRequest(strings.NewReader(body))
	if req.Invalid != nil {
		t.Fatalf("body of exactly MaxRequestBodySize rejected: %s", req.Invalid.Error.Message)
	}
}
