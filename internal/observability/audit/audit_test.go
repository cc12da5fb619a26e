package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreguard/coreguard/internal/observability"
)

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("invalid JSONL line: %v\nContent: %s", err, scanner.Text())
		}
		records = append(records, r)
	}
	return records
}

func TestWriter_AppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")

	w, err := NewWriter(path, WriterOptions{})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	for _, method := range []string{"getblockcount", "uptime"} {
		if err := w.Write(Record{SchemaVersion: SchemaVersion, Method: method, Result: Result{Status: "success"}}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	records := readRecords(t, path)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Method != "getblockcount" || records[1].Method != "uptime" {
		t.Errorf("records out of order: %+v", records)
	}
}

func TestSession_FinishWritesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	w, err := NewWriter(path, WriterOptions{})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	ctx := WithWriter(observability.WithOpID(context.Background()), w)
	params := []any{
		[]any{map[string]any{"desc": "wpkh(tb1qxyz)", "keys": []any{"cVt4o7BGAig1UXywgGSmARhxMdzP5qvQsxKkSsc1XEkw3tDTQFpy"}}},
		map[string]any{"rescan": true},
	}

	s := Start(ctx, "importmulti", "wallet/hot", 2, params)
	if err := s.Finish(Result{Status: "fail", Kind: "upstream", Code: -4, Error: strings.Repeat("x", MaxErrorLength+10)}, true); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	_ = w.Close()

	records := readRecords(t, path)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.OpID != observability.OpID(ctx) {
		t.Errorf("op_id = %q, want %q", r.OpID, observability.OpID(ctx))
	}
	if r.BatchIndex == nil || *r.BatchIndex != 2 {
		t.Errorf("batch_index = %v, want 2", r.BatchIndex)
	}
	if !r.ParamsRedacted {
		t.Error("params_redacted should be true")
	}
	if !r.Rewritten {
		t.Error("rewritten should be true")
	}
	if len(r.Result.Error) != MaxErrorLength {
		t.Errorf("error length = %d, want %d", len(r.Result.Error), MaxErrorLength)
	}

	// the caller's params are untouched
	keys := params[0].([]any)[0].(map[string]any)["keys"].([]any)
	if keys[0] == redactedValue {
		t.Error("RedactParams mutated the input")
	}
}

func TestSession_NoWriter(t *testing.T) {
	s := Start(context.Background(), "uptime", "", -1, nil)
	if err := s.Finish(Result{Status: "success"}, false); err != nil {
		t.Errorf("Finish without writer = %v, want nil", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write(Record) error { return errors.New("disk full") }
func (failingWriter) Close() error       { return nil }

func TestSession_WriterError(t *testing.T) {
	ctx := WithWriter(context.Background(), failingWriter{})
	if err := Start(ctx, "uptime", "", -1, nil).Finish(Result{Status: "success"}, false); err == nil {
		t.Error("expected writer error to propagate")
	}
}
