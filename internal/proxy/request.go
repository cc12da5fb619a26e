package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxRequestBodySize caps inbound bodies at 10MB.
const MaxRequestBodySize = 10 * 1024 * 1024

// RequestKind says whether the body was a single call or a batch.
type RequestKind int

const (
	KindSingle RequestKind = iota
	KindBatch
)

func (k RequestKind) String() string {
	if k == KindBatch {
		return "batch"
	}
	return "single"
}

// Call is one parsed call. When Invalid is set the call must not be forwarded
// and Invalid is the envelope to answer with.
type Call struct {
	Method    string
	HasMethod bool
	Params    []any
	Invalid   *Envelope
}

// Request is the body resolved once at ingress. Invalid is set when the body as a
// whole is rejected (bad JSON, too large, empty batch); Calls is then empty.
type Request struct {
	Kind    RequestKind
	Calls   []Call
	Invalid *Envelope
}

var errBodyTooLarge = errors.New("request body too large")

// ReadRequest reads and parses an HTTP body.
func ReadRequest(r io.Reader) Request {
	data, err := readLimited(r, MaxRequestBodySize)
	if err != nil {
		env := errorEnvelope(KindMalformed, msgInvalidJSON)
		if errors.Is(err, errBodyTooLarge) {
			env = errorEnvelope(KindMalformed, msgBodyTooLarge)
		}
		return Request{Kind: KindSingle, Invalid: &env}
	}
	return ParseRequest(data)
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// ParseRequest decodes body into a Request. It never fails: problems are carried
// as envelopes in the result.
func ParseRequest(body []byte) Request {
	doc, err := decodeJSONWithNumber(body)
	if err != nil {
		env := errorEnvelope(KindMalformed, msgInvalidJSON)
		return Request{Kind: KindSingle, Invalid: &env}
	}

	items, isBatch := doc.([]any)
	if !isBatch {
		return Request{Kind: KindSingle, Calls: []Call{parseCall(doc, false)}}
	}
	if len(items) == 0 {
		env := errorEnvelope(KindEmptyBatch, msgEmptyList)
		return Request{Kind: KindBatch, Invalid: &env}
	}

	calls := make([]Call, len(items))
	for i, item := range items {
		calls[i] = parseCall(item, true)
	}
	return Request{Kind: KindBatch, Calls: calls}
}

// decodeJSONWithNumber keeps numbers as json.Number so amounts and large
// integers reach the node exactly as the client wrote them.
func decodeJSONWithNumber(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing data after document")
	}
	return doc, nil
}

func parseCall(v any, item bool) Call {
	noMethod, badParams, kind := msgNoMethod, msgParamsNotArray, KindMalformed
	if item {
		noMethod, badParams, kind = msgItemNoMethod, msgItemParamsNoArray, KindMalformedItem
	}

	obj, ok := v.(map[string]any)
	if !ok {
		env := errorEnvelope(kind, noMethod)
		return Call{Invalid: &env}
	}
	rawMethod, ok := obj["method"]
	if !ok {
		env := errorEnvelope(kind, noMethod)
		return Call{Invalid: &env}
	}

	call := Call{Method: methodName(rawMethod), HasMethod: true, Params: []any{}}
	switch p := obj["params"].(type) {
	case nil:
	case []any:
		call.Params = p
	default:
		env := errorEnvelope(kind, badParams)
		call.Invalid = &env
	}
	return call
}

// methodName renders non-string methods as their JSON text so they can be
// reported without ever matching the allowlist.
func methodName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
