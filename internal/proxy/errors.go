package proxy

import (
	"encoding/json"

	"github.com/coreguard/coreguard/internal/upstream"
)

// DefaultErrorCode is the code of every error the proxy produces itself.
const DefaultErrorCode = -2020

// ErrorKind classifies locally generated errors for logs, metrics and audit records.
// It never reaches the caller.
type ErrorKind string

const (
	KindMalformed     ErrorKind = "malformed"
	KindMalformedItem ErrorKind = "malformed_item"
	KindEmptyBatch    ErrorKind = "empty_batch"
	KindUnsupported   ErrorKind = "unsupported"
	KindPolicy        ErrorKind = "policy"
	KindTransport     ErrorKind = "transport"
	KindTimeout       ErrorKind = "timeout"
	KindUpstream      ErrorKind = "upstream"
)

const (
	msgNoMethod          = "malformed request: no method supplied"
	msgItemNoMethod      = "malformed request item: no method supplied"
	msgEmptyList         = "empty-list"
	msgInvalidJSON       = "malformed request: invalid JSON body"
	msgBodyTooLarge      = "malformed request: body too large"
	msgParamsNotArray    = "malformed request: params must be an array"
	msgItemParamsNoArray = "malformed request item: params must be an array"
	msgUnsupportedPrefix = "Unsupported RPC call: "
)

// RPCError is the error half of an Envelope.
type RPCError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Envelope is the response for one call. Both keys are always serialized;
// a nil Result encodes as null.
type Envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`

	Kind ErrorKind `json:"-"`
}

// OK reports whether the envelope carries a result rather than an error.
func (e Envelope) OK() bool { return e.Error == nil }

func resultEnvelope(result json.RawMessage) Envelope {
	return Envelope{Result: result}
}

func errorEnvelope(kind ErrorKind, msg string) Envelope {
	return Envelope{
		Error: &RPCError{Message: msg, Code: DefaultErrorCode},
		Kind:  kind,
	}
}

// upstreamErrorEnvelope relays the node's own code and message.
func upstreamErrorEnvelope(e *upstream.RPCError) Envelope {
	return Envelope{
		Error: &RPCError{Message: e.Message, Code: e.Code},
		Kind:  KindUpstream,
	}
}

func unsupportedEnvelope(method string) Envelope {
	return errorEnvelope(KindUnsupported, msgUnsupportedPrefix+method)
}
