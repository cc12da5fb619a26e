package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreguard/coreguard/internal/observability"
	"github.com/coreguard/coreguard/internal/observability/audit"
	"github.com/coreguard/coreguard/internal/observability/logging"
	"github.com/coreguard/coreguard/internal/observability/metrics"
	otelobs "github.com/coreguard/coreguard/internal/observability/otel"
	"github.com/coreguard/coreguard/internal/upstream"
)

// DefaultUpstreamTimeout bounds a single forwarded call.
const DefaultUpstreamTimeout = 30 * time.Second

// Caller performs one JSON-RPC call against the endpoint selected by path.
// *upstream.Client implements it.
type Caller interface {
	Call(ctx context.Context, path, method string, params []any) (json.RawMessage, error)
}

// Forwarder turns one Call into exactly one Envelope.
type Forwarder struct {
	enforcer *Enforcer
	caller   Caller
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewForwarder wires the enforcer to the upstream caller. m may be nil.
func NewForwarder(enforcer *Enforcer, caller Caller, timeout time.Duration, m *metrics.Metrics) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &Forwarder{enforcer: enforcer, caller: caller, timeout: timeout, metrics: m}
}

// Forward checks, rewrites and relays one call. batchIndex is negative for
// single-call requests.
func (f *Forwarder) Forward(ctx context.Context, call Call, path string, batchIndex int) (env Envelope) {
	log := logging.From(ctx)
	start := time.Now()

	ctx, span := otelobs.StartSpan(ctx, "coreguard.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("coreguard.op_id", observability.OpID(ctx)),
			attribute.String("coreguard.method", call.Method),
			attribute.String("coreguard.path", path),
		))

	sess := audit.Start(ctx, call.Method, path, batchIndex, call.Params)
	rewritten := false

	defer func() {
		outcome := outcomeOf(env)
		span.SetAttributes(attribute.String("coreguard.outcome", outcome))
		if env.OK() {
			span.SetStatus(codes.Ok, "success")
		} else {
			span.SetStatus(codes.Error, env.Error.Message)
		}
		span.End()

		f.metrics.ObserveCall(f.methodLabel(call.Method), outcome)

		fields := map[string]any{
			"method":      call.Method,
			"outcome":     outcome,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if path != "" {
			fields["path"] = path
		}
		if batchIndex >= 0 {
			fields["batch_index"] = batchIndex
		}
		if !env.OK() {
			fields["code"] = env.Error.Code
		}
		log.Event(ctx, "forward.complete", fields)

		if err := sess.Finish(auditResult(env), rewritten); err != nil {
			log.Warn("audit", "failed to write audit record", "error", err)
		}
	}()

	if call.Invalid != nil {
		return *call.Invalid
	}
	if denied := f.enforcer.Check(call.Method, call.Params, path); denied != nil {
		return *denied
	}

	params, changed := NormalizeParams(call.Params)
	if changed {
		rewritten = true
		f.metrics.ObserveRewrite()
		fields := map[string]any{"method": call.Method}
		if ops, err := rewritePatch(call.Params, params); err == nil {
			fields["patch"] = ops
		}
		log.WarnEvent(ctx, "forward.rescan_rewrite", fields)
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	upstreamStart := time.Now()
	result, err := f.caller.Call(callCtx, path, call.Method, params)
	f.metrics.ObserveUpstream(call.Method, time.Since(upstreamStart))

	if err != nil {
		span.RecordError(err)
		return envelopeForError(err)
	}
	return resultEnvelope(result)
}

func envelopeForError(err error) Envelope {
	var rpcErr *upstream.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return upstreamErrorEnvelope(rpcErr)
	case errors.Is(err, upstream.ErrTimeout):
		return errorEnvelope(KindTimeout, err.Error())
	case errors.Is(err, upstream.ErrTransport):
		return errorEnvelope(KindTransport, err.Error())
	default:
		return errorEnvelope(KindTransport, upstream.ErrTransport.Error()+": "+err.Error())
	}
}

// methodLabel keeps metric cardinality bounded to the allowlist.
func (f *Forwarder) methodLabel(method string) string {
	if f.enforcer.Allowlist().Allows(method) {
		return method
	}
	return metrics.UnsupportedMethodLabel
}

func outcomeOf(env Envelope) string {
	if env.OK() {
		return "success"
	}
	return string(env.Kind)
}

func auditResult(env Envelope) audit.Result {
	if env.OK() {
		return audit.Result{Status: "success"}
	}
	return audit.Result{
		Status: "fail",
		Kind:   string(env.Kind),
		Code:   env.Error.Code,
		Error:  env.Error.Message,
	}
}
