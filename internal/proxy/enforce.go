package proxy

import (
	"fmt"

	"github.com/coreguard/coreguard/internal/policy"
)

// Enforcer decides whether a call may reach the node. It is built once and never
// modified, so it needs no locking.
type Enforcer struct {
	allowlist *policy.Allowlist
	engine    *policy.Engine
}

// NewEnforcer compiles the policy's rules and freezes its method list.
func NewEnforcer(cfg *policy.Config) (*Enforcer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("policy config is required")
	}
	engine, err := policy.NewEngine(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy %q: %w", cfg.Name, err)
	}
	return &Enforcer{
		allowlist: policy.NewAllowlist(cfg.Methods),
		engine:    engine,
	}, nil
}

// Allowlist exposes the frozen method set.
func (e *Enforcer) Allowlist() *policy.Allowlist {
	return e.allowlist
}

// Check returns nil when the call may be forwarded, or the envelope to answer with.
// Params are checked as the caller sent them, before the rescan rewrite.
func (e *Enforcer) Check(method string, params []any, path string) *Envelope {
	if !e.allowlist.Allows(method) {
		env := unsupportedEnvelope(method)
		return &env
	}
	if failed := e.engine.Evaluate(policy.Input{Method: method, Params: params, Path: path}); failed != nil {
		env := errorEnvelope(KindPolicy, fmt.Sprintf("policy rule %q violated: %s", failed.RuleName, failed.FailureMsg))
		return &env
	}
	return nil
}
