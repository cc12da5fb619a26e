package policy

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Input is what a rule sees as the CEL variable `input`.
type Input struct {
	Method string
	Params []any
	Path   string
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// Engine is the policy evaluation engine using CEL. Rules are compiled once in
// NewEngine; Evaluate is safe for concurrent use.
type Engine struct {
	env   *cel.Env
	rules []compiledRule
}

func NewEngine(rules []Rule) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env, rules: make([]compiledRule, 0, len(rules))}
	for _, rule := range rules {
		ast, issues := env.Compile(rule.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: CEL compile error: %w", rule.Name, issues.Err())
		}
		if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule %q: expression must return bool, got %s", rule.Name, t)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: CEL program error: %w", rule.Name, err)
		}
		e.rules = append(e.rules, compiledRule{rule: rule, program: prg})
	}

	return e, nil
}

// Len is the number of compiled rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Evaluate runs every rule and returns the first failure, or nil when all pass.
// Rules that error at runtime count as failures.
func (e *Engine) Evaluate(in Input) *Result {
	if len(e.rules) == 0 {
		return nil
	}

	activation := map[string]interface{}{
		"input": inputToMap(in),
	}

	for _, cr := range e.rules {
		result := evaluateRule(cr, activation)
		if !result.Passed {
			return &result
		}
	}
	return nil
}

func evaluateRule(cr compiledRule, activation map[string]interface{}) Result {
	out, _, err := cr.program.Eval(activation)
	if err != nil {
		return Result{
			RuleName:   cr.rule.Name,
			Passed:     false,
			FailureMsg: fmt.Sprintf("CEL evaluation error: %v", err),
		}
	}

	passed, ok := out.Value().(bool)
	if !ok {
		return Result{
			RuleName:   cr.rule.Name,
			Passed:     false,
			FailureMsg: fmt.Sprintf("Rule expression must return boolean, got %T", out.Value()),
		}
	}

	result := Result{RuleName: cr.rule.Name, Passed: passed}
	if !passed {
		result.FailureMsg = cr.rule.FailureMsg
		if result.FailureMsg == "" {
			result.FailureMsg = "rule expression evaluated to false"
		}
	}
	return result
}

// inputToMap converts for CEL
func inputToMap(in Input) map[string]interface{} {
	params := make([]interface{}, len(in.Params))
	for i, p := range in.Params {
		params[i] = celValue(p)
	}
	return map[string]interface{}{
		"method": in.Method,
		"params": params,
		"path":   in.Path,
	}
}

// celValue turns decoder output into types CEL understands natively: json.Number
// becomes int64 when integral, float64 otherwise.
func celValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = celValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = celValue(val)
		}
		return out
	default:
		return v
	}
}
