// Package condition implements the engine's condition language: the
// restricted `path OP value` grammar from spec.md §4.7, compiled through
// cel-go the way cmd/workflow-runner/condition/evaluator.go compiles and
// caches CEL programs in the teacher, adapted from the teacher's
// free-form CEL expressions to this engine's fixed eight comparison
// operators plus a special-cased `includes`.
package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/weavegraph/core/internal/resolver"
)

var conditionPattern = []string{"===", "!==", "==", "!=", "<=", ">=", "<", ">", "includes"}

// operatorToCEL maps the grammar's comparison operators to CEL syntax.
// "includes" has no entry: it is evaluated directly in Go, not via CEL,
// because CEL's `in` operator only supports list/map membership while
// this grammar's `includes` must also do substring-in-string checks.
var operatorToCEL = map[string]string{
	"===": "lhs == rhs",
	"!==": "lhs != rhs",
	"==":  "lhs == rhs",
	"!=":  "lhs != rhs",
	"<":   "lhs < rhs",
	"<=":  "lhs <= rhs",
	">":   "lhs > rhs",
	">=":  "lhs >= rhs",
}

// Evaluator evaluates condition strings. Compiled programs are cached by
// operator rather than by full expression text: the grammar has eight
// comparison operators (six distinct CEL comparisons, since ===/== and
// !==/!= compile to the same expression) and lhs/rhs are always
// dyn-typed CEL variables, so unlike the teacher's per-workflow-string
// cache, this one holds at most eight programs and saturates after the
// first condition of each operator.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// New creates a new condition Evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]cel.Program)}
}

// Evaluate resolves and evaluates a condition string against scope,
// using res to resolve any {{path}} operands.
func (e *Evaluator) Evaluate(ctx context.Context, res *resolver.Resolver, scope resolver.Scope, condition string) (bool, error) {
	trimmed := strings.TrimSpace(condition)
	switch trimmed {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	lhsRaw, op, rhsRaw, err := split(trimmed)
	if err != nil {
		return false, err
	}

	lhsVal, err := e.resolvePathOperand(ctx, res, scope, lhsRaw)
	if err != nil {
		return false, fmt.Errorf("resolve condition lhs %q: %w", lhsRaw, err)
	}
	rhsVal, err := e.resolveValueOperand(ctx, res, scope, rhsRaw)
	if err != nil {
		return false, fmt.Errorf("resolve condition rhs %q: %w", rhsRaw, err)
	}

	if op == "includes" {
		return includes(lhsVal, rhsVal), nil
	}

	prg, err := e.programFor(op)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{"lhs": lhsVal, "rhs": rhsVal})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to a boolean, got %T", out.Value())
	}
	return result, nil
}

// split performs the syntactic pre-validation the engine restricts
// conditions to before anything reaches CEL: exactly one recognized
// operator, surrounded by a left and right operand.
func split(condition string) (lhs, op, rhs string, err error) {
	// Longest operators first so "===" isn't mistaken for "==".
	for _, candidate := range conditionPattern {
		idx := strings.Index(condition, " "+candidate+" ")
		if idx < 0 {
			continue
		}
		lhs = strings.TrimSpace(condition[:idx])
		rhs = strings.TrimSpace(condition[idx+len(candidate)+2:])
		if lhs == "" || rhs == "" {
			continue
		}
		return lhs, candidate, rhs, nil
	}
	return "", "", "", fmt.Errorf("condition %q does not match the path OP value grammar", condition)
}

// resolvePathOperand resolves the left-hand side, which is always a
// store path (optionally pre-wrapped in {{ }}).
func (e *Evaluator) resolvePathOperand(ctx context.Context, res *resolver.Resolver, scope resolver.Scope, raw string) (any, error) {
	if !strings.HasPrefix(raw, "{{") {
		raw = "{{" + raw + "}}"
	}
	return res.Resolve(ctx, scope, raw, true)
}

// resolveValueOperand resolves the right-hand side, which may be a
// quoted string literal, a boolean/numeric literal, or a template.
func (e *Evaluator) resolveValueOperand(ctx context.Context, res *resolver.Resolver, scope resolver.Scope, raw string) (any, error) {
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return raw[1 : len(raw)-1], nil
		}
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}
	if strings.HasPrefix(raw, "{{") && strings.HasSuffix(raw, "}}") {
		return res.Resolve(ctx, scope, raw, true)
	}
	return raw, nil
}

func (e *Evaluator) programFor(op string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[op]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	expr, ok := operatorToCEL[op]
	if !ok {
		return nil, fmt.Errorf("unsupported operator: %s", op)
	}

	env, err := cel.NewEnv(
		cel.Variable("lhs", cel.DynType),
		cel.Variable("rhs", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition operator %q: %w", op, issues.Err())
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build CEL program: %w", err)
	}

	e.mu.Lock()
	e.cache[op] = prg
	e.mu.Unlock()
	return prg, nil
}

// includes implements the `includes` operator: list membership for
// arrays, substring search for strings.
func includes(lhs, rhs any) bool {
	switch l := lhs.(type) {
	case []any:
		for _, item := range l {
			if fmt.Sprint(item) == fmt.Sprint(rhs) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(l, fmt.Sprint(rhs))
	default:
		return false
	}
}
