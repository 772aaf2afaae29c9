// Package resolver implements the template/variable resolver: a small
// expression language over two data buckets (global, records) plus
// iteration-scoped bindings, structurally adapted from
// cmd/workflow-runner/resolver in the teacher repo (recursive descent
// over string/map/array/primitive, gjson-backed path extraction) but
// generalized to the five-step precedence chain this engine's templates
// need instead of the teacher's single "$nodes.id.field" form.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/weavegraph/core/internal/store"
	"github.com/weavegraph/core/internal/workflow"
)

var templatePattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)
var recordIDPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*_\d+$`)

// UnresolvedError is returned when a path inside {{ }} cannot be resolved.
// Whether this is fatal is decided by the caller (fatal for node inputs,
// non-fatal for plan text), per spec.md §4.2.
type UnresolvedError struct {
	Path string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved template path: %s", e.Path)
}

// IterationBinding is one active iterate-node binding visible while
// resolving templates inside that node's body.
type IterationBinding struct {
	// Name is the loop variable name ("email" in `variable: "email"`).
	Name string
	// Value is the current element (single-context iteration).
	Value any
	// Index/Total back the generated <name>Index / <name>Total variables.
	Index int
	Total int
	// CurrentRecord is set during record-mode iteration; current.<alias>.<field>
	// and current._meta.index/total resolve against it.
	CurrentRecord *workflow.Record
	CurrentIndex  int
	CurrentTotal  int
}

// Scope is the full set of bindings visible while resolving one node's
// params/config: the stack of enclosing iteration bindings (innermost
// last) plus the workflow ID used to reach the Store.
type Scope struct {
	WorkflowID string
	Bindings   []IterationBinding
}

// Resolver walks JSON-like structures and rewrites every {{...}} template.
type Resolver struct {
	backend store.Backend
}

// New creates a new Resolver over the given Store backend.
func New(backend store.Backend) *Resolver {
	return &Resolver{backend: backend}
}

// ResolveMap resolves every value in a map (used for both params and config).
// fatal controls whether an UnresolvedError aborts resolution or is
// substituted with the original template text.
func (r *Resolver) ResolveMap(ctx context.Context, scope Scope, m map[string]any, fatal bool) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		resolved, err := r.resolveValue(ctx, scope, v, fatal)
		if err != nil {
			return nil, fmt.Errorf("resolve key %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// Resolve resolves a single value (typically a string operand pulled out
// of a larger expression, such as one side of a condition). It is the
// exported wrapper around resolveValue, which the recursive cases call
// directly.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, value any, fatal bool) (any, error) {
	return r.resolveValue(ctx, scope, value, fatal)
}

func (r *Resolver) resolveValue(ctx context.Context, scope Scope, value any, fatal bool) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(ctx, scope, v, fatal)
	case map[string]any:
		return r.ResolveMap(ctx, scope, v, fatal)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := r.resolveValue(ctx, scope, item, fatal)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// resolveString resolves a single string leaf. A string that is *entirely*
// one `{{path}}` expression preserves the resolved value's original type
// (the template round-trip property from spec.md §8); any other string
// containing one or more `{{path}}` occurrences is coerced to text and
// concatenated.
func (r *Resolver) resolveString(ctx context.Context, scope Scope, s string, fatal bool) (any, error) {
	matches := templatePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := strings.TrimSpace(s[matches[0][2]:matches[0][3]])
		value, err := r.resolvePath(ctx, scope, path)
		if err != nil {
			if fatal {
				return nil, err
			}
			return s, nil
		}
		return value, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		path := strings.TrimSpace(s[m[2]:m[3]])
		value, err := r.resolvePath(ctx, scope, path)
		if err != nil {
			if fatal {
				return nil, err
			}
			b.WriteString(s[m[0]:m[1]])
			last = m[1]
			continue
		}
		b.WriteString(stringify(value))
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// resolvePath applies the five-step precedence chain from spec.md §4.2.
func (r *Resolver) resolvePath(ctx context.Context, scope Scope, path string) (any, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if len(segments) == 0 {
		return nil, &UnresolvedError{Path: path}
	}
	first := segments[0]

	// 1. Iteration bindings (innermost scope wins).
	for i := len(scope.Bindings) - 1; i >= 0; i-- {
		b := scope.Bindings[i]
		if b.Name == "" {
			continue
		}
		if first == b.Name {
			return navigate(b.Value, segments[1:])
		}
		if first == b.Name+"Index" && len(segments) == 1 {
			return b.Index, nil
		}
		if first == b.Name+"Total" && len(segments) == 1 {
			return b.Total, nil
		}
	}

	// 2. Current record shorthand: current.<alias>.<field> or current._meta.index/total.
	if first == "current" {
		for i := len(scope.Bindings) - 1; i >= 0; i-- {
			b := scope.Bindings[i]
			if b.CurrentRecord == nil {
				continue
			}
			if len(segments) >= 2 && segments[1] == "_meta" {
				switch {
				case len(segments) == 3 && segments[2] == "index":
					return b.CurrentIndex, nil
				case len(segments) == 3 && segments[2] == "total":
					return b.CurrentTotal, nil
				}
				return nil, &UnresolvedError{Path: path}
			}
			if len(segments) < 2 {
				return nil, &UnresolvedError{Path: path}
			}
			alias := segments[1]
			ns, ok := b.CurrentRecord.Data[alias]
			if !ok {
				return nil, &UnresolvedError{Path: path}
			}
			return navigateMap(ns, segments[2:])
		}
		return nil, &UnresolvedError{Path: path}
	}

	// 3. Record pattern: <record_id>.<alias>.<field...>
	if recordIDPattern.MatchString(first) && len(segments) >= 2 {
		rec, ok, err := r.backend.GetRecord(ctx, scope.WorkflowID, first)
		if err == nil && ok {
			alias := segments[1]
			ns, ok := rec.Data[alias]
			if !ok {
				return nil, &UnresolvedError{Path: path}
			}
			return navigateMap(ns, segments[2:])
		}
	}

	// 4 & 5. Node-namespaced global (<alias>.<field>) or direct global (<key>).
	value, found, err := r.backend.GetGlobal(ctx, scope.WorkflowID, first)
	if err != nil {
		return nil, fmt.Errorf("load global %q: %w", first, err)
	}
	if !found {
		return nil, &UnresolvedError{Path: path}
	}
	if len(segments) == 1 {
		return value, nil
	}
	return navigate(value, segments[1:])
}

// navigate walks the remaining path segments through an arbitrary value
// using gjson for convenience on the JSON-marshalable portion.
func navigate(value any, segments []string) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	if m, ok := value.(map[string]any); ok {
		return navigateMap(m, segments)
	}
	path := strings.Join(segments, ".")
	jsonBytes, err := marshalLoose(value)
	if err != nil {
		return nil, err
	}
	result := gjson.GetBytes(jsonBytes, gjsonPath(segments))
	if !result.Exists() {
		return nil, &UnresolvedError{Path: path}
	}
	return result.Value(), nil
}

func navigateMap(m map[string]any, segments []string) (any, error) {
	if len(segments) == 0 {
		return m, nil
	}
	jsonBytes, err := marshalLoose(m)
	if err != nil {
		return nil, err
	}
	result := gjson.GetBytes(jsonBytes, gjsonPath(segments))
	if !result.Exists() {
		return nil, &UnresolvedError{Path: strings.Join(segments, ".")}
	}
	return result.Value(), nil
}

// gjsonPath renders our segment list (identifiers and bracket indices
// already split out) in gjson's dotted-path syntax.
func gjsonPath(segments []string) string {
	return strings.Join(segments, ".")
}

// splitPath parses `segment ( '.' segment | '[' index ']' )*` into a flat
// list of segments, each either an identifier or a decimal index.
func splitPath(path string) ([]string, error) {
	var segments []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, cur.String())
			cur.Reset()
		}
	}

	runes := []rune(path)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '.':
			flush()
		case '[':
			flush()
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated index in %q", path)
			}
			inner := strings.Trim(string(runes[i+1:j]), `"'`)
			segments = append(segments, inner)
			i = j
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return segments, nil
}

// marshalLoose is the teacher's trick for feeding arbitrary Go values
// (maps, slices, structs already decoded from JSON) to gjson without a
// bespoke path-walking implementation per type.
func marshalLoose(value any) ([]byte, error) {
	return json.Marshal(value)
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		raw, err := marshalLoose(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
