// Package schema implements the Schema Validator & Coercer: validation of
// AI-produced values against a declared JSON-Schema subset, with a fixed
// coercion pre-pass applied when strict validation fails.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is the SchemaValidationError from spec.md §4.3: raised
// when a value fails validation even after the coercion pre-pass.
type ValidationError struct {
	Schema    map[string]any
	Received  any
	Issues    []string
	Coercions []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Issues, "; "))
}

// Validator compiles and applies JSON-Schema-subset declarations. Each
// Validate call compiles its schema fresh since node schemas are
// workflow-authored and not known ahead of time; the underlying library
// does its own internal caching of compiled resources.
type Validator struct{}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// Validate checks value against schema. If strict validation fails, it
// attempts the fixed coercion set from spec.md §4.3 and re-validates once.
// It returns the (possibly coerced) value, or a *ValidationError.
func (v *Validator) Validate(schemaDoc map[string]any, value any) (any, error) {
	compiled, err := compile(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	if err := compiled.Validate(toJSONDoc(value)); err == nil {
		return value, nil
	}

	coerced, applied := coerce(value, schemaDoc)
	if len(applied) == 0 {
		return nil, newValidationError(schemaDoc, value, compiled, nil)
	}

	validationDoc := toJSONDoc(coerced)
	if err := compiled.Validate(validationDoc); err != nil {
		return nil, newValidationError(schemaDoc, value, compiled, applied)
	}
	return coerced, nil
}

func compile(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("schema.json")
}

// toJSONDoc round-trips value through JSON so the jsonschema library sees
// plain map[string]any/[]any/float64/string/bool/nil, matching what it
// expects after json.Unmarshal.
func toJSONDoc(value any) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return value
	}
	return doc
}

func newValidationError(schemaDoc map[string]any, received any, compiled *jsonschema.Schema, coercions []string) *ValidationError {
	err := compiled.Validate(toJSONDoc(received))
	var issues []string
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		issues = flattenCauses(ve, 3)
	} else if err != nil {
		issues = []string{err.Error()}
	}
	return &ValidationError{
		Schema:    schemaDoc,
		Received:  received,
		Issues:    issues,
		Coercions: coercions,
	}
}

func flattenCauses(ve *jsonschema.ValidationError, limit int) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(out) >= limit {
			return
		}
		if len(e.Causes) == 0 {
			out = append(out, e.Error())
			return
		}
		for _, c := range e.Causes {
			walk(c)
			if len(out) >= limit {
				return
			}
		}
	}
	walk(ve)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// coerce applies the fixed coercion set from spec.md §4.3 and reports
// which steps actually changed something, for the error's Coercions field
// (and for callers that want to log what happened even on success).
func coerce(value any, schemaDoc map[string]any) (any, []string) {
	var applied []string
	out := coerceValue(value, schemaDoc, &applied)
	return out, applied
}

func coerceValue(value any, schemaDoc map[string]any, applied *[]string) any {
	schemaType, _ := schemaDoc["type"].(string)

	switch schemaType {
	case "array":
		return coerceArray(value, schemaDoc, applied)
	case "object":
		return coerceObject(value, schemaDoc, applied)
	case "number", "integer":
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				*applied = append(*applied, "string->number")
				return f
			}
		}
	case "boolean":
		if s, ok := value.(string); ok {
			switch strings.ToLower(s) {
			case "true":
				*applied = append(*applied, "string->boolean")
				return true
			case "false":
				*applied = append(*applied, "string->boolean")
				return false
			}
		}
	}
	return value
}

// coerceArray turns an object whose keys are "0".."n-1" into an array,
// preserving numeric order.
func coerceArray(value any, schemaDoc map[string]any, applied *[]string) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	indices := make([]int, 0, len(obj))
	for k := range obj {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return value
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for i, idx := range indices {
		if idx != i {
			return value
		}
	}
	out := make([]any, len(indices))
	itemSchema, _ := schemaDoc["items"].(map[string]any)
	for i := range indices {
		item := obj[strconv.Itoa(i)]
		if itemSchema != nil {
			item = coerceValue(item, itemSchema, applied)
		}
		out[i] = item
	}
	*applied = append(*applied, "object-numeric-keys->array")
	return out
}

// coerceObject case-corrects keys against the declared properties, fills
// missing non-required properties with null, and recurses into each
// property's own schema.
func coerceObject(value any, schemaDoc map[string]any, applied *[]string) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}
	properties, _ := schemaDoc["properties"].(map[string]any)
	if properties == nil {
		return value
	}

	canonical := make(map[string]string, len(properties))
	for name := range properties {
		canonical[strings.ToLower(name)] = name
	}

	out := make(map[string]any, len(obj))
	renamed := false
	for k, v := range obj {
		name := k
		if _, exact := properties[k]; !exact {
			if c, ok := canonical[strings.ToLower(k)]; ok && c != k {
				name = c
				renamed = true
			}
		}
		if propSchema, ok := properties[name].(map[string]any); ok {
			v = coerceValue(v, propSchema, applied)
		}
		out[name] = v
	}
	if renamed {
		*applied = append(*applied, "case-correct-keys")
	}

	required := map[string]bool{}
	for _, r := range asStringSlice(schemaDoc["required"]) {
		required[r] = true
	}
	filled := false
	for name := range properties {
		if _, ok := out[name]; !ok && !required[name] {
			out[name] = nil
			filled = true
		}
	}
	if filled {
		*applied = append(*applied, "fill-missing-optional-null")
	}
	return out
}

func asStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
