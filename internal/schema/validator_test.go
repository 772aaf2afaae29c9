package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func numberSchema() map[string]any {
	return map[string]any{"type": "number"}
}

func TestValidate_PassesThrough(t *testing.T) {
	v := New()
	out, err := v.Validate(numberSchema(), 3.14)
	require.NoError(t, err)
	require.Equal(t, 3.14, out)
}

func TestValidate_CoercesStringToNumber(t *testing.T) {
	v := New()
	out, err := v.Validate(numberSchema(), "42")
	require.NoError(t, err)
	require.Equal(t, float64(42), out)
}

func TestValidate_CoercesStringToBoolean(t *testing.T) {
	v := New()
	out, err := v.Validate(map[string]any{"type": "boolean"}, "TRUE")
	require.NoError(t, err)
	require.Equal(t, true, out)
}

func TestValidate_CoercesNumericKeyedObjectToArray(t *testing.T) {
	v := New()
	s := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	out, err := v.Validate(s, map[string]any{"0": "a", "1": "b"})
	require.NoError(t, err)
	require.Equal(t, []any{"a", "b"}, out)
}

func TestValidate_CaseCorrectsKeysAndFillsOptional(t *testing.T) {
	v := New()
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"Name": map[string]any{"type": "string"},
			"Age":  map[string]any{"type": "number"},
		},
		"required": []any{"Name"},
	}
	out, err := v.Validate(s, map[string]any{"name": "ada"})
	require.NoError(t, err)
	obj, ok := out.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ada", obj["Name"])
	require.Nil(t, obj["Age"])
}

func TestValidate_FailsWithStructuredError(t *testing.T) {
	v := New()
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "number"},
		},
		"required": []any{"count"},
	}
	_, err := v.Validate(s, map[string]any{"count": []any{"not", "a", "number"}})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Issues)
}

func TestValidate_CoercionIdempotent(t *testing.T) {
	v := New()
	out1, err := v.Validate(numberSchema(), "42")
	require.NoError(t, err)
	out2, err := v.Validate(numberSchema(), out1)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}
