package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	calls   int
	results []any
	errs    []error
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ map[string]any, _ map[string]any) (any, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return nil, errors.New("no more stubbed results")
}

func TestRetryingClient_SucceedsAfterTransientFailure(t *testing.T) {
	stub := &stubGenerator{
		errs:    []error{errors.New("transport reset"), nil},
		results: []any{nil, "ok"},
	}
	client := NewRetryingClient(stub, "test", 3)
	out, err := client.Generate(context.Background(), "do thing", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 2, stub.calls)
}

func TestRetryingClient_RefusalSkipsRetry(t *testing.T) {
	stub := &stubGenerator{errs: []error{ErrRefused}}
	client := NewRetryingClient(stub, "test-refusal", 3)
	_, err := client.Generate(context.Background(), "do thing", nil, nil)
	require.ErrorIs(t, err, ErrRefused)
	require.Equal(t, 1, stub.calls)
}

func TestRetryingClient_ExhaustsRetries(t *testing.T) {
	stub := &stubGenerator{errs: []error{
		errors.New("1"), errors.New("2"), errors.New("3"), errors.New("4"),
	}}
	client := NewRetryingClient(stub, "test-exhaust", 3)
	_, err := client.Generate(context.Background(), "do thing", nil, nil)
	require.Error(t, err)
	require.Equal(t, 4, stub.calls)
}
