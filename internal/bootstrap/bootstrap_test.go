package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, instruction string, inputs map[string]any, schema map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}

func TestSetup_MemoryStoreWithoutRedis(t *testing.T) {
	c, err := Setup(context.Background(), "engine-test",
		WithMemoryStore(),
		WithoutRedis(),
		WithCustomAI(stubGenerator{}),
	)
	require.NoError(t, err)
	require.NotNil(t, c.Store)
	require.Nil(t, c.DB)
	require.Nil(t, c.Redis)
	require.NotNil(t, c.Resolver)
	require.NotNil(t, c.Validator)
	require.NotNil(t, c.Evaluator)
	require.NotNil(t, c.Locking)
	require.NotNil(t, c.Bus)
	require.NotNil(t, c.Metrics)
	require.NotNil(t, c.Plans)
	require.NotNil(t, c.Browsers)

	require.NoError(t, c.Health(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
}
