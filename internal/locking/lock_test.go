package locking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondCallerGetsBusy(t *testing.T) {
	m := NewManager(nil, 0)
	lock1, err := m.Acquire(context.Background(), "wf1")
	require.NoError(t, err)
	require.NotNil(t, lock1)

	_, err = m.Acquire(context.Background(), "wf1")
	require.ErrorIs(t, err, ErrBusy)

	lock1.Release(context.Background())

	lock2, err := m.Acquire(context.Background(), "wf1")
	require.NoError(t, err)
	require.NotNil(t, lock2)
}

func TestAcquire_DifferentWorkflowsIndependent(t *testing.T) {
	m := NewManager(nil, 0)
	lockA, err := m.Acquire(context.Background(), "wfA")
	require.NoError(t, err)
	lockB, err := m.Acquire(context.Background(), "wfB")
	require.NoError(t, err)
	require.NotNil(t, lockA)
	require.NotNil(t, lockB)
}

func TestRelease_IsIdempotent(t *testing.T) {
	m := NewManager(nil, 0)
	lock, err := m.Acquire(context.Background(), "wf1")
	require.NoError(t, err)
	lock.Release(context.Background())
	lock.Release(context.Background())

	_, err = m.Acquire(context.Background(), "wf1")
	require.NoError(t, err)
}
