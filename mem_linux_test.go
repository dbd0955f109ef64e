//go:build linux

package funchook

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchLifecycle(t *testing.T) {
	require.NoError(t, BeginBatch())
	// Re-entrant no-op.
	require.NoError(t, BeginBatch())

	// Installs reuse the batch descriptor.
	fd, shared, err := acquireMem()
	require.NoError(t, err)
	assert.True(t, shared)
	assert.NotEqual(t, -1, fd)

	require.NoError(t, EndBatch())
	// Idempotent.
	require.NoError(t, EndBatch())
}

func TestBatchNoDescriptorLeak(t *testing.T) {
	before := openFDs(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, BeginBatch())
		require.NoError(t, EndBatch())
	}

	assert.Equal(t, before, openFDs(t))
}

func TestAcquireWithoutBatch(t *testing.T) {
	before := openFDs(t)

	fd, shared, err := acquireMem()
	require.NoError(t, err)
	assert.False(t, shared)

	releaseMem(fd)
	assert.Equal(t, before, openFDs(t))
}

func TestPwriteMem(t *testing.T) {
	buf := make([]byte, 4)

	fd, shared, err := acquireMem()
	require.NoError(t, err)
	require.False(t, shared)
	defer releaseMem(fd)

	n, err := pwriteMem(fd, []byte{1, 2, 3, 4}, sliceAddr(buf))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
}

func openFDs(t *testing.T) int {
	t.Helper()
	ents, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(ents)
}
