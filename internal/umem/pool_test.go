package umem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeedsFreeList(t *testing.T) {
	p, err := New(8, 2048)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 8, p.FreeCount())
	assert.Len(t, p.AllOffsets(), 8)
	assert.Equal(t, uint64(0), p.AllOffsets()[0])
	assert.Equal(t, uint64(2048*7), p.AllOffsets()[7])
}

func TestAllocFreeConservesFrames(t *testing.T) {
	p, err := New(4, 2048)
	require.NoError(t, err)
	defer p.Close()

	seen := map[uint64]bool{}
	for i := 0; i < 4; i++ {
		off, ok := p.AllocFrame()
		require.True(t, ok)
		assert.False(t, seen[off], "frame offset handed out twice while pool not yet exhausted")
		seen[off] = true
	}

	_, ok := p.AllocFrame()
	assert.False(t, ok, "pool must report exhaustion once every frame is allocated")

	for off := range seen {
		p.FreeFrame(off)
	}
	assert.Equal(t, 4, p.FreeCount())
}

func TestSlicePanicsOnMisalignedOffset(t *testing.T) {
	p, err := New(2, 2048)
	require.NoError(t, err)
	defer p.Close()

	assert.Panics(t, func() { p.Slice(1, 10) })
	assert.Panics(t, func() { p.Slice(2048*2, 10) })
	assert.NotPanics(t, func() { p.Slice(2048, 10) })
}

func TestFrameReturnsFullFixedSlice(t *testing.T) {
	p, err := New(1, 2048)
	require.NoError(t, err)
	defer p.Close()

	assert.Len(t, p.Frame(0), 2048)
}
