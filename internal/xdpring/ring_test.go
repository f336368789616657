package xdpring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRing builds a Ring over plain Go-owned backing arrays, standing in
// for the kernel-mmapped memory a real reactor would wire up.
func newTestRing(size uint32) *Ring[uint64] {
	var producer, consumer uint32
	return New(make([]uint64, size), &producer, &consumer, size)
}

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	var p, c uint32
	assert.Panics(t, func() { New(make([]uint64, 3), &p, &c, 3) })
}

func TestReserveRespectsCapacity(t *testing.T) {
	r := newTestRing(4)

	idx, ok := r.ReserveProducer(4)
	require.True(t, ok)
	assert.Equal(t, uint32(0), idx)

	_, ok = r.ReserveProducer(1)
	assert.False(t, ok, "ring at capacity must refuse further reservations")
}

func TestPublishThenConsumeOrdering(t *testing.T) {
	r := newTestRing(8)

	idx, ok := r.ReserveProducer(3)
	require.True(t, ok)
	r.SetAt(idx+0, 0xAAAA)
	r.SetAt(idx+1, 0xBBBB)
	r.SetAt(idx+2, 0xCCCC)
	r.PublishProducer(3)

	avail, cidx := r.PeekConsumer()
	require.Equal(t, uint32(3), avail)

	got := []uint64{r.GetAt(cidx), r.GetAt(cidx + 1), r.GetAt(cidx + 2)}
	assert.Equal(t, []uint64{0xAAAA, 0xBBBB, 0xCCCC}, got, "consumer must observe producer writes in publish order")

	r.AdvanceConsumer(3)
	avail, _ = r.PeekConsumer()
	assert.Zero(t, avail)
}

func TestFullWhenProducerMinusConsumerEqualsCapacity(t *testing.T) {
	r := newTestRing(2)

	idx, ok := r.ReserveProducer(2)
	require.True(t, ok)
	r.PublishProducer(2)
	r.SetAt(idx, 1)
	r.SetAt(idx+1, 2)

	_, ok = r.ReserveProducer(1)
	assert.False(t, ok)

	r.AdvanceConsumer(1)
	_, ok = r.ReserveProducer(1)
	assert.True(t, ok, "freeing one slot must allow exactly one more reservation")
}

func TestEmptyWhenCountersEqual(t *testing.T) {
	r := newTestRing(4)
	avail, _ := r.PeekConsumer()
	assert.Zero(t, avail)
}

func TestWraparoundPreservesOrder(t *testing.T) {
	r := newTestRing(4)

	// Drive the counters past one full lap so indices wrap through the
	// mask, matching a long-running reactor's behavior.
	for lap := 0; lap < 3; lap++ {
		idx, ok := r.ReserveProducer(4)
		require.True(t, ok)
		for i := uint32(0); i < 4; i++ {
			r.SetAt(idx+i, uint64(lap*10+int(i)))
		}
		r.PublishProducer(4)

		avail, cidx := r.PeekConsumer()
		require.Equal(t, uint32(4), avail)
		for i := uint32(0); i < 4; i++ {
			assert.Equal(t, uint64(lap*10+int(i)), r.GetAt(cidx+i))
		}
		r.AdvanceConsumer(4)
	}
}

func TestMonotonicCountersAcrossReserveAndAdvance(t *testing.T) {
	r := newTestRing(4)
	var lastProducer, lastConsumer uint32

	for i := 0; i < 10; i++ {
		idx, ok := r.ReserveProducer(1)
		require.True(t, ok)
		r.SetAt(idx, uint64(i))
		r.PublishProducer(1)
		assert.GreaterOrEqual(t, r.cachedProducer, lastProducer)
		lastProducer = r.cachedProducer

		_, ok = r.ReserveProducer(0)
		_ = ok
		avail, cidx := r.PeekConsumer()
		require.Equal(t, uint32(1), avail)
		assert.Equal(t, uint64(i), r.GetAt(cidx))
		r.AdvanceConsumer(1)
		assert.GreaterOrEqual(t, r.cachedConsumer, lastConsumer)
		lastConsumer = r.cachedConsumer
	}
}
