// Package xdpring implements the SPSC ring quartet (fill, completion, rx,
// tx) that a reactor exchanges descriptors through with the kernel. Each
// ring is a fixed-capacity, power-of-two-sized array living in memory the
// kernel and this process both mmap; the producer and consumer counters
// that index into it live in the same shared region.
//
// The type itself never touches the kernel — it only knows how to reserve,
// publish, peek and advance against counters it's handed pointers to. The
// reactor is responsible for mmapping the region and wiring Ring up to the
// right offsets (see reactor.mmapRing).
package xdpring

import (
	"fmt"
	"sync/atomic"
)

// Ring is a single-producer/single-consumer descriptor queue of capacity
// Size (a power of two) with index mask Mask = Size-1. Producer and
// consumer counters are monotonically increasing across the process
// lifetime; occupancy is producer-consumer, which is in [0, Size].
type Ring[T any] struct {
	desc     []T
	producer *uint32
	consumer *uint32
	mask     uint32
	size     uint32

	// cachedProducer/cachedConsumer avoid re-reading the shared counter on
	// every operation when the caller is the side that owns it.
	cachedProducer uint32
	cachedConsumer uint32
}

// New wraps descriptor storage and producer/consumer counter cells already
// mmapped into the process. size must be a power of two; New panics
// otherwise since a non-power-of-two mask would silently corrupt indexing.
func New[T any](desc []T, producer, consumer *uint32, size uint32) *Ring[T] {
	if size == 0 || size&(size-1) != 0 {
		panic(fmt.Sprintf("xdpring: size %d is not a power of two", size))
	}
	if uint32(len(desc)) != size {
		panic(fmt.Sprintf("xdpring: descriptor array len %d != size %d", len(desc), size))
	}
	return &Ring[T]{
		desc:     desc,
		producer: producer,
		consumer: consumer,
		mask:     size - 1,
		size:     size,
	}
}

// Capacity returns the ring's fixed size.
func (r *Ring[T]) Capacity() uint32 { return r.size }

// ReserveProducer returns the first index of n contiguous producer slots,
// and true, if free capacity (Size - (producer-consumer)) is at least n.
// It does not publish anything; the caller writes descriptors at
// [idx, idx+n) then calls PublishProducer(n).
func (r *Ring[T]) ReserveProducer(n uint32) (idx uint32, ok bool) {
	consumer := atomic.LoadUint32(r.consumer)
	free := r.size - (r.cachedProducer - consumer)
	if free < n {
		// Re-check against the live consumer counter in case our cached
		// view is stale before giving up.
		r.cachedConsumer = consumer
		free = r.size - (r.cachedProducer - r.cachedConsumer)
		if free < n {
			return 0, false
		}
	}
	return r.cachedProducer, true
}

// SetAt writes a descriptor at the given raw producer index; the index is
// masked into the descriptor array here, so callers pass it unmasked.
func (r *Ring[T]) SetAt(idx uint32, v T) {
	r.desc[idx&r.mask] = v
}

// GetAt reads the descriptor at the given raw index.
func (r *Ring[T]) GetAt(idx uint32) T {
	return r.desc[idx&r.mask]
}

// PublishProducer advances the producer counter by n with release
// semantics: all descriptor writes above must be visible to the consumer
// before it observes the new counter value.
func (r *Ring[T]) PublishProducer(n uint32) {
	r.cachedProducer += n
	atomic.StoreUint32(r.producer, r.cachedProducer)
}

// PeekConsumer acquire-loads the producer counter and returns the number of
// descriptors available to the consumer along with the raw index of the
// first one.
func (r *Ring[T]) PeekConsumer() (available uint32, idx uint32) {
	producer := atomic.LoadUint32(r.producer)
	return producer - r.cachedConsumer, r.cachedConsumer
}

// AdvanceConsumer advances the consumer counter by n with release
// semantics, handing the corresponding slots back to the producer side.
func (r *Ring[T]) AdvanceConsumer(n uint32) {
	r.cachedConsumer += n
	atomic.StoreUint32(r.consumer, r.cachedConsumer)
}

// Pending returns producer-consumer without refreshing the cached producer
// counter; useful for diagnostics/metrics where an exact acquire isn't
// required.
func (r *Ring[T]) Pending() uint32 {
	return atomic.LoadUint32(r.producer) - atomic.LoadUint32(r.consumer)
}
