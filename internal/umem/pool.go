// Package umem owns the frame pool: a page-aligned, contiguous region of
// fixed-size frames shared between the kernel (DMA) and this process
// (pointer reads/writes), addressed by byte offset rather than pointer so
// the kernel's view and ours never need to agree on a virtual address.
//
// Ownership of a frame is exclusive: it is held by whichever ring last
// handed the offset to its reader, or by user code that dequeued a
// descriptor and hasn't returned it yet. Pool only tracks which offsets are
// currently free; the reactor is responsible for moving offsets between the
// rings and the pool's free list as descriptors are dequeued/returned.
package umem

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Pool is a page-aligned byte region of NumFrames frames of FrameSize bytes,
// registered with the kernel once at reactor setup.
type Pool struct {
	mu sync.Mutex

	data      []byte
	frameSize int
	numFrames int

	free []uint64 // free-list of frame byte-offsets
}

// New mmaps a page-aligned anonymous region of numFrames*frameSize bytes
// and seeds the free list with every frame offset. The caller registers
// Data() with the kernel via XDP_UMEM_REG after this returns.
func New(numFrames, frameSize int) (*Pool, error) {
	if frameSize <= 0 || numFrames <= 0 {
		return nil, fmt.Errorf("umem: frameSize and numFrames must be positive")
	}
	total := numFrames * frameSize
	data, err := unix.Mmap(-1, 0, total,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("umem: mmap %d bytes: %w", total, err)
	}

	p := &Pool{
		data:      data,
		frameSize: frameSize,
		numFrames: numFrames,
		free:      make([]uint64, 0, numFrames),
	}
	for i := 0; i < numFrames; i++ {
		p.free = append(p.free, uint64(i*frameSize))
	}
	return p, nil
}

// Data returns the backing region, for registration with XDP_UMEM_REG.
func (p *Pool) Data() []byte { return p.data }

// FrameSize returns the fixed per-frame size.
func (p *Pool) FrameSize() int { return p.frameSize }

// NumFrames returns the total frame count.
func (p *Pool) NumFrames() int { return p.numFrames }

// Close unmaps the backing region. Safe to call on an already-closed pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}

// validOffset reports whether off is a multiple of frameSize within
// [0, numFrames*frameSize), per the frame-offset invariant in the data
// model.
func (p *Pool) validOffset(off uint64) bool {
	if off%uint64(p.frameSize) != 0 {
		return false
	}
	return off < uint64(p.numFrames)*uint64(p.frameSize)
}

// Slice returns the byte-addressable view of frame off, truncated to len
// bytes. It panics on an out-of-range offset or length — those are
// programming errors, never data from the wire (the kernel only ever hands
// back offsets this pool produced).
func (p *Pool) Slice(off uint64, length uint32) []byte {
	if !p.validOffset(off) {
		panic(fmt.Sprintf("umem: invalid frame offset %d", off))
	}
	if int(length) > p.frameSize {
		panic(fmt.Sprintf("umem: length %d exceeds frame size %d", length, p.frameSize))
	}
	return p.data[off : off+uint64(length)]
}

// Frame returns the full fixed-size frame slice at off, for building a
// response into before the length is known.
func (p *Pool) Frame(off uint64) []byte {
	return p.Slice(off, uint32(p.frameSize))
}

// AllocFrame removes and returns one free frame offset, or 0 with ok=false
// if the pool is exhausted. Offset 0 is always a valid frame (the first
// one), so the ok return distinguishes exhaustion from frame 0.
func (p *Pool) AllocFrame() (off uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return 0, false
	}
	off = p.free[n-1]
	p.free = p.free[:n-1]
	return off, true
}

// FreeFrame returns a frame offset to the free list. Callers must ensure
// the offset isn't already free and isn't held by any ring — Pool has no
// way to detect a double-free since ownership crosses into kernel memory.
func (p *Pool) FreeFrame(off uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, off)
}

// FreeCount returns the number of currently unallocated frames, for
// conservation-property tests and metrics.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// AllOffsets returns every frame offset in the pool in ascending order, for
// seeding the fill ring at setup.
func (p *Pool) AllOffsets() []uint64 {
	offs := make([]uint64, p.numFrames)
	for i := range offs {
		offs[i] = uint64(i * p.frameSize)
	}
	return offs
}
