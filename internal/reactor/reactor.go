// Package reactor drives the steady-state AF_XDP loop: it owns one frame
// pool, the four rings that exchange descriptors with the kernel, and the
// user callback that turns received frames into responses. One Reactor
// corresponds to one AF_XDP socket bound to one {interface, queue} pair; a
// deployment runs one per classifier destination index, each pinned to its
// own CPU (spec §5), all registering against a single shared Classifier and
// Redirect program pair.
package reactor

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/kbpf/rainbow/internal/classifier"
	config "github.com/kbpf/rainbow/internal/reactorconfig"
	"github.com/kbpf/rainbow/internal/packet"
	"github.com/kbpf/rainbow/internal/umem"
	"github.com/kbpf/rainbow/internal/xdpring"
)

// OnPacketFunc is the user callback invoked with a zero-copy view over each
// received frame. Returning a non-nil error is logged and otherwise
// ignored — the frame is still returned to the fill ring.
type OnPacketFunc func(view packet.View) error

// SetupError wraps a failed setup step with the operation name and the
// underlying OS error, per the structured-context propagation policy of
// spec §7.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("reactor setup: %s: %v", e.Op, e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }

func setupErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Op: op, Err: err}
}

type mmapRegion struct {
	mem []byte
}

// Reactor is the user-space driver for one AF_XDP socket.
type Reactor struct {
	cfg      config.Config
	log      *logrus.Entry
	onPacket OnPacketFunc

	destIndex uint32
	queueID   uint32

	fd      int
	ifIndex int

	pool *umem.Pool

	fill *xdpring.Ring[uint64]
	comp *xdpring.Ring[uint64]
	rx   *xdpring.Ring[unix.XDPDesc]
	tx   *xdpring.Ring[unix.XDPDesc]

	regions []mmapRegion

	mu        sync.Mutex
	setupDone bool
	torndown  bool
}

// New constructs a Reactor for the given destination index and UMEM queue
// id. It performs no syscalls until Setup is called.
func New(cfg config.Config, log *logrus.Entry, destIndex, queueID uint32) *Reactor {
	return &Reactor{cfg: cfg, log: log, destIndex: destIndex, queueID: queueID, fd: -1}
}

// OnPacket installs the callback invoked for every received frame. Must be
// called before Setup; the handler is a single-owner capability, not a
// mutable reference — calling OnPacket again after Setup has no effect on
// an in-flight RunOnce.
func (r *Reactor) OnPacket(fn OnPacketFunc) { r.onPacket = fn }

// Setup provisions the socket, frame pool and four rings, seeds the fill
// ring, binds to {iface, queueID}, and registers this reactor's socket with
// the shared classifier/redirect program pair at destIndex. Every step
// fails fatally — a setup error leaves the reactor unusable and the caller
// should Shutdown() it rather than retry in place.
func (r *Reactor) Setup(cls *classifier.Classifier, redir *classifier.Redirect, cpuID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setupDone {
		return fmt.Errorf("reactor: Setup already called for destination %d", r.destIndex)
	}

	// Step 1: raise RLIMIT_MEMLOCK to infinity.
	rlim := unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY}
	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &rlim); err != nil {
		return setupErr("setrlimit(RLIMIT_MEMLOCK)", err)
	}

	// Step 2: resolve the interface index.
	ifi, err := netInterfaceByName(r.cfg.InterfaceName)
	if err != nil {
		return setupErr("if_nametoindex", err)
	}
	r.ifIndex = ifi

	// Steps 3-4 (load classifier, attach, look up per-socket map) are owned
	// by the shared Classifier/Redirect the caller passes in; this reactor
	// only needs prog/map handles to exist already.

	// Step 5: create the AF_XDP socket.
	fd, err := unix.Socket(unix.AF_XDP, unix.SOCK_RAW, 0)
	if err != nil {
		return setupErr("socket(AF_XDP)", err)
	}
	r.fd = fd

	// Step 6: allocate the frame pool page-aligned and register it.
	pool, err := umem.New(r.cfg.NumFrames, r.cfg.FrameSize)
	if err != nil {
		r.closeAll()
		return setupErr("umem.New", err)
	}
	r.pool = pool

	reg := unix.XDPUmemReg{
		Addr:     uint64(uintptr(unsafe.Pointer(&pool.Data()[0]))),
		Len:      uint64(len(pool.Data())),
		Size:     uint32(r.cfg.FrameSize),
		Headroom: 0,
	}
	if err := setsockoptXDPUmemReg(fd, unix.SOL_XDP, unix.XDP_UMEM_REG, &reg); err != nil {
		r.closeAll()
		return setupErr("setsockopt(XDP_UMEM_REG)", err)
	}

	// Step 7: configure ring sizes.
	if err := unix.SetsockoptInt(fd, unix.SOL_XDP, unix.XDP_UMEM_FILL_RING, r.cfg.FillRingSize); err != nil {
		r.closeAll()
		return setupErr("setsockopt(XDP_UMEM_FILL_RING)", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_XDP, unix.XDP_UMEM_COMPLETION_RING, r.cfg.CompRingSize); err != nil {
		r.closeAll()
		return setupErr("setsockopt(XDP_UMEM_COMPLETION_RING)", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_XDP, unix.XDP_RX_RING, r.cfg.RxRingSize); err != nil {
		r.closeAll()
		return setupErr("setsockopt(XDP_RX_RING)", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_XDP, unix.XDP_TX_RING, r.cfg.TxRingSize); err != nil {
		r.closeAll()
		return setupErr("setsockopt(XDP_TX_RING)", err)
	}

	// Step 8: read the kernel-provided mmap offsets.
	off, err := getsockoptXDPMmapOffsets(fd, unix.SOL_XDP, unix.XDP_MMAP_OFFSETS)
	if err != nil {
		r.closeAll()
		return setupErr("getsockopt(XDP_MMAP_OFFSETS)", err)
	}

	// Step 9: mmap each of the four rings and build ring structs.
	fillMem, err := r.mmapRing(fd, unix.XDP_UMEM_PGOFF_FILL_RING, off.Fr.Desc+uint64(r.cfg.FillRingSize)*8)
	if err != nil {
		r.closeAll()
		return setupErr("mmap(fill)", err)
	}
	r.fill = xdpring.New(
		descSlice[uint64](fillMem, off.Fr.Desc, r.cfg.FillRingSize),
		counterAt(fillMem, off.Fr.Producer), counterAt(fillMem, off.Fr.Consumer),
		uint32(r.cfg.FillRingSize))

	compMem, err := r.mmapRing(fd, unix.XDP_UMEM_PGOFF_COMPLETION_RING, off.Cr.Desc+uint64(r.cfg.CompRingSize)*8)
	if err != nil {
		r.closeAll()
		return setupErr("mmap(completion)", err)
	}
	r.comp = xdpring.New(
		descSlice[uint64](compMem, off.Cr.Desc, r.cfg.CompRingSize),
		counterAt(compMem, off.Cr.Producer), counterAt(compMem, off.Cr.Consumer),
		uint32(r.cfg.CompRingSize))

	descSize := uint64(unsafe.Sizeof(unix.XDPDesc{}))
	rxMem, err := r.mmapRing(fd, unix.XDP_PGOFF_RX_RING, off.Rx.Desc+uint64(r.cfg.RxRingSize)*descSize)
	if err != nil {
		r.closeAll()
		return setupErr("mmap(rx)", err)
	}
	r.rx = xdpring.New(
		descSlice[unix.XDPDesc](rxMem, off.Rx.Desc, r.cfg.RxRingSize),
		counterAt(rxMem, off.Rx.Producer), counterAt(rxMem, off.Rx.Consumer),
		uint32(r.cfg.RxRingSize))

	txMem, err := r.mmapRing(fd, unix.XDP_PGOFF_TX_RING, off.Tx.Desc+uint64(r.cfg.TxRingSize)*descSize)
	if err != nil {
		r.closeAll()
		return setupErr("mmap(tx)", err)
	}
	r.tx = xdpring.New(
		descSlice[unix.XDPDesc](txMem, off.Tx.Desc, r.cfg.TxRingSize),
		counterAt(txMem, off.Tx.Producer), counterAt(txMem, off.Tx.Consumer),
		uint32(r.cfg.TxRingSize))

	// Step 10: seed the fill ring with as many frame offsets as it has
	// capacity for — the rest stay in the pool free list for TX use.
	idx, ok := r.fill.ReserveProducer(uint32(r.cfg.FillRingSize))
	if !ok {
		r.closeAll()
		return setupErr("seed fill ring", fmt.Errorf("fill ring rejected initial reservation"))
	}
	for i := uint32(0); i < uint32(r.cfg.FillRingSize); i++ {
		off, ok := r.pool.AllocFrame()
		if !ok {
			break
		}
		r.fill.SetAt(idx+i, off)
	}
	r.fill.PublishProducer(uint32(r.cfg.FillRingSize))

	// Step 11: bind the socket to {interface, queue id}.
	sa := &unix.SockaddrXDP{Flags: 0, Ifindex: uint32(r.ifIndex), QueueID: r.queueID}
	if err := unix.Bind(fd, sa); err != nil {
		r.closeAll()
		return setupErr("bind", err)
	}

	// Step 12: publish the socket fd into the classifier's per-socket map.
	if err := cls.SetDestination(r.destIndex, cpuID, uint32(r.cfg.RxRingSize)); err != nil {
		r.closeAll()
		return setupErr("cpu_map update", err)
	}
	if err := redir.BindSocket(r.queueID, fd); err != nil {
		r.closeAll()
		return setupErr("xsks_map update", err)
	}

	r.setupDone = true
	return nil
}

func (r *Reactor) mmapRing(fd int, pgoff int64, size uint64) ([]byte, error) {
	mem, err := unix.Mmap(fd, pgoff, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, err
	}
	r.regions = append(r.regions, mmapRegion{mem: mem})
	return mem, nil
}

func counterAt(mem []byte, off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

func descSlice[T any](mem []byte, off uint64, n int) []T {
	ptr := unsafe.Pointer(&mem[off])
	return unsafe.Slice((*T)(ptr), n)
}

// netInterfaceByName is a thin seam over net.InterfaceByName so tests can
// substitute a fake without requiring a real NIC.
var netInterfaceByName = defaultInterfaceByName

func (r *Reactor) closeAll() {
	for _, reg := range r.regions {
		unix.Munmap(reg.mem)
	}
	r.regions = nil
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	if r.fd >= 0 {
		unix.Close(r.fd)
		r.fd = -1
	}
}

// RunOnce performs one non-blocking processing step: if the rx ring has a
// descriptor available, it dequeues exactly one, hands a Packet view to the
// callback, returns the frame to the fill ring, then drains the completion
// ring. It never blocks and never touches more than one rx descriptor per
// call, preserving per-frame ordering within a burst.
func (r *Reactor) RunOnce() {
	if avail, idx := r.rx.PeekConsumer(); avail > 0 {
		desc := r.rx.GetAt(idx)
		r.rx.AdvanceConsumer(1)

		view := packet.New(r.pool.Slice(uint64(desc.Addr), desc.Len))
		if r.onPacket != nil {
			if err := r.onPacket(view); err != nil {
				r.log.WithError(err).WithField("dest", r.destIndex).Warn("packet callback failed")
			}
		}

		r.returnFrameToFill(uint64(desc.Addr))
	}

	r.drainCompletions()
}

func (r *Reactor) returnFrameToFill(addr uint64) {
	idx, ok := r.fill.ReserveProducer(1)
	if !ok {
		// Fill ring is full: hold the frame in the pool's free list instead
		// of leaking it. The kernel will simply have fewer buffers to
		// receive into until the next tick frees fill-ring capacity.
		r.pool.FreeFrame(addr)
		return
	}
	r.fill.SetAt(idx, addr)
	r.fill.PublishProducer(1)
}

// drainCompletions returns every transmitted frame the kernel has finished
// with back to the fill ring (or the free list if the fill ring is full),
// resolving open question 2: completions are drained every tick rather than
// left to accumulate.
func (r *Reactor) drainCompletions() {
	avail, idx := r.comp.PeekConsumer()
	if avail == 0 {
		return
	}
	for i := uint32(0); i < avail; i++ {
		r.returnFrameToFill(r.comp.GetAt(idx + i))
	}
	r.comp.AdvanceConsumer(avail)
}

// ErrTXFull is returned by Send when no tx descriptor slot or free frame is
// available after one completion-drain retry.
var ErrTXFull = fmt.Errorf("reactor: tx ring full or frame pool exhausted")

// Send copies data into a free frame and enqueues it on the tx ring. If no
// slot is free, it drains completions once and retries before giving up.
func (r *Reactor) Send(data []byte) error {
	idx, ok := r.tx.ReserveProducer(1)
	if !ok {
		r.drainCompletions()
		idx, ok = r.tx.ReserveProducer(1)
		if !ok {
			return ErrTXFull
		}
	}

	addr, ok := r.pool.AllocFrame()
	if !ok {
		r.drainCompletions()
		addr, ok = r.pool.AllocFrame()
		if !ok {
			return ErrTXFull
		}
	}

	frame := r.pool.Frame(addr)
	if len(data) > len(frame) {
		r.pool.FreeFrame(addr)
		return fmt.Errorf("reactor: response %d bytes exceeds frame size %d", len(data), len(frame))
	}
	copy(frame, data)

	r.tx.SetAt(idx, unix.XDPDesc{Addr: addr, Len: uint32(len(data))})
	r.tx.PublishProducer(1)
	r.kickTX()
	return nil
}

// kickTX wakes the kernel's TX path. AF_XDP requires a sendto/poll kick
// whenever the driver advertises need_wakeup; EAGAIN/ENOBUFS here just mean
// the kernel wasn't actually waiting and is safe to ignore.
func (r *Reactor) kickTX() {
	if err := unix.Sendto(r.fd, nil, unix.MSG_DONTWAIT, nil); err != nil &&
		err != unix.EAGAIN && err != unix.ENOBUFS && err != unix.EBUSY {
		r.log.WithError(err).Debug("tx kick failed")
	}
}

// Rings exposes the four ring quartet members as metrics.RingSource values,
// for wiring a reactor's occupancy into the Prometheus collector once Setup
// has completed.
func (r *Reactor) Rings() (fill, comp, rx, tx RingSource) {
	return r.fill, r.comp, r.rx, r.tx
}

// RingSource is satisfied by *xdpring.Ring[T] for any T; duplicated here
// (rather than imported from internal/metrics) to avoid a dependency from
// reactor back onto metrics — metrics depends on reactor's ring shape, not
// the other way around.
type RingSource interface {
	Pending() uint32
	Capacity() uint32
}

// Shutdown detaches nothing classifier-side (that's the shared
// Classifier/Redirect's job) but unmaps the rings, closes the frame pool
// and the socket. Safe to call multiple times or on a partially-initialized
// Reactor.
func (r *Reactor) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.torndown {
		return nil
	}
	r.torndown = true
	r.closeAll()
	return nil
}
