// Package classifier loads, attaches and tears down the two cooperating
// eBPF programs that make up the in-kernel classification stage:
//
//   - the classifier program (bpf/xdp_classifier.c) attached at the
//     network driver's receive hook, which parses Ethernet/IPv4/UDP/app
//     headers and redirects into a CPUMAP keyed by destination index;
//   - the socket-redirect program (bpf/xdp_redirect.c) run on the
//     redirected CPU's queue, which hands the frame to the per-CPU AF_XDP
//     socket registered in an XSKMAP.
//
// Unlike the teacher's go:embed'd fixed object, the classifier artifact
// path is the single externally configurable datum of the core contract
// (spec §6) — LoadClassifier/LoadRedirect read the object file from disk at
// startup rather than baking it into the binary.
package classifier

import (
	"bytes"
	"fmt"
	"net"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

// Classifier owns the loaded classify-and-steer program and its CPUMAP and
// stats map, plus the link to the interface it's attached to.
type Classifier struct {
	coll     *ebpf.Collection
	prog     *ebpf.Program
	CPUMap   *ebpf.Map
	StatsMap *ebpf.Map
	attached link.Link
}

// LoadClassifier loads the classifier object from objPath. The program must
// export "xdp_classifier" and a "cpu_map" (BPF_MAP_TYPE_CPUMAP) map. A
// "stats_map" (BPF_MAP_TYPE_PERCPU_ARRAY) map is optional; without it
// StatsMap is nil and ReadStats reports zeros.
func LoadClassifier(objPath string) (*Classifier, error) {
	obj, err := os.ReadFile(objPath)
	if err != nil {
		return nil, fmt.Errorf("classifier: read %q: %w", objPath, err)
	}
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(obj))
	if err != nil {
		return nil, fmt.Errorf("classifier: parse %q: %w", objPath, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("classifier: load collection: %w", err)
	}
	prog := coll.Programs["xdp_classifier"]
	if prog == nil {
		coll.Close()
		return nil, fmt.Errorf("classifier: program %q not found in %q", "xdp_classifier", objPath)
	}
	cpuMap := coll.Maps["cpu_map"]
	if cpuMap == nil {
		coll.Close()
		return nil, fmt.Errorf("classifier: map %q not found in %q", "cpu_map", objPath)
	}
	return &Classifier{
		coll:     coll,
		prog:     prog,
		CPUMap:   cpuMap,
		StatsMap: coll.Maps["stats_map"],
	}, nil
}

// Attach binds the classifier program to ifaceName's XDP receive hook,
// falling back to generic (skb) mode when driver mode is unsupported by the
// NIC or kernel.
func (c *Classifier) Attach(ifaceName string) error {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return fmt.Errorf("classifier: interface %q: %w", ifaceName, err)
	}
	l, err := link.AttachXDP(link.XDPOptions{
		Program:   c.prog,
		Interface: ifi.Index,
		Flags:     link.XDPDriverMode,
	})
	if err != nil {
		l, err = link.AttachXDP(link.XDPOptions{
			Program:   c.prog,
			Interface: ifi.Index,
			Flags:     link.XDPGenericMode,
		})
		if err != nil {
			return fmt.Errorf("classifier: attach to %q: %w", ifaceName, err)
		}
	}
	c.attached = l
	return nil
}

// SetDestination populates the CPUMAP entry for destination index dest with
// its receive queue size, implementing the "kernel-maintained mapping from
// destination index to per-CPU redirect target" of the data model: dest is
// exactly the value xdp_classifier.c computes as hash%MAX_CPUS and passes to
// bpf_redirect_map, so it IS the map key. cpuID is the physical core the
// caller has pinned this destination's reactor thread to — CPUMAP redirect
// delivery is driven by the classifier's hash, not by this value, but cpuID
// is accepted here so callers can assert the two agree when they choose to
// align destination indices with real core numbers.
func (c *Classifier) SetDestination(dest uint32, cpuID uint32, queueSize uint32) error {
	val := struct {
		QueueSize uint32
		ProgFD    int32
	}{QueueSize: queueSize, ProgFD: -1}
	return c.CPUMap.Update(dest, val, ebpf.UpdateAny)
}

// Detach clears the XDP hook and releases the collection. Safe to call on
// an already-detached or never-attached Classifier.
func (c *Classifier) Detach() error {
	var err error
	if c.attached != nil {
		err = c.attached.Close()
		c.attached = nil
	}
	if c.coll != nil {
		c.coll.Close()
		c.coll = nil
	}
	return err
}

// Redirect owns the trivial XSKMAP-redirect program run on each
// classifier-selected CPU's queue.
type Redirect struct {
	coll     *ebpf.Collection
	prog     *ebpf.Program
	XSKSMap  *ebpf.Map
	attached link.Link
}

// LoadRedirect loads the socket-redirect object from objPath. It must
// export "xdp_redirect_sock" and an "xsks_map" (BPF_MAP_TYPE_XSKMAP).
func LoadRedirect(objPath string) (*Redirect, error) {
	obj, err := os.ReadFile(objPath)
	if err != nil {
		return nil, fmt.Errorf("redirect: read %q: %w", objPath, err)
	}
	spec, err := ebpf.LoadCollectionSpecFromReader(bytes.NewReader(obj))
	if err != nil {
		return nil, fmt.Errorf("redirect: parse %q: %w", objPath, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("redirect: load collection: %w", err)
	}
	prog := coll.Programs["xdp_redirect_sock"]
	if prog == nil {
		coll.Close()
		return nil, fmt.Errorf("redirect: program %q not found in %q", "xdp_redirect_sock", objPath)
	}
	xsks := coll.Maps["xsks_map"]
	if xsks == nil {
		coll.Close()
		return nil, fmt.Errorf("redirect: map %q not found in %q", "xsks_map", objPath)
	}
	return &Redirect{coll: coll, prog: prog, XSKSMap: xsks}, nil
}

// Attach binds the redirect program to ifaceName, same driver/generic
// fallback policy as Classifier.Attach.
func (r *Redirect) Attach(ifaceName string) error {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return fmt.Errorf("redirect: interface %q: %w", ifaceName, err)
	}
	l, err := link.AttachXDP(link.XDPOptions{Program: r.prog, Interface: ifi.Index, Flags: link.XDPDriverMode})
	if err != nil {
		l, err = link.AttachXDP(link.XDPOptions{Program: r.prog, Interface: ifi.Index, Flags: link.XDPGenericMode})
		if err != nil {
			return fmt.Errorf("redirect: attach to %q: %w", ifaceName, err)
		}
	}
	r.attached = l
	return nil
}

// BindSocket publishes an AF_XDP socket's file descriptor into the XSKMAP
// at the given queue id key, so the redirect program hands matching frames
// to it (spec §4.4 step 12).
func (r *Redirect) BindSocket(queueID uint32, fd int) error {
	return r.XSKSMap.Update(queueID, int32(fd), ebpf.UpdateAny)
}

// Detach clears the XDP hook and releases the collection. Idempotent.
func (r *Redirect) Detach() error {
	var err error
	if r.attached != nil {
		err = r.attached.Close()
		r.attached = nil
	}
	if r.coll != nil {
		r.coll.Close()
		r.coll = nil
	}
	return err
}
