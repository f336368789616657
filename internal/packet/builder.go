package packet

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// Builder lays down Ethernet/IPv4/UDP headers and payload into a frame
// buffer, append-only and bounds-checked against the frame's capacity. It
// never allocates past the fixed frame it was handed.
//
// Checksum policy resolves open question 1 of the design notes: by default
// Builder computes real IPv4 header and UDP checksums using gvisor's header
// package rather than writing the placeholder 0xcafe/zero constants the
// original left as a TODO. ChecksumOffload(true) switches to the
// placeholder path (IPv4 checksum 0xcafe, UDP checksum zero) for
// deployments with verified NIC checksum offload; the IPv4 ID is 0xdead
// either way.
type Builder struct {
	frame []byte
	off   int

	offloadChecksum bool

	udpOff  int
	udpLen  int
	haveUDP bool
	srcAddr tcpip.Address
	dstAddr tcpip.Address
}

// NewBuilder wraps a fixed-capacity frame buffer (typically umem.Pool.Frame)
// for append operations to write into.
func NewBuilder(frame []byte) *Builder {
	return &Builder{frame: frame}
}

// ChecksumOffload toggles whether IPv4/UDP checksums are computed in
// software (false, the default) or left zeroed/placeholder under the
// assumption the NIC driver computes them (true). See open question 1.
func (b *Builder) ChecksumOffload(enabled bool) *Builder {
	b.offloadChecksum = enabled
	return b
}

func (b *Builder) ensure(n int) {
	if b.off+n > len(b.frame) {
		panic(fmt.Sprintf("packet: builder overrun: offset %d + %d > capacity %d", b.off, n, len(b.frame)))
	}
}

// AppendEthernet writes a 14-byte Ethernet header with the given source and
// destination MAC addresses and EtherType proto (header.IPv4ProtocolNumber
// for the IPv4 fast path).
func (b *Builder) AppendEthernet(src, dst tcpip.LinkAddress, proto tcpip.NetworkProtocolNumber) *Builder {
	b.ensure(header.EthernetMinimumSize)
	eth := header.Ethernet(b.frame[b.off : b.off+header.EthernetMinimumSize])
	eth.Encode(&header.EthernetFields{
		SrcAddr: src,
		DstAddr: dst,
		Type:    proto,
	})
	b.off += header.EthernetMinimumSize
	return b
}

// AppendIPv4 writes a 20-byte IPv4 header (IHL=5, no options) addressed
// src->dst carrying a UDP segment of udpSegmentLen bytes (UDP header + data).
// TotalLength, ID=0xdead, DF set, TTL=0x40 and Protocol=UDP match the
// reference builder's fixed fields; the checksum is computed for real
// unless ChecksumOffload(true) was set.
func (b *Builder) AppendIPv4(src, dst tcpip.Address, udpSegmentLen int) *Builder {
	b.ensure(header.IPv4MinimumSize)
	b.srcAddr, b.dstAddr = src, dst

	ip := header.IPv4(b.frame[b.off : b.off+header.IPv4MinimumSize])
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(header.IPv4MinimumSize + udpSegmentLen),
		ID:          0xdead,
		Flags:       header.IPv4FlagDontFragment,
		TTL:         0x40,
		Protocol:    uint8(header.UDPProtocolNumber),
		SrcAddr:     src,
		DstAddr:     dst,
	})
	if b.offloadChecksum {
		ip.SetChecksum(0xcafe)
	} else {
		ip.SetChecksum(0)
		ip.SetChecksum(^ip.CalculateChecksum())
	}
	b.off += header.IPv4MinimumSize
	return b
}

// AppendUDP writes an 8-byte UDP header for a segment of payloadLen bytes.
// The checksum can only be finalized once the payload bytes that follow
// have been appended, so it's computed lazily in ToView unless
// offload is enabled, in which case it's left zero per the UDP "checksum
// disabled" convention.
func (b *Builder) AppendUDP(sport, dport uint16, payloadLen int) *Builder {
	b.ensure(header.UDPMinimumSize)
	udp := header.UDP(b.frame[b.off : b.off+header.UDPMinimumSize])
	udp.Encode(&header.UDPFields{
		SrcPort: sport,
		DstPort: dport,
		Length:  uint16(header.UDPMinimumSize + payloadLen),
	})
	udp.SetChecksum(0)
	b.udpOff = b.off
	b.udpLen = header.UDPMinimumSize + payloadLen
	b.haveUDP = true
	b.off += header.UDPMinimumSize
	return b
}

// AppendBytes copies n bytes of src verbatim (the UDP payload, or any
// trailing data).
func (b *Builder) AppendBytes(src []byte) *Builder {
	b.ensure(len(src))
	copy(b.frame[b.off:], src)
	b.off += len(src)
	return b
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return b.off }

// ToView finalizes the UDP checksum (if a UDP header was appended and
// offload is disabled) and returns a View over the bytes written.
func (b *Builder) ToView() View {
	if b.haveUDP && !b.offloadChecksum {
		segment := b.frame[b.udpOff : b.udpOff+b.udpLen]
		pseudo := header.PseudoHeaderChecksum(header.UDPProtocolNumber, b.srcAddr, b.dstAddr, uint16(b.udpLen))
		xsum := checksum.Checksum(segment, pseudo)
		header.UDP(b.frame[b.udpOff:b.udpOff+header.UDPMinimumSize]).SetChecksum(^xsum)
	}
	return View{Data: b.frame[:b.off]}
}
