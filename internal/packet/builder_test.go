package packet

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

func TestBuilderLaysOutEthernetIPv4UDP(t *testing.T) {
	frame := make([]byte, 2048)
	payload := []byte("pong")
	src := tcpip.AddrFrom4([4]byte{10, 0, 0, 1})
	dst := tcpip.AddrFrom4([4]byte{10, 0, 0, 2})

	b := NewBuilder(frame)
	view := b.AppendEthernet("", "", header.IPv4ProtocolNumber).
		AppendIPv4(src, dst, header.UDPMinimumSize+len(payload)).
		AppendUDP(4242, 11211, len(payload)).
		AppendBytes(payload).
		ToView()

	wantLen := header.EthernetMinimumSize + header.IPv4MinimumSize + header.UDPMinimumSize + len(payload)
	require.Equal(t, wantLen, view.Len())

	etherType := binary.BigEndian.Uint16(view.Data[12:14])
	assert.Equal(t, uint16(header.IPv4ProtocolNumber), etherType)

	ipStart := header.EthernetMinimumSize
	ip := header.IPv4(view.Data[ipStart : ipStart+header.IPv4MinimumSize])
	assert.Equal(t, uint8(header.IPv4MinimumSize), ip.HeaderLength())
	assert.Equal(t, uint8(header.UDPProtocolNumber), ip.Protocol())
	assert.Equal(t, uint16(header.IPv4MinimumSize+header.UDPMinimumSize+len(payload)), ip.TotalLength())

	udpStart := ipStart + header.IPv4MinimumSize
	udp := header.UDP(view.Data[udpStart : udpStart+header.UDPMinimumSize])
	assert.Equal(t, uint16(4242), udp.SourcePort())
	assert.Equal(t, uint16(11211), udp.DestinationPort())
	assert.NotZero(t, udp.Checksum(), "checksum must be computed, not left zero, when offload is disabled")

	gotPayload := view.Data[udpStart+header.UDPMinimumSize:]
	assert.Equal(t, payload, gotPayload)
}

func TestBuilderChecksumOffloadLeavesPlaceholders(t *testing.T) {
	frame := make([]byte, 2048)
	src := tcpip.AddrFrom4([4]byte{10, 0, 0, 1})
	dst := tcpip.AddrFrom4([4]byte{10, 0, 0, 2})

	b := NewBuilder(frame).ChecksumOffload(true)
	view := b.AppendEthernet("", "", header.IPv4ProtocolNumber).
		AppendIPv4(src, dst, header.UDPMinimumSize).
		AppendUDP(1, 2, 0).
		ToView()

	ipStart := header.EthernetMinimumSize
	ip := header.IPv4(view.Data[ipStart : ipStart+header.IPv4MinimumSize])
	assert.Equal(t, uint16(0xcafe), ip.Checksum())

	udpStart := ipStart + header.IPv4MinimumSize
	udp := header.UDP(view.Data[udpStart : udpStart+header.UDPMinimumSize])
	assert.Zero(t, udp.Checksum())
}

func TestBuilderPanicsOnOverrun(t *testing.T) {
	frame := make([]byte, 10)
	assert.Panics(t, func() {
		NewBuilder(frame).AppendEthernet("", "", header.IPv4ProtocolNumber)
	})
}
