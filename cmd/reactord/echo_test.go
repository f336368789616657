package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/kbpf/rainbow/internal/packet"
)

func buildRequestFrame(t *testing.T, payload []byte) packet.View {
	t.Helper()
	frame := make([]byte, 2048)
	src := tcpip.AddrFrom4([4]byte{10, 0, 0, 5})
	dst := tcpip.AddrFrom4([4]byte{10, 0, 0, 1})

	b := packet.NewBuilder(frame)
	view := b.AppendEthernet("\x02\x00\x00\x00\x00\x05", "\x02\x00\x00\x00\x00\x01", header.IPv4ProtocolNumber).
		AppendIPv4(src, dst, header.UDPMinimumSize+len(payload)).
		AppendUDP(40000, 11211, len(payload)).
		AppendBytes(payload).
		ToView()
	require.NotZero(t, view.Len())
	return view
}

func TestBuildEchoResponseSwapsAddressesAndPreservesPayload(t *testing.T) {
	payload := []byte("hello")
	req := buildRequestFrame(t, payload)

	resp, err := buildEchoResponse(req)
	require.NoError(t, err)

	eth := header.Ethernet(resp.Data)
	assert.Equal(t, tcpip.LinkAddress("\x00\x00\x00\x00\x00\x00"), eth.SourceAddress())
	assert.Equal(t, tcpip.LinkAddress("\x00\x00\x00\x00\x00\x00"), eth.DestinationAddress())

	ipStart := header.EthernetMinimumSize
	ip := header.IPv4(resp.Data[ipStart : ipStart+header.IPv4MinimumSize])
	reqIP := header.IPv4(req.Data[ipStart : ipStart+header.IPv4MinimumSize])
	assert.Equal(t, reqIP.SourceAddress(), ip.DestinationAddress())
	assert.Equal(t, reqIP.DestinationAddress(), ip.SourceAddress())

	udpStart := ipStart + header.IPv4MinimumSize
	udp := header.UDP(resp.Data[udpStart : udpStart+header.UDPMinimumSize])
	reqUDP := header.UDP(req.Data[udpStart : udpStart+header.UDPMinimumSize])
	assert.Equal(t, reqUDP.SourcePort(), udp.DestinationPort())
	assert.Equal(t, reqUDP.DestinationPort(), udp.SourcePort())

	gotPayload := resp.Data[udpStart+header.UDPMinimumSize:]
	assert.Equal(t, payload, gotPayload)
}

func TestBuildEchoResponseRejectsNonIPv4(t *testing.T) {
	frame := make([]byte, header.EthernetMinimumSize+4)
	eth := header.Ethernet(frame)
	eth.Encode(&header.EthernetFields{Type: header.IPv6ProtocolNumber})

	_, err := buildEchoResponse(packet.New(frame))
	assert.Error(t, err)
}

func TestBuildEchoResponseRejectsShortFrame(t *testing.T) {
	_, err := buildEchoResponse(packet.New(make([]byte, 4)))
	assert.Error(t, err)
}
