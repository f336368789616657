package main

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/kbpf/rainbow/internal/packet"
)

// buildEchoResponse parses the Ethernet/IPv4/UDP headers of an inbound
// frame, swaps source and destination IP and port, zeroes the MAC
// addresses per the response-framing contract, and re-emits the same UDP
// payload. It exists to give the round-trip scenario something concrete to
// exercise — the reactor itself is payload-policy agnostic.
func buildEchoResponse(view packet.View) (packet.View, error) {
	frame := view.Data
	if len(frame) < header.EthernetMinimumSize {
		return packet.View{}, fmt.Errorf("echo: frame too short for an ethernet header: %d bytes", len(frame))
	}
	eth := header.Ethernet(frame)
	if eth.Type() != header.IPv4ProtocolNumber {
		return packet.View{}, fmt.Errorf("echo: not IPv4 (ethertype %#x)", eth.Type())
	}

	ipv4Bytes := frame[header.EthernetMinimumSize:]
	if len(ipv4Bytes) < header.IPv4MinimumSize {
		return packet.View{}, fmt.Errorf("echo: frame too short for an ipv4 header")
	}
	ipv4 := header.IPv4(ipv4Bytes)
	if ipv4.TransportProtocol() != header.UDPProtocolNumber {
		return packet.View{}, fmt.Errorf("echo: not UDP (protocol %d)", ipv4.TransportProtocol())
	}

	udpBytes := ipv4.Payload()
	if len(udpBytes) < header.UDPMinimumSize {
		return packet.View{}, fmt.Errorf("echo: frame too short for a udp header")
	}
	udp := header.UDP(udpBytes)
	payload := udpBytes[header.UDPMinimumSize:]

	out := make([]byte, len(frame))
	b := packet.NewBuilder(out).
		AppendEthernet("", "", header.IPv4ProtocolNumber).
		AppendIPv4(ipv4.DestinationAddress(), ipv4.SourceAddress(), header.UDPMinimumSize+len(payload)).
		AppendUDP(udp.DestinationPort(), udp.SourcePort(), len(payload)).
		AppendBytes(payload)

	return b.ToView(), nil
}
