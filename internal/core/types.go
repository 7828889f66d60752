// Package core defines core types with zero external dependencies.
package core

import (
	"cmp"
	"fmt"
	"net/netip"
)

// Transport protocol numbers.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// IPHeader represents the L3 header fields the pipeline consumes.
type IPHeader struct {
	Version  uint8
	SrcIP    netip.Addr
	DstIP    netip.Addr
	Protocol uint8 // TCP=6, UDP=17
}

// TransportHeader represents L4 transport layer header (TCP/UDP).
type TransportHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8 // Redundant storage for convenience
	SeqNum   uint32 // TCP only
}

// FlowKey identifies one direction of a transport conversation.
// Swapped keys are two independent flows.
type FlowKey struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// Reverse returns the key of the opposite direction.
func (k FlowKey) Reverse() FlowKey {
	return FlowKey{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
		Proto:   k.Proto,
	}
}

// Src returns the source socket address.
func (k FlowKey) Src() netip.AddrPort { return netip.AddrPortFrom(k.SrcIP, k.SrcPort) }

// Dst returns the destination socket address.
func (k FlowKey) Dst() netip.AddrPort { return netip.AddrPortFrom(k.DstIP, k.DstPort) }

func (k FlowKey) String() string {
	return fmt.Sprintf("%s %s->%s", ProtoName(k.Proto), k.Src(), k.Dst())
}

// Compare orders keys by source, destination, then protocol.
func (k FlowKey) Compare(o FlowKey) int {
	if c := k.SrcIP.Compare(o.SrcIP); c != 0 {
		return c
	}
	if c := k.DstIP.Compare(o.DstIP); c != 0 {
		return c
	}
	if c := cmp.Compare(k.SrcPort, o.SrcPort); c != 0 {
		return c
	}
	if c := cmp.Compare(k.DstPort, o.DstPort); c != 0 {
		return c
	}
	return cmp.Compare(k.Proto, o.Proto)
}

// ProtoName returns a lower-case name for a transport protocol number.
func ProtoName(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	default:
		return fmt.Sprintf("ip-proto-%d", proto)
	}
}
