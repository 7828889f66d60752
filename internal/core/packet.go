// Package core defines core data structures with zero external dependencies.
package core

import "time"

// DecodedPacket is the result of L2-L4 protocol stack decoding.
type DecodedPacket struct {
	Timestamp   time.Time
	IP          IPHeader
	Transport   TransportHeader
	Payload     []byte // Application layer payload, zero-copy slice
	Reassembled bool   // Whether packet went through IP fragment reassembly
}

// Key returns the flow key of the packet.
func (p *DecodedPacket) Key() FlowKey {
	return FlowKey{
		SrcIP:   p.IP.SrcIP,
		DstIP:   p.IP.DstIP,
		SrcPort: p.Transport.SrcPort,
		DstPort: p.Transport.DstPort,
		Proto:   p.Transport.Protocol,
	}
}

// Segment converts the packet into a reassembler input.
// The payload is copied because decoders reuse their buffers.
func (p *DecodedPacket) Segment() Segment {
	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	return Segment{
		Key:       p.Key(),
		Seq:       p.Transport.SeqNum,
		HasSeq:    p.Transport.Protocol == ProtoTCP,
		Payload:   payload,
		Timestamp: p.Timestamp,
	}
}

// Segment is one transport payload handed to the flow reassembler.
// HasSeq is false for datagram transports.
type Segment struct {
	Key       FlowKey
	Seq       uint32
	HasSeq    bool
	Payload   []byte
	Timestamp time.Time
}
