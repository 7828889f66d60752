// Package decoder implements L2-L4 protocol stack decoding on top of gopacket.
package decoder

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapsift/internal/core"
)

// Link types without a named constant in gopacket/layers.
const (
	linkTypeIPv4 = layers.LinkType(228)
	linkTypeIPv6 = layers.LinkType(229)
)

// Config controls optional decoding stages.
type Config struct {
	IPReassembly bool
	Reassembly   ReassemblyConfig
}

// Decoder decodes Ethernet, Linux cooked and raw-IP frames down to the TCP or UDP payload.
// It reuses its layer buffers and is not safe for concurrent use.
type Decoder struct {
	eth     layers.Ethernet
	sll     layers.LinuxSLL
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	ip6     layers.IPv6
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload

	ethParser *gopacket.DecodingLayerParser
	sllParser *gopacket.DecodingLayerParser
	ip4Parser *gopacket.DecodingLayerParser
	ip6Parser *gopacket.DecodingLayerParser
	tcpParser *gopacket.DecodingLayerParser
	udpParser *gopacket.DecodingLayerParser

	decoded []gopacket.LayerType

	reassembler *Reassembler // nil when IP reassembly is disabled
}

// New creates a decoder.
func New(cfg Config) *Decoder {
	d := &Decoder{
		decoded: make([]gopacket.LayerType, 0, 8),
	}
	layersFor := func() []gopacket.DecodingLayer {
		return []gopacket.DecodingLayer{&d.eth, &d.sll, &d.dot1q, &d.ip4, &d.ip6, &d.tcp, &d.udp, &d.payload}
	}
	d.ethParser = newParser(layers.LayerTypeEthernet, layersFor())
	d.sllParser = newParser(layers.LayerTypeLinuxSLL, layersFor())
	d.ip4Parser = newParser(layers.LayerTypeIPv4, layersFor())
	d.ip6Parser = newParser(layers.LayerTypeIPv6, layersFor())
	d.tcpParser = newParser(layers.LayerTypeTCP, layersFor())
	d.udpParser = newParser(layers.LayerTypeUDP, layersFor())

	if cfg.IPReassembly {
		d.reassembler = NewReassembler(cfg.Reassembly)
	}
	return d
}

func newParser(first gopacket.LayerType, decoders []gopacket.DecodingLayer) *gopacket.DecodingLayerParser {
	p := gopacket.NewDecodingLayerParser(first, decoders...)
	p.IgnoreUnsupported = true
	return p
}

// Decode decodes one captured frame. Frames that do not carry TCP or UDP over
// IP return an error wrapping core.ErrDecodeSkip.
func (d *Decoder) Decode(data []byte, ci gopacket.CaptureInfo, link layers.LinkType) (core.DecodedPacket, error) {
	parser, err := d.parserFor(link, data)
	if err != nil {
		return core.DecodedPacket{}, err
	}

	d.decoded = d.decoded[:0]
	if err := parser.DecodeLayers(data, &d.decoded); err != nil {
		return core.DecodedPacket{}, fmt.Errorf("%w: %v", core.ErrDecodeSkip, err)
	}

	pkt := core.DecodedPacket{Timestamp: ci.Timestamp}
	var haveIP, haveTransport, isIPv4 bool

	for _, layerType := range d.decoded {
		switch layerType {
		case layers.LayerTypeIPv4:
			pkt.IP = core.IPHeader{
				Version:  4,
				SrcIP:    toAddr(d.ip4.SrcIP),
				DstIP:    toAddr(d.ip4.DstIP),
				Protocol: uint8(d.ip4.Protocol),
			}
			haveIP, isIPv4 = true, true

		case layers.LayerTypeIPv6:
			pkt.IP = core.IPHeader{
				Version:  6,
				SrcIP:    toAddr(d.ip6.SrcIP),
				DstIP:    toAddr(d.ip6.DstIP),
				Protocol: uint8(d.ip6.NextHeader),
			}
			haveIP, isIPv4 = true, false

		case layers.LayerTypeTCP, layers.LayerTypeUDP:
			d.fillTransport(&pkt, layerType)
			haveTransport = true
		}
	}

	if !haveIP {
		return core.DecodedPacket{}, fmt.Errorf("%w: no IP layer", core.ErrDecodeSkip)
	}
	if haveTransport {
		return pkt, nil
	}
	if isIPv4 && isFragment(&d.ip4) && d.reassembler != nil {
		if err := d.defragment(&pkt, ci.Timestamp); err != nil {
			return core.DecodedPacket{}, err
		}
		return pkt, nil
	}
	return core.DecodedPacket{}, fmt.Errorf("%w: %w: ip protocol %d", core.ErrDecodeSkip, core.ErrUnsupportedProto, pkt.IP.Protocol)
}

// parserFor selects the first layer for a link type. Raw IP captures are
// dispatched on the version nibble.
func (d *Decoder) parserFor(link layers.LinkType, data []byte) (*gopacket.DecodingLayerParser, error) {
	switch link {
	case layers.LinkTypeEthernet:
		return d.ethParser, nil
	case layers.LinkTypeLinuxSLL:
		return d.sllParser, nil
	case layers.LinkTypeRaw, linkTypeIPv4, linkTypeIPv6:
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: %w", core.ErrDecodeSkip, core.ErrPacketTooShort)
		}
		switch data[0] >> 4 {
		case 4:
			return d.ip4Parser, nil
		case 6:
			return d.ip6Parser, nil
		}
	}
	return nil, fmt.Errorf("%w: %w: link type %s", core.ErrDecodeSkip, core.ErrUnsupportedProto, link)
}

// defragment feeds an IPv4 fragment to the reassembler and, once the
// datagram is complete, decodes its transport header.
func (d *Decoder) defragment(pkt *core.DecodedPacket, ts time.Time) error {
	datagram, complete, err := d.reassembler.Process(&d.ip4, ts)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrDecodeSkip, err)
	}
	if !complete {
		return fmt.Errorf("%w: %w", core.ErrDecodeSkip, core.ErrFragmentIncomplete)
	}

	var parser *gopacket.DecodingLayerParser
	switch d.ip4.Protocol {
	case layers.IPProtocolTCP:
		parser = d.tcpParser
	case layers.IPProtocolUDP:
		parser = d.udpParser
	default:
		return fmt.Errorf("%w: %w: ip protocol %d", core.ErrDecodeSkip, core.ErrUnsupportedProto, d.ip4.Protocol)
	}

	d.decoded = d.decoded[:0]
	if err := parser.DecodeLayers(datagram, &d.decoded); err != nil {
		return fmt.Errorf("%w: reassembled datagram: %v", core.ErrDecodeSkip, err)
	}
	for _, layerType := range d.decoded {
		if layerType == layers.LayerTypeTCP || layerType == layers.LayerTypeUDP {
			d.fillTransport(pkt, layerType)
			pkt.Reassembled = true
			return nil
		}
	}
	return fmt.Errorf("%w: reassembled datagram has no transport header", core.ErrDecodeSkip)
}

func (d *Decoder) fillTransport(pkt *core.DecodedPacket, layerType gopacket.LayerType) {
	if layerType == layers.LayerTypeTCP {
		pkt.Transport = core.TransportHeader{
			SrcPort:  uint16(d.tcp.SrcPort),
			DstPort:  uint16(d.tcp.DstPort),
			Protocol: core.ProtoTCP,
			SeqNum:   d.tcp.Seq,
		}
		pkt.Payload = d.tcp.Payload
	} else {
		pkt.Transport = core.TransportHeader{
			SrcPort:  uint16(d.udp.SrcPort),
			DstPort:  uint16(d.udp.DstPort),
			Protocol: core.ProtoUDP,
		}
		pkt.Payload = d.udp.Payload
	}
	pkt.IP.Protocol = pkt.Transport.Protocol
}

// Stats returns fragment reassembly state, zero when reassembly is disabled.
func (d *Decoder) Stats() ReassemblyStats {
	if d.reassembler == nil {
		return ReassemblyStats{}
	}
	return d.reassembler.Stats()
}

func isFragment(ip *layers.IPv4) bool {
	return ip.Flags&layers.IPv4MoreFragments != 0 || ip.FragOffset != 0
}

func toAddr(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
