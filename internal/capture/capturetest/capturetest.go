// Package capturetest synthesizes capture files for tests.
package capturetest

import (
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

// Base is the capture time of the first synthesized packet.
var Base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa}
)

// Packet is one frame with its capture time.
type Packet struct {
	Time time.Time
	Data []byte
}

// Sequence stamps frames one millisecond apart starting at Base.
func Sequence(frames ...[]byte) []Packet {
	packets := make([]Packet, len(frames))
	for i, f := range frames {
		packets[i] = Packet{Time: Base.Add(time.Duration(i) * time.Millisecond), Data: f}
	}
	return packets
}

// TCP builds an Ethernet frame carrying one TCP segment from src to dst,
// both given as "addr:port".
func TCP(t testing.TB, src, dst string, seq uint32, payload []byte) []byte {
	t.Helper()
	s, d := netip.MustParseAddrPort(src), netip.MustParseAddrPort(dst)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.Port()),
		DstPort: layers.TCPPort(d.Port()),
		Seq:     seq,
		ACK:     true,
		PSH:     len(payload) > 0,
		Window:  65535,
	}
	return frame(t, s.Addr(), d.Addr(), layers.IPProtocolTCP, tcp, payload)
}

// UDP builds an Ethernet frame carrying one UDP datagram.
func UDP(t testing.TB, src, dst string, payload []byte) []byte {
	t.Helper()
	s, d := netip.MustParseAddrPort(src), netip.MustParseAddrPort(dst)
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(s.Port()),
		DstPort: layers.UDPPort(d.Port()),
	}
	return frame(t, s.Addr(), d.Addr(), layers.IPProtocolUDP, udp, payload)
}

type transportLayer interface {
	gopacket.SerializableLayer
	SetNetworkLayerForChecksum(gopacket.NetworkLayer) error
}

func frame(t testing.TB, src, dst netip.Addr, proto layers.IPProtocol, transport transportLayer, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}

	var network gopacket.SerializableLayer
	if src.Is4() {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
		require.NoError(t, transport.SetNetworkLayerForChecksum(ip))
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: proto,
			SrcIP:      net.IP(src.AsSlice()),
			DstIP:      net.IP(dst.AsSlice()),
		}
		require.NoError(t, transport.SetNetworkLayerForChecksum(ip))
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, network, transport, gopacket.Payload(payload)))
	return buf.Bytes()
}

// WritePcap writes packets to a classic pcap file with an Ethernet link type.
func WritePcap(t testing.TB, path string, packets []Packet) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, p := range packets {
		require.NoError(t, w.WritePacket(captureInfo(p), p.Data))
	}
}

// WritePcapNG writes packets to a pcapng file with one Ethernet interface.
func WritePcapNG(t testing.TB, path string, packets []Packet) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for _, p := range packets {
		require.NoError(t, w.WritePacket(captureInfo(p), p.Data))
	}
	require.NoError(t, w.Flush())
}

func captureInfo(p Packet) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     p.Time,
		CaptureLength: len(p.Data),
		Length:        len(p.Data),
	}
}
