package decoder

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapsift/internal/core"
)

var (
	fragSrc = net.IPv4(192, 168, 1, 1).To4()
	fragDst = net.IPv4(192, 168, 1, 2).To4()
)

// ipv4Fragment builds a decoded IPv4 header carrying one fragment.
// fragOffset is in 8-byte units.
func ipv4Fragment(src, dst net.IP, fragID, fragOffset uint16, moreFragments bool, payload []byte) *layers.IPv4 {
	ip := &layers.IPv4{
		Version:    4,
		IHL:        5,
		TTL:        64,
		Id:         fragID,
		FragOffset: fragOffset,
		Protocol:   layers.IPProtocolUDP,
		SrcIP:      src,
		DstIP:      dst,
	}
	if moreFragments {
		ip.Flags = layers.IPv4MoreFragments
	}
	ip.Payload = payload
	return ip
}

func TestReassembler_NonFragment(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})

	payload := []byte("hello, world")
	result, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 0, 0, false, payload), time.Unix(100, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !complete {
		t.Fatal("non-fragmented packet should be complete")
	}
	if !bytes.Equal(result, payload) {
		t.Fatalf("expected payload %q, got %q", payload, result)
	}
}

func TestReassembler_TwoFragments(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	now := time.Unix(100, 0)

	first := bytes.Repeat([]byte{'A'}, 16)
	second := []byte("tail")

	result, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 0x1234, 0, true, first), now)
	if err != nil || complete || result != nil {
		t.Fatalf("first fragment: result=%v complete=%v err=%v", result, complete, err)
	}
	if got := r.Stats().Pending; got != 1 {
		t.Fatalf("expected 1 pending datagram, got %d", got)
	}

	result, complete, err = r.Process(ipv4Fragment(fragSrc, fragDst, 0x1234, 2, false, second), now)
	if err != nil {
		t.Fatalf("second fragment: %v", err)
	}
	if !complete {
		t.Fatal("datagram should be complete")
	}
	want := append(append([]byte{}, first...), second...)
	if !bytes.Equal(result, want) {
		t.Fatalf("expected %q, got %q", want, result)
	}

	stats := r.Stats()
	if stats.Pending != 0 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReassembler_OutOfOrder(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	now := time.Unix(100, 0)

	parts := [][]byte{
		bytes.Repeat([]byte{'a'}, 8),
		bytes.Repeat([]byte{'b'}, 8),
		[]byte("ccc"),
	}

	if _, complete, _ := r.Process(ipv4Fragment(fragSrc, fragDst, 7, 2, false, parts[2]), now); complete {
		t.Fatal("last fragment alone should not complete")
	}
	if _, complete, _ := r.Process(ipv4Fragment(fragSrc, fragDst, 7, 0, true, parts[0]), now); complete {
		t.Fatal("gap at offset 8 should keep datagram pending")
	}
	result, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 7, 1, true, parts[1]), now)
	if err != nil || !complete {
		t.Fatalf("expected completion, complete=%v err=%v", complete, err)
	}
	if want := "aaaaaaaabbbbbbbbccc"; string(result) != want {
		t.Fatalf("expected %q, got %q", want, result)
	}
}

func TestReassembler_OverlappingFragments(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	now := time.Unix(100, 0)

	r.Process(ipv4Fragment(fragSrc, fragDst, 9, 0, true, bytes.Repeat([]byte{'X'}, 16)), now)
	// Overlaps bytes 8..15 already held; the earlier data must win.
	result, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 9, 1, false, bytes.Repeat([]byte{'Y'}, 16)), now)
	if err != nil || !complete {
		t.Fatalf("expected completion, complete=%v err=%v", complete, err)
	}
	want := append(bytes.Repeat([]byte{'X'}, 16), bytes.Repeat([]byte{'Y'}, 8)...)
	if !bytes.Equal(result, want) {
		t.Fatalf("expected %q, got %q", want, result)
	}
}

func TestReassembler_DuplicateFragment(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	now := time.Unix(100, 0)

	first := bytes.Repeat([]byte{'D'}, 8)
	r.Process(ipv4Fragment(fragSrc, fragDst, 3, 0, true, first), now)
	if _, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 3, 0, true, first), now); err != nil || complete {
		t.Fatalf("duplicate should be absorbed, complete=%v err=%v", complete, err)
	}
	result, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 3, 1, false, []byte("end")), now)
	if err != nil || !complete {
		t.Fatalf("expected completion, complete=%v err=%v", complete, err)
	}
	if want := "DDDDDDDDend"; string(result) != want {
		t.Fatalf("expected %q, got %q", want, result)
	}
}

func TestReassembler_SecurityChecks(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	now := time.Unix(100, 0)

	tests := []struct {
		name string
		ip   *layers.IPv4
	}{
		{"empty fragment", ipv4Fragment(fragSrc, fragDst, 1, 0, true, nil)},
		{"offset too large", ipv4Fragment(fragSrc, fragDst, 1, ipv4MaxFragOffset+1, false, []byte("x"))},
		{"exceeds max size", ipv4Fragment(fragSrc, fragDst, 1, ipv4MaxFragOffset, false, make([]byte, 200))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := r.Process(tt.ip, now); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if got := r.Stats().Rejected; got != uint64(len(tests)) {
		t.Fatalf("expected %d rejected, got %d", len(tests), got)
	}
}

func TestReassembler_MaxFragments(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{MaxFragments: 2})
	now := time.Unix(100, 0)

	r.Process(ipv4Fragment(fragSrc, fragDst, 5, 0, true, make([]byte, 8)), now)
	r.Process(ipv4Fragment(fragSrc, fragDst, 5, 2, true, make([]byte, 8)), now)
	_, _, err := r.Process(ipv4Fragment(fragSrc, fragDst, 5, 4, true, make([]byte, 8)), now)
	if !errors.Is(err, core.ErrReassemblyLimit) {
		t.Fatalf("expected ErrReassemblyLimit, got %v", err)
	}
	if got := r.Stats().Pending; got != 0 {
		t.Fatalf("datagram should be evicted, %d pending", got)
	}
}

func TestReassembler_MaxReassembleSize(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{MaxReassembleSize: 16})
	now := time.Unix(100, 0)

	r.Process(ipv4Fragment(fragSrc, fragDst, 6, 0, true, make([]byte, 16)), now)
	_, complete, err := r.Process(ipv4Fragment(fragSrc, fragDst, 6, 2, false, make([]byte, 8)), now)
	if complete || !errors.Is(err, core.ErrReassemblyLimit) {
		t.Fatalf("expected size limit error, complete=%v err=%v", complete, err)
	}
}

func TestReassembler_DifferentFlows(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	now := time.Unix(100, 0)
	other := net.IPv4(10, 9, 9, 9).To4()

	r.Process(ipv4Fragment(fragSrc, fragDst, 1, 0, true, bytes.Repeat([]byte{'1'}, 8)), now)
	r.Process(ipv4Fragment(other, fragDst, 1, 0, true, bytes.Repeat([]byte{'2'}, 8)), now)
	if got := r.Stats().Pending; got != 2 {
		t.Fatalf("expected 2 pending datagrams, got %d", got)
	}

	result, complete, _ := r.Process(ipv4Fragment(other, fragDst, 1, 1, false, []byte("!")), now)
	if !complete || string(result) != "22222222!" {
		t.Fatalf("expected second flow to complete, got %q complete=%v", result, complete)
	}
	if got := r.Stats().Pending; got != 1 {
		t.Fatalf("first flow should still be pending, got %d", got)
	}
}

func TestReassembler_ExpiresByCaptureTime(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{Timeout: 10 * time.Second})
	start := time.Unix(1000, 0)

	r.Process(ipv4Fragment(fragSrc, fragDst, 1, 0, true, make([]byte, 8)), start)
	// A fragment for another datagram 11s later in capture time sweeps the first.
	r.Process(ipv4Fragment(fragSrc, fragDst, 2, 0, true, make([]byte, 8)), start.Add(11*time.Second))

	stats := r.Stats()
	if stats.Expired != 1 {
		t.Fatalf("expected 1 expired datagram, got %d", stats.Expired)
	}
	if stats.Pending != 1 {
		t.Fatalf("expected only the new datagram pending, got %d", stats.Pending)
	}

	// The late tail of the expired datagram cannot complete it.
	_, complete, _ := r.Process(ipv4Fragment(fragSrc, fragDst, 1, 1, false, []byte("x")), start.Add(12*time.Second))
	if complete {
		t.Fatal("expired datagram must not complete")
	}
}
