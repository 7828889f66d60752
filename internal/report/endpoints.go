package report

import (
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"sort"

	"firestige.xyz/pcapsift/internal/capture"
	"firestige.xyz/pcapsift/internal/core/decoder"
)

// EndpointSet collects "src: addr:port" and "dst: addr:port" entries.
type EndpointSet struct {
	items map[string]struct{}
}

// NewEndpointSet creates an empty set.
func NewEndpointSet() *EndpointSet {
	return &EndpointSet{items: make(map[string]struct{})}
}

// Add records both ends of one packet.
func (s *EndpointSet) Add(src, dst netip.AddrPort) {
	s.items["src: "+src.String()] = struct{}{}
	s.items["dst: "+dst.String()] = struct{}{}
}

// List returns the entries sorted.
func (s *EndpointSet) List() []string {
	out := make([]string, 0, len(s.items))
	for e := range s.items {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct entries.
func (s *EndpointSet) Len() int { return len(s.items) }

// ExtractEndpoints decodes every frame of each capture and records the
// TCP/UDP endpoints seen. Captures that cannot be opened are skipped, and
// a read error ends the scan of that capture only.
func ExtractEndpoints(paths []string) []string {
	set := NewEndpointSet()
	for _, p := range paths {
		if err := scanEndpoints(p, set); err != nil {
			slog.Warn("skipping capture for endpoint scan", "capture", p, "error", err)
		}
	}
	return set.List()
}

func scanEndpoints(path string, set *EndpointSet) error {
	r, err := capture.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	dec := decoder.New(decoder.Config{})
	for {
		data, ci, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		pkt, err := dec.Decode(data, ci, r.LinkType())
		if err != nil {
			continue
		}
		set.Add(
			netip.AddrPortFrom(pkt.IP.SrcIP, pkt.Transport.SrcPort),
			netip.AddrPortFrom(pkt.IP.DstIP, pkt.Transport.DstPort),
		)
	}
}
