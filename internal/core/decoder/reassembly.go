// Package decoder implements protocol decoding.
package decoder

import (
	"container/list"
	"fmt"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pcapsift/internal/core"
	"firestige.xyz/pcapsift/internal/metrics"
)

// Reassembly limits from the BSD-Right algorithm (RFC 791).
const (
	ipv4MinFragSize    = 1     // Minimum valid fragment payload size
	ipv4MaxSize        = 65535 // Maximum IPv4 datagram size
	ipv4MaxFragOffset  = 8183  // Maximum valid fragment offset (in 8-byte units)
	ipv4MaxFragListLen = 8192  // Maximum fragments per datagram before eviction
)

// ReassemblyConfig contains configuration for IP reassembly.
type ReassemblyConfig struct {
	MaxFragments      int           // Maximum fragments per datagram (default 100)
	MaxReassembleSize int           // Maximum reassembled datagram size (default 65535)
	Timeout           time.Duration // Capture-time expiry of incomplete datagrams (default 30s)
}

// ReassemblyStats reports reassembler activity for one run.
type ReassemblyStats struct {
	Pending   int    // Datagrams still waiting for fragments
	Completed uint64 // Datagrams fully reassembled
	Expired   uint64 // Datagrams dropped by the capture-time timeout
	Rejected  uint64 // Fragments refused by a limit or sanity check
}

// fragmentKey uniquely identifies a fragmented IPv4 datagram.
type fragmentKey struct {
	srcIP    [4]byte
	dstIP    [4]byte
	protocol uint8
	id       uint16
}

// fragment represents a single IP fragment's payload and position.
type fragment struct {
	offset  uint16 // Fragment offset in bytes (fragOffset * 8)
	length  uint16 // Payload length in bytes
	payload []byte // Fragment payload (copy of original data)
}

// fragmentList keeps fragments sorted by offset. On overlap the data that
// arrived first is preserved and the newcomer is trimmed (BSD-Right policy).
type fragmentList struct {
	list          list.List // list of *fragment, sorted by offset ascending
	highest       uint16    // highest byte position seen = max(offset + fragLen)
	current       uint16    // total unique bytes accumulated
	finalReceived bool      // true when the last fragment (MF=0) is received
	lastSeen      time.Time // capture timestamp of the newest fragment
}

// Reassembler handles IPv4 fragment reassembly using the BSD-Right algorithm.
// Expiry is driven by capture timestamps, so replaying the same capture
// always yields the same datagrams. Not safe for concurrent use.
type Reassembler struct {
	flows     map[fragmentKey]*fragmentList
	config    ReassemblyConfig
	lastSweep time.Time
	stats     ReassemblyStats
}

// NewReassembler creates a new IP fragment reassembler.
func NewReassembler(cfg ReassemblyConfig) *Reassembler {
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 100
	}
	if cfg.MaxReassembleSize <= 0 {
		cfg.MaxReassembleSize = ipv4MaxSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Reassembler{
		flows:  make(map[fragmentKey]*fragmentList),
		config: cfg,
	}
}

// Process handles one decoded IPv4 packet.
// Returns:
//   - Non-fragmented packet: (payload, true, nil): no copy
//   - Fragment not yet complete: (nil, false, nil): waiting for more fragments
//   - Fragment reassembled: (datagramPayload, true, nil): complete datagram
//   - Error: (nil, false, err): sanity check failed or limits exceeded
func (r *Reassembler) Process(ip *layers.IPv4, timestamp time.Time) ([]byte, bool, error) {
	moreFragments := ip.Flags&layers.IPv4MoreFragments != 0
	if !moreFragments && ip.FragOffset == 0 {
		return ip.Payload, true, nil
	}

	r.sweep(timestamp)

	byteOffset := ip.FragOffset * 8
	fragPayloadLen := uint16(len(ip.Payload))

	if err := r.securityChecks(fragPayloadLen, ip.FragOffset); err != nil {
		r.stats.Rejected++
		return nil, false, err
	}

	key := fragmentKey{
		protocol: uint8(ip.Protocol),
		id:       ip.Id,
	}
	copy(key.srcIP[:], ip.SrcIP.To4())
	copy(key.dstIP[:], ip.DstIP.To4())

	fl, exists := r.flows[key]
	if !exists {
		fl = &fragmentList{}
		r.flows[key] = fl
		metrics.ReassemblyPendingDatagrams.Inc()
	}

	if fl.list.Len() >= ipv4MaxFragListLen || fl.list.Len() >= r.config.MaxFragments {
		r.evictFlow(key)
		r.stats.Rejected++
		return nil, false, fmt.Errorf("%w: %d fragments for datagram id %d", core.ErrReassemblyLimit, fl.list.Len(), ip.Id)
	}

	// The capture buffer is reused by the reader, keep a private copy.
	payload := make([]byte, fragPayloadLen)
	copy(payload, ip.Payload)

	fl.lastSeen = timestamp

	if !moreFragments {
		fl.finalReceived = true
		if endPos := byteOffset + fragPayloadLen; endPos > fl.highest {
			fl.highest = endPos
		}
	}

	r.insertBSDRight(fl, &fragment{
		offset:  byteOffset,
		length:  fragPayloadLen,
		payload: payload,
	})

	if fl.finalReceived && fl.current >= fl.highest {
		result, err := r.build(fl)
		r.evictFlow(key)
		if err != nil {
			r.stats.Rejected++
			return nil, false, err
		}
		r.stats.Completed++
		return result, true, nil
	}

	return nil, false, nil
}

// Stats returns a snapshot of the reassembler counters.
func (r *Reassembler) Stats() ReassemblyStats {
	s := r.stats
	s.Pending = len(r.flows)
	return s
}

// securityChecks validates fragment parameters.
func (r *Reassembler) securityChecks(fragSize, fragOffset uint16) error {
	if fragSize < ipv4MinFragSize {
		return fmt.Errorf("fragment too small: %d bytes", fragSize)
	}
	if fragOffset > ipv4MaxFragOffset {
		return fmt.Errorf("fragment offset too large: %d", fragOffset)
	}
	endPos := uint32(fragOffset)*8 + uint32(fragSize)
	if endPos > ipv4MaxSize {
		return fmt.Errorf("fragment would exceed max IP size: offset=%d size=%d end=%d",
			uint32(fragOffset)*8, fragSize, endPos)
	}
	return nil
}

// insertBSDRight inserts a fragment into the ordered list.
// Existing fragments take priority over new ones on overlap.
func (r *Reassembler) insertBSDRight(fl *fragmentList, frag *fragment) {
	fragEnd := frag.offset + frag.length

	if fragEnd > fl.highest && !fl.finalReceived {
		fl.highest = fragEnd
	}

	// First element with offset >= frag.offset
	var insertBefore *list.Element
	for e := fl.list.Front(); e != nil; e = e.Next() {
		if e.Value.(*fragment).offset >= frag.offset {
			insertBefore = e
			break
		}
	}

	startAt := frag.offset
	if insertBefore != nil {
		if prev := insertBefore.Prev(); prev != nil {
			prevFrag := prev.Value.(*fragment)
			if prevEnd := prevFrag.offset + prevFrag.length; prevEnd > startAt {
				startAt = prevEnd
			}
		}
	} else if fl.list.Len() > 0 {
		lastFrag := fl.list.Back().Value.(*fragment)
		if lastEnd := lastFrag.offset + lastFrag.length; lastEnd > startAt {
			startAt = lastEnd
		}
	}

	endAt := fragEnd
	if insertBefore != nil {
		if nextFrag := insertBefore.Value.(*fragment); nextFrag.offset < endAt {
			endAt = nextFrag.offset
		}
	}

	if startAt >= endAt {
		return // fully covered by earlier fragments
	}

	trimmed := &fragment{
		offset:  startAt,
		length:  endAt - startAt,
		payload: frag.payload[startAt-frag.offset : endAt-frag.offset],
	}
	if insertBefore != nil {
		fl.list.InsertBefore(trimmed, insertBefore)
	} else {
		fl.list.PushBack(trimmed)
	}
	fl.current += trimmed.length
}

// build concatenates all fragments into a contiguous payload.
func (r *Reassembler) build(fl *fragmentList) ([]byte, error) {
	totalSize := int(fl.highest)
	if totalSize > r.config.MaxReassembleSize {
		return nil, fmt.Errorf("%w: reassembled size %d exceeds %d", core.ErrReassemblyLimit, totalSize, r.config.MaxReassembleSize)
	}

	result := make([]byte, totalSize)
	for e := fl.list.Front(); e != nil; e = e.Next() {
		frag := e.Value.(*fragment)
		copy(result[frag.offset:frag.offset+frag.length], frag.payload)
	}
	return result, nil
}

func (r *Reassembler) evictFlow(key fragmentKey) {
	if _, exists := r.flows[key]; exists {
		delete(r.flows, key)
		metrics.ReassemblyPendingDatagrams.Dec()
	}
}

// sweep drops datagrams whose newest fragment is older than the timeout,
// measured in capture time. Runs at most twice per timeout window.
func (r *Reassembler) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < r.config.Timeout/2 {
		return
	}
	r.lastSweep = now
	for key, fl := range r.flows {
		if now.Sub(fl.lastSeen) > r.config.Timeout {
			r.evictFlow(key)
			r.stats.Expired++
		}
	}
}
