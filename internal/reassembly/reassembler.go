// Package reassembly rebuilds per-flow byte streams from transport segments.
package reassembly

import (
	"slices"

	"firestige.xyz/pcapsift/internal/core"
)

// Stream is the reassembled content of one flow.
type Stream struct {
	Key  core.FlowKey
	Data []byte
	Flow *Flow
}

// Reassembler owns the buffers of every flow seen in one pass.
// It is single-writer and not safe for concurrent use.
type Reassembler struct {
	flows map[core.FlowKey]*Flow
	seen  int
}

// New creates an empty reassembler.
func New() *Reassembler {
	return &Reassembler{flows: make(map[core.FlowKey]*Flow)}
}

// Ingest buffers one segment and returns its flow. Segments without payload
// are ignored and return nil: they neither create a flow nor reset one.
//
// A TCP segment with sequence number zero on a tracked key clears the
// buffer before insertion, treating it as a new transfer on a reused key.
// A transfer whose sequence counter genuinely reaches zero is truncated.
func (r *Reassembler) Ingest(seg core.Segment) *Flow {
	if len(seg.Payload) == 0 {
		return nil
	}
	f, ok := r.flows[seg.Key]
	if !ok {
		f = newFlow(seg.Key)
		r.flows[seg.Key] = f
		r.seen++
	} else if seg.HasSeq && seg.Seq == 0 && f.Segments() > 0 {
		f.reset()
	}
	f.add(seg.Seq, seg.Payload, seg.Timestamp)
	return f
}

// Flow returns the buffer for key.
func (r *Reassembler) Flow(key core.FlowKey) (*Flow, bool) {
	f, ok := r.flows[key]
	return f, ok
}

// Reset clears the buffer of key, keeping the flow tracked.
func (r *Reassembler) Reset(key core.FlowKey) {
	if f, ok := r.flows[key]; ok {
		f.reset()
	}
}

// Len returns the number of tracked flows.
func (r *Reassembler) Len() int { return len(r.flows) }

// Seen returns the number of distinct keys ever tracked.
func (r *Reassembler) Seen() int { return r.seen }

// Drain returns every non-empty flow ordered by key and releases the
// buffers. The order depends only on the keys, never on ingestion order.
func (r *Reassembler) Drain() []Stream {
	keys := make([]core.FlowKey, 0, len(r.flows))
	for k, f := range r.flows {
		if f.Len() > 0 {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, core.FlowKey.Compare)

	out := make([]Stream, 0, len(keys))
	for _, k := range keys {
		f := r.flows[k]
		out = append(out, Stream{Key: k, Data: f.Bytes(), Flow: f})
	}
	r.flows = make(map[core.FlowKey]*Flow)
	return out
}
