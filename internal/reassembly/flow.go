package reassembly

import (
	"slices"
	"time"

	"firestige.xyz/pcapsift/internal/core"
)

// Flow is the buffer of one unidirectional flow.
//
// TCP payloads are indexed by sequence number and concatenated in ascending
// numeric order; a repeated sequence number replaces the earlier payload.
// UDP payloads are kept in capture order.
type Flow struct {
	Key   core.FlowKey
	First time.Time // capture time of the first payload
	Last  time.Time // capture time of the newest payload

	bySeq map[uint32][]byte
	seqs  []uint32 // sorted keys of bySeq
	dgram [][]byte // UDP datagrams in arrival order

	size   int
	cached []byte // concatenation, valid until the next mutation
}

func newFlow(key core.FlowKey) *Flow {
	f := &Flow{Key: key}
	if key.Proto == core.ProtoTCP {
		f.bySeq = make(map[uint32][]byte)
	}
	return f
}

func (f *Flow) ordered() bool { return f.bySeq != nil }

func (f *Flow) add(seq uint32, payload []byte, ts time.Time) {
	if f.First.IsZero() {
		f.First = ts
	}
	f.Last = ts
	f.cached = nil

	if !f.ordered() {
		f.dgram = append(f.dgram, payload)
		f.size += len(payload)
		return
	}
	if prev, ok := f.bySeq[seq]; ok {
		f.size -= len(prev)
	} else {
		i, _ := slices.BinarySearch(f.seqs, seq)
		f.seqs = slices.Insert(f.seqs, i, seq)
	}
	f.bySeq[seq] = payload
	f.size += len(payload)
}

func (f *Flow) reset() {
	if f.ordered() {
		clear(f.bySeq)
		f.seqs = f.seqs[:0]
	} else {
		f.dgram = nil
	}
	f.size = 0
	f.cached = nil
	f.First = time.Time{}
}

// Len returns the number of buffered bytes.
func (f *Flow) Len() int { return f.size }

// Segments returns the number of buffered payloads.
func (f *Flow) Segments() int {
	if f.ordered() {
		return len(f.seqs)
	}
	return len(f.dgram)
}

// Contiguous reports whether every TCP payload ends exactly where the next
// one starts. UDP flows are always contiguous.
func (f *Flow) Contiguous() bool {
	if !f.ordered() {
		return true
	}
	for i := 1; i < len(f.seqs); i++ {
		prev := f.seqs[i-1]
		if prev+uint32(len(f.bySeq[prev])) != f.seqs[i] {
			return false
		}
	}
	return true
}

// pieces returns the payloads in stream order.
func (f *Flow) pieces() [][]byte {
	if !f.ordered() {
		return f.dgram
	}
	out := make([][]byte, len(f.seqs))
	for i, seq := range f.seqs {
		out[i] = f.bySeq[seq]
	}
	return out
}

// Bytes returns the reassembled stream. The result must not be modified.
func (f *Flow) Bytes() []byte {
	if f.cached == nil {
		buf := make([]byte, 0, f.size)
		for _, p := range f.pieces() {
			buf = append(buf, p...)
		}
		f.cached = buf
	}
	return f.cached
}

// Head returns up to n leading bytes of the stream.
func (f *Flow) Head(n int) []byte {
	if f.cached != nil || n >= f.size {
		return prefix(f.Bytes(), n)
	}
	buf := make([]byte, 0, n)
	for _, p := range f.pieces() {
		if len(buf)+len(p) >= n {
			return append(buf, p[:n-len(buf)]...)
		}
		buf = append(buf, p...)
	}
	return buf
}

// Tail returns up to n trailing bytes of the stream.
func (f *Flow) Tail(n int) []byte {
	if f.cached != nil || n >= f.size {
		b := f.Bytes()
		if n > len(b) {
			n = len(b)
		}
		return b[len(b)-n:]
	}
	pieces := f.pieces()
	need := n
	i := len(pieces) - 1
	for ; i > 0 && len(pieces[i]) < need; i-- {
		need -= len(pieces[i])
	}
	buf := make([]byte, 0, n)
	first := pieces[i]
	if len(first) > need {
		first = first[len(first)-need:]
	}
	buf = append(buf, first...)
	for _, p := range pieces[i+1:] {
		buf = append(buf, p...)
	}
	return buf
}

func prefix(b []byte, n int) []byte {
	if n > len(b) {
		n = len(b)
	}
	return b[:n]
}
