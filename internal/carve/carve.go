// Package carve recovers files from raw streams by their start and end
// signatures.
package carve

import "bytes"

// Rule is one entry of the signature table.
type Rule struct {
	Name            string
	Ext             string
	Header          []byte
	Trailer         []byte // nil when the format has no usable end marker
	TrailerRequired bool
	TrailingSpace   bool // line endings may follow the trailer
}

// Table is evaluated in order; the first rule whose header matches decides.
var Table = []Rule{
	{Name: "jpeg", Ext: "jpg", Header: []byte{0xFF, 0xD8, 0xFF, 0xE0}, Trailer: []byte{0xFF, 0xD9}, TrailerRequired: true},
	{Name: "png", Ext: "png", Header: []byte("\x89PNG\r\n\x1a\n"), Trailer: []byte("IEND\xaeB`\x82")},
	{Name: "gif87a", Ext: "gif", Header: []byte("GIF87a")},
	{Name: "gif89a", Ext: "gif", Header: []byte("GIF89a")},
	{Name: "text", Ext: "txt", Header: []byte("TEXT")},
	{Name: "pdf", Ext: "pdf", Header: []byte("%PDF"), Trailer: []byte("%%EOF"), TrailingSpace: true},
	{Name: "zip", Ext: "zip", Header: []byte("PK\x03\x04")},
}

// maxHeader is the longest header in Table.
var maxHeader = func() int {
	n := 0
	for _, r := range Table {
		n = max(n, len(r.Header))
	}
	return n
}()

// trailerSlack is how much trailing whitespace a TrailingSpace rule tolerates.
const trailerSlack = 4

// View is an accumulated stream that can be inspected without copying it whole.
type View interface {
	Head(n int) []byte
	Tail(n int) []byte
	Bytes() []byte
	Len() int
	// Contiguous reports whether no bytes are missing between the
	// buffered pieces.
	Contiguous() bool
}

// Match is a carved file.
type Match struct {
	Rule *Rule
	Data []byte
}

// Ext returns the inferred file extension.
func (m Match) Ext() string { return m.Rule.Ext }

// lookup returns the rule whose header starts head.
func lookup(head []byte) *Rule {
	for i := range Table {
		if bytes.HasPrefix(head, Table[i].Header) {
			return &Table[i]
		}
	}
	return nil
}

// Incremental checks a stream that may still be growing. Only formats with
// an end marker can fire, and only once the stream is contiguous and ends
// with that marker, so calling it after every ingestion is safe.
func Incremental(v View) (Match, bool) {
	if v.Len() == 0 || !v.Contiguous() {
		return Match{}, false
	}
	rule := lookup(v.Head(maxHeader))
	if rule == nil || rule.Trailer == nil {
		return Match{}, false
	}
	tail := v.Tail(len(rule.Trailer) + trailerSlack)
	if rule.TrailingSpace {
		tail = bytes.TrimRight(tail, "\r\n \t")
	}
	if !bytes.HasSuffix(tail, rule.Trailer) {
		return Match{}, false
	}
	if v.Len() < len(rule.Header)+len(rule.Trailer) {
		return Match{}, false
	}
	return Match{Rule: rule, Data: v.Bytes()}, true
}

// Final checks a complete stream. A header match suffices unless the
// format's trailer is required; when a trailer is present the carved data
// ends at its last occurrence.
func Final(stream []byte) (Match, bool) {
	rule := lookup(stream)
	if rule == nil {
		return Match{}, false
	}
	if rule.Trailer == nil {
		return Match{Rule: rule, Data: stream}, true
	}
	body := stream[len(rule.Header):]
	idx := bytes.LastIndex(body, rule.Trailer)
	if idx < 0 {
		if rule.TrailerRequired {
			return Match{}, false
		}
		return Match{Rule: rule, Data: stream}, true
	}
	end := len(rule.Header) + idx + len(rule.Trailer)
	return Match{Rule: rule, Data: stream[:end]}, true
}

// Carve returns the carved bytes and their extension.
func Carve(stream []byte) ([]byte, string, bool) {
	m, ok := Final(stream)
	if !ok {
		return nil, "", false
	}
	return m.Data, m.Ext(), true
}
