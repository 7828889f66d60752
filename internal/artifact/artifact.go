// Package artifact deduplicates extracted files and writes them to disk.
package artifact

import (
	"fmt"
	"time"

	"firestige.xyz/pcapsift/internal/core"
)

// Source tells how an artifact was found.
type Source string

const (
	SourceHTTP   Source = "http"
	SourceHTTP2  Source = "http2"
	SourceCarved Source = "carved"
)

// Artifact is one extracted file. Identity is the HTTP resource path or a
// synthetic name for carved data.
type Artifact struct {
	Identity  string
	Data      []byte
	Source    Source
	Flow      core.FlowKey
	Timestamp time.Time
}

// Set holds artifacts keyed by identity. Storing an identity again replaces
// its data and keeps its original position; content is not compared.
type Set struct {
	order []string
	items map[string]Artifact
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{items: make(map[string]Artifact)}
}

// Put stores a, replacing any artifact with the same identity.
func (s *Set) Put(a Artifact) {
	if _, ok := s.items[a.Identity]; !ok {
		s.order = append(s.order, a.Identity)
	}
	s.items[a.Identity] = a
}

// Get returns the artifact stored under identity.
func (s *Set) Get(identity string) (Artifact, bool) {
	a, ok := s.items[identity]
	return a, ok
}

// Len returns the number of distinct identities.
func (s *Set) Len() int { return len(s.order) }

// All returns the artifacts in first-insertion order.
func (s *Set) All() []Artifact {
	out := make([]Artifact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Failure records an artifact that could not be exported.
type Failure struct {
	Identity string
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("export %q: %v", f.Identity, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// SyntheticName names a carved artifact after its capture time (UTC,
// microsecond resolution) and a run-wide sequence number.
func SyntheticName(ts time.Time, seq int, ext string) string {
	return fmt.Sprintf("carved_%s_%04d.%s", ts.UTC().Format("20060102T150405.000000Z"), seq, ext)
}
