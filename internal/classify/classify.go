// Package classify decides what a reassembled stream carries: HTTP/1.x
// text, HTTP/2 frames, a carvable file, or nothing recognizable.
package classify

import (
	"log/slog"

	"firestige.xyz/pcapsift/internal/carve"
)

// Kind is the closed set of stream classifications.
type Kind int

const (
	Unrecognized Kind = iota
	HTTPText
	HTTP2Binary
	Carvable
)

func (k Kind) String() string {
	switch k {
	case HTTPText:
		return "http"
	case HTTP2Binary:
		return "http2"
	case Carvable:
		return "carvable"
	default:
		return "unrecognized"
	}
}

// Resource is an allow-listed resource requested in a stream.
type Resource struct {
	Path   string // request target as sent, query included
	Method string
	Index  int    // position of the request among all requests of the stream
	Body   []byte // request body, HTTP/1.x only
}

// Classification is the result of Classify.
type Classification struct {
	Kind      Kind
	Resources []Resource   // HTTPText and HTTP2Binary
	Responses []Message    // HTTP/1.x responses found in the stream
	Carved    *carve.Match // Carvable
}

// Options selects the enabled detectors.
type Options struct {
	HTTP       bool
	HTTP2      bool
	Carve      bool
	Extensions []string     // allow-listed suffixes without the dot
	Logger     *slog.Logger // receives HTTP/2 framing errors; nil means slog.Default()
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Classify runs the detectors in fixed order: HTTP/1.x, HTTP/2, carving.
func Classify(stream []byte, opts Options) Classification {
	if opts.HTTP && IsHTTP1(stream) {
		requests, responses := ParseHTTP1(stream)
		c := Classification{Kind: HTTPText, Responses: responses}
		for _, req := range requests {
			if Allowed(req.Path, opts.Extensions) {
				c.Resources = append(c.Resources, Resource{
					Path:   req.Path,
					Method: req.Method,
					Index:  req.Index,
					Body:   req.Body,
				})
			}
		}
		return c
	}

	if opts.HTTP2 && IsHTTP2(stream) {
		c := Classification{Kind: HTTP2Binary}
		for _, p := range HTTP2Paths(stream, opts.logger()) {
			if Allowed(p, opts.Extensions) {
				c.Resources = append(c.Resources, Resource{Path: p, Index: len(c.Resources)})
			}
		}
		return c
	}

	if opts.Carve {
		if m, ok := carve.Final(stream); ok {
			return Classification{Kind: Carvable, Carved: &m}
		}
	}
	return Classification{Kind: Unrecognized}
}
