package classify

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"firestige.xyz/pcapsift/internal/metrics"
)

// h2PrefaceMarker is the leading part of the client connection preface.
var h2PrefaceMarker = []byte("PRI * HTTP/2.0")

// IsHTTP2 reports whether the stream starts with the HTTP/2 client preface.
func IsHTTP2(stream []byte) bool {
	return bytes.HasPrefix(stream, h2PrefaceMarker)
}

// HTTP2Paths reads the frames following the client preface and returns the
// :path of every request header block, in stream order. Framing errors end
// the scan and are logged; they never fail the caller.
func HTTP2Paths(stream []byte, logger *slog.Logger) []string {
	if !bytes.HasPrefix(stream, []byte(http2.ClientPreface)) {
		logger.Warn("http2 preface truncated", "len", len(stream))
		metrics.HTTP2ErrorsTotal.Inc()
		return nil
	}

	fr := http2.NewFramer(io.Discard, bytes.NewReader(stream[len(http2.ClientPreface):]))
	fr.ReadMetaHeaders = hpack.NewDecoder(4096, nil)

	var paths []string
	for {
		f, err := fr.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Warn("http2 framing error", "error", err, "paths", len(paths))
				metrics.HTTP2ErrorsTotal.Inc()
			}
			return paths
		}
		mh, ok := f.(*http2.MetaHeadersFrame)
		if !ok {
			continue
		}
		if p := mh.PseudoValue("path"); p != "" {
			paths = append(paths, p)
		}
	}
}
