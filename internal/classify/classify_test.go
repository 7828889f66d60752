package classify

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"firestige.xyz/pcapsift/internal/capture/capturetest"
	"firestige.xyz/pcapsift/internal/config"
	"firestige.xyz/pcapsift/internal/metrics"
)

func allOn() Options {
	return Options{
		HTTP:       true,
		HTTP2:      true,
		Carve:      true,
		Extensions: config.DefaultExtensions,
		Logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
}

func TestClassify_HTTPAllowList(t *testing.T) {
	c := Classify([]byte("GET /report.pdf HTTP/1.1\r\nHost: a\r\n\r\n"), allOn())
	assert.Equal(t, HTTPText, c.Kind)
	require.Len(t, c.Resources, 1)
	assert.Equal(t, "/report.pdf", c.Resources[0].Path)
	assert.Equal(t, "GET", c.Resources[0].Method)

	c = Classify([]byte("GET /index HTTP/1.1\r\nHost: a\r\n\r\n"), allOn())
	assert.Equal(t, HTTPText, c.Kind)
	assert.Empty(t, c.Resources)
}

func TestClassify_HTTPMethods(t *testing.T) {
	stream := []byte("POST /up.zip HTTP/1.1\r\nContent-Length: 2\r\n\r\nPK" +
		"PUT /a.txt HTTP/1.1\r\nContent-Length: 0\r\n\r\n" +
		"PATCH /ignored.txt HTTP/1.1\r\n\r\n" +
		"DELETE /b.json HTTP/1.1\r\n\r\n" +
		"HEAD /c.css HTTP/1.0\r\n\r\n")

	c := Classify(stream, allOn())
	var got []string
	for _, r := range c.Resources {
		got = append(got, r.Method+" "+r.Path)
	}
	assert.Equal(t, []string{"POST /up.zip", "PUT /a.txt", "DELETE /b.json", "HEAD /c.css"}, got)
	assert.Equal(t, "PK", string(c.Resources[0].Body))
}

func TestClassify_QueryStrippedForMatch(t *testing.T) {
	c := Classify([]byte("GET /dl/setup.exe?token=abc#frag HTTP/1.1\r\n\r\n"), allOn())
	require.Len(t, c.Resources, 1)
	assert.Equal(t, "/dl/setup.exe?token=abc#frag", c.Resources[0].Path)

	c = Classify([]byte("GET /page?file=x.pdf HTTP/1.1\r\n\r\n"), allOn())
	assert.Empty(t, c.Resources)
}

func TestClassify_HTTP2Paths(t *testing.T) {
	stream := capturetest.HTTP2Client(t, "example.com", "/app.js", "/", "/img/logo.png?v=2")

	c := Classify(stream, allOn())
	assert.Equal(t, HTTP2Binary, c.Kind)
	var paths []string
	for _, r := range c.Resources {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{"/app.js", "/img/logo.png?v=2"}, paths)
}

func TestClassify_HTTP2TruncatedFrameKeepsEarlierPaths(t *testing.T) {
	stream := capturetest.HTTP2Client(t, "example.com", "/first.css")
	// A frame header whose payload never arrives.
	stream = append(stream, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01)

	before := testutil.ToFloat64(metrics.HTTP2ErrorsTotal)
	paths := HTTP2Paths(stream, allOn().logger())
	assert.Equal(t, []string{"/first.css"}, paths)
	assert.Equal(t, before, testutil.ToFloat64(metrics.HTTP2ErrorsTotal))
}

func TestClassify_HTTP2ConnectionErrorIsCounted(t *testing.T) {
	stream := capturetest.HTTP2Client(t, "example.com", "/a.js")
	// DATA frame on stream 0 is a connection error.
	stream = append(stream, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)
	stream = append(stream, capturetest.HTTP2Client(t, "example.com", "/never.js")[len(http2.ClientPreface):]...)

	before := testutil.ToFloat64(metrics.HTTP2ErrorsTotal)
	paths := HTTP2Paths(stream, allOn().logger())
	assert.Equal(t, []string{"/a.js"}, paths)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTP2ErrorsTotal))
}

func TestClassify_HTTP2TruncatedPreface(t *testing.T) {
	assert.Nil(t, HTTP2Paths([]byte("PRI * HTTP/2.0\r\n"), allOn().logger()))
}

func TestClassify_Carvable(t *testing.T) {
	c := Classify([]byte{0xFF, 0xD8, 0xFF, 0xE0, 'x', 0xFF, 0xD9}, allOn())
	assert.Equal(t, Carvable, c.Kind)
	require.NotNil(t, c.Carved)
	assert.Equal(t, "jpg", c.Carved.Ext())

	c = Classify([]byte{0xFF, 0xD8, 0xFF, 0xE0, 'x'}, allOn())
	assert.Equal(t, Unrecognized, c.Kind)
}

func TestClassify_DetectorsCanBeDisabled(t *testing.T) {
	opts := allOn()
	opts.HTTP = false
	opts.Carve = false
	c := Classify([]byte("GET /a.pdf HTTP/1.1\r\n\r\n%PDF"), opts)
	assert.Equal(t, Unrecognized, c.Kind)

	opts = allOn()
	opts.HTTP = false
	c = Classify([]byte("PK\x03\x04 HTTP/1.1"), opts)
	assert.Equal(t, Carvable, c.Kind)
}

func TestAllowed(t *testing.T) {
	exts := []string{"pdf", "tar", "gz"}
	assert.True(t, Allowed("/a.PDF", exts))
	assert.True(t, Allowed("/backup.tar.gz", exts))
	assert.False(t, Allowed("/pdf", exts))
	assert.False(t, Allowed("/a.pdfx", exts))
	assert.Equal(t, "/a", StripQuery("/a?b#c"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "http", HTTPText.String())
	assert.Equal(t, "http2", HTTP2Binary.String())
	assert.Equal(t, "carvable", Carvable.String())
	assert.Equal(t, "unrecognized", Unrecognized.String())
}
