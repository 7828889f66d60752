package capturetest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// HTTP2Client returns a client-side HTTP/2 connection blob: the preface,
// a SETTINGS frame and one GET HEADERS frame per path on odd stream IDs.
func HTTP2Client(t testing.TB, authority string, paths ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(http2.ClientPreface)

	fr := http2.NewFramer(&buf, nil)
	require.NoError(t, fr.WriteSettings(http2.Setting{ID: http2.SettingInitialWindowSize, Val: 65535}))

	for i, p := range paths {
		var block bytes.Buffer
		enc := hpack.NewEncoder(&block)
		for _, hf := range []hpack.HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":scheme", Value: "https"},
			{Name: ":authority", Value: authority},
			{Name: ":path", Value: p},
		} {
			require.NoError(t, enc.WriteField(hf))
		}
		require.NoError(t, fr.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      uint32(2*i + 1),
			BlockFragment: block.Bytes(),
			EndStream:     true,
			EndHeaders:    true,
		}))
	}
	return buf.Bytes()
}
