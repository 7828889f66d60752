package session

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapsift/internal/classify"
	"firestige.xyz/pcapsift/internal/config"
	"firestige.xyz/pcapsift/internal/core"
)

var client = core.FlowKey{
	SrcIP: netip.MustParseAddr("192.168.1.10"), DstIP: netip.MustParseAddr("93.184.216.34"),
	SrcPort: 51000, DstPort: 80, Proto: core.ProtoTCP,
}

func classifyHTTP(t *testing.T, stream string) classify.Classification {
	t.Helper()
	c := classify.Classify([]byte(stream), classify.Options{HTTP: true, Extensions: config.DefaultExtensions})
	require.Equal(t, classify.HTTPText, c.Kind)
	return c
}

func TestExchanges_PairsByIndex(t *testing.T) {
	reqStream := "GET /index HTTP/1.1\r\n\r\nGET /a.pdf HTTP/1.1\r\n\r\nGET /b.png HTTP/1.1\r\n\r\n"
	req := classifyHTTP(t, reqStream)
	resp := classifyHTTP(t, "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nhtml"+
		"HTTP/1.1 200 OK\r\nContent-Length: 7\r\n\r\n%PDF-1."+
		"HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\npng")

	c := New()
	c.AddResponses(client.Reverse(), resp.Responses)
	exchanges := c.Exchanges(client, []byte(reqStream), req.Resources)

	require.Len(t, exchanges, 2)
	assert.Equal(t, "/a.pdf", exchanges[0].Request.Path)
	assert.Equal(t, "%PDF-1.", string(exchanges[0].Content))
	assert.Equal(t, "/b.png", exchanges[1].Request.Path)
	assert.Equal(t, "png", string(exchanges[1].Content))
}

func TestExchanges_FallsBackToRequestBody(t *testing.T) {
	reqStream := "POST /upload.zip HTTP/1.1\r\nContent-Length: 6\r\n\r\nPK\x03\x04..."
	req := classifyHTTP(t, reqStream)

	c := New()
	c.AddResponses(client.Reverse(), classifyHTTP(t, "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n").Responses)
	exchanges := c.Exchanges(client, []byte(reqStream), req.Resources)

	require.Len(t, exchanges, 1)
	require.NotNil(t, exchanges[0].Response)
	assert.Equal(t, "PK\x03\x04..", string(exchanges[0].Content))
}

func TestExchanges_ErrorResponseIsNotContent(t *testing.T) {
	reqStream := "GET /missing.pdf HTTP/1.1\r\nHost: x\r\n\r\n"
	req := classifyHTTP(t, reqStream)

	c := New()
	c.AddResponses(client.Reverse(), classifyHTTP(t, "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found").Responses)
	exchanges := c.Exchanges(client, []byte(reqStream), req.Resources)

	require.Len(t, exchanges, 1)
	assert.Equal(t, reqStream, string(exchanges[0].Content))
}

func TestExchanges_NoReverseFlow(t *testing.T) {
	reqStream := "GET /only.js HTTP/1.1\r\n\r\n"
	req := classifyHTTP(t, reqStream)

	exchanges := New().Exchanges(client, []byte(reqStream), req.Resources)
	require.Len(t, exchanges, 1)
	assert.Nil(t, exchanges[0].Response)
	assert.Equal(t, reqStream, string(exchanges[0].Content))
	assert.Equal(t, client, exchanges[0].Flow)
}

func TestAddResponses_IgnoresOtherFlows(t *testing.T) {
	reqStream := "GET /x.css HTTP/1.1\r\n\r\n"
	req := classifyHTTP(t, reqStream)

	c := New()
	other := client
	other.SrcPort++
	c.AddResponses(other.Reverse(), classifyHTTP(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nno").Responses)
	c.AddResponses(client.Reverse(), nil)

	exchanges := c.Exchanges(client, []byte(reqStream), req.Resources)
	require.Len(t, exchanges, 1)
	assert.Nil(t, exchanges[0].Response)
}
