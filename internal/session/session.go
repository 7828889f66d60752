// Package session pairs HTTP/1.x requests with the responses travelling on
// the reverse flow of the same connection.
package session

import (
	"firestige.xyz/pcapsift/internal/classify"
	"firestige.xyz/pcapsift/internal/core"
)

// Exchange is one allow-listed request with the content chosen for it.
type Exchange struct {
	Flow     core.FlowKey
	Request  classify.Resource
	Response *classify.Message // nil when the reverse flow has no matching response
	Content  []byte
}

// Correlator indexes responses by the flow that carried them.
type Correlator struct {
	responses map[core.FlowKey][]classify.Message
}

// New creates an empty correlator.
func New() *Correlator {
	return &Correlator{responses: make(map[core.FlowKey][]classify.Message)}
}

// AddResponses records the responses parsed from the stream of key.
func (c *Correlator) AddResponses(key core.FlowKey, msgs []classify.Message) {
	if len(msgs) == 0 {
		return
	}
	c.responses[key] = append(c.responses[key], msgs...)
}

// Exchanges pairs the i-th request of the request flow with the i-th
// response of its reverse flow. The content is the successful response
// body, else the request's own body, else the whole request stream.
func (c *Correlator) Exchanges(key core.FlowKey, stream []byte, resources []classify.Resource) []Exchange {
	replies := c.responses[key.Reverse()]
	out := make([]Exchange, 0, len(resources))
	for _, res := range resources {
		ex := Exchange{Flow: key, Request: res}
		if res.Index < len(replies) {
			ex.Response = &replies[res.Index]
		}
		switch {
		case ex.Response != nil && successful(ex.Response.Status) && len(ex.Response.Body) > 0:
			ex.Content = ex.Response.Body
		case len(res.Body) > 0:
			ex.Content = res.Body
		default:
			ex.Content = stream
		}
		out = append(out, ex)
	}
	return out
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
