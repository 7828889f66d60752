package classify

import (
	"bufio"
	"bytes"
	"io"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
)

var methods = []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD "}

var (
	http11 = []byte("HTTP/1.1")
	http10 = []byte("HTTP/1.0")
)

// Message is one HTTP/1.x request or response found in a stream.
type Message struct {
	Method string // requests only
	Path   string // requests only
	Status int    // responses only
	Header textproto.MIMEHeader
	Body   []byte
	Index  int // position among messages of the same kind in the stream
	Offset int // offset of the start line
}

// IsRequest reports whether m is a request.
func (m Message) IsRequest() bool { return m.Method != "" }

// IsHTTP1 reports whether the stream mentions an HTTP/1.x version token.
func IsHTTP1(stream []byte) bool {
	return bytes.Contains(stream, http11) || bytes.Contains(stream, http10)
}

type lineKind int

const (
	lineOther lineKind = iota
	lineRequest
	lineResponse
)

// ParseHTTP1 extracts every request and response in stream, in order.
// A request line is any line starting with a supported method token
// followed by a target. Bodies are framed by Content-Length or chunked
// encoding; without framing a body runs to the next start line or the end
// of the stream.
func ParseHTTP1(stream []byte) (requests, responses []Message) {
	pos := 0
	for pos < len(stream) {
		line, next := readLine(stream, pos)
		kind := classifyLine(line)
		if kind == lineOther {
			pos = next
			continue
		}

		msg, end := parseMessage(stream, pos, line, next, kind)
		if kind == lineRequest {
			msg.Index = len(requests)
			requests = append(requests, msg)
		} else {
			msg.Index = len(responses)
			responses = append(responses, msg)
		}
		if end <= pos {
			end = next
		}
		pos = end
	}
	return requests, responses
}

// readLine returns the line at pos without its terminator and the offset
// of the following line.
func readLine(stream []byte, pos int) (string, int) {
	rest := stream[pos:]
	i := bytes.IndexByte(rest, '\n')
	if i < 0 {
		return string(bytes.TrimSuffix(rest, []byte("\r"))), len(stream)
	}
	return string(bytes.TrimSuffix(rest[:i], []byte("\r"))), pos + i + 1
}

func classifyLine(line string) lineKind {
	for _, m := range methods {
		if strings.HasPrefix(line, m) {
			if len(strings.Fields(line)) >= 2 {
				return lineRequest
			}
			return lineOther
		}
	}
	if _, ok := statusCode(line); ok {
		return lineResponse
	}
	return lineOther
}

// statusCode parses "HTTP/1.x NNN ...".
func statusCode(line string) (int, bool) {
	if !strings.HasPrefix(line, "HTTP/1.") || len(line) < 12 || line[8] != ' ' {
		return 0, false
	}
	code, err := strconv.Atoi(line[9:12])
	if err != nil || code < 100 || code > 999 {
		return 0, false
	}
	if len(line) > 12 && line[12] != ' ' {
		return 0, false
	}
	return code, true
}

func parseMessage(stream []byte, start int, line string, pos int, kind lineKind) (Message, int) {
	msg := Message{Offset: start, Header: make(textproto.MIMEHeader)}
	if kind == lineRequest {
		fields := strings.Fields(line)
		msg.Method, msg.Path = fields[0], fields[1]
	} else {
		msg.Status, _ = statusCode(line)
	}

	// Header block, up to the first empty line.
	for {
		if pos >= len(stream) {
			return msg, len(stream)
		}
		hline, next := readLine(stream, pos)
		if hline == "" {
			pos = next
			break
		}
		if classifyLine(hline) != lineOther {
			// No blank line before the next message: no body.
			return msg, pos
		}
		if k, v, ok := strings.Cut(hline, ":"); ok {
			msg.Header.Add(textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(k)), strings.TrimSpace(v))
		}
		pos = next
	}

	switch {
	case strings.Contains(strings.ToLower(msg.Header.Get("Transfer-Encoding")), "chunked"):
		body, end := readChunked(stream[pos:])
		msg.Body = body
		return msg, pos + end

	case msg.Header.Get("Content-Length") != "":
		n, err := strconv.Atoi(msg.Header.Get("Content-Length"))
		if err == nil && n >= 0 {
			end := min(pos+n, len(stream))
			msg.Body = stream[pos:end]
			return msg, end
		}

	case kind == lineResponse && noBody(msg.Status):
		return msg, pos
	}

	end := nextStartLine(stream, pos)
	msg.Body = stream[pos:end]
	return msg, end
}

// noBody reports statuses that never carry a body.
func noBody(status int) bool {
	return status < 200 || status == 204 || status == 304
}

// readChunked decodes a chunked body and returns it with the number of
// input bytes consumed. A truncated body yields what could be decoded.
func readChunked(data []byte) ([]byte, int) {
	src := bytes.NewReader(data)
	br := bufio.NewReader(src)
	body, _ := io.ReadAll(httputil.NewChunkedReader(br))
	consumed := len(data) - src.Len() - br.Buffered()
	// Skip the empty trailer line after the last chunk.
	if rest := data[consumed:]; bytes.HasPrefix(rest, []byte("\r\n")) {
		consumed += 2
	}
	return body, consumed
}

// nextStartLine returns the offset of the first request or status line at
// or after pos, or len(stream).
func nextStartLine(stream []byte, pos int) int {
	for pos < len(stream) {
		line, next := readLine(stream, pos)
		if classifyLine(line) != lineOther {
			return pos
		}
		pos = next
	}
	return len(stream)
}
