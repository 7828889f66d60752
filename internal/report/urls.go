// Package report builds the forensic summary of an export and packages it
// with the extracted artifacts into a zip archive.
package report

import (
	"bytes"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"firestige.xyz/pcapsift/internal/capture"
)

var urlPattern = regexp.MustCompile(`(https?|ftp)://[^\s/$.?#].[^\s]*`)

// CanonicalURL reduces a URL to "scheme://host/". Applying it to its own
// result returns the same string.
func CanonicalURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return strings.ToLower(u.Scheme) + "://" + host + "/", true
}

// URLSet collects canonical URLs, keeping first-seen order.
type URLSet struct {
	seen  map[string]struct{}
	order []string
}

// NewURLSet creates an empty set.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add canonicalizes raw and stores it. It reports whether the URL was new.
func (s *URLSet) Add(raw string) bool {
	c, ok := CanonicalURL(raw)
	if !ok {
		return false
	}
	if _, dup := s.seen[c]; dup {
		return false
	}
	s.seen[c] = struct{}{}
	s.order = append(s.order, c)
	return true
}

// Scan adds every URL found in data.
func (s *URLSet) Scan(data []byte) {
	for _, m := range urlPattern.FindAll(data, -1) {
		s.Add(string(cutControl(m)))
	}
}

// List returns the URLs in first-seen order.
func (s *URLSet) List() []string {
	return append([]string(nil), s.order...)
}

// cutControl ends a match at the first control byte. Captures are binary,
// so a URL in a payload is usually followed by non-printable bytes that the
// pattern does not exclude.
func cutControl(b []byte) []byte {
	if i := bytes.IndexFunc(b, func(r rune) bool { return r < 0x20 || r == 0x7f }); i >= 0 {
		return b[:i]
	}
	return b
}

// ExtractURLs scans the raw bytes of each capture for URLs. Captures that
// cannot be read are skipped.
func ExtractURLs(paths []string) []string {
	set := NewURLSet()
	for _, p := range paths {
		data, err := capture.ReadAll(p)
		if err != nil {
			slog.Warn("skipping capture for url scan", "capture", p, "error", err)
			continue
		}
		set.Scan(data)
	}
	return set.List()
}
