package classify

import "strings"

// StripQuery removes the query and fragment from a request target.
func StripQuery(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

// Allowed reports whether the path, without query or fragment, ends with
// one of the extensions. Matching is case-insensitive.
func Allowed(target string, extensions []string) bool {
	p := strings.ToLower(StripQuery(target))
	for _, ext := range extensions {
		if strings.HasSuffix(p, "."+ext) {
			return true
		}
	}
	return false
}
