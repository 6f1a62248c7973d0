// Package cookie extracts key/value pairs from the Cookie header sent with a
// websocket handshake.
package cookie

import (
	"net/http"
	"strings"
)

// Separator splits individual cookies inside a header value.
const Separator = "; "

// Parse splits header into cookies. Each segment is split on "=" and trailing
// empty parts are discarded; the segment is kept only when exactly a name and
// a value remain. So "a=" and "a=b=c" are dropped while "a=b=" keeps "b".
// Later duplicates overwrite earlier ones.
func Parse(header string) map[string]string {
	ret := map[string]string{}
	if header == "" {
		return ret
	}
	for _, segment := range strings.Split(header, Separator) {
		kv := trimTrailingEmpty(strings.Split(segment, "="))
		if len(kv) != 2 {
			continue
		}
		ret[kv[0]] = kv[1]
	}
	return ret
}

func trimTrailingEmpty(parts []string) []string {
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// FromHeader parses every Cookie header value found in h.
func FromHeader(h http.Header) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	values := h.Values("Cookie")
	if len(values) == 0 {
		return map[string]string{}
	}
	return Parse(strings.Join(values, Separator))
}
