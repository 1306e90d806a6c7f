// Package snapshot extracts a serializable copy of request metadata.
//
// Header names and values and the raw query string are treated as wire bytes and
// mapped byte-for-character with ISO-8859-1, so any byte sequence survives JSON
// encoding and Encode restores the original bytes. Path, path parameters and query
// parameters are decoded text; they are only mapped when they are not valid UTF-8.
package snapshot

import (
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/splax/terror/internal/domain"
)

// header is one received header line.
type header struct {
	name  string
	value string
}

// raw holds the selected request fields before normalization.
type raw struct {
	headers     []header
	method      string
	path        string
	pathParams  map[string]string
	queryString string
	queryParams map[string][]string
}

// FromRequest builds the snapshot for req. A nil request yields the zero snapshot.
func FromRequest(req *http.Request) domain.RequestSnapshot {
	if req == nil {
		return domain.RequestSnapshot{Headers: map[string]string{}}
	}
	return normalize(selectFields(req))
}

func selectFields(req *http.Request) raw {
	r := raw{method: req.Method}
	if req.Host != "" {
		r.headers = append(r.headers, header{name: "Host", value: req.Host})
	}
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range req.Header[name] {
			r.headers = append(r.headers, header{name: name, value: value})
		}
	}
	if req.URL != nil {
		r.path = req.URL.Path
		r.queryString = req.URL.RawQuery
		if req.URL.RawQuery != "" {
			r.queryParams = req.URL.Query()
		}
	}
	r.pathParams = pathParams(req)
	return r
}

// pathParams reads wildcard values for the ServeMux pattern that matched req.
func pathParams(req *http.Request) map[string]string {
	names := patternWildcards(req.Pattern)
	if len(names) == 0 {
		return nil
	}
	params := make(map[string]string, len(names))
	for _, name := range names {
		params[name] = req.PathValue(name)
	}
	return params
}

func patternWildcards(pattern string) []string {
	var names []string
	for {
		start := strings.IndexByte(pattern, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(pattern[start:], '}')
		if end < 0 {
			return names
		}
		name := strings.TrimSuffix(pattern[start+1:start+end], "...")
		if name != "" && name != "$" {
			names = append(names, name)
		}
		pattern = pattern[start+end+1:]
	}
}

func normalize(r raw) domain.RequestSnapshot {
	var v visitor
	return domain.RequestSnapshot{
		Headers:     v.headers(r.headers),
		Method:      v.text(r.method),
		Path:        v.text(r.path),
		PathParams:  v.textMap(r.pathParams),
		QueryString: v.bytes(r.queryString),
		QueryParams: v.multiMap(r.queryParams),
	}
}

// visitor converts each field of the fixed snapshot shape into valid text.
type visitor struct{}

// headers collapses the header list into one mapping; the last value wins.
func (v visitor) headers(list []header) map[string]string {
	out := make(map[string]string, len(list))
	for _, h := range list {
		out[v.bytes(h.name)] = v.bytes(h.value)
	}
	return out
}

func (v visitor) textMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for key, value := range m {
		out[v.text(key)] = v.text(value)
	}
	return out
}

// multiMap keeps the last value of each key.
func (v visitor) multiMap(m map[string][]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for key, values := range m {
		if len(values) == 0 {
			out[v.text(key)] = ""
			continue
		}
		out[v.text(key)] = v.text(values[len(values)-1])
	}
	return out
}

// text passes valid UTF-8 through and maps anything else as bytes.
func (v visitor) text(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return v.bytes(s)
}

func (visitor) bytes(s string) string {
	return Decode([]byte(s))
}

// Decode maps every byte to the rune with the same value.
func Decode(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err == nil {
		return string(out)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// Encode reverses Decode. It fails for runes above U+00FF.
func Encode(s string) ([]byte, error) {
	return charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
}
