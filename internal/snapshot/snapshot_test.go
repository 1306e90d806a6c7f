package snapshot

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/splax/terror/internal/domain"
)

func TestFromRequestBinaryHeaderRoundTrips(t *testing.T) {
	original := []byte{'a', 0xff, 0x00, 0x80, 'z'}
	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set("X-Binary", string(original))

	snap := FromRequest(req)
	value, ok := snap.Headers["X-Binary"]
	if !ok {
		t.Fatalf("expected X-Binary header in snapshot, got %v", snap.Headers)
	}
	if value != "aÿ\u0000\u0080z" {
		t.Fatalf("unexpected mapped value %q", value)
	}
	encoded, err := Encode(value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(encoded, original) {
		t.Fatalf("round trip mismatch: got %v want %v", encoded, original)
	}
	if _, err := json.Marshal(snap); err != nil {
		t.Fatalf("snapshot must serialize: %v", err)
	}
}

func TestDecodeEncodeEveryByte(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	text := Decode(all)
	if got := len([]rune(text)); got != 256 {
		t.Fatalf("expected one rune per byte, got %d", got)
	}
	back, err := Encode(text)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(back, all) {
		t.Fatal("byte mapping is not lossless")
	}
}

func TestFromRequestSelectsFields(t *testing.T) {
	var snap domain.RequestSnapshot
	mux := http.NewServeMux()
	mux.HandleFunc("POST /projects/{project}/files/{path...}", func(w http.ResponseWriter, r *http.Request) {
		snap = FromRequest(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/projects/p-1/files/a/b.txt?tag=one&tag=two&q=go", bytes.NewBufferString("body"))
	req.Header.Add("Accept", "text/plain")
	req.Header.Add("Accept", "application/json")
	mux.ServeHTTP(httptest.NewRecorder(), req)

	if snap.Method != http.MethodPost {
		t.Fatalf("unexpected method %q", snap.Method)
	}
	if snap.Path != "/projects/p-1/files/a/b.txt" {
		t.Fatalf("unexpected path %q", snap.Path)
	}
	if snap.PathParams["project"] != "p-1" || snap.PathParams["path"] != "a/b.txt" {
		t.Fatalf("unexpected path params %v", snap.PathParams)
	}
	if snap.QueryString != "tag=one&tag=two&q=go" {
		t.Fatalf("unexpected query string %q", snap.QueryString)
	}
	if snap.QueryParams["tag"] != "two" || snap.QueryParams["q"] != "go" {
		t.Fatalf("expected last query value to win, got %v", snap.QueryParams)
	}
	if snap.Headers["Accept"] != "application/json" {
		t.Fatalf("expected last header value to win, got %q", snap.Headers["Accept"])
	}
	if snap.Headers["Host"] != "example.com" {
		t.Fatalf("expected host header restored, got %q", snap.Headers["Host"])
	}
}

func TestFromRequestAbsentFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	snap := FromRequest(req)
	if snap.PathParams != nil {
		t.Fatalf("expected nil path params without a pattern, got %v", snap.PathParams)
	}
	if snap.QueryParams != nil {
		t.Fatalf("expected nil query params without a query, got %v", snap.QueryParams)
	}
	if snap.QueryString != "" {
		t.Fatalf("expected empty query string, got %q", snap.QueryString)
	}

	zero := FromRequest(nil)
	if zero.Headers == nil || zero.Method != "" {
		t.Fatalf("unexpected zero snapshot %+v", zero)
	}
}

func TestFromRequestMapsInvalidUTF8Path(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/files/%FF", nil)
	snap := FromRequest(req)
	if snap.Path != "/files/ÿ" {
		t.Fatalf("unexpected path %q", snap.Path)
	}
}

func TestPatternWildcards(t *testing.T) {
	got := patternWildcards("GET example.com/a/{id}/b/{rest...}/{$}")
	if len(got) != 2 || got[0] != "id" || got[1] != "rest" {
		t.Fatalf("unexpected wildcards %v", got)
	}
	if patternWildcards("") != nil {
		t.Fatal("expected no wildcards for empty pattern")
	}
}
