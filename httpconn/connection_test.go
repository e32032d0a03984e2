package httpconn

import (
	"strings"
	"testing"
)

func TestHeadersGetCaseInsensitive(t *testing.T) {
	h := Headers{{Key: "Content-Type", Value: "text/plain"}}
	v, ok := h.Get("content-type")
	if !ok || v != "text/plain" {
		t.Fatalf("expected content-type header to be found case-insensitively, got %q ok=%v", v, ok)
	}
	if _, ok := h.Get("X-Missing"); ok {
		t.Fatalf("expected missing header to be absent")
	}
}

func TestSerializeHeadAddsContentLengthAndType(t *testing.T) {
	req := &Request{
		Verb:      "POST",
		Target:    "/v1/items",
		Body:      []byte(`{"a":1}`),
		MediaType: "application/json",
	}
	head := string(serializeHead(req))
	if !strings.HasPrefix(head, "POST /v1/items HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line in %q", head)
	}
	if !strings.Contains(head, "Content-Length: 7\r\n") {
		t.Fatalf("expected Content-Length: 7 in %q", head)
	}
	if !strings.Contains(head, "Content-Type: application/json\r\n") {
		t.Fatalf("expected Content-Type header in %q", head)
	}
	if !strings.HasSuffix(head, "\r\n\r\n") {
		t.Fatalf("expected header section terminated by blank line in %q", head)
	}
}

func TestSerializeHeadRespectsExplicitHeaders(t *testing.T) {
	req := &Request{
		Verb:    "POST",
		Target:  "/v1/items",
		Headers: Headers{{Key: "Content-Length", Value: "99"}},
		Body:    []byte("short"),
	}
	head := string(serializeHead(req))
	if strings.Count(head, "Content-Length:") != 1 {
		t.Fatalf("expected exactly one Content-Length header, got %q", head)
	}
	if !strings.Contains(head, "Content-Length: 99\r\n") {
		t.Fatalf("expected caller-supplied Content-Length to be preserved, got %q", head)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Idle:             "idle",
		SendingHeaders:   "sending-headers",
		SendingBody:      "sending-body",
		AwaitingResponse: "awaiting-response",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
