package restconn

import (
	"strings"
	"testing"

	"github.com/momentics/hiorest/router"
)

func TestRenderHeadContentLength(t *testing.T) {
	c := &Connection{keepAlive: true}
	head := string(c.renderHead(200, "text/plain", 5, nil))
	if !strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line in %q", head)
	}
	if !strings.Contains(head, "Content-Length: 5\r\n") {
		t.Fatalf("expected Content-Length in %q", head)
	}
	if !strings.Contains(head, "Connection: keep-alive\r\n") {
		t.Fatalf("expected keep-alive in %q", head)
	}
}

func TestRenderHeadChunked(t *testing.T) {
	c := &Connection{keepAlive: false}
	head := string(c.renderHead(200, "application/json", -1, router.Headers{{Key: "X-Trace", Value: "abc"}}))
	if !strings.Contains(head, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected chunked encoding in %q", head)
	}
	if !strings.Contains(head, "Connection: close\r\n") {
		t.Fatalf("expected Connection: close in %q", head)
	}
	if !strings.Contains(head, "X-Trace: abc\r\n") {
		t.Fatalf("expected custom header in %q", head)
	}
}

func TestRenderChunk(t *testing.T) {
	got := string(renderChunk([]byte("hello")))
	if got != "5\r\nhello\r\n" {
		t.Fatalf("unexpected chunk encoding: %q", got)
	}
	if got := string(renderChunk(nil)); got != "0\r\n\r\n" {
		t.Fatalf("unexpected terminal chunk encoding: %q", got)
	}
}

func TestInProcessResponseSent(t *testing.T) {
	conn := NewInProcess()
	if conn.ResponseSent() {
		t.Fatalf("expected fresh InProcess connection to not have sent a response")
	}
	conn.SendResponse(200, []byte("ok"), "text/plain")
	if !conn.ResponseSent() {
		t.Fatalf("expected ResponseSent to be true after SendResponse")
	}
	code, body, ct, _ := conn.Result()
	if code != 200 || string(body) != "ok" || ct != "text/plain" {
		t.Fatalf("unexpected result: %d %q %q", code, body, ct)
	}
}
