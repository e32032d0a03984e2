package httpwire

import (
	"bytes"
	"testing"
)

// TestPipelinedParse covers spec §8 scenario 1: a Content-Length response
// fed one byte at a time.
func TestPipelinedParse(t *testing.T) {
	input := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	var version string
	var code int
	var headerLines [][]byte
	var body bytes.Buffer
	var done bool
	var success bool

	p := New(ModeResponse, Callbacks{
		OnResponseStart: func(v string, c int) { version = v; code = c },
		OnHeader:        func(line []byte) { headerLines = append(headerLines, append([]byte(nil), line...)) },
		OnData:          func(chunk []byte) { body.Write(chunk) },
		OnDone:          func(ok bool) { done = true; success = ok },
	})

	for i := 0; i < len(input); i++ {
		if err := p.Feed(input[i : i+1]); err != nil {
			t.Fatalf("Feed byte %d: %v", i, err)
		}
	}

	if version != "HTTP/1.1" || code != 200 {
		t.Fatalf("expected HTTP/1.1 200, got %q %d", version, code)
	}
	if len(headerLines) != 1 {
		t.Fatalf("expected 1 header line, got %d: %v", len(headerLines), headerLines)
	}
	if body.String() != "hello" {
		t.Fatalf("expected body %q, got %q", "hello", body.String())
	}
	if !done || !success {
		t.Fatalf("expected onDone(true), got done=%v success=%v", done, success)
	}
}

// TestChunkedResponse covers spec §8 scenario 2.
func TestChunkedResponse(t *testing.T) {
	input := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")

	var body bytes.Buffer
	var done, success bool

	p := New(ModeResponse, Callbacks{
		OnData: func(chunk []byte) { body.Write(chunk) },
		OnDone: func(ok bool) { done = true; success = ok },
	})

	if err := p.Feed(input); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if body.String() != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", body.String())
	}
	if !done || !success {
		t.Fatalf("expected onDone(true), got done=%v success=%v", done, success)
	}
}

// TestFeedChunkingInvariant asserts that feeding the input in arbitrary
// byte splits emits the same concatenated OnData body bytes as one Feed of
// the whole input (spec §8 invariant, checked on the body output only).
func TestFeedChunkingInvariant(t *testing.T) {
	input := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")

	splits := [][]int{
		{len(input)},
		{1, len(input) - 1},
		{10, 20, len(input) - 30},
		{3, 5, 7, 11, 13, 17, 19, 23},
	}

	var baseline bytes.Buffer
	{
		p := New(ModeResponse, Callbacks{OnData: func(c []byte) { baseline.Write(c) }})
		if err := p.Feed(input); err != nil {
			t.Fatalf("baseline feed: %v", err)
		}
	}

	for _, split := range splits {
		var got bytes.Buffer
		p := New(ModeResponse, Callbacks{OnData: func(c []byte) { got.Write(c) }})
		offset := 0
		for _, n := range split {
			end := offset + n
			if end > len(input) {
				end = len(input)
			}
			if offset >= end {
				continue
			}
			if err := p.Feed(input[offset:end]); err != nil {
				t.Fatalf("split feed at offset %d: %v", offset, err)
			}
			offset = end
		}
		if offset < len(input) {
			if err := p.Feed(input[offset:]); err != nil {
				t.Fatalf("split feed remainder: %v", err)
			}
		}
		if got.String() != baseline.String() {
			t.Fatalf("split %v: expected %q, got %q", split, baseline.String(), got.String())
		}
	}
}

// TestConflictingFramingRejected covers the spec's Open Question
// resolution: Transfer-Encoding: chunked together with Content-Length is
// rejected rather than silently preferring one.
func TestConflictingFramingRejected(t *testing.T) {
	input := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\nTransfer-Encoding: chunked\r\n\r\n")
	p := New(ModeResponse, Callbacks{})
	if err := p.Feed(input); err == nil {
		t.Fatalf("expected conflicting framing to be rejected")
	}
}

// TestRequestLineParsing exercises ModeRequest for the server-side path.
func TestRequestLineParsing(t *testing.T) {
	input := []byte("GET /v1/items HTTP/1.1\r\nHost: example.com\r\n\r\n")
	var method, target, version string
	p := New(ModeRequest, Callbacks{
		OnRequestStart: func(m, tgt, v string) { method = m; target = tgt; version = v },
	})
	p.SetExpectBody(false)
	if err := p.Feed(input); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if method != "GET" || target != "/v1/items" || version != "HTTP/1.1" {
		t.Fatalf("unexpected request line: %q %q %q", method, target, version)
	}
}

// TestRequestConnectionCloseHasNoBody guards against a server-side parser
// treating a request's Connection: close header as "until peer close"
// framing, which would leave it waiting for a CloseNotify the client
// (which is itself waiting for the response) is never going to send. Only
// responses use "until close" framing; a request with no
// Content-Length/Transfer-Encoding simply has no body, regardless of
// Connection: close.
func TestRequestConnectionCloseHasNoBody(t *testing.T) {
	input := []byte("GET /x HTTP/1.1\r\nConnection: close\r\n\r\n")
	var done, success bool
	p := New(ModeRequest, Callbacks{
		OnDone: func(ok bool) { done = true; success = ok },
	})
	if err := p.Feed(input); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if !done || !success {
		t.Fatalf("expected onDone(true) immediately after headers, got done=%v success=%v", done, success)
	}
}
