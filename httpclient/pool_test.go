//go:build linux
// +build linux

package httpclient

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/hiorest/httpconn"
	"github.com/momentics/hiorest/reactor"
)

// TestPoolBackpressure covers spec §8 scenario 5: a pool with N=2 and queue
// capacity 4, given 6 requests to connections that never respond, admits
// all 6 (2 dispatched to connections, 4 parked in the overflow list) and
// rejects a 7th.
func TestPoolBackpressure(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// Accept every incoming connection but never read or write on it, so
	// every httpconn.Connection stays busy (AwaitingResponse) for the
	// duration of the test.
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c
		}
	}()

	r, err := reactor.New(reactor.Options{Workers: 2})
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	defer r.Shutdown()

	addr := ln.Addr().(*net.TCPAddr)
	pool, err := New(r, addr.IP.String(), itoa(addr.Port), Options{
		Connections:   2,
		QueueCapacity: 4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Shutdown()

	// Let both connections finish their non-blocking handshake before
	// submitting work, so the first two EnqueueRequest calls are guaranteed
	// to find idle connections rather than racing the connect sequence.
	time.Sleep(50 * time.Millisecond)

	req := func() *httpconn.Request {
		return &httpconn.Request{Verb: "GET", Target: "/slow"}
	}

	for i := 0; i < 6; i++ {
		if ok := pool.EnqueueRequest(req(), nil); !ok {
			t.Fatalf("submission %d: expected EnqueueRequest to succeed", i+1)
		}
	}

	idle, busy, total := pool.Stats()
	if total != 2 {
		t.Fatalf("expected total=2, got %d", total)
	}
	if idle+busy != total {
		t.Fatalf("invariant violated: idle(%d)+busy(%d) != total(%d)", idle, busy, total)
	}
	if busy != 2 {
		t.Fatalf("expected both connections busy, got idle=%d busy=%d", idle, busy)
	}
	if got := pool.OverflowLen(); got != 4 {
		t.Fatalf("expected 4 requests parked in overflow, got %d", got)
	}

	if ok := pool.EnqueueRequest(req(), nil); ok {
		t.Fatalf("7th submission should be rejected once the overflow list is at capacity")
	}
}

// TestPoolStatsInvariant exercises the general form of spec §8's pool
// invariant across the lifetime of a request (idle -> busy -> idle again
// once the connection reports completion).
func TestPoolStatsInvariant(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4096)
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		c.Read(buf)
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()

	r, err := reactor.New(reactor.Options{Workers: 1})
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	defer r.Shutdown()

	addr := ln.Addr().(*net.TCPAddr)
	pool, err := New(r, addr.IP.String(), itoa(addr.Port), Options{Connections: 1, QueueCapacity: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Shutdown()

	time.Sleep(50 * time.Millisecond)
	idle, busy, total := pool.Stats()
	if idle != 1 || busy != 0 || total != 1 {
		t.Fatalf("expected idle=1 busy=0 total=1 before any request, got idle=%d busy=%d total=%d", idle, busy, total)
	}

	done := make(chan struct{})
	if !pool.EnqueueRequest(&httpconn.Request{Verb: "GET", Target: "/"}, func(resp *httpconn.Response, err error) {
		close(done)
	}) {
		t.Fatal("expected EnqueueRequest to succeed")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response callback")
	}

	// Give onConnIdle a moment to run after the callback fires.
	time.Sleep(50 * time.Millisecond)
	idle, busy, total = pool.Stats()
	if idle != 1 || busy != 0 || total != 1 {
		t.Fatalf("expected idle=1 busy=0 total=1 after completion, got idle=%d busy=%d total=%d", idle, busy, total)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
