package restconn

import (
	"bytes"
	"sync"

	"github.com/momentics/hiorest/router"
)

// InProcess is a synchronous, socket-free router.RestConnection used to
// unit-test a Router without a live reactor or TCP connection. Grounded
// directly on original_source/service/in_process_rest_connection.cc: every
// emit method just records the response fields rather than writing wire
// bytes (spec's SUPPLEMENTED FEATURES, "in_process_rest_connection" —
// dropped by the spec.md distillation, restored here).
type InProcess struct {
	mu sync.Mutex

	responseCode int
	contentType  string
	headers      router.Headers
	body         bytes.Buffer
	sent         bool
}

// NewInProcess returns a fresh InProcess connection with no response yet
// recorded (responseCode -1, matching the original's constructor).
func NewInProcess() *InProcess {
	return &InProcess{responseCode: -1}
}

func (c *InProcess) SendResponse(code int, body []byte, mediaType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseCode = code
	c.contentType = mediaType
	c.body.Reset()
	c.body.Write(body)
	c.sent = true
}

func (c *InProcess) SendHTTPResponseHeader(code int, mediaType string, contentLength int64, headers router.Headers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseCode = code
	c.contentType = mediaType
	c.headers = headers
}

func (c *InProcess) SendPayload(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.body.Write(data)
}

func (c *InProcess) FinishResponse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = true
}

// ResponseSent mirrors the original's responseSent(): responseCode != -1.
func (c *InProcess) ResponseSent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseCode != -1
}

// Result exposes the recorded response for test assertions.
func (c *InProcess) Result() (code int, body []byte, contentType string, headers router.Headers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseCode, append([]byte(nil), c.body.Bytes()...), c.contentType, c.headers
}
