// File: httpwire/chunked.go
// Hexadecimal chunk-size sub-state-machine for the Body stage of Parser
// (spec §4.3 body mode 2: chunked). Grounded on
// indigo-web-indigo/httpparser/chunked.go's byte-at-a-time
// chunkLength/chunkBody/chunkBodyEnd staging, extended with trailing-header
// skipping (spec §4.3: "trailing headers ignored") instead of leaving them
// unhandled.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package httpwire

const maxChunkSize = 64 * 1024 * 1024

type chunkedStage int

const (
	csSize chunkedStage = iota
	csSizeCR
	csBody
	csBodyCR
	csBodyLF
	csTrailerLineStart
	csTrailerCRStart
	csTrailerLineBody
)

// chunkedState parses one Transfer-Encoding: chunked body. It is reset to
// its zero value at the start of every chunked message (see Parser.Reset /
// handleHeadersDone).
type chunkedState struct {
	stage     chunkedStage
	size      int // chunk size accumulated from the current hex size line
	remaining int // bytes left to consume in the current chunk's body
}

// feed consumes a prefix of data, emitting chunk bytes via onData as they
// complete, and reports how many bytes were consumed, whether the chunked
// body (including trailers) is now fully parsed, and any protocol error.
// Like Parser.Feed, it must produce the same result regardless of how data
// is sliced across calls (spec §4.3 Reentrancy).
func (c *chunkedState) feed(data []byte, onData func([]byte)) (consumed int, done bool, err error) {
	i := 0
	bodyStart := -1
	if c.stage == csBody {
		bodyStart = 0
	}

	for i < len(data) {
		b := data[i]
		switch c.stage {
		case csSize:
			switch b {
			case '\r':
				c.stage = csSizeCR
				i++
			case '\n':
				i++
				if c.enterBody() {
					bodyStart = i
				}
			default:
				v, ok := hexDigit(b)
				if !ok {
					return i, true, errBadChunkSize
				}
				c.size = c.size<<4 | v
				if c.size > maxChunkSize {
					return i, true, errChunkTooLarge
				}
				i++
			}

		case csSizeCR:
			if b != '\n' {
				return i, true, errBadChunkSize
			}
			i++
			if c.enterBody() {
				bodyStart = i
			}

		case csBody:
			n := len(data) - i
			if n > c.remaining {
				n = c.remaining
			}
			i += n
			c.remaining -= n
			if c.remaining == 0 {
				if onData != nil && bodyStart >= 0 {
					onData(data[bodyStart:i])
				}
				bodyStart = -1
				c.stage = csBodyCR
			}

		case csBodyCR:
			if b != '\r' {
				return i, true, errBadChunkSize
			}
			c.stage = csBodyLF
			i++

		case csBodyLF:
			if b != '\n' {
				return i, true, errBadChunkSize
			}
			c.size = 0
			c.stage = csSize
			i++

		case csTrailerLineStart:
			switch b {
			case '\n':
				return i + 1, true, nil
			case '\r':
				c.stage = csTrailerCRStart
			default:
				c.stage = csTrailerLineBody
			}
			i++

		case csTrailerCRStart:
			if b == '\n' {
				return i + 1, true, nil
			}
			c.stage = csTrailerLineBody
			i++

		case csTrailerLineBody:
			if b == '\n' {
				c.stage = csTrailerLineStart
			}
			i++
		}
	}

	if c.stage == csBody && bodyStart >= 0 && i > bodyStart {
		if onData != nil {
			onData(data[bodyStart:i])
		}
	}
	return i, false, nil
}

// enterBody transitions out of a completed size line: a zero size means the
// last chunk, so the trailer scanner takes over; otherwise arm remaining
// and report true so the caller records where chunk body bytes start.
func (c *chunkedState) enterBody() bool {
	if c.size == 0 {
		c.stage = csTrailerLineStart
		return false
	}
	c.remaining = c.size
	c.stage = csBody
	return true
}

func hexDigit(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	default:
		return 0, false
	}
}
