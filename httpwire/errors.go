package httpwire

import "errors"

var (
	errMalformedLine      = errors.New("httpwire: malformed line")
	errNotHTTP            = errors.New("httpwire: does not start with HTTP/")
	errLineTooLong        = errors.New("httpwire: line exceeds maximum length")
	errBadContentLength   = errors.New("httpwire: invalid Content-Length value")
	errConflictingFraming = errors.New("httpwire: Transfer-Encoding and Content-Length both present")
	errUnexpectedEOF      = errors.New("httpwire: connection closed mid-message")
	errParserFinished     = errors.New("httpwire: parser already finished; call Reset")
	errBadChunkSize       = errors.New("httpwire: invalid chunk size line")
	errChunkTooLarge      = errors.New("httpwire: chunk size exceeds maximum")
)
