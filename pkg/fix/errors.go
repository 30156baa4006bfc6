package fix

import (
	"errors"
	"fmt"
)

// ParseErrorKind classifies codec failures. The session layer reacts to
// each kind with a specific protocol response, so the set is closed.
type ParseErrorKind int

const (
	// MalformedField means a field had no '=' separator.
	MalformedField ParseErrorKind = iota

	// InvalidTag means the tag was not a positive decimal integer
	// within the allowed range.
	InvalidTag

	// BadBodyLength means the declared BodyLength (9) does not match
	// the measured body byte count.
	BadBodyLength

	// BadChecksum means the declared CheckSum (10) does not match the
	// computed sum.
	BadChecksum

	// MissingHeader means one of BeginString, MsgType or MsgSeqNum was
	// absent, or the leading field order was wrong.
	MissingHeader
)

func (k ParseErrorKind) String() string {
	switch k {
	case MalformedField:
		return "malformed field"
	case InvalidTag:
		return "invalid tag"
	case BadBodyLength:
		return "bad body length"
	case BadChecksum:
		return "bad checksum"
	case MissingHeader:
		return "missing header field"
	default:
		return "unknown"
	}
}

// ParseError describes why a frame could not be parsed. RefSeqNum is
// the MsgSeqNum of the offending frame when it could be extracted, so
// a session-level Reject can reference it.
type ParseError struct {
	Kind      ParseErrorKind
	Tag       int
	RefSeqNum uint32
	Detail    string
}

func (e *ParseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("fix: %s (tag %d): %s", e.Kind, e.Tag, e.Detail)
	}
	return fmt.Sprintf("fix: %s (tag %d)", e.Kind, e.Tag)
}

// AsParseError unwraps err into a *ParseError, if it is one.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Framing errors returned by Framer.Next.
var (
	// ErrFrameTooLarge means the declared body length exceeds the
	// framer's configured maximum. The stream is resynchronized past
	// the offending prefix.
	ErrFrameTooLarge = errors.New("fix: frame exceeds maximum size")

	// ErrBadFramePrefix means bytes at the head of the stream did not
	// start a well-formed "8=...|9=<digits>|" prefix. The framer skips
	// forward to the next candidate frame start.
	ErrBadFramePrefix = errors.New("fix: malformed frame prefix")
)
