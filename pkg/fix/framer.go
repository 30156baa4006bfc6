package fix

import (
	"bytes"
)

// DefaultMaxFrameBytes bounds a frame when no limit is configured.
const DefaultMaxFrameBytes = 8192

// trailerLen is the fixed width of "10=NNN<SOH>".
const trailerLen = 7

// Framer extracts complete FIX frames from a byte stream.
//
// Feed appends transport bytes; Next yields one frame at a time. A
// frame is complete once the "8=...<SOH>9=<digits><SOH>" prefix has
// arrived and the buffer holds the declared body plus the seven-byte
// checksum trailer. On a malformed prefix or an oversized declaration
// the framer discards bytes up to the next "8=" candidate and reports
// the error; the caller audits it and keeps reading.
//
// A Framer belongs to a single connection and is not safe for
// concurrent use.
type Framer struct {
	buf      []byte
	maxFrame int
}

// NewFramer returns a framer that rejects frames larger than maxFrame
// bytes (DefaultMaxFrameBytes if zero).
func NewFramer(maxFrame int) *Framer {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameBytes
	}
	return &Framer{maxFrame: maxFrame}
}

// Feed appends stream bytes to the framer's buffer.
func (fr *Framer) Feed(p []byte) {
	fr.buf = append(fr.buf, p...)
}

// Buffered returns the number of bytes held but not yet consumed.
func (fr *Framer) Buffered() int { return len(fr.buf) }

// Next returns the next complete frame, or (nil, nil) when more bytes
// are needed. The returned slice is a copy; the consumed bytes are
// dropped from the buffer. Errors are ErrBadFramePrefix or
// ErrFrameTooLarge; after either, Next may be called again to continue
// from the resynchronization point.
func (fr *Framer) Next() ([]byte, error) {
	for {
		start := bytes.Index(fr.buf, []byte("8="))
		if start == -1 {
			// Nothing that can begin a frame. Keep at most one byte in
			// case a split "8=" is mid-flight.
			if n := len(fr.buf); n > 1 {
				fr.buf = fr.buf[n-1:]
			}
			return nil, nil
		}
		if start > 0 {
			fr.buf = fr.buf[start:]
			return nil, ErrBadFramePrefix
		}

		// BeginString value runs to the first SOH.
		soh := bytes.IndexByte(fr.buf, SOH)
		if soh == -1 {
			if len(fr.buf) > fr.maxFrame {
				fr.resync()
				return nil, ErrFrameTooLarge
			}
			return nil, nil
		}

		// "9=<digits><SOH>" must follow immediately.
		rest := fr.buf[soh+1:]
		if len(rest) < 2 {
			return nil, nil
		}
		if rest[0] != '9' || rest[1] != '=' {
			fr.resync()
			return nil, ErrBadFramePrefix
		}

		lenEnd := bytes.IndexByte(rest, SOH)
		if lenEnd == -1 {
			if len(rest) > 2+10 {
				// Unreasonably long length token.
				fr.resync()
				return nil, ErrBadFramePrefix
			}
			return nil, nil
		}

		bodyLen := 0
		digits := rest[2:lenEnd]
		if len(digits) == 0 {
			fr.resync()
			return nil, ErrBadFramePrefix
		}
		for _, c := range digits {
			if c < '0' || c > '9' {
				fr.resync()
				return nil, ErrBadFramePrefix
			}
			bodyLen = bodyLen*10 + int(c-'0')
			if bodyLen > fr.maxFrame {
				fr.resync()
				return nil, ErrFrameTooLarge
			}
		}

		bodyStart := soh + 1 + lenEnd + 1
		total := bodyStart + bodyLen + trailerLen
		if total > fr.maxFrame {
			fr.resync()
			return nil, ErrFrameTooLarge
		}
		if len(fr.buf) < total {
			return nil, nil
		}

		frame := make([]byte, total)
		copy(frame, fr.buf[:total])
		fr.buf = fr.buf[total:]
		return frame, nil
	}
}

// resync drops the current "8=" candidate and scans forward to the
// next one so a corrupt frame cannot wedge the stream.
func (fr *Framer) resync() {
	if len(fr.buf) < 2 {
		fr.buf = nil
		return
	}
	next := bytes.Index(fr.buf[2:], []byte("8="))
	if next == -1 {
		fr.buf = nil
		return
	}
	fr.buf = fr.buf[2+next:]
}
