package fix

import (
	"bytes"
	"strconv"
)

// maxTag is the largest tag number the parser accepts.
const maxTag = 9_999_999

// Parse decodes a complete FIX frame into a Message.
//
// The frame must carry the full header and trailer: tag 8 first, tag 9
// second, tag 10 last. BodyLength and CheckSum are verified against the
// raw bytes and then dropped from the field list; Format recomputes
// them. All other fields are kept in wire order, so repeating groups
// survive a parse/format round trip untouched.
//
// On failure the returned error is a *ParseError whose RefSeqNum is the
// frame's MsgSeqNum when one could be extracted, letting the session
// layer reference it in a Reject.
func Parse(raw []byte) (*Message, error) {
	m := &Message{}

	var (
		declaredBodyLen  = -1
		declaredChecksum = ""
		bodyStart        = -1 // byte index just past "9=<len><SOH>"
		trailerStart     = -1 // byte index of "10="
		refSeq           uint32
	)

	pos := 0
	index := 0
	for pos < len(raw) {
		soh := bytes.IndexByte(raw[pos:], SOH)
		if soh == -1 {
			return nil, &ParseError{Kind: MalformedField, RefSeqNum: refSeq, Detail: "unterminated field"}
		}
		token := raw[pos : pos+soh]

		eq := bytes.IndexByte(token, '=')
		if eq == -1 {
			return nil, &ParseError{Kind: MalformedField, RefSeqNum: refSeq, Detail: string(token)}
		}

		tag, err := parseTag(token[:eq])
		if err != nil {
			return nil, &ParseError{Kind: InvalidTag, RefSeqNum: refSeq, Detail: string(token[:eq])}
		}
		value := token[eq+1:]

		switch {
		case index == 0:
			if tag != TagBeginString {
				return nil, &ParseError{Kind: MissingHeader, Tag: TagBeginString, Detail: "first field is not BeginString"}
			}
			m.Append(tag, value)
		case index == 1:
			if tag != TagBodyLength {
				return nil, &ParseError{Kind: MissingHeader, Tag: TagBodyLength, Detail: "second field is not BodyLength"}
			}
			n, err := strconv.Atoi(string(value))
			if err != nil || n < 0 {
				return nil, &ParseError{Kind: BadBodyLength, Tag: TagBodyLength, Detail: string(value)}
			}
			declaredBodyLen = n
			bodyStart = pos + soh + 1
		case tag == TagCheckSum:
			declaredChecksum = string(value)
			trailerStart = pos
		default:
			if tag == TagMsgSeqNum {
				if n, err := strconv.ParseUint(string(value), 10, 32); err == nil {
					refSeq = uint32(n)
				}
			}
			m.Append(tag, value)
		}

		pos += soh + 1
		index++

		// CheckSum terminates the frame; trailing bytes are not ours.
		if trailerStart != -1 {
			break
		}
	}

	if trailerStart == -1 {
		return nil, &ParseError{Kind: MissingHeader, Tag: TagCheckSum, RefSeqNum: refSeq, Detail: "no CheckSum trailer"}
	}
	if !m.Has(TagMsgType) {
		return nil, &ParseError{Kind: MissingHeader, Tag: TagMsgType, RefSeqNum: refSeq}
	}
	if !m.Has(TagMsgSeqNum) {
		return nil, &ParseError{Kind: MissingHeader, Tag: TagMsgSeqNum, RefSeqNum: refSeq}
	}

	// BodyLength covers [after "9=<len><SOH>" .. "10=") including the
	// SOH that closes the last body field.
	if got := trailerStart - bodyStart; got != declaredBodyLen {
		return nil, &ParseError{
			Kind: BadBodyLength, Tag: TagBodyLength, RefSeqNum: refSeq,
			Detail: "declared " + strconv.Itoa(declaredBodyLen) + ", measured " + strconv.Itoa(got),
		}
	}

	if want := FormatChecksum(Checksum(raw[:trailerStart])); want != declaredChecksum {
		return nil, &ParseError{
			Kind: BadChecksum, Tag: TagCheckSum, RefSeqNum: refSeq,
			Detail: "declared " + declaredChecksum + ", computed " + want,
		}
	}

	return m, nil
}

// parseTag converts a tag token to its number, rejecting empty tokens,
// non-digits, leading signs and values outside (0, maxTag].
func parseTag(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
		n = n*10 + int(c-'0')
		if n > maxTag {
			return 0, strconv.ErrRange
		}
	}
	if n == 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
