package fix

import (
	"fmt"
	"strconv"
)

// Format encodes a message into wire bytes.
//
// Field order on the wire is: 8, 9, 35, then every remaining field in
// insertion order, then 10. BodyLength and CheckSum are computed here;
// any 9 or 10 fields present on the message are ignored. Output is
// deterministic: the same field order and values always produce
// byte-identical frames.
func Format(m *Message) ([]byte, error) {
	begin, ok := m.Get(TagBeginString)
	if !ok {
		return nil, fmt.Errorf("fix: format: BeginString (8) missing")
	}
	msgType, ok := m.Get(TagMsgType)
	if !ok {
		return nil, fmt.Errorf("fix: format: MsgType (35) missing")
	}

	// Body: 35 first, then the rest in insertion order. The first
	// occurrence of 8 and 35 is consumed by the header; later
	// duplicates (inside groups) pass through untouched.
	body := make([]byte, 0, 256)
	body = appendField(body, TagMsgType, msgType)

	seenBegin, seenType := false, false
	for _, f := range m.fields {
		switch f.Tag {
		case TagBodyLength, TagCheckSum:
			continue
		case TagBeginString:
			if !seenBegin {
				seenBegin = true
				continue
			}
		case TagMsgType:
			if !seenType {
				seenType = true
				continue
			}
		}
		body = appendField(body, f.Tag, f.Value)
	}

	out := make([]byte, 0, len(body)+32)
	out = appendField(out, TagBeginString, begin)
	out = appendField(out, TagBodyLength, []byte(strconv.Itoa(len(body))))
	out = append(out, body...)
	out = appendField(out, TagCheckSum, []byte(FormatChecksum(Checksum(out))))
	return out, nil
}

func appendField(dst []byte, tag int, value []byte) []byte {
	dst = strconv.AppendInt(dst, int64(tag), 10)
	dst = append(dst, '=')
	dst = append(dst, value...)
	return append(dst, SOH)
}
