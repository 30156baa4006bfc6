// Package validate checks parsed FIX messages against header and
// per-message-type requirements before they reach the session state
// machine.
//
// Validation is table-driven: requiredByType lists the body tags each
// known MsgType must carry, fieldFormats the syntactic checks applied
// when a tag is present. Unknown MsgTypes pass header validation only;
// whether they are deliverable is the application registry's call.
package validate

import (
	"strconv"

	"github.com/marmos91/fixgate/pkg/fix"
)

// Reason mirrors the SessionRejectReason (373) values the engine emits.
type Reason int

const (
	ReasonRequiredTagMissing Reason = fix.RejectReasonRequiredTagMissing
	ReasonValueIncorrect     Reason = fix.RejectReasonValueIncorrect
)

// Issue is one failed check on one tag.
type Issue struct {
	Tag    int
	Reason Reason
	Detail string
}

// Result is the outcome of validating a message. The zero value means
// the message passed.
type Result struct {
	Issues []Issue
}

// OK reports whether no checks failed.
func (r Result) OK() bool { return len(r.Issues) == 0 }

// First returns the first issue, for building a single Reject.
func (r Result) First() Issue {
	if len(r.Issues) == 0 {
		return Issue{}
	}
	return r.Issues[0]
}

// headerRequired are the tags every inbound message must carry.
var headerRequired = []int{
	fix.TagBeginString,
	fix.TagMsgType,
	fix.TagSenderCompID,
	fix.TagTargetCompID,
	fix.TagMsgSeqNum,
	fix.TagSendingTime,
}

// requiredByType lists required body tags per MsgType.
var requiredByType = map[string][]int{
	fix.MsgTypeLogon:         {fix.TagEncryptMethod, fix.TagHeartBtInt},
	fix.MsgTypeLogout:        {},
	fix.MsgTypeHeartbeat:     {},
	fix.MsgTypeTestRequest:   {fix.TagTestReqID},
	fix.MsgTypeResendRequest: {fix.TagBeginSeqNo, fix.TagEndSeqNo},
	fix.MsgTypeReject:        {fix.TagRefSeqNum},
	fix.MsgTypeSequenceReset: {fix.TagNewSeqNo},

	fix.MsgTypeNewOrderSingle: {
		fix.TagClOrdID, fix.TagSymbol, fix.TagSide, fix.TagOrderQty, fix.TagOrdType,
	},
	fix.MsgTypeExecutionReport: {
		fix.TagOrderID, fix.TagExecID, fix.TagExecType, fix.TagOrdStatus,
		fix.TagLeavesQty, fix.TagCumQty,
	},
}

type formatKind int

const (
	formatInt formatKind = iota
	formatUint
	formatBool
	formatUTCTimestamp
	formatDecimal
)

// fieldFormats are syntactic checks applied when the tag is present.
var fieldFormats = map[int]formatKind{
	fix.TagMsgSeqNum:       formatUint,
	fix.TagSendingTime:     formatUTCTimestamp,
	fix.TagOrigSendingTime: formatUTCTimestamp,
	fix.TagEncryptMethod:   formatInt,
	fix.TagHeartBtInt:      formatInt,
	fix.TagBeginSeqNo:      formatUint,
	fix.TagEndSeqNo:        formatUint,
	fix.TagNewSeqNo:        formatUint,
	fix.TagRefSeqNum:       formatUint,
	fix.TagPossDupFlag:     formatBool,
	fix.TagGapFillFlag:     formatBool,
	fix.TagResetSeqNumFlag: formatBool,
	fix.TagOrderQty:        formatDecimal,
	fix.TagPrice:           formatDecimal,
	fix.TagCumQty:          formatDecimal,
	fix.TagLeavesQty:       formatDecimal,
}

// Validate runs header, per-type and format checks on m.
func Validate(m *fix.Message) Result {
	var res Result

	for _, tag := range headerRequired {
		if v, ok := m.Get(tag); !ok || len(v) == 0 {
			res.Issues = append(res.Issues, Issue{Tag: tag, Reason: ReasonRequiredTagMissing})
		}
	}

	msgType := m.MsgType()
	for _, tag := range requiredByType[msgType] {
		if v, ok := m.Get(tag); !ok || len(v) == 0 {
			res.Issues = append(res.Issues, Issue{Tag: tag, Reason: ReasonRequiredTagMissing})
		}
	}

	// Limit-priced orders must carry a price.
	if msgType == fix.MsgTypeNewOrderSingle && m.GetString(fix.TagOrdType) == "2" {
		if !m.Has(fix.TagPrice) {
			res.Issues = append(res.Issues, Issue{Tag: fix.TagPrice, Reason: ReasonRequiredTagMissing})
		}
	}

	for tag, kind := range fieldFormats {
		v, ok := m.Get(tag)
		if !ok {
			continue
		}
		if !checkFormat(kind, string(v)) {
			res.Issues = append(res.Issues, Issue{Tag: tag, Reason: ReasonValueIncorrect, Detail: string(v)})
		}
	}

	// MsgSeqNum must be positive; zero survives the uint check above.
	if seq, err := m.MsgSeqNum(); err == nil && seq == 0 {
		res.Issues = append(res.Issues, Issue{Tag: fix.TagMsgSeqNum, Reason: ReasonValueIncorrect, Detail: "0"})
	}

	return res
}

func checkFormat(kind formatKind, v string) bool {
	switch kind {
	case formatInt:
		_, err := strconv.Atoi(v)
		return err == nil
	case formatUint:
		_, err := strconv.ParseUint(v, 10, 32)
		return err == nil
	case formatBool:
		return v == "Y" || v == "N"
	case formatUTCTimestamp:
		_, err := fix.ParseSendingTime(v)
		return err == nil
	case formatDecimal:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return true
	}
}
