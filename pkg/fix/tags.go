package fix

// Standard FIX tag numbers used by the session layer and the built-in
// validation tables. Application code is free to use raw numeric tags;
// these constants exist for the tags the engine itself reads or writes.
const (
	TagBeginString         = 8
	TagBodyLength          = 9
	TagCheckSum            = 10
	TagMsgSeqNum           = 34
	TagMsgType             = 35
	TagPossDupFlag         = 43
	TagRefSeqNum           = 45
	TagSenderCompID        = 49
	TagSendingTime         = 52
	TagTargetCompID        = 56
	TagText                = 58
	TagRefTagID            = 371
	TagRefMsgType          = 372
	TagSessionRejectReason = 373

	// Session-layer message bodies
	TagBeginSeqNo      = 7
	TagEndSeqNo        = 16
	TagNewSeqNo        = 36
	TagGapFillFlag     = 123
	TagEncryptMethod   = 98
	TagHeartBtInt      = 108
	TagTestReqID       = 112
	TagOrigSendingTime = 122
	TagResetSeqNumFlag = 141
	TagUsername        = 553
	TagPassword        = 554

	// Business reject
	TagBusinessRejectRefID  = 379
	TagBusinessRejectReason = 380

	// Application messages the built-in validator knows about
	TagClOrdID   = 11
	TagCumQty    = 14
	TagExecID    = 17
	TagOrderID   = 37
	TagOrdStatus = 39
	TagOrderQty  = 38
	TagOrdType   = 40
	TagPrice     = 44
	TagSide      = 54
	TagSymbol    = 55
	TagExecType  = 150
	TagLeavesQty = 151
)

// Session reject reasons (tag 373) emitted by the engine.
const (
	RejectReasonInvalidTag          = 0
	RejectReasonRequiredTagMissing  = 1
	RejectReasonValueIncorrect      = 5
	RejectReasonIncorrectDataFormat = 6
	RejectReasonCompIDProblem       = 9
	RejectReasonInvalidMsgType      = 11
)

// Business reject reasons (tag 380).
const (
	BusinessRejectUnknownMsgType      = 3
	BusinessRejectApplicationNotAvail = 4
	BusinessRejectOther               = 0
)
