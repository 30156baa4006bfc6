package fix

// MsgType values (tag 35) known to the session layer.
const (
	MsgTypeHeartbeat       = "0"
	MsgTypeTestRequest     = "1"
	MsgTypeResendRequest   = "2"
	MsgTypeReject          = "3"
	MsgTypeSequenceReset   = "4"
	MsgTypeLogout          = "5"
	MsgTypeLogon           = "A"
	MsgTypeBusinessReject  = "j"

	MsgTypeNewOrderSingle  = "D"
	MsgTypeExecutionReport = "8"
)

// BeginString values accepted by the engine.
const (
	BeginStringFIX44  = "FIX.4.4"
	BeginStringFIXT11 = "FIXT.1.1"
)

// IsAdminMsgType reports whether the MsgType belongs to the session
// layer. Admin messages are never replayed verbatim on a resend
// request; their sequence span collapses into a gap fill.
func IsAdminMsgType(msgType string) bool {
	switch msgType {
	case MsgTypeHeartbeat, MsgTypeTestRequest, MsgTypeResendRequest,
		MsgTypeReject, MsgTypeSequenceReset, MsgTypeLogout, MsgTypeLogon:
		return true
	}
	return false
}
