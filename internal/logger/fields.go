package logger

// Standard field keys for structured logging. Use these consistently
// across packages so log lines about the same session aggregate
// cleanly.
const (
	// Session identity
	KeySession      = "session"        // engine session id (SENDER:TARGET)
	KeySenderCompID = "sender_comp_id" // counterparty CompID
	KeyTargetCompID = "target_comp_id" // our CompID
	KeyPeer         = "peer"           // client address

	// Message
	KeyMsgType   = "msg_type"  // FIX MsgType (35)
	KeySeq       = "seq"       // MsgSeqNum (34)
	KeyDirection = "direction" // in / out
	KeyBytes     = "bytes"     // frame size

	// Session state
	KeyStatus     = "status"      // session status
	KeyInSeq      = "in_seq"      // next expected inbound seq
	KeyOutSeq     = "out_seq"     // next outbound seq
	KeyHeartbeat  = "heartbeat"   // negotiated interval
	KeyFIXVersion = "fix_version" // BeginString

	// Outcome
	KeyError      = "error"
	KeyReason     = "reason"
	KeyDurationMs = "duration_ms"
	KeyEvent      = "event" // audit event type

	// Process
	KeyComponent = "component" // engine, registry, adapter, api, store
	KeyAddr      = "addr"      // listen address
)
