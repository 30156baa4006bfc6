package metrics

import "time"

// EngineMetrics provides observability for the protocol engine.
//
// Pass nil to disable collection with zero overhead; every call site
// nil-checks before recording.
type EngineMetrics interface {
	// RecordInbound records one processed inbound message with its
	// MsgType, processing duration and outcome ("accepted",
	// "rejected", "duplicate", "buffered", "dropped").
	RecordInbound(msgType string, duration time.Duration, outcome string)

	// RecordOutbound records one formatted-and-stored outbound message.
	RecordOutbound(msgType string)

	// RecordFrameBytes records the wire size of a frame by direction
	// ("in" or "out").
	RecordFrameBytes(direction string, bytes int)

	// RecordProtocolError counts a codec or session-level protocol
	// failure by kind.
	RecordProtocolError(kind string)

	// RecordResendRequest counts an inbound resend request.
	RecordResendRequest()

	// RecordDisconnect counts a session disconnect by reason.
	RecordDisconnect(reason string)

	// SetSessionsActive sets the gauge of currently logged-on sessions.
	SetSessionsActive(n int)

	// SetSessionsKnown sets the gauge of sessions the registry holds,
	// connected or not.
	SetSessionsKnown(n int)
}
