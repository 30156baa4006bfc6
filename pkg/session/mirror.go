package session

import (
	"sync"
	"time"
)

// Info is a point-in-time snapshot of a session for admin queries.
type Info struct {
	ID           string        `json:"id"`
	SenderCompID string        `json:"sender_comp_id"`
	TargetCompID string        `json:"target_comp_id"`
	Status       Status        `json:"status"`
	PeerAddr     string        `json:"peer_addr,omitempty"`
	FIXVersion   string        `json:"fix_version"`
	IncomingNext uint32        `json:"incoming_next"`
	OutgoingNext uint32        `json:"outgoing_next"`
	Heartbeat    time.Duration `json:"heartbeat"`
	LastInbound  time.Time     `json:"last_inbound"`
	LastOutbound time.Time     `json:"last_outbound"`
	StartTime    time.Time     `json:"start_time"`
	TotalIn      uint64        `json:"total_in"`
	TotalOut     uint64        `json:"total_out"`
	PendingTest  string        `json:"pending_test_req_id,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	Termination  string        `json:"termination_cause,omitempty"`
}

// mirror is the admin-visible copy of session state, written by the
// run goroutine and read by anyone. It exists so Info never has to
// touch the single-owner state.
type mirror struct {
	mu   sync.RWMutex
	info Info
}

// updateMirror refreshes the snapshot. Called from the run goroutine
// after every state change.
func (s *Session) updateMirror() {
	s.mirror.mu.Lock()
	defer s.mirror.mu.Unlock()
	s.mirror.info = Info{
		ID:           s.id,
		SenderCompID: s.key.SenderCompID,
		TargetCompID: s.key.TargetCompID,
		Status:       s.status,
		PeerAddr:     s.peer,
		FIXVersion:   s.fixVersion,
		IncomingNext: s.incomingNext,
		OutgoingNext: s.outgoingNext,
		Heartbeat:    s.hbInterval,
		LastInbound:  s.lastInbound,
		LastOutbound: s.lastOutbound,
		StartTime:    s.startTime,
		TotalIn:      s.totalIn,
		TotalOut:     s.totalOut,
		PendingTest:  s.pendingTestReqID,
		LastError:    s.lastError,
		Termination:  s.termCause,
	}
}

// Info returns the latest snapshot. Safe from any goroutine.
func (s *Session) Info() Info {
	s.mirror.mu.RLock()
	defer s.mirror.mu.RUnlock()
	return s.mirror.info
}

// IsLoggedOn reports whether the snapshot shows an active logon.
func (s *Session) IsLoggedOn() bool {
	return s.Info().Status == StatusLoggedOn
}
