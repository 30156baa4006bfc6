// Package store defines the durable persistence layer behind the
// engine: every accepted inbound and outbound message, per-session
// counters for crash recovery, and the audit trail.
//
// Two backends implement the Store interface:
//   - memory: process-local, for tests and ephemeral deployments
//   - sql: GORM-backed SQLite or PostgreSQL with transactional appends
//
// The interface is composed of focused sub-interfaces; consumers should
// accept the narrowest one they need.
package store

import (
	"context"
	"time"
)

// Direction marks which way a stored message travelled, from the
// server's point of view.
type Direction string

const (
	// DirectionIn is a message received from the counterparty.
	DirectionIn Direction = "in"

	// DirectionOut is a message sent to the counterparty.
	DirectionOut Direction = "out"
)

// StoredMessage is one persisted wire message. (SessionID, Direction,
// Seq) is the primary key; rows are never mutated after append, only
// marked archived.
type StoredMessage struct {
	SessionID  string
	Direction  Direction
	Seq        uint32
	MsgType    string
	Sender     string
	Target     string
	SentAt     time.Time
	Raw        []byte
	ArchivedAt *time.Time
}

// SessionState is the persisted part of a session: everything needed
// to rehydrate sequence integrity after a disconnect or a restart.
type SessionState struct {
	ID           string
	Sender       string
	Target       string
	Status       string
	IncomingNext uint32
	OutgoingNext uint32

	HeartbeatInterval time.Duration
	LastInboundAt     time.Time
	LastOutboundAt    time.Time
	StartTime         time.Time
	FIXVersion        string
	PeerAddr          string
	TotalIn           uint64
	TotalOut          uint64

	// LastError and TerminationCause surface the most recent failure
	// through the admin API.
	LastError        string
	TerminationCause string
}

// MessageStore persists and reads wire messages.
//
// Appends are durable on return for the SQL backend. Writes for a
// given (session, direction) are serialized by the caller's session
// task; the store may additionally serialize internally but must never
// reorder them. Readers observe a message as soon as its append has
// returned.
type MessageStore interface {
	// AppendMessage writes one message. The message arrives already
	// stamped with its sequence number. Appending a (session,
	// direction, seq) that already exists returns ErrDuplicateSeq.
	AppendMessage(ctx context.Context, msg *StoredMessage) error

	// GetMessage returns one message, or ErrNotFound.
	GetMessage(ctx context.Context, sessionID string, dir Direction, seq uint32) (*StoredMessage, error)

	// RangeMessages calls fn for each stored message with from <= seq
	// <= to, ascending. A zero `to` means "through the latest". fn
	// returning an error stops the scan and propagates the error.
	RangeMessages(ctx context.Context, sessionID string, dir Direction, from, to uint32, fn func(*StoredMessage) error) error

	// LastSeq returns the highest stored seq, or 0 when none exist.
	LastSeq(ctx context.Context, sessionID string, dir Direction) (uint32, error)

	// ArchiveBefore stamps ArchivedAt on messages of the session sent
	// before ts. Returns the number of rows touched.
	ArchiveBefore(ctx context.Context, sessionID string, ts time.Time) (int64, error)

	// DeleteArchivedBefore removes messages archived before ts across
	// all sessions. Returns the number of rows removed.
	DeleteArchivedBefore(ctx context.Context, ts time.Time) (int64, error)

	// ResetSequences drops the session's stored messages so numbering
	// can restart at 1 after a ResetSeqNumFlag logon. The audit trail,
	// which carries the raw bytes of every message event, is retained.
	ResetSequences(ctx context.Context, sessionID string) error
}

// SessionStore persists per-session state.
type SessionStore interface {
	// ListSessions returns the IDs of all persisted sessions.
	ListSessions(ctx context.Context) ([]string, error)

	// LoadSession returns a session's persisted state, or ErrNotFound.
	LoadSession(ctx context.Context, sessionID string) (*SessionState, error)

	// SaveSession upserts a session's persisted state.
	SaveSession(ctx context.Context, state *SessionState) error

	// DeleteSession removes a session's persisted state. Messages and
	// audit records are left for retention policy to reap.
	DeleteSession(ctx context.Context, sessionID string) error
}

// AuditStore records session lifecycle and protocol events.
// AppendAudit is called from the async audit writer, never from the
// message hot path directly.
type AuditStore interface {
	AppendAudit(ctx context.Context, rec *AuditRecord) error

	// AuditRange returns records for the session between from and to,
	// ascending by time. Zero times mean unbounded.
	AuditRange(ctx context.Context, sessionID string, from, to time.Time) ([]*AuditRecord, error)
}

// Store is the full persistence surface the engine consumes.
type Store interface {
	MessageStore
	SessionStore
	AuditStore

	// Close releases backend resources. Further calls fail.
	Close() error
}
