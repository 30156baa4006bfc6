package sql

import (
	"time"

	"github.com/marmos91/fixgate/pkg/store"
)

// messageRow maps store.StoredMessage onto the messages table.
// Primary key (session_id, direction, seq); secondary index on
// (session_id, sent_at) serves time-range queries and archival.
type messageRow struct {
	SessionID  string     `gorm:"primaryKey;size:128;index:idx_messages_session_time,priority:1"`
	Direction  string     `gorm:"primaryKey;size:3"`
	Seq        uint32     `gorm:"primaryKey"`
	MsgType    string     `gorm:"size:8"`
	Sender     string     `gorm:"size:64"`
	Target     string     `gorm:"size:64"`
	SentAt     time.Time  `gorm:"index:idx_messages_session_time,priority:2"`
	Raw        []byte     `gorm:"type:blob"`
	ArchivedAt *time.Time `gorm:"index"`
}

func (messageRow) TableName() string { return "messages" }

func toMessageRow(m *store.StoredMessage) *messageRow {
	return &messageRow{
		SessionID:  m.SessionID,
		Direction:  string(m.Direction),
		Seq:        m.Seq,
		MsgType:    m.MsgType,
		Sender:     m.Sender,
		Target:     m.Target,
		SentAt:     m.SentAt,
		Raw:        m.Raw,
		ArchivedAt: m.ArchivedAt,
	}
}

func (r *messageRow) toStored() *store.StoredMessage {
	return &store.StoredMessage{
		SessionID:  r.SessionID,
		Direction:  store.Direction(r.Direction),
		Seq:        r.Seq,
		MsgType:    r.MsgType,
		Sender:     r.Sender,
		Target:     r.Target,
		SentAt:     r.SentAt,
		Raw:        r.Raw,
		ArchivedAt: r.ArchivedAt,
	}
}

// sessionRow maps store.SessionState onto the sessions table.
type sessionRow struct {
	ID           string `gorm:"primaryKey;size:128"`
	Sender       string `gorm:"size:64"`
	Target       string `gorm:"size:64"`
	Status       string `gorm:"size:24"`
	IncomingNext uint32
	OutgoingNext uint32

	HeartbeatIntervalSeconds uint32
	LastInboundAt            time.Time
	LastOutboundAt           time.Time
	StartTime                time.Time
	FIXVersion               string `gorm:"size:16"`
	PeerAddr                 string `gorm:"size:64"`
	TotalIn                  uint64
	TotalOut                 uint64

	LastError        string
	TerminationCause string

	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

func toSessionRow(s *store.SessionState) *sessionRow {
	return &sessionRow{
		ID:           s.ID,
		Sender:       s.Sender,
		Target:       s.Target,
		Status:       s.Status,
		IncomingNext: s.IncomingNext,
		OutgoingNext: s.OutgoingNext,

		HeartbeatIntervalSeconds: uint32(s.HeartbeatInterval / time.Second),
		LastInboundAt:            s.LastInboundAt,
		LastOutboundAt:           s.LastOutboundAt,
		StartTime:                s.StartTime,
		FIXVersion:               s.FIXVersion,
		PeerAddr:                 s.PeerAddr,
		TotalIn:                  s.TotalIn,
		TotalOut:                 s.TotalOut,

		LastError:        s.LastError,
		TerminationCause: s.TerminationCause,
	}
}

func (r *sessionRow) toState() *store.SessionState {
	return &store.SessionState{
		ID:           r.ID,
		Sender:       r.Sender,
		Target:       r.Target,
		Status:       r.Status,
		IncomingNext: r.IncomingNext,
		OutgoingNext: r.OutgoingNext,

		HeartbeatInterval: time.Duration(r.HeartbeatIntervalSeconds) * time.Second,
		LastInboundAt:     r.LastInboundAt,
		LastOutboundAt:    r.LastOutboundAt,
		StartTime:         r.StartTime,
		FIXVersion:        r.FIXVersion,
		PeerAddr:          r.PeerAddr,
		TotalIn:           r.TotalIn,
		TotalOut:          r.TotalOut,

		LastError:        r.LastError,
		TerminationCause: r.TerminationCause,
	}
}

// auditRow maps store.AuditRecord onto the audit table.
type auditRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SessionID string    `gorm:"index:idx_audit_session_time,priority:1;size:128"`
	At        time.Time `gorm:"index:idx_audit_session_time,priority:2"`
	Event     string    `gorm:"size:32"`
	MsgType   string    `gorm:"size:8"`
	Direction string    `gorm:"size:3"`
	Peer      string    `gorm:"size:64"`
	Text      string
	Raw       []byte `gorm:"type:blob"`
}

func (auditRow) TableName() string { return "audit" }

func toAuditRow(rec *store.AuditRecord) *auditRow {
	return &auditRow{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		At:        rec.At,
		Event:     string(rec.Event),
		MsgType:   rec.MsgType,
		Direction: string(rec.Direction),
		Peer:      rec.Peer,
		Text:      rec.Text,
		Raw:       rec.Raw,
	}
}

func (r *auditRow) toRecord() *store.AuditRecord {
	return &store.AuditRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		At:        r.At,
		Event:     store.AuditEvent(r.Event),
		MsgType:   r.MsgType,
		Direction: store.Direction(r.Direction),
		Peer:      r.Peer,
		Text:      r.Text,
		Raw:       r.Raw,
	}
}

func allModels() []any {
	return []any{&messageRow{}, &sessionRow{}, &auditRow{}}
}
