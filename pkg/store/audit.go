package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/fixgate/internal/logger"
)

// AuditEvent classifies audit records.
type AuditEvent string

const (
	AuditSessionCreated   AuditEvent = "SessionCreated"
	AuditLogon            AuditEvent = "Logon"
	AuditLogout           AuditEvent = "Logout"
	AuditTimeout          AuditEvent = "Timeout"
	AuditMsgReceived      AuditEvent = "MsgReceived"
	AuditMsgSent          AuditEvent = "MsgSent"
	AuditMsgRejected      AuditEvent = "MsgRejected"
	AuditSeqReset         AuditEvent = "SeqReset"
	AuditFatalSeqError    AuditEvent = "FatalSeqError"
	AuditHeartbeatTimeout AuditEvent = "HeartbeatTimeout"
	AuditTestReqSent      AuditEvent = "TestReqSent"
	AuditResendReq        AuditEvent = "ResendReq"
	AuditAuthFailure      AuditEvent = "AuthFailure"
	AuditProtocolError    AuditEvent = "ProtocolError"
	AuditSystemError      AuditEvent = "SystemError"
)

// AuditRecord is one audit trail entry. Raw carries the wire bytes
// when the event concerns a concrete message.
type AuditRecord struct {
	ID        string
	SessionID string
	At        time.Time
	Event     AuditEvent
	MsgType   string
	Direction Direction
	Peer      string
	Text      string
	Raw       []byte
}

// defaultAuditQueueDepth bounds the async audit queue.
const defaultAuditQueueDepth = 8192

// AuditWriter decouples audit persistence from the message hot path.
//
// Records are queued and written by a single background goroutine;
// when the queue is full the record is dropped and counted, never
// blocking a session. Callers therefore get no error surface at all,
// matching the best-effort audit contract.
type AuditWriter struct {
	sink  AuditStore
	queue chan *AuditRecord

	mu      sync.Mutex
	dropped uint64

	done chan struct{}
	once sync.Once
}

// NewAuditWriter starts the background writer. depth <= 0 selects the
// default queue depth.
func NewAuditWriter(sink AuditStore, depth int) *AuditWriter {
	if depth <= 0 {
		depth = defaultAuditQueueDepth
	}
	w := &AuditWriter{
		sink:  sink,
		queue: make(chan *AuditRecord, depth),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

// Record enqueues an audit record, assigning its ID and timestamp if
// unset. Never blocks; drops under overload.
func (w *AuditWriter) Record(rec *AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	select {
	case w.queue <- rec:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Dropped returns how many records were discarded due to overload.
func (w *AuditWriter) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close stops the writer after draining queued records.
func (w *AuditWriter) Close() {
	w.once.Do(func() {
		close(w.queue)
		<-w.done
	})
}

func (w *AuditWriter) run() {
	defer close(w.done)
	for rec := range w.queue {
		if err := w.sink.AppendAudit(context.Background(), rec); err != nil {
			logger.Warn("audit append failed",
				"session", rec.SessionID,
				"event", string(rec.Event),
				"error", err)
		}
	}
}
