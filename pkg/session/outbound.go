package session

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/store"
)

// sendMessage stamps, formats, persists and transmits one outbound
// message. Runs on the session goroutine; sequence assignment and the
// store append happen under the session's serialization, which is what
// keeps outbound seqs gapless.
func (s *Session) sendMessage(ctx context.Context, msg *fix.Message) error {
	now := s.deps.Now()

	msg.SetString(fix.TagBeginString, s.fixVersion)
	msg.SetString(fix.TagSenderCompID, s.key.SenderCompID)
	msg.SetString(fix.TagTargetCompID, s.key.TargetCompID)
	msg.SetUint32(fix.TagMsgSeqNum, s.outgoingNext)
	msg.SetString(fix.TagSendingTime, fix.FormatSendingTime(now))

	raw, err := fix.Format(msg)
	if err != nil {
		return fmt.Errorf("session %s: format: %w", s.id, err)
	}

	stored := &store.StoredMessage{
		SessionID: s.id,
		Direction: store.DirectionOut,
		Seq:       s.outgoingNext,
		MsgType:   msg.MsgType(),
		Sender:    s.key.SenderCompID,
		Target:    s.key.TargetCompID,
		SentAt:    now.UTC(),
		Raw:       raw,
	}
	if err := s.appendWithRetry(ctx, stored); err != nil {
		s.lastError = err.Error()
		s.audit(store.AuditSystemError, msg.MsgType(), "outbound append failed: "+err.Error())
		s.fatalClose(ctx, "Persistence failure")
		return fmt.Errorf("session %s: append: %w", s.id, err)
	}

	s.outgoingNext++
	s.totalOut++
	s.lastOutbound = now
	s.updateMirror()

	s.writeTransport(raw)
	s.auditMsg(store.AuditMsgSent, store.DirectionOut, msg.MsgType(), raw)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordOutbound(msg.MsgType())
		s.deps.Metrics.RecordFrameBytes("out", len(raw))
	}
	return nil
}

// appendWithRetry retries transient outbound store failures a bounded
// number of times before giving up.
func (s *Session) appendWithRetry(ctx context.Context, msg *store.StoredMessage) error {
	var err error
	for attempt := 1; attempt <= s.cfg.StoreRetryAttempts; attempt++ {
		err = s.deps.Store.AppendMessage(ctx, msg)
		if err == nil {
			return nil
		}
		logger.Warn("outbound append retry",
			logger.KeySession, s.id,
			"attempt", attempt,
			logger.KeyError, err)
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	return err
}

// writeTransport pushes bytes at the socket, best-effort. A failed
// write is not an error for the caller: the message is durable and a
// resend request will recover it.
func (s *Session) writeTransport(raw []byte) {
	if s.transport == nil {
		return
	}
	if err := s.transport.Write(raw); err != nil {
		logger.Warn("transport write failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}
}

// fatalClose tears the session down without attempting further sends.
// Used when the send path itself is broken.
func (s *Session) fatalClose(ctx context.Context, reason string) {
	s.closeTransport()
	s.status = StatusDisconnected
	s.termCause = reason
	s.clearRecovery()
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDisconnect(reason)
	}
	s.persist(ctx)
	s.updateMirror()
}
