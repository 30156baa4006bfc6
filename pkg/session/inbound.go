package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/fix/validate"
	"github.com/marmos91/fixgate/pkg/store"
)

// handleFrame is the inbound hot path: parse, validate, sequence,
// store, dispatch. Runs on the session goroutine.
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	started := s.deps.Now()

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordFrameBytes("in", len(raw))
	}

	msg, err := fix.Parse(raw)
	if err != nil {
		s.handleParseError(ctx, raw, err)
		return
	}

	if res := validate.Validate(msg); !res.OK() {
		issue := res.First()
		s.rejectMessage(ctx, msg, issue.Tag, int(issue.Reason), issue.Detail)
		s.recordInbound(msg.MsgType(), started, "rejected")
		return
	}

	if !s.compIDsMatch(msg) {
		s.rejectMessage(ctx, msg, fix.TagSenderCompID, fix.RejectReasonCompIDProblem, "CompID mismatch")
		s.recordInbound(msg.MsgType(), started, "rejected")
		return
	}

	msgType := msg.MsgType()

	// Before logon only a Logon is conversational.
	if s.status != StatusLoggedOn && s.status != StatusLogoutSent {
		if msgType != fix.MsgTypeLogon {
			s.audit(store.AuditProtocolError, msgType, "first message was not Logon")
			s.disconnect(ctx, "first message must be Logon", false)
			s.recordInbound(msgType, started, "dropped")
			return
		}
		s.handleLogon(ctx, msg, raw)
		s.recordInbound(msgType, started, "accepted")
		return
	}

	// SequenceReset in reset mode applies regardless of its own seq.
	if msgType == fix.MsgTypeSequenceReset {
		s.handleSequenceReset(ctx, msg)
		s.recordInbound(msgType, started, "accepted")
		return
	}

	seq, err := msg.MsgSeqNum()
	if err != nil {
		s.rejectMessage(ctx, msg, fix.TagMsgSeqNum, fix.RejectReasonValueIncorrect, "unreadable MsgSeqNum")
		s.recordInbound(msgType, started, "rejected")
		return
	}

	switch {
	case seq == s.incomingNext:
		if !s.acceptMessage(ctx, msg, raw) {
			return
		}
		s.recordInbound(msgType, started, "accepted")
		s.drainGapBuffer(ctx)

	case seq > s.incomingNext:
		s.handleGap(ctx, msg, seq)
		s.recordInbound(msgType, started, "buffered")

	default: // seq < incomingNext
		if msg.PossDup() {
			// Already processed; P6 says never redeliver.
			logger.Debug("duplicate discarded",
				logger.KeySession, s.id,
				logger.KeySeq, seq)
			s.recordInbound(msgType, started, "duplicate")
			return
		}
		s.audit(store.AuditFatalSeqError, msgType,
			fmt.Sprintf("MsgSeqNum %d below expected %d without PossDup", seq, s.incomingNext))
		s.disconnect(ctx, "MsgSeqNum too low", true)
		s.recordInbound(msgType, started, "dropped")
	}
}

// acceptMessage stores an in-sequence message, advances the counter
// and dispatches it. Returns false when the session died in the
// process (store failure is fatal inbound).
func (s *Session) acceptMessage(ctx context.Context, msg *fix.Message, raw []byte) bool {
	stored := &store.StoredMessage{
		SessionID: s.id,
		Direction: store.DirectionIn,
		Seq:       s.incomingNext,
		MsgType:   msg.MsgType(),
		Sender:    msg.SenderCompID(),
		Target:    msg.TargetCompID(),
		SentAt:    s.deps.Now().UTC(),
		Raw:       raw,
	}
	if err := s.deps.Store.AppendMessage(ctx, stored); err != nil && !errors.Is(err, store.ErrDuplicateSeq) {
		// Accepting without durability would break the contiguity
		// invariant on recovery, so the session must die here.
		s.lastError = err.Error()
		s.audit(store.AuditSystemError, msg.MsgType(), "inbound append failed: "+err.Error())
		s.disconnect(ctx, "Persistence failure", true)
		return false
	}

	s.incomingNext++
	s.totalIn++
	s.lastInbound = s.deps.Now()
	s.auditMsg(store.AuditMsgReceived, store.DirectionIn, msg.MsgType(), raw)
	s.updateMirror()

	s.dispatchAccepted(ctx, msg)
	return true
}

// dispatchAccepted routes an accepted message to its session-layer
// handler or the application.
func (s *Session) dispatchAccepted(ctx context.Context, msg *fix.Message) {
	switch msg.MsgType() {
	case fix.MsgTypeHeartbeat:
		s.handleHeartbeat(msg)
	case fix.MsgTypeTestRequest:
		s.handleTestRequest(ctx, msg)
	case fix.MsgTypeResendRequest:
		s.handleResendRequest(ctx, msg)
	case fix.MsgTypeReject:
		s.audit(store.AuditMsgRejected, fix.MsgTypeReject,
			"counterparty Reject: "+msg.GetString(fix.TagText))
	case fix.MsgTypeLogout:
		s.handleLogoutMsg(ctx, msg)
	case fix.MsgTypeLogon:
		if msg.PossDup() {
			// Replay of the logon that opened a gapped handshake; the
			// handshake already happened.
			return
		}
		// A second Logon while logged on is a protocol violation.
		s.audit(store.AuditProtocolError, fix.MsgTypeLogon, "Logon while logged on")
		s.disconnect(ctx, "unexpected Logon", true)
	default:
		s.deliverApp(ctx, msg)
	}
}

// deliverApp hands a business message to the application callback and
// converts failures into a BusinessMessageReject.
func (s *Session) deliverApp(ctx context.Context, msg *fix.Message) {
	if s.deps.Deliver == nil {
		s.businessReject(ctx, msg, fix.BusinessRejectUnknownMsgType, "no application handler")
		return
	}

	lc := logger.NewLogContext(s.peer).WithSession(s.id, s.key.TargetCompID, s.key.SenderCompID)
	err := s.deps.Deliver(logger.WithContext(ctx, lc), s.id, msg)
	if err == nil {
		return
	}
	if errors.Is(err, ErrUnsupportedMsgType) {
		s.businessReject(ctx, msg, fix.BusinessRejectUnknownMsgType, "unsupported MsgType "+msg.MsgType())
		return
	}
	s.businessReject(ctx, msg, fix.BusinessRejectOther, err.Error())
}

// handleGap buffers an out-of-order message and requests a resend of
// the missing span. Buffered frames beyond the window are dropped.
func (s *Session) handleGap(ctx context.Context, msg *fix.Message, seq uint32) {
	if len(s.gapBuffer) >= s.cfg.ResendBufferWindow {
		s.audit(store.AuditProtocolError, msg.MsgType(),
			fmt.Sprintf("resend buffer full, dropping seq %d", seq))
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordProtocolError("resend_buffer_full")
		}
		return
	}
	s.gapBuffer[seq] = msg

	if s.resendPending {
		return
	}
	s.resendPending = true

	req := fix.NewMessage(fix.MsgTypeResendRequest)
	req.SetUint32(fix.TagBeginSeqNo, s.incomingNext)
	req.SetUint32(fix.TagEndSeqNo, 0) // 0 = through latest
	if err := s.sendMessage(ctx, req); err != nil {
		logger.Warn("resend request send failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
		s.resendPending = false
		return
	}
	s.audit(store.AuditResendReq, fix.MsgTypeResendRequest,
		fmt.Sprintf("gap detected: expected %d, got %d", s.incomingNext, seq))
}

// drainGapBuffer replays buffered messages that have become
// in-sequence after the gap was filled.
func (s *Session) drainGapBuffer(ctx context.Context) {
	for {
		msg, ok := s.gapBuffer[s.incomingNext]
		if !ok {
			break
		}
		delete(s.gapBuffer, s.incomingNext)

		raw, err := fix.Format(msg)
		if err != nil {
			logger.Error("buffered message reformat failed",
				logger.KeySession, s.id,
				logger.KeyError, err)
			continue
		}
		if !s.acceptMessage(ctx, msg, raw) {
			return
		}
	}
	if len(s.gapBuffer) == 0 {
		s.resendPending = false
	}
}

// handleSequenceReset applies tag 123 semantics: gap fill moves the
// expectation forward only; reset mode applies unconditionally.
func (s *Session) handleSequenceReset(ctx context.Context, msg *fix.Message) {
	newSeq, err := msg.GetUint32(fix.TagNewSeqNo)
	if err != nil {
		s.rejectMessage(ctx, msg, fix.TagNewSeqNo, fix.RejectReasonValueIncorrect, "unreadable NewSeqNo")
		return
	}

	gapFill := msg.GetBool(fix.TagGapFillFlag)
	if gapFill && newSeq <= s.incomingNext {
		logger.Debug("stale gap fill ignored",
			logger.KeySession, s.id,
			"new_seq", newSeq,
			logger.KeyInSeq, s.incomingNext)
		return
	}

	s.audit(store.AuditSeqReset, fix.MsgTypeSequenceReset,
		fmt.Sprintf("incoming %d -> %d (gap_fill=%t)", s.incomingNext, newSeq, gapFill))
	s.incomingNext = newSeq
	s.lastInbound = s.deps.Now()
	s.updateMirror()
	s.drainGapBuffer(ctx)
}

// handleHeartbeat clears an outstanding TestRequest when the echo
// matches; an unsolicited heartbeat still counts as liveness.
func (s *Session) handleHeartbeat(msg *fix.Message) {
	if id := msg.GetString(fix.TagTestReqID); id != "" && id == s.pendingTestReqID {
		s.pendingTestReqID = ""
	}
}

func (s *Session) handleTestRequest(ctx context.Context, msg *fix.Message) {
	hb := fix.NewMessage(fix.MsgTypeHeartbeat)
	hb.SetString(fix.TagTestReqID, msg.GetString(fix.TagTestReqID))
	if err := s.sendMessage(ctx, hb); err != nil {
		logger.Warn("heartbeat reply failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}
}

func (s *Session) handleLogoutMsg(ctx context.Context, msg *fix.Message) {
	if s.status == StatusLogoutSent {
		// Counterparty confirmed our logout.
		s.audit(store.AuditLogout, fix.MsgTypeLogout, "logout confirmed")
		s.closeTransport()
		s.status = StatusDisconnected
		s.termCause = "logout"
		s.clearRecovery()
		s.persist(ctx)
		s.updateMirror()
		return
	}

	// Counterparty-initiated logout: echo and close.
	echo := fix.NewMessage(fix.MsgTypeLogout)
	if text := msg.GetString(fix.TagText); text != "" {
		echo.SetString(fix.TagText, text)
	}
	if err := s.sendMessage(ctx, echo); err != nil {
		logger.Warn("logout echo failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}
	s.audit(store.AuditLogout, fix.MsgTypeLogout, "counterparty logout")
	s.closeTransport()
	s.status = StatusDisconnected
	s.termCause = "counterparty logout"
	s.clearRecovery()
	s.persist(ctx)
	s.updateMirror()
}

// handleLogon runs the logon handshake: authenticate, apply reset
// policy, sequence-check the Logon itself, then confirm.
func (s *Session) handleLogon(ctx context.Context, msg *fix.Message, raw []byte) {
	req := auth.Request{
		SenderCompID: msg.SenderCompID(),
		TargetCompID: msg.TargetCompID(),
		Username:     msg.GetString(fix.TagUsername),
		Password:     msg.GetString(fix.TagPassword),
		PeerAddr:     s.peer,
	}
	if err := s.deps.Auth.Authenticate(ctx, req); err != nil {
		s.audit(store.AuditAuthFailure, fix.MsgTypeLogon, err.Error())
		text := "authentication failed"
		if errors.Is(err, auth.ErrCoolDown) {
			text = "too many failures, try later"
		}
		s.sendLogoutAndClose(ctx, text)
		return
	}

	if msg.GetBool(fix.TagResetSeqNumFlag) {
		switch s.cfg.ResetOnLogonPolicy {
		case "accept":
			if err := s.deps.Store.ResetSequences(ctx, s.id); err != nil {
				s.lastError = err.Error()
				s.audit(store.AuditSystemError, fix.MsgTypeLogon, "sequence reset failed: "+err.Error())
				s.sendLogoutAndClose(ctx, "Persistence failure")
				return
			}
			s.audit(store.AuditSeqReset, fix.MsgTypeLogon, "counters reset on logon")
			s.incomingNext = 1
			s.outgoingNext = 1
		case "ignore":
			logger.Debug("ResetSeqNumFlag ignored by policy", logger.KeySession, s.id)
		case "never":
			s.audit(store.AuditProtocolError, fix.MsgTypeLogon, "ResetSeqNumFlag refused by policy")
			s.sendLogoutAndClose(ctx, "sequence reset not permitted")
			return
		}
	}

	seq, err := msg.MsgSeqNum()
	if err != nil || seq == 0 {
		s.rejectMessage(ctx, msg, fix.TagMsgSeqNum, fix.RejectReasonValueIncorrect, "unreadable MsgSeqNum")
		return
	}
	if seq < s.incomingNext {
		s.audit(store.AuditFatalSeqError, fix.MsgTypeLogon,
			fmt.Sprintf("logon seq %d below expected %d", seq, s.incomingNext))
		s.sendLogoutAndClose(ctx, "MsgSeqNum too low")
		return
	}

	// Heartbeat interval: echo the client's proposal.
	if hb, err := msg.GetInt(fix.TagHeartBtInt); err == nil && hb > 0 {
		s.hbInterval = time.Duration(hb) * time.Second
	}
	if bs := msg.BeginString(); bs != "" {
		s.fixVersion = bs
	}

	gapped := seq > s.incomingNext

	if !gapped {
		if !s.acceptMessage(ctx, msg, raw) {
			return
		}
	}

	s.status = StatusLoggedOn
	s.logonDeadline = time.Time{}
	now := s.deps.Now()
	s.lastInbound = now
	s.lastOutbound = now

	reply := fix.NewMessage(fix.MsgTypeLogon)
	reply.SetInt(fix.TagEncryptMethod, 0)
	reply.SetInt(fix.TagHeartBtInt, int(s.hbInterval/time.Second))
	if err := s.sendMessage(ctx, reply); err != nil {
		logger.Error("logon reply failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
		return
	}

	s.audit(store.AuditLogon, fix.MsgTypeLogon,
		fmt.Sprintf("logged on, heartbeat %ds", int(s.hbInterval/time.Second)))
	logger.Info("session logged on",
		logger.KeySession, s.id,
		logger.KeyPeer, s.peer,
		logger.KeyHeartbeat, s.hbInterval,
		logger.KeyFIXVersion, s.fixVersion)

	if gapped {
		// The Logon itself is ahead of the expectation: confirm the
		// logon first, then ask for the missing span. The logon is not
		// buffered for redelivery; its handshake already happened, and
		// the counterparty's replay covers its sequence number.
		s.resendPending = true
		req := fix.NewMessage(fix.MsgTypeResendRequest)
		req.SetUint32(fix.TagBeginSeqNo, s.incomingNext)
		req.SetUint32(fix.TagEndSeqNo, 0)
		if err := s.sendMessage(ctx, req); err != nil {
			logger.Warn("resend request send failed",
				logger.KeySession, s.id,
				logger.KeyError, err)
			s.resendPending = false
		} else {
			s.audit(store.AuditResendReq, fix.MsgTypeResendRequest,
				fmt.Sprintf("logon gap: expected %d, got %d", s.incomingNext, seq))
		}
	}

	s.persist(ctx)
	s.updateMirror()
}

func (s *Session) sendLogoutAndClose(ctx context.Context, text string) {
	logout := fix.NewMessage(fix.MsgTypeLogout)
	logout.SetString(fix.TagText, text)
	if err := s.sendMessage(ctx, logout); err != nil {
		logger.Warn("logout send failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}
	s.closeTransport()
	s.status = StatusDisconnected
	s.termCause = text
	s.clearRecovery()
	s.persist(ctx)
	s.updateMirror()
}

// handleParseError implements the protocol-error policy: audit, count,
// reject when a seq is known, disconnect past the threshold.
func (s *Session) handleParseError(ctx context.Context, raw []byte, err error) {
	s.auditMsg(store.AuditProtocolError, store.DirectionIn, "", raw)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordProtocolError("parse")
	}
	logger.Warn("unparseable frame",
		logger.KeySession, s.id,
		logger.KeyBytes, len(raw),
		logger.KeyError, err)

	if pe, ok := fix.AsParseError(err); ok && pe.RefSeqNum > 0 && s.status == StatusLoggedOn {
		reject := fix.NewMessage(fix.MsgTypeReject)
		reject.SetUint32(fix.TagRefSeqNum, pe.RefSeqNum)
		if pe.Tag > 0 {
			reject.SetInt(fix.TagRefTagID, pe.Tag)
		}
		reject.SetString(fix.TagText, pe.Kind.String())
		if sendErr := s.sendMessage(ctx, reject); sendErr != nil {
			logger.Warn("reject send failed",
				logger.KeySession, s.id,
				logger.KeyError, sendErr)
		}
	}

	if s.protocolErrorExceeded() {
		s.disconnect(ctx, "repeated protocol errors", true)
	}
}

// rejectMessage emits a session-level Reject for a parsed but invalid
// message. The inbound counter does not advance: the message was never
// accepted.
func (s *Session) rejectMessage(ctx context.Context, msg *fix.Message, refTag, reason int, detail string) {
	s.audit(store.AuditMsgRejected, msg.MsgType(),
		fmt.Sprintf("tag %d reason %d %s", refTag, reason, detail))
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordProtocolError("validation")
	}

	reject := fix.NewMessage(fix.MsgTypeReject)
	if seq, err := msg.MsgSeqNum(); err == nil {
		reject.SetUint32(fix.TagRefSeqNum, seq)
	}
	reject.SetInt(fix.TagRefTagID, refTag)
	reject.SetString(fix.TagRefMsgType, msg.MsgType())
	reject.SetInt(fix.TagSessionRejectReason, reason)
	if detail != "" {
		reject.SetString(fix.TagText, detail)
	}
	if err := s.sendMessage(ctx, reject); err != nil {
		logger.Warn("reject send failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}

	if s.protocolErrorExceeded() {
		s.disconnect(ctx, "repeated protocol errors", true)
	}
}

// businessReject reports an application-layer refusal without touching
// session state.
func (s *Session) businessReject(ctx context.Context, msg *fix.Message, reason int, text string) {
	rej := fix.NewMessage(fix.MsgTypeBusinessReject)
	if seq, err := msg.MsgSeqNum(); err == nil {
		rej.SetUint32(fix.TagRefSeqNum, seq)
	}
	rej.SetString(fix.TagRefMsgType, msg.MsgType())
	rej.SetInt(fix.TagBusinessRejectReason, reason)
	if id := msg.GetString(fix.TagClOrdID); id != "" {
		rej.SetString(fix.TagBusinessRejectRefID, id)
	}
	rej.SetString(fix.TagText, text)
	if err := s.sendMessage(ctx, rej); err != nil {
		logger.Warn("business reject send failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}
}

// protocolErrorExceeded records one protocol error and reports whether
// the rate threshold has been crossed.
func (s *Session) protocolErrorExceeded() bool {
	now := s.deps.Now()
	cutoff := now.Add(-s.cfg.ProtocolErrorWindow)
	recent := s.protoErrs[:0]
	for _, t := range s.protoErrs {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	s.protoErrs = recent
	return len(s.protoErrs) >= s.cfg.ProtocolErrorLimit
}

// compIDsMatch checks the wire comp IDs against the session key
// (swapped: the counterparty's sender is our target).
func (s *Session) compIDsMatch(msg *fix.Message) bool {
	return msg.SenderCompID() == s.key.TargetCompID &&
		msg.TargetCompID() == s.key.SenderCompID
}

func (s *Session) recordInbound(msgType string, started time.Time, outcome string) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.RecordInbound(msgType, s.deps.Now().Sub(started), outcome)
}
