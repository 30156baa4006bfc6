package session

import (
	"context"
	"fmt"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/store"
)

// handleResendRequest replays stored outbound messages for the
// requested span. Application messages are re-emitted verbatim with
// PossDupFlag=Y and OrigSendingTime; session-layer messages are
// collapsed into SequenceReset gap fills. The outbound counter never
// moves: replays reuse the sequence numbers already burned.
func (s *Session) handleResendRequest(ctx context.Context, msg *fix.Message) {
	begin, err := msg.GetUint32(fix.TagBeginSeqNo)
	if err != nil || begin == 0 {
		s.rejectMessage(ctx, msg, fix.TagBeginSeqNo, fix.RejectReasonValueIncorrect, "bad BeginSeqNo")
		return
	}
	end, err := msg.GetUint32(fix.TagEndSeqNo)
	if err != nil {
		s.rejectMessage(ctx, msg, fix.TagEndSeqNo, fix.RejectReasonValueIncorrect, "bad EndSeqNo")
		return
	}

	last := s.outgoingNext - 1
	if end == 0 || end > last {
		end = last
	}
	if begin > end {
		s.rejectMessage(ctx, msg, fix.TagBeginSeqNo, fix.RejectReasonValueIncorrect,
			fmt.Sprintf("BeginSeqNo %d beyond last sent %d", begin, last))
		return
	}

	s.audit(store.AuditResendReq, fix.MsgTypeResendRequest,
		fmt.Sprintf("replay %d..%d", begin, end))
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordResendRequest()
	}

	var spanStart uint32
	next := begin

	err = s.deps.Store.RangeMessages(ctx, s.id, store.DirectionOut, begin, end,
		func(sm *store.StoredMessage) error {
			// A hole in the store behaves like an admin span: it can
			// only be gap-filled.
			if sm.Seq > next && spanStart == 0 {
				spanStart = next
			}

			if fix.IsAdminMsgType(sm.MsgType) {
				if spanStart == 0 {
					spanStart = sm.Seq
				}
				next = sm.Seq + 1
				return nil
			}

			if spanStart != 0 {
				s.emitGapFill(spanStart, sm.Seq)
				spanStart = 0
			}
			s.emitReplay(sm)
			next = sm.Seq + 1
			return nil
		})
	if err != nil {
		logger.Error("replay range failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
		return
	}

	if spanStart != 0 {
		s.emitGapFill(spanStart, end+1)
	}

	logger.Info("replay complete",
		logger.KeySession, s.id,
		"from", begin,
		"to", end)
}

// emitGapFill writes a SequenceReset covering [spanStart, newSeq).
// The message reuses spanStart as its own seq and is not stored.
func (s *Session) emitGapFill(spanStart, newSeq uint32) {
	gf := fix.NewMessage(fix.MsgTypeSequenceReset)
	gf.SetString(fix.TagBeginString, s.fixVersion)
	gf.SetString(fix.TagSenderCompID, s.key.SenderCompID)
	gf.SetString(fix.TagTargetCompID, s.key.TargetCompID)
	gf.SetUint32(fix.TagMsgSeqNum, spanStart)
	gf.SetString(fix.TagPossDupFlag, "Y")
	gf.SetString(fix.TagSendingTime, fix.FormatSendingTime(s.deps.Now()))
	gf.SetString(fix.TagGapFillFlag, "Y")
	gf.SetUint32(fix.TagNewSeqNo, newSeq)

	raw, err := fix.Format(gf)
	if err != nil {
		logger.Error("gap fill format failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
		return
	}
	s.writeTransport(raw)
	s.auditMsg(store.AuditMsgSent, store.DirectionOut, fix.MsgTypeSequenceReset, raw)
}

// emitReplay re-sends one stored application message as a possible
// duplicate with its original SendingTime preserved in tag 122.
func (s *Session) emitReplay(sm *store.StoredMessage) {
	msg, err := fix.Parse(sm.Raw)
	if err != nil {
		// Stored bytes are produced by our own formatter; failure here
		// means corruption, which gap-filling cannot hide.
		logger.Error("stored message unparseable",
			logger.KeySession, s.id,
			logger.KeySeq, sm.Seq,
			logger.KeyError, err)
		return
	}

	if orig := msg.GetString(fix.TagSendingTime); orig != "" {
		msg.SetString(fix.TagOrigSendingTime, orig)
	}
	msg.SetString(fix.TagPossDupFlag, "Y")
	msg.SetString(fix.TagSendingTime, fix.FormatSendingTime(s.deps.Now()))

	raw, err := fix.Format(msg)
	if err != nil {
		logger.Error("replay format failed",
			logger.KeySession, s.id,
			logger.KeySeq, sm.Seq,
			logger.KeyError, err)
		return
	}
	s.writeTransport(raw)
	s.auditMsg(store.AuditMsgSent, store.DirectionOut, sm.MsgType, raw)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordFrameBytes("out", len(raw))
	}
}
