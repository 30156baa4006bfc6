package session

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/store"
)

// Liveness thresholds as multiples of the negotiated heartbeat
// interval: send our heartbeat at 1.0x outbound silence, probe with a
// TestRequest at 1.2x inbound silence, give up at 2.4x.
const (
	testRequestFactor = 1.2
	timeoutFactor     = 2.4
)

// handleTick evaluates time-driven transitions. Ticks arrive from the
// shared scheduler as ordinary events, so all state stays goroutine-
// local.
func (s *Session) handleTick(ctx context.Context, now time.Time) {
	switch s.status {
	case StatusConnecting:
		if !s.logonDeadline.IsZero() && now.After(s.logonDeadline) {
			s.audit(store.AuditAuthFailure, "", "logon timeout")
			logger.Info("logon timeout",
				logger.KeySession, s.id,
				logger.KeyPeer, s.peer)
			s.disconnect(ctx, "logon timeout", false)
		}
	case StatusLoggedOn:
		s.evaluateLiveness(ctx, now)
	}
}

func (s *Session) evaluateLiveness(ctx context.Context, now time.Time) {
	hb := s.hbInterval
	if hb <= 0 {
		return
	}

	inboundSilence := now.Sub(s.lastInbound)
	if float64(inboundSilence) >= float64(hb)*timeoutFactor {
		s.audit(store.AuditHeartbeatTimeout, "",
			fmt.Sprintf("no inbound for %s (interval %s)", inboundSilence.Round(time.Millisecond), hb))
		logger.Warn("heartbeat timeout",
			logger.KeySession, s.id,
			logger.KeyPeer, s.peer,
			"silence", inboundSilence)
		s.disconnect(ctx, "heartbeat timeout", false)
		return
	}

	if float64(inboundSilence) >= float64(hb)*testRequestFactor && s.pendingTestReqID == "" {
		s.testReqCounter++
		id := fmt.Sprintf("TR-%d", s.testReqCounter)
		req := fix.NewMessage(fix.MsgTypeTestRequest)
		req.SetString(fix.TagTestReqID, id)
		if err := s.sendMessage(ctx, req); err != nil {
			logger.Warn("test request send failed",
				logger.KeySession, s.id,
				logger.KeyError, err)
			return
		}
		s.pendingTestReqID = id
		s.audit(store.AuditTestReqSent, fix.MsgTypeTestRequest, id)
		return
	}

	if now.Sub(s.lastOutbound) >= hb {
		hbMsg := fix.NewMessage(fix.MsgTypeHeartbeat)
		if err := s.sendMessage(ctx, hbMsg); err != nil {
			logger.Warn("heartbeat send failed",
				logger.KeySession, s.id,
				logger.KeyError, err)
		}
	}
}
