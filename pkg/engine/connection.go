package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/registry"
	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
)

// Connection is the engine-side view of one transport connection. The
// adapter feeds it raw bytes; the connection frames them and routes
// complete frames to the owning session, binding the session on the
// first frame's comp IDs.
type Connection struct {
	engine *Engine
	peer   string
	tr     session.Transport
	framer *fix.Framer
	sess   *session.Session
	closed bool
}

// OpenConnection registers a freshly accepted transport connection.
func (e *Engine) OpenConnection(peer string, tr session.Transport) *Connection {
	return &Connection{
		engine: e,
		peer:   peer,
		tr:     tr,
		framer: fix.NewFramer(e.cfg.MaxFrameBytes),
	}
}

// Receive consumes transport bytes. It blocks when the owning
// session's inbound queue is full, which the adapter propagates as TCP
// backpressure by pausing its read loop.
func (c *Connection) Receive(ctx context.Context, p []byte) error {
	if c.closed {
		return ErrEngineStopped
	}
	c.framer.Feed(p)

	for {
		frame, err := c.framer.Next()
		if err != nil {
			c.frameError(err)
			continue
		}
		if frame == nil {
			return nil
		}
		if err := c.routeFrame(ctx, frame); err != nil {
			return err
		}
	}
}

// Close tells the bound session its transport went away.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.sess != nil {
		c.sess.TransportDown()
	}
}

func (c *Connection) frameError(err error) {
	logger.Warn("frame error",
		logger.KeyPeer, c.peer,
		logger.KeyError, err)
	if c.engine.deps.Metrics != nil {
		c.engine.deps.Metrics.RecordProtocolError("framing")
	}
	if c.engine.deps.Audit != nil {
		id := ""
		if c.sess != nil {
			id = c.sess.ID()
		}
		c.engine.deps.Audit.Record(&store.AuditRecord{
			SessionID: id,
			Event:     store.AuditProtocolError,
			Peer:      c.peer,
			Text:      err.Error(),
		})
	}
}

func (c *Connection) routeFrame(ctx context.Context, frame []byte) error {
	if c.sess == nil {
		sender, target, ok := peekCompIDs(frame)
		if !ok {
			c.frameError(fmt.Errorf("frame without comp IDs"))
			return nil
		}

		// The counterparty's sender is our target and vice versa.
		key := session.Key{SenderCompID: target, TargetCompID: sender}
		sess, err := c.engine.reg.GetOrCreate(ctx, key)
		if err != nil {
			if errors.Is(err, registry.ErrSessionLimit) {
				c.refuse(frame, "Session limit reached")
				return nil
			}
			return fmt.Errorf("engine: route frame: %w", err)
		}
		c.sess = sess
		sess.Connect(c.peer, c.tr)
	}

	return c.sess.Deliver(ctx, frame)
}

// refuse answers a frame that cannot get a session with a sessionless
// Reject, then drops the connection.
func (c *Connection) refuse(frame []byte, text string) {
	logger.Warn("connection refused",
		logger.KeyPeer, c.peer,
		logger.KeyReason, text)

	sender, target, _ := peekCompIDs(frame)
	reject := fix.NewMessage(fix.MsgTypeReject)
	reject.SetString(fix.TagBeginString, c.engine.cfg.Session.BeginString)
	reject.SetString(fix.TagSenderCompID, target)
	reject.SetString(fix.TagTargetCompID, sender)
	reject.SetUint32(fix.TagMsgSeqNum, 1)
	reject.SetString(fix.TagSendingTime, fix.FormatSendingTime(timeNow()))
	if seq, err := frameSeq(frame); err == nil {
		reject.SetUint32(fix.TagRefSeqNum, seq)
	}
	reject.SetString(fix.TagText, text)

	if raw, err := fix.Format(reject); err == nil {
		if writeErr := c.tr.Write(raw); writeErr != nil {
			logger.Debug("refusal write failed",
				logger.KeyPeer, c.peer,
				logger.KeyError, writeErr)
		}
	}
	_ = c.tr.Close()
	c.closed = true
}

// peekCompIDs extracts SenderCompID (49) and TargetCompID (56) from a
// raw frame without a full parse, for routing before a session exists.
func peekCompIDs(frame []byte) (sender, target string, ok bool) {
	sender = peekTag(frame, "49=")
	target = peekTag(frame, "56=")
	return sender, target, sender != "" && target != ""
}

func frameSeq(frame []byte) (uint32, error) {
	v := peekTag(frame, "34=")
	if v == "" {
		return 0, fmt.Errorf("no MsgSeqNum")
	}
	var seq uint32
	if _, err := fmt.Sscanf(v, "%d", &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// peekTag finds "<SOH>tag=" and returns the value up to the next SOH.
func peekTag(frame []byte, prefix string) string {
	needle := append([]byte{fix.SOH}, prefix...)
	i := bytes.Index(frame, needle)
	if i == -1 {
		return ""
	}
	start := i + len(needle)
	end := bytes.IndexByte(frame[start:], fix.SOH)
	if end == -1 {
		return ""
	}
	return string(frame[start : start+end])
}
