package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/store"
	"github.com/marmos91/fixgate/pkg/store/memory"
)

// fakeClock is a controllable time source shared by the harness.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// fakeTransport records written frames.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (tr *fakeTransport) Write(p []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.frames = append(tr.frames, append([]byte(nil), p...))
	return nil
}

func (tr *fakeTransport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed = true
	return nil
}

func (tr *fakeTransport) Frames() [][]byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([][]byte, len(tr.frames))
	copy(out, tr.frames)
	return out
}

func (tr *fakeTransport) Closed() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.closed
}

// harness wires one session to fakes.
type harness struct {
	t         *testing.T
	sess      *Session
	store     *memory.Store
	audit     *store.AuditWriter
	clock     *fakeClock
	transport *fakeTransport
	cancel    context.CancelFunc

	mu        sync.Mutex
	delivered []*fix.Message
}

func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()

	h := &harness{
		t:         t,
		store:     memory.New(),
		clock:     newFakeClock(),
		transport: &fakeTransport{},
	}
	h.audit = store.NewAuditWriter(h.store, 0)

	cfg := Config{
		BeginString:       "FIX.4.4",
		HeartbeatInterval: 30 * time.Second,
		LogonTimeout:      30 * time.Second,
	}
	deps := Deps{
		Store: h.store,
		Audit: h.audit,
		Auth:  auth.AllowAll{},
		Now:   h.clock.Now,
		Deliver: func(_ context.Context, _ string, msg *fix.Message) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.delivered = append(h.delivered, msg.Clone())
			return nil
		},
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	h.sess = New(cfg, Key{SenderCompID: "S", TargetCompID: "C"}, deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.sess.Run(ctx)

	t.Cleanup(func() {
		cancel()
		h.waitFor(func() bool {
			select {
			case <-h.sess.stop:
				return true
			default:
				return false
			}
		}, "session did not stop")
	})
	return h
}

// clientMsg builds a formatted frame as the counterparty would send it.
func (h *harness) clientMsg(msgType string, seq uint32, fields map[int]string) []byte {
	h.t.Helper()
	m := &fix.Message{}
	m.SetString(fix.TagBeginString, "FIX.4.4")
	m.SetString(fix.TagMsgType, msgType)
	m.SetString(fix.TagSenderCompID, "C")
	m.SetString(fix.TagTargetCompID, "S")
	m.SetUint32(fix.TagMsgSeqNum, seq)
	m.SetString(fix.TagSendingTime, fix.FormatSendingTime(h.clock.Now()))
	for tag, v := range fields {
		m.SetString(tag, v)
	}
	raw, err := fix.Format(m)
	require.NoError(h.t, err)
	return raw
}

// order builds a valid NewOrderSingle frame.
func (h *harness) order(seq uint32, clOrdID string) []byte {
	return h.clientMsg(fix.MsgTypeNewOrderSingle, seq, map[int]string{
		fix.TagClOrdID:  clOrdID,
		fix.TagSymbol:   "EURUSD",
		fix.TagSide:     "1",
		fix.TagOrderQty: "100",
		fix.TagOrdType:  "1",
	})
}

func (h *harness) deliver(raw []byte) {
	h.t.Helper()
	require.NoError(h.t, h.sess.Deliver(context.Background(), raw))
}

func (h *harness) logon() {
	h.t.Helper()
	h.sess.Connect("10.0.0.1", h.transport)
	h.deliver(h.clientMsg(fix.MsgTypeLogon, 1, map[int]string{
		fix.TagEncryptMethod: "0",
		fix.TagHeartBtInt:    "30",
	}))
	h.waitFor(func() bool { return h.sess.Info().Status == StatusLoggedOn }, "logon did not complete")
}

func (h *harness) waitFor(cond func() bool, msg string) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timeout: %s", msg)
}

func (h *harness) deliveredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.delivered)
}

func (h *harness) deliveredAt(i int) *fix.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delivered[i]
}

// parseFrames decodes everything written to the transport.
func (h *harness) parseFrames() []*fix.Message {
	var out []*fix.Message
	for _, raw := range h.transport.Frames() {
		m, err := fix.Parse(raw)
		require.NoError(h.t, err)
		out = append(out, m)
	}
	return out
}

// lastFrameOfType returns the newest outbound frame with the MsgType.
func (h *harness) lastFrameOfType(msgType string) *fix.Message {
	frames := h.parseFrames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].MsgType() == msgType {
			return frames[i]
		}
	}
	return nil
}

func (h *harness) auditEvents() []store.AuditEvent {
	recs, err := h.store.AuditRange(context.Background(), h.sess.ID(), time.Time{}, time.Time{})
	require.NoError(h.t, err)
	out := make([]store.AuditEvent, len(recs))
	for i, r := range recs {
		out[i] = r.Event
	}
	return out
}

func hasEvent(events []store.AuditEvent, want store.AuditEvent) bool {
	for _, e := range events {
		if e == want {
			return true
		}
	}
	return false
}

func TestLogonHandshake(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	info := h.sess.Info()
	assert.Equal(t, StatusLoggedOn, info.Status)
	assert.Equal(t, uint32(2), info.IncomingNext)
	assert.Equal(t, uint32(2), info.OutgoingNext)
	assert.Equal(t, 30*time.Second, info.Heartbeat)

	reply := h.lastFrameOfType(fix.MsgTypeLogon)
	require.NotNil(t, reply, "no logon reply on the wire")
	assert.Equal(t, "S", reply.SenderCompID())
	assert.Equal(t, "C", reply.TargetCompID())
	seq, err := reply.MsgSeqNum()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), seq)
	assert.Equal(t, "0", reply.GetString(fix.TagEncryptMethod))
	assert.Equal(t, "30", reply.GetString(fix.TagHeartBtInt))

	h.waitFor(func() bool {
		return hasEvent(h.auditEvents(), store.AuditLogon)
	}, "logon not audited")
}

func TestHeartbeatAndTestRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	// Quiet for one heartbeat interval: the engine speaks first.
	h.sess.Tick(h.clock.Advance(30 * time.Second))
	h.waitFor(func() bool { return h.lastFrameOfType(fix.MsgTypeHeartbeat) != nil },
		"no heartbeat after interval")

	hb := h.lastFrameOfType(fix.MsgTypeHeartbeat)
	seq, err := hb.MsgSeqNum()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), seq)

	// 1.2x inbound silence: probe with a TestRequest.
	h.sess.Tick(h.clock.Advance(6 * time.Second))
	h.waitFor(func() bool { return h.lastFrameOfType(fix.MsgTypeTestRequest) != nil },
		"no test request at 1.2x silence")

	tr := h.lastFrameOfType(fix.MsgTypeTestRequest)
	assert.Equal(t, "TR-1", tr.GetString(fix.TagTestReqID))
	seq, err = tr.MsgSeqNum()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), seq)

	// The heartbeat echo with the matching TestReqID clears the probe.
	h.deliver(h.clientMsg(fix.MsgTypeHeartbeat, 2, map[int]string{
		fix.TagTestReqID: "TR-1",
	}))
	h.waitFor(func() bool { return h.sess.Info().PendingTest == "" }, "test request not cleared")
}

func TestHeartbeatTimeoutDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	// 2.4x the interval with no inbound: give up.
	h.sess.Tick(h.clock.Advance(73 * time.Second))
	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected },
		"no disconnect on heartbeat timeout")

	assert.True(t, h.transport.Closed())
	h.waitFor(func() bool {
		return hasEvent(h.auditEvents(), store.AuditHeartbeatTimeout)
	}, "timeout not audited")
}

func TestResendReplaysWithGapFill(t *testing.T) {
	h := newHarness(t, nil)
	h.logon() // outbound 1 = logon reply

	// Outbound 2: application message.
	exec := fix.NewMessage(fix.MsgTypeExecutionReport)
	exec.SetString(fix.TagOrderID, "O-1")
	exec.SetString(fix.TagExecID, "E-1")
	require.NoError(t, h.sess.Send(context.Background(), exec))

	// Outbound 3: heartbeat (session layer, not replayable).
	h.sess.Tick(h.clock.Advance(30 * time.Second))
	h.waitFor(func() bool { return h.sess.Info().OutgoingNext == 4 }, "heartbeat not sent")

	// Outbound 4 and 5: more application messages.
	for _, id := range []string{"E-2", "E-3"} {
		m := fix.NewMessage(fix.MsgTypeExecutionReport)
		m.SetString(fix.TagOrderID, "O-1")
		m.SetString(fix.TagExecID, id)
		require.NoError(t, h.sess.Send(context.Background(), m))
	}
	require.Equal(t, uint32(6), h.sess.Info().OutgoingNext)

	before := len(h.transport.Frames())

	// Counterparty asks for 2..5.
	h.deliver(h.clientMsg(fix.MsgTypeResendRequest, 2, map[int]string{
		fix.TagBeginSeqNo: "2",
		fix.TagEndSeqNo:   "5",
	}))

	h.waitFor(func() bool { return len(h.transport.Frames()) >= before+4 }, "replay incomplete")

	var replayed []*fix.Message
	for _, raw := range h.transport.Frames()[before:] {
		m, err := fix.Parse(raw)
		require.NoError(t, err)
		replayed = append(replayed, m)
	}
	require.Len(t, replayed, 4)

	// Seq 2 replays verbatim as a possible duplicate.
	assert.Equal(t, fix.MsgTypeExecutionReport, replayed[0].MsgType())
	assert.True(t, replayed[0].PossDup())
	assert.True(t, replayed[0].Has(fix.TagOrigSendingTime))
	seq, _ := replayed[0].MsgSeqNum()
	assert.Equal(t, uint32(2), seq)

	// Seq 3 (heartbeat) collapses into a gap fill pointing at 4.
	assert.Equal(t, fix.MsgTypeSequenceReset, replayed[1].MsgType())
	assert.Equal(t, "Y", replayed[1].GetString(fix.TagGapFillFlag))
	assert.Equal(t, "4", replayed[1].GetString(fix.TagNewSeqNo))
	seq, _ = replayed[1].MsgSeqNum()
	assert.Equal(t, uint32(3), seq)

	// Seqs 4 and 5 replay verbatim.
	for i, wantSeq := range []uint32{4, 5} {
		m := replayed[2+i]
		assert.Equal(t, fix.MsgTypeExecutionReport, m.MsgType())
		assert.True(t, m.PossDup())
		seq, _ := m.MsgSeqNum()
		assert.Equal(t, wantSeq, seq)
	}

	// Replays never advance the outbound counter.
	assert.Equal(t, uint32(6), h.sess.Info().OutgoingNext)
}

func TestGapDetectionAndRecovery(t *testing.T) {
	h := newHarness(t, nil)
	h.logon() // incoming_next = 2

	// Seq 4 arrives early: buffered, resend requested, not delivered.
	h.deliver(h.order(4, "ORD-4"))
	h.waitFor(func() bool { return h.lastFrameOfType(fix.MsgTypeResendRequest) != nil },
		"no resend request on gap")

	rr := h.lastFrameOfType(fix.MsgTypeResendRequest)
	assert.Equal(t, "2", rr.GetString(fix.TagBeginSeqNo))
	assert.Equal(t, "0", rr.GetString(fix.TagEndSeqNo))
	assert.Equal(t, 0, h.deliveredCount())
	assert.Equal(t, uint32(2), h.sess.Info().IncomingNext)

	// The gap fills; everything delivers in order, buffer included.
	h.deliver(h.order(2, "ORD-2"))
	h.deliver(h.order(3, "ORD-3"))

	h.waitFor(func() bool { return h.deliveredCount() == 3 }, "gap recovery incomplete")
	assert.Equal(t, uint32(5), h.sess.Info().IncomingNext)
	assert.Equal(t, "ORD-2", h.deliveredAt(0).GetString(fix.TagClOrdID))
	assert.Equal(t, "ORD-3", h.deliveredAt(1).GetString(fix.TagClOrdID))
	assert.Equal(t, "ORD-4", h.deliveredAt(2).GetString(fix.TagClOrdID))
}

func TestSeqTooLowDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	// Push the expectation to 4.
	h.deliver(h.order(2, "A"))
	h.deliver(h.order(3, "B"))
	h.waitFor(func() bool { return h.sess.Info().IncomingNext == 4 }, "orders not accepted")

	// A stale seq without PossDup is fatal.
	h.deliver(h.clientMsg(fix.MsgTypeHeartbeat, 1, map[int]string{
		fix.TagPossDupFlag: "N",
	}))

	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected },
		"no disconnect on low seq")

	logout := h.lastFrameOfType(fix.MsgTypeLogout)
	require.NotNil(t, logout)
	assert.Equal(t, "MsgSeqNum too low", logout.GetString(fix.TagText))
	assert.True(t, h.transport.Closed())

	h.waitFor(func() bool {
		return hasEvent(h.auditEvents(), store.AuditFatalSeqError)
	}, "fatal seq error not audited")
}

func TestPossDupBelowExpectationIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	h.deliver(h.order(2, "A"))
	h.waitFor(func() bool { return h.deliveredCount() == 1 }, "order not delivered")

	// The same seq again, flagged PossDup: swallowed silently.
	h.deliver(h.clientMsg(fix.MsgTypeNewOrderSingle, 2, map[int]string{
		fix.TagClOrdID:     "A",
		fix.TagSymbol:      "EURUSD",
		fix.TagSide:        "1",
		fix.TagOrderQty:    "100",
		fix.TagOrdType:     "1",
		fix.TagPossDupFlag: "Y",
	}))

	// Prove the session is still alive and nothing re-delivered.
	h.deliver(h.order(3, "B"))
	h.waitFor(func() bool { return h.deliveredCount() == 2 }, "session stalled after duplicate")
	assert.Equal(t, StatusLoggedOn, h.sess.Info().Status)
}

func TestSequenceReset(t *testing.T) {
	t.Run("gap fill moves forward only", func(t *testing.T) {
		h := newHarness(t, nil)
		h.logon()

		h.deliver(h.clientMsg(fix.MsgTypeSequenceReset, 2, map[int]string{
			fix.TagGapFillFlag: "Y",
			fix.TagNewSeqNo:    "10",
		}))
		h.waitFor(func() bool { return h.sess.Info().IncomingNext == 10 }, "gap fill not applied")

		// A stale gap fill is ignored.
		h.deliver(h.clientMsg(fix.MsgTypeSequenceReset, 10, map[int]string{
			fix.TagGapFillFlag: "Y",
			fix.TagNewSeqNo:    "5",
		}))
		h.deliver(h.order(10, "AFTER"))
		h.waitFor(func() bool { return h.deliveredCount() == 1 }, "session wedged after stale gap fill")
		assert.Equal(t, uint32(11), h.sess.Info().IncomingNext)
	})

	t.Run("reset mode applies unconditionally", func(t *testing.T) {
		h := newHarness(t, nil)
		h.logon()

		h.deliver(h.clientMsg(fix.MsgTypeSequenceReset, 99, map[int]string{
			fix.TagGapFillFlag: "N",
			fix.TagNewSeqNo:    "5",
		}))
		h.waitFor(func() bool { return h.sess.Info().IncomingNext == 5 }, "reset not applied")
	})
}

func TestResetSeqNumFlagOnLogon(t *testing.T) {
	h := newHarness(t, nil)

	// Seed counters as if a previous run happened.
	h.sess.Connect("10.0.0.1", h.transport)
	h.deliver(h.clientMsg(fix.MsgTypeLogon, 1, map[int]string{
		fix.TagEncryptMethod: "0",
		fix.TagHeartBtInt:    "30",
	}))
	h.waitFor(func() bool { return h.sess.Info().Status == StatusLoggedOn }, "logon failed")
	h.deliver(h.order(2, "X"))
	h.waitFor(func() bool { return h.sess.Info().IncomingNext == 3 }, "order not accepted")

	// Counterparty logs out and returns with a reset.
	h.deliver(h.clientMsg(fix.MsgTypeLogout, 3, nil))
	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected }, "logout failed")

	tr2 := &fakeTransport{}
	h.transport = tr2
	h.sess.Connect("10.0.0.1", tr2)
	h.deliver(h.clientMsg(fix.MsgTypeLogon, 1, map[int]string{
		fix.TagEncryptMethod:   "0",
		fix.TagHeartBtInt:      "30",
		fix.TagResetSeqNumFlag: "Y",
	}))

	h.waitFor(func() bool { return h.sess.Info().Status == StatusLoggedOn }, "reset logon failed")
	info := h.sess.Info()
	assert.Equal(t, uint32(2), info.IncomingNext, "counters reset before accepting the logon")
	assert.Equal(t, uint32(2), info.OutgoingNext)
}

func TestLogonTimeout(t *testing.T) {
	h := newHarness(t, nil)
	h.sess.Connect("10.0.0.1", h.transport)

	h.waitFor(func() bool { return h.sess.Info().Status == StatusConnecting }, "not connecting")

	h.sess.Tick(h.clock.Advance(31 * time.Second))
	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected },
		"no disconnect on logon timeout")

	h.waitFor(func() bool {
		return hasEvent(h.auditEvents(), store.AuditAuthFailure)
	}, "logon timeout not audited")
}

func TestAuthDenied(t *testing.T) {
	hash, err := auth.HashPassword("right")
	require.NoError(t, err)

	h := newHarness(t, func(cfg *Config, deps *Deps) {
		deps.Auth = auth.NewStatic(auth.StaticConfig{
			Credentials: []auth.Credential{{CompID: "C", PasswordHash: hash}},
		})
	})

	h.sess.Connect("10.0.0.1", h.transport)
	h.deliver(h.clientMsg(fix.MsgTypeLogon, 1, map[int]string{
		fix.TagEncryptMethod: "0",
		fix.TagHeartBtInt:    "30",
		fix.TagUsername:      "C",
		fix.TagPassword:      "wrong",
	}))

	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected },
		"denied logon did not disconnect")

	logout := h.lastFrameOfType(fix.MsgTypeLogout)
	require.NotNil(t, logout)
	assert.Contains(t, logout.GetString(fix.TagText), "authentication failed")

	h.waitFor(func() bool {
		return hasEvent(h.auditEvents(), store.AuditAuthFailure)
	}, "auth failure not audited")

	// The refused logon must not advance sequence numbers.
	assert.Equal(t, uint32(1), h.sess.Info().IncomingNext)
}

func TestValidationReject(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	// TestRequest without its required TestReqID.
	h.deliver(h.clientMsg(fix.MsgTypeTestRequest, 2, nil))

	h.waitFor(func() bool { return h.lastFrameOfType(fix.MsgTypeReject) != nil },
		"no session-level reject")

	rej := h.lastFrameOfType(fix.MsgTypeReject)
	assert.Equal(t, "112", rej.GetString(fix.TagRefTagID))
	assert.Equal(t, "1", rej.GetString(fix.TagSessionRejectReason))
	assert.Equal(t, "2", rej.GetString(fix.TagRefSeqNum))

	// Unprocessable frames never advance the inbound counter.
	assert.Equal(t, uint32(2), h.sess.Info().IncomingNext)
	assert.Equal(t, StatusLoggedOn, h.sess.Info().Status)
}

func TestBusinessReject(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		deps.Deliver = func(context.Context, string, *fix.Message) error {
			return ErrUnsupportedMsgType
		}
	})
	h.logon()

	h.deliver(h.order(2, "ORD-1"))

	h.waitFor(func() bool { return h.lastFrameOfType(fix.MsgTypeBusinessReject) != nil },
		"no business reject")

	rej := h.lastFrameOfType(fix.MsgTypeBusinessReject)
	assert.Equal(t, "D", rej.GetString(fix.TagRefMsgType))
	assert.Equal(t, "3", rej.GetString(fix.TagBusinessRejectReason))

	// Business refusal is not a session error: the message was
	// accepted and the counter advanced.
	assert.Equal(t, uint32(3), h.sess.Info().IncomingNext)
	assert.Equal(t, StatusLoggedOn, h.sess.Info().Status)
}

func TestCounterpartyLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	h.deliver(h.clientMsg(fix.MsgTypeLogout, 2, map[int]string{
		fix.TagText: "done for the day",
	}))

	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected },
		"logout not processed")

	echo := h.lastFrameOfType(fix.MsgTypeLogout)
	require.NotNil(t, echo)
	assert.True(t, h.transport.Closed())

	// Counters survive the disconnect for the next connection.
	state, err := h.store.LoadSession(context.Background(), h.sess.ID())
	require.NoError(t, err)
	assert.Equal(t, uint32(3), state.IncomingNext)
}

func TestPersistedCountersMatchStore(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	for seq := uint32(2); seq <= 4; seq++ {
		h.deliver(h.order(seq, "ORD"))
	}
	h.waitFor(func() bool { return h.sess.Info().IncomingNext == 5 }, "orders not accepted")

	h.deliver(h.clientMsg(fix.MsgTypeLogout, 5, nil))
	h.waitFor(func() bool { return h.sess.Info().Status == StatusDisconnected }, "no logout")

	ctx := context.Background()
	state, err := h.store.LoadSession(ctx, h.sess.ID())
	require.NoError(t, err)

	lastIn, err := h.store.LastSeq(ctx, h.sess.ID(), store.DirectionIn)
	require.NoError(t, err)
	lastOut, err := h.store.LastSeq(ctx, h.sess.ID(), store.DirectionOut)
	require.NoError(t, err)

	assert.Equal(t, lastIn+1, state.IncomingNext)
	assert.Equal(t, lastOut+1, state.OutgoingNext)

	// Inbound persisted seqs are contiguous from 1.
	for seq := uint32(1); seq <= lastIn; seq++ {
		_, err := h.store.GetMessage(ctx, h.sess.ID(), store.DirectionIn, seq)
		assert.NoError(t, err, "missing inbound seq %d", seq)
	}
}

func TestRehydratedSessionResumesCounters(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, &store.SessionState{
		ID: "S:C", Sender: "S", Target: "C", Status: string(StatusDisconnected),
		IncomingNext: 7, OutgoingNext: 4,
		HeartbeatInterval: 30 * time.Second,
	}))

	persisted, err := st.LoadSession(ctx, "S:C")
	require.NoError(t, err)

	clock := newFakeClock()
	sess := New(Config{}, Key{SenderCompID: "S", TargetCompID: "C"}, Deps{
		Store: st,
		Auth:  auth.AllowAll{},
		Now:   clock.Now,
	}, persisted)

	info := sess.Info()
	assert.Equal(t, uint32(7), info.IncomingNext)
	assert.Equal(t, uint32(4), info.OutgoingNext)
}

func TestUnparseableFrameDoesNotAdvanceSeq(t *testing.T) {
	h := newHarness(t, nil)
	h.logon()

	raw := h.order(2, "ORD")
	// Corrupt the checksum trailer.
	i := strings.LastIndex(string(raw), "10=")
	bad := append([]byte{}, raw[:i]...)
	bad = append(bad, []byte("10=999\x01")...)
	h.deliver(bad)

	h.waitFor(func() bool { return h.lastFrameOfType(fix.MsgTypeReject) != nil },
		"no reject for bad checksum")
	assert.Equal(t, uint32(2), h.sess.Info().IncomingNext)

	// The intact frame still goes through afterwards.
	h.deliver(raw)
	h.waitFor(func() bool { return h.deliveredCount() == 1 }, "valid frame refused after bad one")
}
