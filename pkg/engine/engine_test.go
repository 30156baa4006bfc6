package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
	"github.com/marmos91/fixgate/pkg/store/memory"
)

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

func (tr *fakeTransport) frameCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.frames)
}

func newEngine(t *testing.T, cfg Config) (*Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	eng := New(cfg, Deps{
		Store: st,
		Auth:  auth.AllowAll{},
	})
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return eng, st
}

func clientFrame(t *testing.T, msgType, sender, target string, seq uint32, fields map[int]string) []byte {
	t.Helper()
	m := &fix.Message{}
	m.SetString(fix.TagBeginString, "FIX.4.4")
	m.SetString(fix.TagMsgType, msgType)
	m.SetString(fix.TagSenderCompID, sender)
	m.SetString(fix.TagTargetCompID, target)
	m.SetUint32(fix.TagMsgSeqNum, seq)
	m.SetString(fix.TagSendingTime, fix.FormatSendingTime(time.Now()))
	for tag, v := range fields {
		m.SetString(tag, v)
	}
	raw, err := fix.Format(m)
	require.NoError(t, err)
	return raw
}

func logonFrame(t *testing.T, sender, target string) []byte {
	return clientFrame(t, fix.MsgTypeLogon, sender, target, 1, map[int]string{
		fix.TagEncryptMethod: "0",
		fix.TagHeartBtInt:    "30",
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func TestConnectionRoutesToSession(t *testing.T) {
	eng, _ := newEngine(t, Config{})
	tr := &fakeTransport{}
	conn := eng.OpenConnection("10.0.0.1", tr)
	ctx := context.Background()

	raw := logonFrame(t, "CLIENT", "SERVER")

	// Feed the frame in two chunks to exercise the framer.
	require.NoError(t, conn.Receive(ctx, raw[:10]))
	require.NoError(t, conn.Receive(ctx, raw[10:]))

	waitFor(t, func() bool {
		info, err := eng.SessionInfo("SERVER:CLIENT")
		return err == nil && info.Status == session.StatusLoggedOn
	}, "logon did not complete")

	waitFor(t, func() bool { return tr.frameCount() >= 1 }, "no logon reply written")

	infos := eng.ListSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "SERVER:CLIENT", infos[0].ID)
	assert.Equal(t, "10.0.0.1", infos[0].PeerAddr)
}

func TestHandlerDispatch(t *testing.T) {
	eng, _ := newEngine(t, Config{})

	var mu sync.Mutex
	var received []string
	eng.RegisterHandler(fix.MsgTypeNewOrderSingle, func(_ context.Context, sessionID string, msg *fix.Message) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, msg.GetString(fix.TagClOrdID))
		return nil
	})

	tr := &fakeTransport{}
	conn := eng.OpenConnection("10.0.0.1", tr)
	ctx := context.Background()

	require.NoError(t, conn.Receive(ctx, logonFrame(t, "CLIENT", "SERVER")))
	require.NoError(t, conn.Receive(ctx, clientFrame(t, fix.MsgTypeNewOrderSingle, "CLIENT", "SERVER", 2, map[int]string{
		fix.TagClOrdID:  "ORD-1",
		fix.TagSymbol:   "EURUSD",
		fix.TagSide:     "1",
		fix.TagOrderQty: "100",
		fix.TagOrdType:  "1",
	})))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, "handler not invoked")

	mu.Lock()
	assert.Equal(t, []string{"ORD-1"}, received)
	mu.Unlock()
}

func TestSendFromApplication(t *testing.T) {
	eng, st := newEngine(t, Config{})
	tr := &fakeTransport{}
	conn := eng.OpenConnection("10.0.0.1", tr)
	ctx := context.Background()

	require.NoError(t, conn.Receive(ctx, logonFrame(t, "CLIENT", "SERVER")))
	waitFor(t, func() bool {
		info, err := eng.SessionInfo("SERVER:CLIENT")
		return err == nil && info.Status == session.StatusLoggedOn
	}, "logon did not complete")

	exec := fix.NewMessage(fix.MsgTypeExecutionReport)
	exec.SetString(fix.TagOrderID, "O-1")
	exec.SetString(fix.TagExecID, "E-1")
	require.NoError(t, eng.Send(ctx, "SERVER:CLIENT", exec))

	// Sequenced and durable once Send returns.
	got, err := st.GetMessage(ctx, "SERVER:CLIENT", store.DirectionOut, 2)
	require.NoError(t, err)
	assert.Equal(t, fix.MsgTypeExecutionReport, got.MsgType)

	err = eng.Send(ctx, "NOBODY:HOME", exec)
	assert.Error(t, err)
}

func TestJunkBytesResynchronize(t *testing.T) {
	eng, _ := newEngine(t, Config{})
	tr := &fakeTransport{}
	conn := eng.OpenConnection("10.0.0.1", tr)
	ctx := context.Background()

	require.NoError(t, conn.Receive(ctx, []byte("HTTP/1.1 GET /oops\r\n")))
	require.NoError(t, conn.Receive(ctx, logonFrame(t, "CLIENT", "SERVER")))

	waitFor(t, func() bool {
		info, err := eng.SessionInfo("SERVER:CLIENT")
		return err == nil && info.Status == session.StatusLoggedOn
	}, "frame after junk not processed")
}

func TestSessionLimitRefusal(t *testing.T) {
	eng, _ := newEngine(t, Config{MaxSessions: 1})
	ctx := context.Background()

	tr1 := &fakeTransport{}
	require.NoError(t, eng.OpenConnection("10.0.0.1", tr1).Receive(ctx, logonFrame(t, "ONE", "SERVER")))

	tr2 := &fakeTransport{}
	conn2 := eng.OpenConnection("10.0.0.2", tr2)
	require.NoError(t, conn2.Receive(ctx, logonFrame(t, "TWO", "SERVER")))

	waitFor(t, func() bool { return tr2.frameCount() >= 1 }, "no refusal written")

	reject, err := fix.Parse(tr2.frames[0])
	require.NoError(t, err)
	assert.Equal(t, fix.MsgTypeReject, reject.MsgType())
	assert.Equal(t, "Session limit reached", reject.GetString(fix.TagText))
	assert.True(t, tr2.closed)
}

func TestAdminDisconnect(t *testing.T) {
	eng, _ := newEngine(t, Config{})
	tr := &fakeTransport{}
	conn := eng.OpenConnection("10.0.0.1", tr)
	ctx := context.Background()

	require.NoError(t, conn.Receive(ctx, logonFrame(t, "CLIENT", "SERVER")))
	waitFor(t, func() bool {
		info, err := eng.SessionInfo("SERVER:CLIENT")
		return err == nil && info.Status == session.StatusLoggedOn
	}, "logon did not complete")

	require.NoError(t, eng.Disconnect("SERVER:CLIENT", "maintenance window"))

	waitFor(t, func() bool {
		info, err := eng.SessionInfo("SERVER:CLIENT")
		return err == nil && info.Status == session.StatusDisconnected
	}, "admin disconnect did not land")

	info, err := eng.SessionInfo("SERVER:CLIENT")
	require.NoError(t, err)
	assert.Equal(t, "maintenance window", info.Termination)
}

func TestStopPersistsEverySession(t *testing.T) {
	st := memory.New()
	eng := New(Config{}, Deps{Store: st, Auth: auth.AllowAll{}})
	ctx := context.Background()
	require.NoError(t, eng.Start(ctx))

	for _, comp := range []string{"A", "B", "D"} {
		tr := &fakeTransport{}
		require.NoError(t, eng.OpenConnection("10.0.0.9", tr).Receive(ctx, logonFrame(t, comp, "SERVER")))
	}
	waitFor(t, func() bool { return len(eng.ListSessions()) == 3 }, "sessions not created")
	for _, info := range eng.ListSessions() {
		id := info.ID
		waitFor(t, func() bool {
			i, err := eng.SessionInfo(id)
			return err == nil && i.Status == session.StatusLoggedOn
		}, "session not logged on")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(stopCtx))

	// Every session persisted counters; reconnecting resumes them.
	ids, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	for _, id := range ids {
		state, err := st.LoadSession(ctx, id)
		require.NoError(t, err)
		lastIn, err := st.LastSeq(ctx, id, store.DirectionIn)
		require.NoError(t, err)
		lastOut, err := st.LastSeq(ctx, id, store.DirectionOut)
		require.NoError(t, err)
		assert.Equal(t, lastIn+1, state.IncomingNext, "session %s", id)
		assert.Equal(t, lastOut+1, state.OutgoingNext, "session %s", id)
	}
}

func TestAdminReplayQuery(t *testing.T) {
	eng, _ := newEngine(t, Config{})
	tr := &fakeTransport{}
	conn := eng.OpenConnection("10.0.0.1", tr)
	ctx := context.Background()

	require.NoError(t, conn.Receive(ctx, logonFrame(t, "CLIENT", "SERVER")))
	waitFor(t, func() bool {
		info, err := eng.SessionInfo("SERVER:CLIENT")
		return err == nil && info.Status == session.StatusLoggedOn
	}, "logon did not complete")

	for i := 0; i < 3; i++ {
		exec := fix.NewMessage(fix.MsgTypeExecutionReport)
		exec.SetString(fix.TagOrderID, "O-1")
		require.NoError(t, eng.Send(ctx, "SERVER:CLIENT", exec))
	}

	msgs, err := eng.Replay(ctx, "SERVER:CLIENT", 2, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3) // outbound seqs 2..4 (1 was the logon reply)
	assert.Equal(t, uint32(2), msgs[0].Seq)
}
