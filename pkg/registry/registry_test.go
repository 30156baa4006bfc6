package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
	"github.com/marmos91/fixgate/pkg/store/memory"
)

func newRegistry(t *testing.T, maxSessions int, st store.Store) *Registry {
	t.Helper()
	if st == nil {
		st = memory.New()
	}
	r := New(Config{MaxSessions: maxSessions}, session.Deps{
		Store: st,
		Auth:  auth.AllowAll{},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func TestGetOrCreate(t *testing.T) {
	r := newRegistry(t, 10, nil)
	ctx := context.Background()

	key := session.Key{SenderCompID: "S", TargetCompID: "C"}

	s1, err := r.GetOrCreate(ctx, key)
	require.NoError(t, err)

	s2, err := r.GetOrCreate(ctx, key)
	require.NoError(t, err)
	assert.Same(t, s1, s2, "one session per comp-ID pair")

	got, err := r.Get("S:C")
	require.NoError(t, err)
	assert.Same(t, s1, got)

	_, err = r.Get("S:X")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.Equal(t, 1, r.Len())
}

func TestSessionLimit(t *testing.T) {
	r := newRegistry(t, 2, nil)
	ctx := context.Background()

	_, err := r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: "A"})
	require.NoError(t, err)
	_, err = r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: "B"})
	require.NoError(t, err)

	_, err = r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: "D"})
	assert.ErrorIs(t, err, ErrSessionLimit)

	// Known pairs keep working at the cap.
	_, err = r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: "A"})
	assert.NoError(t, err)
}

func TestRehydrate(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, &store.SessionState{
		ID: "S:C", Sender: "S", Target: "C", Status: "Disconnected",
		IncomingNext: 9, OutgoingNext: 5,
		HeartbeatInterval: 30 * time.Second,
	}))

	r := newRegistry(t, 10, st)
	require.NoError(t, r.Rehydrate(ctx))

	sess, err := r.Get("S:C")
	require.NoError(t, err)
	info := sess.Info()
	assert.Equal(t, uint32(9), info.IncomingNext)
	assert.Equal(t, uint32(5), info.OutgoingNext)
}

func TestGetOrCreateLoadsPersistedState(t *testing.T) {
	st := memory.New()
	ctx := context.Background()

	require.NoError(t, st.SaveSession(ctx, &store.SessionState{
		ID: "S:C", Sender: "S", Target: "C", Status: "Disconnected",
		IncomingNext: 3, OutgoingNext: 2,
	}))

	r := newRegistry(t, 10, st)
	sess, err := r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: "C"})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), sess.Info().IncomingNext)
}

func TestRemove(t *testing.T) {
	r := newRegistry(t, 10, nil)
	ctx := context.Background()

	_, err := r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: "C"})
	require.NoError(t, err)

	require.NoError(t, r.Remove("S:C"))
	assert.Equal(t, 0, r.Len())
	assert.ErrorIs(t, r.Remove("S:C"), ErrSessionNotFound)
}

func TestShutdownStopsSessions(t *testing.T) {
	st := memory.New()
	r := New(Config{MaxSessions: 10}, session.Deps{
		Store: st,
		Auth:  auth.AllowAll{},
	})
	ctx := context.Background()

	for _, target := range []string{"A", "B", "D"} {
		_, err := r.GetOrCreate(ctx, session.Key{SenderCompID: "S", TargetCompID: target})
		require.NoError(t, err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(shutdownCtx))

	// Each session persisted its state on the way out.
	ids, err := st.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}
