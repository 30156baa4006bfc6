package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowAll(t *testing.T) {
	assert.NoError(t, AllowAll{}.Authenticate(context.Background(), Request{
		SenderCompID: "ANYONE",
	}))
}

func TestStaticAuthenticate(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	a := NewStatic(StaticConfig{
		Credentials: []Credential{
			{CompID: "BUYSIDE1", PasswordHash: hash},
			{CompID: "OPENDESK"}, // no password required
		},
	})
	ctx := context.Background()

	t.Run("valid credentials accepted", func(t *testing.T) {
		assert.NoError(t, a.Authenticate(ctx, Request{
			SenderCompID: "BUYSIDE1",
			Password:     "s3cret-pass",
			PeerAddr:     "10.0.0.1",
		}))
	})

	t.Run("passwordless CompID accepted", func(t *testing.T) {
		assert.NoError(t, a.Authenticate(ctx, Request{
			SenderCompID: "OPENDESK",
			PeerAddr:     "10.0.0.2",
		}))
	})

	t.Run("wrong password denied", func(t *testing.T) {
		err := a.Authenticate(ctx, Request{
			SenderCompID: "BUYSIDE1",
			Password:     "nope",
			PeerAddr:     "10.0.0.3",
		})
		assert.ErrorIs(t, err, ErrDenied)
	})

	t.Run("unknown CompID denied", func(t *testing.T) {
		err := a.Authenticate(ctx, Request{
			SenderCompID: "STRANGER",
			PeerAddr:     "10.0.0.4",
		})
		assert.ErrorIs(t, err, ErrDenied)
	})
}

func TestStaticCoolDown(t *testing.T) {
	hash, err := HashPassword("right")
	require.NoError(t, err)

	a := NewStatic(StaticConfig{
		Credentials: []Credential{{CompID: "BUYSIDE1", PasswordHash: hash}},
		MaxFailures: 2,
		Window:      time.Minute,
		CoolDown:    5 * time.Minute,
	})

	now := time.Now()
	a.now = func() time.Time { return now }

	ctx := context.Background()
	bad := Request{SenderCompID: "BUYSIDE1", Password: "wrong", PeerAddr: "10.1.1.1"}

	assert.ErrorIs(t, a.Authenticate(ctx, bad), ErrDenied)
	assert.ErrorIs(t, a.Authenticate(ctx, bad), ErrDenied)

	// Third attempt hits the cool-down, even with the right password.
	good := Request{SenderCompID: "BUYSIDE1", Password: "right", PeerAddr: "10.1.1.1"}
	assert.ErrorIs(t, a.Authenticate(ctx, good), ErrCoolDown)

	// Another peer is unaffected.
	otherPeer := Request{SenderCompID: "BUYSIDE1", Password: "right", PeerAddr: "10.9.9.9"}
	assert.NoError(t, a.Authenticate(ctx, otherPeer))

	// After the cool-down expires the peer may try again.
	now = now.Add(6 * time.Minute)
	assert.NoError(t, a.Authenticate(ctx, good))
}
