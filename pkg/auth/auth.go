// Package auth decides whether a counterparty may log on.
//
// The engine calls an Authenticator during the Logon handshake with
// the comp IDs, the optional Username (553) / Password (554) pair and
// the peer address. Implementations: AllowAll for closed networks and
// tests, and Static backed by configured bcrypt hashes with a
// per-peer failure cool-down.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Request carries everything known about a logon attempt. Comp IDs are
// as seen on the wire (the counterparty is the sender).
type Request struct {
	SenderCompID string
	TargetCompID string
	Username     string
	Password     string
	PeerAddr     string
}

// Denial errors. Anything else returned by an Authenticator is an
// internal failure; it closes the session the same way but is audited
// as a system error rather than bad credentials.
var (
	ErrDenied   = errors.New("auth: credentials rejected")
	ErrCoolDown = errors.New("auth: peer in failure cool-down")
)

// Authenticator validates a logon attempt. A nil return accepts it.
type Authenticator interface {
	Authenticate(ctx context.Context, req Request) error
}

// AllowAll accepts every logon. Useful behind network-level access
// control and in tests.
type AllowAll struct{}

// Authenticate implements Authenticator.
func (AllowAll) Authenticate(context.Context, Request) error { return nil }

// Credential is one configured counterparty.
type Credential struct {
	// CompID is the counterparty's SenderCompID.
	CompID string

	// PasswordHash is the bcrypt hash of the expected Password (554).
	// Empty means no password is required for this CompID.
	PasswordHash string
}

// StaticConfig configures the Static authenticator.
type StaticConfig struct {
	Credentials []Credential

	// MaxFailures within Window triggers a cool-down for the peer.
	MaxFailures int
	Window      time.Duration
	CoolDown    time.Duration
}

// ApplyDefaults fills zero values.
func (c *StaticConfig) ApplyDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
	if c.CoolDown == 0 {
		c.CoolDown = 5 * time.Minute
	}
}

// Static authenticates against configured credentials. Safe for
// concurrent use.
type Static struct {
	cfg   StaticConfig
	creds map[string]Credential

	mu       sync.Mutex
	failures map[string][]time.Time // peer -> recent failure times
	coolOff  map[string]time.Time   // peer -> cool-down expiry

	now func() time.Time
}

// NewStatic builds a Static authenticator.
func NewStatic(cfg StaticConfig) *Static {
	cfg.ApplyDefaults()
	creds := make(map[string]Credential, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		creds[c.CompID] = c
	}
	return &Static{
		cfg:      cfg,
		creds:    creds,
		failures: make(map[string][]time.Time),
		coolOff:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// HashPassword returns the bcrypt hash to put in configuration.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

// Authenticate implements Authenticator.
func (a *Static) Authenticate(_ context.Context, req Request) error {
	if err := a.checkCoolDown(req.PeerAddr); err != nil {
		return err
	}

	cred, ok := a.creds[req.SenderCompID]
	if !ok {
		a.recordFailure(req.PeerAddr)
		return fmt.Errorf("%w: unknown CompID %q", ErrDenied, req.SenderCompID)
	}

	if cred.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
			a.recordFailure(req.PeerAddr)
			return fmt.Errorf("%w: bad password for %q", ErrDenied, req.SenderCompID)
		}
	}

	a.clearFailures(req.PeerAddr)
	return nil
}

func (a *Static) checkCoolDown(peer string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry, ok := a.coolOff[peer]
	if !ok {
		return nil
	}
	if a.now().After(expiry) {
		delete(a.coolOff, peer)
		delete(a.failures, peer)
		return nil
	}
	return ErrCoolDown
}

func (a *Static) recordFailure(peer string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	cutoff := now.Add(-a.cfg.Window)
	recent := a.failures[peer][:0]
	for _, t := range a.failures[peer] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	recent = append(recent, now)
	a.failures[peer] = recent

	if len(recent) >= a.cfg.MaxFailures {
		a.coolOff[peer] = now.Add(a.cfg.CoolDown)
	}
}

func (a *Static) clearFailures(peer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, peer)
}
