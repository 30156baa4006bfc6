// Package registry owns the set of live sessions: lookup by comp-ID
// pair, creation on first logon with rehydration from the store, the
// global session cap, and coordinated shutdown.
//
// Lookups take a read lock and are cheap; the write lock is held only
// for create and remove.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
)

// ErrSessionLimit is returned when the global cap is reached.
var ErrSessionLimit = errors.New("registry: session limit reached")

// ErrSessionNotFound is returned by lookups that miss.
var ErrSessionNotFound = errors.New("registry: session not found")

// Config for the registry.
type Config struct {
	// MaxSessions caps the number of sessions held at once.
	MaxSessions int

	// SessionConfig is the template applied to every created session.
	SessionConfig session.Config
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = 10_000
	}
	c.SessionConfig.ApplyDefaults()
}

type entry struct {
	sess   *session.Session
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry manages live sessions. Safe for concurrent use.
type Registry struct {
	cfg  Config
	deps session.Deps

	mu      sync.RWMutex
	entries map[string]*entry
	root    context.Context
	cancel  context.CancelFunc
	closed  bool
}

// New builds a registry. deps is the collaborator set handed to every
// session it creates.
func New(cfg Config, deps session.Deps) *Registry {
	cfg.ApplyDefaults()
	root, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		deps:    deps,
		entries: make(map[string]*entry),
		root:    root,
		cancel:  cancel,
	}
}

// Rehydrate pre-warms the registry from persisted session state so
// counterparties reconnecting after a restart resume their counters.
func (r *Registry) Rehydrate(ctx context.Context) error {
	ids, err := r.deps.Store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("registry: list sessions: %w", err)
	}

	for _, id := range ids {
		state, err := r.deps.Store.LoadSession(ctx, id)
		if err != nil {
			logger.Warn("session rehydration failed",
				logger.KeySession, id,
				logger.KeyError, err)
			continue
		}
		key := session.Key{SenderCompID: state.Sender, TargetCompID: state.Target}
		if _, err := r.create(key, state); err != nil {
			if errors.Is(err, ErrSessionLimit) {
				return err
			}
			logger.Warn("session rehydration skipped",
				logger.KeySession, id,
				logger.KeyError, err)
		}
	}

	logger.Info("registry rehydrated", "sessions", len(ids))
	return nil
}

// GetOrCreate returns the session for key, creating it on first use.
// Creation loads any persisted state for the key first, so a known
// counterparty keeps its counters even if Rehydrate was not run.
func (r *Registry) GetOrCreate(ctx context.Context, key session.Key) (*session.Session, error) {
	id := key.ID()

	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		return e.sess, nil
	}

	state, err := r.deps.Store.LoadSession(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("registry: load session %s: %w", id, err)
	}

	sess, err := r.create(key, state)
	if err != nil {
		return nil, err
	}

	if state == nil && r.deps.Audit != nil {
		r.deps.Audit.Record(&store.AuditRecord{
			SessionID: id,
			Event:     store.AuditSessionCreated,
		})
	}
	return sess, nil
}

// create registers and starts a session under the write lock.
func (r *Registry) create(key session.Key, persisted *store.SessionState) (*session.Session, error) {
	id := key.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("registry: shut down")
	}
	if e, ok := r.entries[id]; ok {
		return e.sess, nil
	}
	if len(r.entries) >= r.cfg.MaxSessions {
		return nil, ErrSessionLimit
	}

	sess := session.New(r.cfg.SessionConfig, key, r.deps, persisted)
	ctx, cancel := context.WithCancel(r.root)
	e := &entry{sess: sess, cancel: cancel, done: make(chan struct{})}
	r.entries[id] = e

	go func() {
		defer close(e.done)
		sess.Run(ctx)
	}()

	logger.Debug("session created", logger.KeySession, id)
	return sess, nil
}

// Get returns the live session with the given id.
func (r *Registry) Get(id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e.sess, nil
}

// Lookup returns the live session for a comp-ID pair.
func (r *Registry) Lookup(key session.Key) (*session.Session, error) {
	return r.Get(key.ID())
}

// List returns snapshots of every live session.
func (r *Registry) List() []session.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]session.Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.sess.Info())
	}
	return out
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for every live session. fn must not block; it runs
// with the read lock held.
func (r *Registry) Range(fn func(*session.Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		fn(e.sess)
	}
}

// Remove stops a session's goroutine and forgets it. The persisted
// state stays in the store unless the caller also deletes it there.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.cancel()
	<-e.done
	logger.Info("session removed", logger.KeySession, id)
	return nil
}

// Shutdown logs every session out gracefully and waits for their
// goroutines, up to the context deadline. Late sessions are cut off
// by their context cancellation regardless.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	// Cancelling the root context makes every session emit its logout
	// and persist counters on the way out.
	r.cancel()

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	for _, e := range entries {
		select {
		case <-e.done:
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("registry: shutdown deadline exceeded with sessions remaining")
		}
	}

	logger.Info("registry shut down", "sessions", len(entries))
	return nil
}
