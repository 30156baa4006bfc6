// Package engine wires the codec, registry, store and sessions into
// the single facade the transport adapter and admin surface talk to.
//
// The engine owns no sockets. Adapters open a Connection per accepted
// conn and push raw bytes at it; the engine frames them, routes each
// frame to its session by comp-ID pair, and hands validated
// application messages to the handlers registered by MsgType.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/metrics"
	"github.com/marmos91/fixgate/pkg/registry"
	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
)

// HandlerFunc processes one accepted, in-sequence application message.
// Returning an error produces a BusinessMessageReject; session state is
// unaffected.
type HandlerFunc func(ctx context.Context, sessionID string, msg *fix.Message) error

// Config carries engine-level tunables.
type Config struct {
	MaxSessions   int
	MaxFrameBytes int
	Session       session.Config
	TickInterval  time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = 10_000
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = fix.DefaultMaxFrameBytes
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	c.Session.ApplyDefaults()
}

// Deps are the engine's explicit collaborators. No globals: everything
// the engine touches is handed to New.
type Deps struct {
	Store   store.Store
	Audit   *store.AuditWriter
	Auth    auth.Authenticator
	Metrics metrics.EngineMetrics
}

// Engine is the protocol core.
type Engine struct {
	cfg  Config
	deps Deps
	reg  *registry.Registry

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	tickerStop chan struct{}
	tickerDone chan struct{}
	startOnce  sync.Once
	stopOnce   sync.Once
}

// New builds an engine. Register application handlers before Start.
func New(cfg Config, deps Deps) *Engine {
	cfg.ApplyDefaults()
	if deps.Auth == nil {
		deps.Auth = auth.AllowAll{}
	}

	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		handlers: make(map[string]HandlerFunc),
	}

	e.reg = registry.New(registry.Config{
		MaxSessions:   cfg.MaxSessions,
		SessionConfig: cfg.Session,
	}, session.Deps{
		Store:   deps.Store,
		Audit:   deps.Audit,
		Auth:    deps.Auth,
		Metrics: deps.Metrics,
		Deliver: e.deliver,
	})

	return e
}

// RegisterHandler binds an application handler to a MsgType. Later
// registrations for the same type win; sessions dispatch through the
// registry on every message.
func (e *Engine) RegisterHandler(msgType string, h HandlerFunc) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[msgType] = h
}

// deliver is the session.DeliverFunc handed to every session.
func (e *Engine) deliver(ctx context.Context, sessionID string, msg *fix.Message) error {
	e.handlersMu.RLock()
	h, ok := e.handlers[msg.MsgType()]
	e.handlersMu.RUnlock()
	if !ok {
		return session.ErrUnsupportedMsgType
	}
	return h(ctx, sessionID, msg)
}

// Start rehydrates persisted sessions and begins the shared timer
// scheduler. Idempotent.
func (e *Engine) Start(ctx context.Context) error {
	var err error
	e.startOnce.Do(func() {
		if rehydrateErr := e.reg.Rehydrate(ctx); rehydrateErr != nil {
			err = fmt.Errorf("engine: rehydrate: %w", rehydrateErr)
			return
		}

		e.tickerStop = make(chan struct{})
		e.tickerDone = make(chan struct{})
		go e.runScheduler()

		logger.Info("engine started",
			"sessions", e.reg.Len(),
			"max_sessions", e.cfg.MaxSessions)
	})
	return err
}

// runScheduler delivers timer ticks into every session's queue. One
// shared ticker keeps timer granularity at the configured interval
// without a goroutine per session.
func (e *Engine) runScheduler() {
	defer close(e.tickerDone)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.tickerStop:
			return
		case now := <-ticker.C:
			active := 0
			e.reg.Range(func(s *session.Session) {
				s.Tick(now)
				if s.IsLoggedOn() {
					active++
				}
			})
			if e.deps.Metrics != nil {
				e.deps.Metrics.SetSessionsActive(active)
				e.deps.Metrics.SetSessionsKnown(e.reg.Len())
			}
		}
	}
}

// Send emits an outbound message on a session, for application
// handlers and admin tooling. Returns once the message is sequenced
// and durably stored.
func (e *Engine) Send(ctx context.Context, sessionID string, msg *fix.Message) error {
	sess, err := e.reg.Get(sessionID)
	if err != nil {
		return err
	}
	return sess.Send(ctx, msg)
}

// Stop shuts the engine down: scheduler first, then a graceful logout
// sweep over every session bounded by ctx's deadline, then the audit
// writer drain.
func (e *Engine) Stop(ctx context.Context) error {
	var err error
	e.stopOnce.Do(func() {
		if e.tickerStop != nil {
			close(e.tickerStop)
			<-e.tickerDone
		}

		err = e.reg.Shutdown(ctx)

		if e.deps.Audit != nil {
			e.deps.Audit.Close()
		}
		logger.Info("engine stopped")
	})
	return err
}

// Registry exposes the session registry to the admin surface.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// ErrEngineStopped is returned by connections used after Stop.
var ErrEngineStopped = errors.New("engine: stopped")
