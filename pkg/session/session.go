// Package session implements the per-counterparty FIX session state
// machine: the logon handshake, heartbeat and test-request liveness,
// inbound sequence acceptance with gap detection and resend recovery,
// and outbound stamping and persistence.
//
// Each Session is owned by exactly one goroutine. All interactions —
// inbound frames, timer ticks, application sends, admin disconnects —
// arrive as events on a bounded queue and are processed strictly in
// order, which is what makes sequence handling race-free without any
// shared mutable state. Admin snapshots read a small mirror guarded by
// its own mutex.
package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/auth"
	"github.com/marmos91/fixgate/pkg/fix"
	"github.com/marmos91/fixgate/pkg/metrics"
	"github.com/marmos91/fixgate/pkg/store"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusDisconnected  Status = "Disconnected"
	StatusConnecting    Status = "Connecting"
	StatusLogonSent     Status = "LogonSent"
	StatusLogonReceived Status = "LogonReceived"
	StatusLoggedOn      Status = "LoggedOn"
	StatusLogoutSent    Status = "LogoutSent"
	StatusDisconnecting Status = "Disconnecting"
)

// Key identifies a session from the server's perspective:
// SenderCompID is ours, TargetCompID is the counterparty's.
type Key struct {
	SenderCompID string
	TargetCompID string
}

// ID renders the key as the canonical session id.
func (k Key) ID() string { return k.SenderCompID + ":" + k.TargetCompID }

// Transport is the write side of a connection, provided by the
// adapter when a counterparty connects. Writes are best-effort: the
// engine's durability guarantee is the store append, not the socket
// flush.
type Transport interface {
	Write(p []byte) error
	Close() error
}

// DeliverFunc hands an accepted, in-sequence application message to
// the business layer. Returning ErrUnsupportedMsgType produces a
// BusinessMessageReject with reason 3; any other error, reason 0 with
// the error text.
type DeliverFunc func(ctx context.Context, sessionID string, msg *fix.Message) error

// ErrUnsupportedMsgType signals that no application handler exists for
// the MsgType.
var ErrUnsupportedMsgType = fmt.Errorf("session: unsupported MsgType")

// Config carries the per-session tunables, derived from engine
// configuration.
type Config struct {
	BeginString         string
	HeartbeatInterval   time.Duration // default when the client's proposal is absent
	LogonTimeout        time.Duration
	ResendBufferWindow  int
	InboundQueueDepth   int
	StoreRetryAttempts  int
	ProtocolErrorLimit  int
	ProtocolErrorWindow time.Duration
	ResetOnLogonPolicy  string // accept | ignore | never
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.BeginString == "" {
		c.BeginString = fix.BeginStringFIX44
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.LogonTimeout == 0 {
		c.LogonTimeout = 30 * time.Second
	}
	if c.ResendBufferWindow == 0 {
		c.ResendBufferWindow = 1024
	}
	if c.InboundQueueDepth == 0 {
		c.InboundQueueDepth = 4096
	}
	if c.StoreRetryAttempts == 0 {
		c.StoreRetryAttempts = 3
	}
	if c.ProtocolErrorLimit == 0 {
		c.ProtocolErrorLimit = 10
	}
	if c.ProtocolErrorWindow == 0 {
		c.ProtocolErrorWindow = time.Minute
	}
	if c.ResetOnLogonPolicy == "" {
		c.ResetOnLogonPolicy = "accept"
	}
}

// Deps are the collaborators a session consumes.
type Deps struct {
	Store   store.Store
	Audit   *store.AuditWriter
	Auth    auth.Authenticator
	Metrics metrics.EngineMetrics
	Deliver DeliverFunc

	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Session is one counterparty relationship. Create with New, drive
// with Run, interact through the exported methods.
type Session struct {
	cfg  Config
	key  Key
	id   string
	deps Deps

	events chan event
	stop   chan struct{}

	// Owned by the run goroutine only.
	status           Status
	incomingNext     uint32
	outgoingNext     uint32
	hbInterval       time.Duration
	lastInbound      time.Time
	lastOutbound     time.Time
	logonDeadline    time.Time
	pendingTestReqID string
	testReqCounter   uint64
	transport        Transport
	peer             string
	fixVersion       string
	startTime        time.Time
	totalIn          uint64
	totalOut         uint64
	protoErrs        []time.Time
	gapBuffer        map[uint32]*fix.Message
	resendPending    bool
	lastError        string
	termCause        string

	mirror mirror
}

type event interface{}

type connectEvent struct {
	peer string
	tr   Transport
}

type frameEvent struct {
	raw []byte
}

type tickEvent struct {
	now time.Time
}

type sendEvent struct {
	msg  *fix.Message
	done chan error
}

type disconnectEvent struct {
	reason   string
	graceful bool
}

type transportDownEvent struct{}

// New builds a session. A persisted state may seed the sequence
// counters so reconnects resume where the last run stopped.
func New(cfg Config, key Key, deps Deps, persisted *store.SessionState) *Session {
	cfg.ApplyDefaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Session{
		cfg:          cfg,
		key:          key,
		id:           key.ID(),
		deps:         deps,
		events:       make(chan event, cfg.InboundQueueDepth),
		stop:         make(chan struct{}),
		status:       StatusDisconnected,
		incomingNext: 1,
		outgoingNext: 1,
		hbInterval:   cfg.HeartbeatInterval,
		fixVersion:   cfg.BeginString,
		startTime:    deps.Now(),
		gapBuffer:    make(map[uint32]*fix.Message),
	}

	if persisted != nil {
		s.incomingNext = persisted.IncomingNext
		s.outgoingNext = persisted.OutgoingNext
		if s.incomingNext == 0 {
			s.incomingNext = 1
		}
		if s.outgoingNext == 0 {
			s.outgoingNext = 1
		}
		if persisted.HeartbeatInterval > 0 {
			s.hbInterval = persisted.HeartbeatInterval
		}
		s.totalIn = persisted.TotalIn
		s.totalOut = persisted.TotalOut
		if !persisted.StartTime.IsZero() {
			s.startTime = persisted.StartTime
		}
	}

	s.updateMirror()
	return s
}

// ID returns the canonical session id.
func (s *Session) ID() string { return s.id }

// Key returns the session key.
func (s *Session) Key() Key { return s.key }

// Connect attaches a transport for a freshly accepted connection and
// arms the logon timeout.
func (s *Session) Connect(peer string, tr Transport) {
	s.post(connectEvent{peer: peer, tr: tr})
}

// Deliver enqueues one complete inbound frame. It blocks when the
// inbound queue is full, which the adapter translates into TCP
// backpressure by not reading more bytes.
func (s *Session) Deliver(ctx context.Context, raw []byte) error {
	select {
	case s.events <- frameEvent{raw: raw}:
		return nil
	case <-s.stop:
		return fmt.Errorf("session %s: stopped", s.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send stamps, persists and transmits an outbound application message.
// It returns once the message carries its sequence number and the
// store append has committed; the socket write is asynchronous
// best-effort.
func (s *Session) Send(ctx context.Context, msg *fix.Message) error {
	done := make(chan error, 1)
	select {
	case s.events <- sendEvent{msg: msg, done: done}:
	case <-s.stop:
		return fmt.Errorf("session %s: stopped", s.id)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-s.stop:
		return fmt.Errorf("session %s: stopped", s.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick posts a scheduler tick. Non-blocking: if the session is busy a
// missed tick is irrelevant because the next one carries a later now.
func (s *Session) Tick(now time.Time) {
	select {
	case s.events <- tickEvent{now: now}:
	default:
	}
}

// Disconnect requests a graceful logout and transport close.
func (s *Session) Disconnect(reason string) {
	s.post(disconnectEvent{reason: reason, graceful: true})
}

// TransportDown informs the session that the transport failed or the
// peer went away. Counters persist; the session awaits a reconnect.
func (s *Session) TransportDown() {
	s.post(transportDownEvent{})
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

// Run processes events until ctx is cancelled. It must be called
// exactly once, on its own goroutine. On exit the session has emitted
// a Logout when appropriate and persisted its counters.
func (s *Session) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panic",
				logger.KeySession, s.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			s.audit(store.AuditSystemError, "", fmt.Sprintf("panic: %v", r))
			s.lastError = fmt.Sprintf("panic: %v", r)
			s.closeTransport()
			s.persist(ctx)
		}
		close(s.stop)
	}()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(context.Background())
			return
		case ev := <-s.events:
			s.dispatch(ctx, ev)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case connectEvent:
		s.handleConnect(ev.peer, ev.tr)
	case frameEvent:
		s.handleFrame(ctx, ev.raw)
	case tickEvent:
		s.handleTick(ctx, ev.now)
	case sendEvent:
		ev.done <- s.sendMessage(ctx, ev.msg)
	case disconnectEvent:
		s.disconnect(ctx, ev.reason, ev.graceful)
	case transportDownEvent:
		s.handleTransportDown(ctx)
	}
}

func (s *Session) handleConnect(peer string, tr Transport) {
	if s.transport != nil {
		// One live connection per session; the registry refuses
		// concurrent claims, so this is a late reconnect racing a
		// stale transport. Drop the old one.
		_ = s.transport.Close()
	}
	s.transport = tr
	s.peer = peer
	s.status = StatusConnecting
	s.logonDeadline = s.deps.Now().Add(s.cfg.LogonTimeout)
	s.updateMirror()

	logger.Debug("counterparty connected",
		logger.KeySession, s.id,
		logger.KeyPeer, peer)
}

func (s *Session) handleTransportDown(ctx context.Context) {
	if s.status == StatusDisconnected {
		return
	}
	logger.Info("transport down",
		logger.KeySession, s.id,
		logger.KeyPeer, s.peer)
	s.closeTransport()
	s.status = StatusDisconnected
	s.termCause = "transport closed"
	s.clearRecovery()
	s.persist(ctx)
	s.updateMirror()
}

// shutdown handles engine stop: logout if logged on, persist, exit.
func (s *Session) shutdown(ctx context.Context) {
	if s.status == StatusLoggedOn {
		logout := fix.NewMessage(fix.MsgTypeLogout)
		logout.SetString(fix.TagText, "server shutting down")
		if err := s.sendMessage(ctx, logout); err != nil {
			logger.Warn("shutdown logout failed",
				logger.KeySession, s.id,
				logger.KeyError, err)
		}
		s.audit(store.AuditLogout, fix.MsgTypeLogout, "server shutdown")
	}
	s.closeTransport()
	s.status = StatusDisconnected
	s.termCause = "engine stopped"
	s.drainForAudit()
	s.persist(ctx)
	s.updateMirror()
}

// drainForAudit empties the inbound queue on shutdown so frames that
// arrived but were never processed still leave a trace.
func (s *Session) drainForAudit() {
	for {
		select {
		case ev := <-s.events:
			if fe, ok := ev.(frameEvent); ok {
				s.auditMsg(store.AuditProtocolError, store.DirectionIn, "", fe.raw)
			}
			if se, ok := ev.(sendEvent); ok {
				se.done <- fmt.Errorf("session %s: shutting down", s.id)
			}
		default:
			return
		}
	}
}

// disconnect performs an administrative or protocol-driven close.
func (s *Session) disconnect(ctx context.Context, reason string, graceful bool) {
	if s.status == StatusDisconnected {
		return
	}
	if graceful && s.status == StatusLoggedOn {
		logout := fix.NewMessage(fix.MsgTypeLogout)
		logout.SetString(fix.TagText, reason)
		if err := s.sendMessage(ctx, logout); err != nil {
			logger.Warn("logout send failed",
				logger.KeySession, s.id,
				logger.KeyError, err)
		}
		s.status = StatusLogoutSent
	}
	s.audit(store.AuditLogout, fix.MsgTypeLogout, reason)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordDisconnect(reason)
	}
	s.closeTransport()
	s.status = StatusDisconnected
	s.termCause = reason
	s.clearRecovery()
	s.persist(ctx)
	s.updateMirror()
}

func (s *Session) closeTransport() {
	if s.transport != nil {
		_ = s.transport.Close()
		s.transport = nil
	}
}

// clearRecovery drops gap-recovery state that is meaningless across
// connections.
func (s *Session) clearRecovery() {
	s.gapBuffer = make(map[uint32]*fix.Message)
	s.resendPending = false
	s.pendingTestReqID = ""
}

// persist saves counters and status to the store.
func (s *Session) persist(ctx context.Context) {
	state := &store.SessionState{
		ID:           s.id,
		Sender:       s.key.SenderCompID,
		Target:       s.key.TargetCompID,
		Status:       string(s.status),
		IncomingNext: s.incomingNext,
		OutgoingNext: s.outgoingNext,

		HeartbeatInterval: s.hbInterval,
		LastInboundAt:     s.lastInbound,
		LastOutboundAt:    s.lastOutbound,
		StartTime:         s.startTime,
		FIXVersion:        s.fixVersion,
		PeerAddr:          s.peer,
		TotalIn:           s.totalIn,
		TotalOut:          s.totalOut,

		LastError:        s.lastError,
		TerminationCause: s.termCause,
	}
	if err := s.deps.Store.SaveSession(ctx, state); err != nil {
		logger.Error("session state save failed",
			logger.KeySession, s.id,
			logger.KeyError, err)
	}
}

func (s *Session) audit(event store.AuditEvent, msgType, text string) {
	if s.deps.Audit == nil {
		return
	}
	s.deps.Audit.Record(&store.AuditRecord{
		SessionID: s.id,
		Event:     event,
		MsgType:   msgType,
		Peer:      s.peer,
		Text:      text,
	})
}

func (s *Session) auditMsg(event store.AuditEvent, dir store.Direction, msgType string, raw []byte) {
	if s.deps.Audit == nil {
		return
	}
	s.deps.Audit.Record(&store.AuditRecord{
		SessionID: s.id,
		Event:     event,
		MsgType:   msgType,
		Direction: dir,
		Peer:      s.peer,
		Raw:       raw,
	})
}
