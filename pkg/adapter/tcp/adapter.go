// Package tcp accepts FIX counterparty connections over TCP, with
// optional TLS, and bridges their byte streams into the engine.
package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/fixgate/internal/logger"
	"github.com/marmos91/fixgate/pkg/engine"
)

// Config for the TCP adapter.
type Config struct {
	// ListenAddr is the accept address, e.g. ":9878".
	ListenAddr string

	// TLSCert / TLSKey enable TLS when both are set.
	TLSCert string
	TLSKey  string

	// MaxConnections caps concurrent connections; excess accepts are
	// closed immediately.
	MaxConnections int

	// ReadBufferSize is the per-connection read buffer.
	ReadBufferSize int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9878"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 10_000
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 16 * 1024
	}
}

// Adapter is the TCP frontend. One goroutine per connection reads
// bytes and feeds the engine; backpressure falls out of the blocking
// Receive call.
type Adapter struct {
	config Config
	engine *engine.Engine

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds the adapter around an engine.
func New(config Config, eng *engine.Engine) *Adapter {
	config.ApplyDefaults()
	return &Adapter{
		config:  config,
		engine:  eng,
		conns:   make(map[net.Conn]struct{}),
		stopped: make(chan struct{}),
	}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "FIX/TCP" }

// Serve implements adapter.Adapter.
func (a *Adapter) Serve(ctx context.Context) error {
	ln, err := a.listen()
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.listener = ln
	a.mu.Unlock()

	logger.Info("listener started",
		logger.KeyComponent, a.Name(),
		logger.KeyAddr, a.config.ListenAddr,
		"tls", a.config.TLSCert != "")

	go func() {
		select {
		case <-ctx.Done():
		case <-a.stopped:
		}
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				a.drain()
				return ctx.Err()
			case <-a.stopped:
				a.drain()
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("tcp: accept: %w", err)
		}

		if !a.track(conn) {
			logger.Warn("connection refused, at capacity",
				logger.KeyPeer, conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.untrack(conn)
			a.serveConn(ctx, conn)
		}()
	}
}

// Stop implements adapter.Adapter.
func (a *Adapter) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopped) })

	a.mu.Lock()
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Force-close whatever is still open.
		a.mu.Lock()
		for conn := range a.conns {
			_ = conn.Close()
		}
		a.mu.Unlock()
		return ctx.Err()
	}
}

func (a *Adapter) listen() (net.Listener, error) {
	if a.config.TLSCert != "" && a.config.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(a.config.TLSCert, a.config.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("tcp: load TLS keypair: %w", err)
		}
		tlsConfig := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln, err := tls.Listen("tcp", a.config.ListenAddr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("tcp: listen (tls): %w", err)
		}
		return ln, nil
	}

	ln, err := net.Listen("tcp", a.config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen: %w", err)
	}
	return ln, nil
}

func (a *Adapter) track(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.conns) >= a.config.MaxConnections {
		return false
	}
	a.conns[conn] = struct{}{}
	return true
}

func (a *Adapter) untrack(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn)
}

func (a *Adapter) drain() {
	a.wg.Wait()
}

// serveConn is the per-connection read loop.
func (a *Adapter) serveConn(ctx context.Context, conn net.Conn) {
	peer := peerHost(conn)
	logger.Debug("connection accepted",
		logger.KeyComponent, a.Name(),
		logger.KeyPeer, peer)

	tr := &transport{conn: conn}
	ec := a.engine.OpenConnection(peer, tr)
	defer ec.Close()

	buf := make([]byte, a.config.ReadBufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if rerr := ec.Receive(ctx, buf[:n]); rerr != nil {
				logger.Debug("connection dropped",
					logger.KeyPeer, peer,
					logger.KeyError, rerr)
				return
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				select {
				case <-ctx.Done():
					return
				case <-a.stopped:
					return
				default:
					continue
				}
			}
			logger.Debug("connection closed",
				logger.KeyPeer, peer,
				logger.KeyError, err)
			return
		}
	}
}

func peerHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
