package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds session-scoped logging context. It travels with the
// context.Context that accompanies a message through the engine so
// every log line about that message carries the same identifiers.
type LogContext struct {
	SessionID    string    // engine session id (SENDER:TARGET)
	SenderCompID string    // counterparty CompID (client view sender)
	TargetCompID string    // our CompID
	PeerAddr     string    // client address without port
	StartTime    time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a connection
func NewLogContext(peerAddr string) *LogContext {
	return &LogContext{
		PeerAddr:  peerAddr,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	cp := *lc
	return &cp
}

// WithSession returns a copy with the session identifiers set
func (lc *LogContext) WithSession(sessionID, sender, target string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SessionID = sessionID
		clone.SenderCompID = sender
		clone.TargetCompID = target
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
