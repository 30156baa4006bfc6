package engine

import (
	"context"
	"sort"
	"time"

	"github.com/marmos91/fixgate/pkg/session"
	"github.com/marmos91/fixgate/pkg/store"
)

// timeNow is a seam for tests.
var timeNow = time.Now

// ListSessions returns snapshots of every live session, ordered by id.
func (e *Engine) ListSessions() []session.Info {
	infos := e.reg.List()
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SessionInfo returns one session's snapshot.
func (e *Engine) SessionInfo(id string) (session.Info, error) {
	sess, err := e.reg.Get(id)
	if err != nil {
		return session.Info{}, err
	}
	return sess.Info(), nil
}

// Disconnect logs a session out gracefully with the given reason.
func (e *Engine) Disconnect(id, reason string) error {
	sess, err := e.reg.Get(id)
	if err != nil {
		return err
	}
	sess.Disconnect(reason)
	return nil
}

// RemoveSession stops a session and deletes its persisted state. The
// message log and audit trail remain for retention policy.
func (e *Engine) RemoveSession(ctx context.Context, id string) error {
	if err := e.reg.Remove(id); err != nil {
		return err
	}
	return e.deps.Store.DeleteSession(ctx, id)
}

// Replay reads stored outbound messages for an admin-driven range
// query. This is the inspection side of replay; wire-level resend runs
// inside the session.
func (e *Engine) Replay(ctx context.Context, id string, from, to uint32) ([]*store.StoredMessage, error) {
	var out []*store.StoredMessage
	err := e.deps.Store.RangeMessages(ctx, id, store.DirectionOut, from, to,
		func(m *store.StoredMessage) error {
			out = append(out, m)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAudit returns a session's audit records in a time range.
func (e *Engine) GetAudit(ctx context.Context, id string, from, to time.Time) ([]*store.AuditRecord, error) {
	return e.deps.Store.AuditRange(ctx, id, from, to)
}

// ArchiveBefore stamps a session's messages older than ts as archived.
func (e *Engine) ArchiveBefore(ctx context.Context, id string, ts time.Time) (int64, error) {
	return e.deps.Store.ArchiveBefore(ctx, id, ts)
}

// DeleteArchivedBefore reaps archived messages older than ts across
// all sessions.
func (e *Engine) DeleteArchivedBefore(ctx context.Context, ts time.Time) (int64, error) {
	return e.deps.Store.DeleteArchivedBefore(ctx, ts)
}

// Health probes the store. A healthy engine can list sessions.
func (e *Engine) Health(ctx context.Context) error {
	_, err := e.deps.Store.ListSessions(ctx)
	return err
}
