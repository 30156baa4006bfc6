// Package memory implements store.Store in process memory.
//
// It offers the same ordering guarantees as the SQL backend but no
// durability; it backs tests and ephemeral single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/fixgate/pkg/store"
)

type messageKey struct {
	sessionID string
	direction store.Direction
}

// Store is an in-memory store.Store. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	closed   bool
	messages map[messageKey]map[uint32]*store.StoredMessage
	lastSeq  map[messageKey]uint32
	sessions map[string]*store.SessionState
	audit    map[string][]*store.AuditRecord
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		messages: make(map[messageKey]map[uint32]*store.StoredMessage),
		lastSeq:  make(map[messageKey]uint32),
		sessions: make(map[string]*store.SessionState),
		audit:    make(map[string][]*store.AuditRecord),
	}
}

// AppendMessage implements store.MessageStore.
func (s *Store) AppendMessage(_ context.Context, msg *store.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	key := messageKey{msg.SessionID, msg.Direction}
	bySeq := s.messages[key]
	if bySeq == nil {
		bySeq = make(map[uint32]*store.StoredMessage)
		s.messages[key] = bySeq
	}
	if _, exists := bySeq[msg.Seq]; exists {
		return store.ErrDuplicateSeq
	}

	cp := *msg
	cp.Raw = append([]byte(nil), msg.Raw...)
	bySeq[msg.Seq] = &cp
	if msg.Seq > s.lastSeq[key] {
		s.lastSeq[key] = msg.Seq
	}
	return nil
}

// GetMessage implements store.MessageStore.
func (s *Store) GetMessage(_ context.Context, sessionID string, dir store.Direction, seq uint32) (*store.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	msg, ok := s.messages[messageKey{sessionID, dir}][seq]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

// RangeMessages implements store.MessageStore.
func (s *Store) RangeMessages(_ context.Context, sessionID string, dir store.Direction, from, to uint32, fn func(*store.StoredMessage) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return store.ErrClosed
	}
	key := messageKey{sessionID, dir}
	if to == 0 {
		to = s.lastSeq[key]
	}
	var batch []*store.StoredMessage
	for seq, msg := range s.messages[key] {
		if seq >= from && seq <= to {
			cp := *msg
			batch = append(batch, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Seq < batch[j].Seq })
	for _, msg := range batch {
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

// LastSeq implements store.MessageStore.
func (s *Store) LastSeq(_ context.Context, sessionID string, dir store.Direction) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	return s.lastSeq[messageKey{sessionID, dir}], nil
}

// ArchiveBefore implements store.MessageStore.
func (s *Store) ArchiveBefore(_ context.Context, sessionID string, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	now := time.Now().UTC()
	var n int64
	for key, bySeq := range s.messages {
		if key.sessionID != sessionID {
			continue
		}
		for _, msg := range bySeq {
			if msg.ArchivedAt == nil && msg.SentAt.Before(ts) {
				at := now
				msg.ArchivedAt = &at
				n++
			}
		}
	}
	return n, nil
}

// DeleteArchivedBefore implements store.MessageStore.
func (s *Store) DeleteArchivedBefore(_ context.Context, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}

	var n int64
	for _, bySeq := range s.messages {
		for seq, msg := range bySeq {
			if msg.ArchivedAt != nil && msg.ArchivedAt.Before(ts) {
				delete(bySeq, seq)
				n++
			}
		}
	}
	return n, nil
}

// ResetSequences implements store.MessageStore.
func (s *Store) ResetSequences(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	for _, dir := range []store.Direction{store.DirectionIn, store.DirectionOut} {
		key := messageKey{sessionID, dir}
		delete(s.messages, key)
		delete(s.lastSeq, key)
	}
	return nil
}

// ListSessions implements store.SessionStore.
func (s *Store) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadSession implements store.SessionStore.
func (s *Store) LoadSession(_ context.Context, sessionID string) (*store.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *state
	return &cp, nil
}

// SaveSession implements store.SessionStore.
func (s *Store) SaveSession(_ context.Context, state *store.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	cp := *state
	s.sessions[state.ID] = &cp
	return nil
}

// DeleteSession implements store.SessionStore.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return store.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// AppendAudit implements store.AuditStore.
func (s *Store) AppendAudit(_ context.Context, rec *store.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	cp := *rec
	cp.Raw = append([]byte(nil), rec.Raw...)
	s.audit[rec.SessionID] = append(s.audit[rec.SessionID], &cp)
	return nil
}

// AuditRange implements store.AuditStore.
func (s *Store) AuditRange(_ context.Context, sessionID string, from, to time.Time) ([]*store.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var out []*store.AuditRecord
	for _, rec := range s.audit[sessionID] {
		if !from.IsZero() && rec.At.Before(from) {
			continue
		}
		if !to.IsZero() && rec.At.After(to) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
