package store

import "errors"

var (
	// ErrNotFound means no row matched the lookup.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateSeq means an append targeted a (session, direction,
	// seq) that already holds a message. Stored messages are immutable,
	// so this always indicates a sequencing bug upstream.
	ErrDuplicateSeq = errors.New("store: duplicate sequence number")

	// ErrClosed means the store was used after Close.
	ErrClosed = errors.New("store: closed")
)
