// Package adapter defines the lifecycle contract between the server
// and its transport frontends.
package adapter

import "context"

// Adapter is a transport frontend managed by the server.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration and the engine
//  2. Serve() starts accepting and blocks until shutdown
//  3. Stop() initiates graceful shutdown with a deadline
//
// Implementations must be safe for Stop to be called concurrently
// with Serve.
type Adapter interface {
	// Serve starts the listener and blocks until the context is
	// cancelled or an unrecoverable error occurs. Cancellation must
	// trigger graceful shutdown: stop accepting, drain connections,
	// return nil or context.Canceled.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown, bounded by ctx. Idempotent.
	Stop(ctx context.Context) error

	// Name returns the adapter name for logging.
	Name() string
}
