package tcp

import (
	"net"
	"sync"
	"time"
)

// writeTimeout bounds a single socket write so a stalled counterparty
// cannot wedge the session goroutine.
const writeTimeout = 5 * time.Second

// transport adapts a net.Conn to session.Transport. Writes are
// serialized: the session goroutine and replay path may interleave.
type transport struct {
	mu   sync.Mutex
	conn net.Conn
}

func (t *transport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := t.conn.Write(p)
	return err
}

func (t *transport) Close() error {
	return t.conn.Close()
}
