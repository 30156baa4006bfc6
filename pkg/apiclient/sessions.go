package apiclient

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SessionInfo mirrors the server-side session snapshot.
type SessionInfo struct {
	ID           string        `json:"id"`
	SenderCompID string        `json:"sender_comp_id"`
	TargetCompID string        `json:"target_comp_id"`
	Status       string        `json:"status"`
	PeerAddr     string        `json:"peer_addr"`
	FIXVersion   string        `json:"fix_version"`
	IncomingNext uint32        `json:"incoming_next"`
	OutgoingNext uint32        `json:"outgoing_next"`
	Heartbeat    time.Duration `json:"heartbeat"`
	LastInbound  time.Time     `json:"last_inbound"`
	LastOutbound time.Time     `json:"last_outbound"`
	StartTime    time.Time     `json:"start_time"`
	TotalIn      uint64        `json:"total_in"`
	TotalOut     uint64        `json:"total_out"`
	LastError    string        `json:"last_error"`
	Termination  string        `json:"termination_cause"`
}

// StoredMessage mirrors one replayed message row.
type StoredMessage struct {
	Seq       uint32    `json:"seq"`
	MsgType   string    `json:"msg_type"`
	SentAt    time.Time `json:"sent_at"`
	Raw       string    `json:"raw"`
	Archived  bool      `json:"archived"`
	Direction string    `json:"direction"`
}

// AuditRecord mirrors one audit row.
type AuditRecord struct {
	ID        string    `json:"ID"`
	SessionID string    `json:"SessionID"`
	At        time.Time `json:"At"`
	Event     string    `json:"Event"`
	MsgType   string    `json:"MsgType"`
	Direction string    `json:"Direction"`
	Peer      string    `json:"Peer"`
	Text      string    `json:"Text"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates and stores the bearer token on the client.
func (c *Client) Login(username, password string) error {
	var resp loginResponse
	err := c.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// ListSessions returns all session snapshots.
func (c *Client) ListSessions() ([]SessionInfo, error) {
	var out []SessionInfo
	if err := c.do(http.MethodGet, "/api/v1/sessions/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession returns one session snapshot.
func (c *Client) GetSession(id string) (*SessionInfo, error) {
	var out SessionInfo
	if err := c.do(http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id)+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisconnectSession logs a session out with a reason.
func (c *Client) DisconnectSession(id, reason string) error {
	return c.do(http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/disconnect",
		map[string]string{"reason": reason}, nil)
}

// RemoveSession stops a session and deletes its persisted state.
func (c *Client) RemoveSession(id string) error {
	return c.do(http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id)+"/", nil, nil)
}

// Replay returns stored outbound messages for a seq range.
func (c *Client) Replay(id string, from, to uint32) ([]StoredMessage, error) {
	path := fmt.Sprintf("/api/v1/sessions/%s/replay?from=%d&to=%d", url.PathEscape(id), from, to)
	var out []StoredMessage
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Audit returns a session's audit records between from and to. Zero
// times mean unbounded.
func (c *Client) Audit(id string, from, to time.Time) ([]AuditRecord, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		q.Set("to", to.Format(time.RFC3339))
	}
	path := "/api/v1/sessions/" + url.PathEscape(id) + "/audit"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out []AuditRecord
	if err := c.do(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
