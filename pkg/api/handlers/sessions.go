package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/fixgate/pkg/engine"
	"github.com/marmos91/fixgate/pkg/registry"
	"github.com/marmos91/fixgate/pkg/store"
)

// SessionHandler serves session admin operations.
type SessionHandler struct {
	engine *engine.Engine
}

// NewSessionHandler builds the handler.
func NewSessionHandler(eng *engine.Engine) *SessionHandler {
	return &SessionHandler{engine: eng}
}

// List returns snapshots of all sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, OKResponse(h.engine.ListSessions()))
}

// Get returns one session's snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := h.engine.SessionInfo(id)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(info))
}

type disconnectRequest struct {
	Reason string `json:"reason"`
}

// Disconnect logs a session out gracefully.
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req disconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		req.Reason = "administrative disconnect"
	}

	if err := h.engine.Disconnect(id, req.Reason); err != nil {
		h.sessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(nil))
}

// Remove stops a session and deletes its persisted state.
func (h *SessionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.RemoveSession(r.Context(), id); err != nil {
		h.sessionError(w, err)
		return
	}
	JSON(w, http.StatusOK, OKResponse(nil))
}

// replayedMessage is the JSON shape of one stored message.
type replayedMessage struct {
	Seq       uint32    `json:"seq"`
	MsgType   string    `json:"msg_type"`
	SentAt    time.Time `json:"sent_at"`
	Raw       string    `json:"raw"` // base64 of the wire bytes
	Archived  bool      `json:"archived"`
	Direction string    `json:"direction"`
}

// Replay returns stored outbound messages in a seq range.
// Query params: from (default 1), to (default 0 = latest).
func (h *SessionHandler) Replay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from := queryUint32(r, "from", 1)
	to := queryUint32(r, "to", 0)

	msgs, err := h.engine.Replay(r.Context(), id, from, to)
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}

	out := make([]replayedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = replayedMessage{
			Seq:       m.Seq,
			MsgType:   m.MsgType,
			SentAt:    m.SentAt,
			Raw:       base64.StdEncoding.EncodeToString(m.Raw),
			Archived:  m.ArchivedAt != nil,
			Direction: string(m.Direction),
		}
	}
	JSON(w, http.StatusOK, OKResponse(out))
}

// Audit returns a session's audit records.
// Query params: from, to (RFC 3339; both optional).
func (h *SessionHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from, err := queryTime(r, "from")
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("bad 'from' timestamp"))
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse("bad 'to' timestamp"))
		return
	}

	recs, err := h.engine.GetAudit(r.Context(), id, from, to)
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, OKResponse(recs))
}

type archiveRequest struct {
	Before time.Time `json:"before"`
}

// Archive stamps a session's messages older than the given time.
func (h *SessionHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Before.IsZero() {
		JSON(w, http.StatusBadRequest, ErrorResponse("body must carry 'before' timestamp"))
		return
	}

	n, err := h.engine.ArchiveBefore(r.Context(), id, req.Before)
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, OKResponse(map[string]int64{"archived": n}))
}

// Purge deletes archived messages older than the given time, across
// all sessions.
func (h *SessionHandler) Purge(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Before.IsZero() {
		JSON(w, http.StatusBadRequest, ErrorResponse("body must carry 'before' timestamp"))
		return
	}

	n, err := h.engine.DeleteArchivedBefore(r.Context(), req.Before)
	if err != nil {
		JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, OKResponse(map[string]int64{"deleted": n}))
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, registry.ErrSessionNotFound) || errors.Is(err, store.ErrNotFound) {
		JSON(w, http.StatusNotFound, ErrorResponse("session not found"))
		return
	}
	JSON(w, http.StatusInternalServerError, ErrorResponse(err.Error()))
}

func queryUint32(r *http.Request, key string, def uint32) uint32 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return def
	}
	return uint32(n)
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
