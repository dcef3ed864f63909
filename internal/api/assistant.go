// ABOUTME: Handlers that forward chat, session, search and SMW requests to the assistant backend

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/mcp"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 200
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages  []mcp.ChatMessage `json:"messages"`
	SessionID string            `json:"session_id,omitempty"`
	Context   string            `json:"context,omitempty"`
}

// QueryRequest is the body of the search and SMW routes.
type QueryRequest struct {
	Query    string `json:"query"`
	Username string `json:"username,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		sendJSONError(w, http.StatusBadRequest, "messages is required")
		return
	}
	switch req.Context {
	case "", "chat", "editor":
	default:
		sendJSONError(w, http.StatusBadRequest, "context must be chat or editor")
		return
	}

	who := auth.MustFromContext(r.Context()).Identity
	out, err := s.backend.Chat(r.Context(), who, mcp.ChatRequest{
		Messages:  req.Messages,
		SessionID: req.SessionID,
		Context:   req.Context,
	})
	if err != nil {
		s.sendBackendError(w, "chat", err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultSessionLimit, 1, maxSessionLimit)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0, 0, -1)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	who, ok := s.subjectOrDeny(w, r, q.Get("username"))
	if !ok {
		return
	}

	out, err := s.backend.ListSessions(r.Context(), who, limit, offset)
	if err != nil {
		s.sendBackendError(w, "list sessions", err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	who, ok := s.subjectOrDeny(w, r, r.URL.Query().Get("username"))
	if !ok {
		return
	}
	out, err := s.backend.GetSession(r.Context(), who, id)
	if err != nil {
		s.sendBackendError(w, "get session", err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	who, ok := s.subjectOrDeny(w, r, r.URL.Query().Get("username"))
	if !ok {
		return
	}
	out, err := s.backend.DeleteSession(r.Context(), who, id)
	if err != nil {
		s.sendBackendError(w, "delete session", err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, who, ok := s.queryRequest(w, r)
	if !ok {
		return
	}
	out, err := s.backend.Search(r.Context(), who, req.Query)
	if err != nil {
		s.sendBackendError(w, "search", err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) handleSMW(w http.ResponseWriter, r *http.Request) {
	req, who, ok := s.queryRequest(w, r)
	if !ok {
		return
	}
	out, err := s.backend.SMWQuery(r.Context(), who, req.Query)
	if err != nil {
		s.sendBackendError(w, "SMW query", err)
		return
	}
	writeRaw(w, out)
}

func (s *Server) queryRequest(w http.ResponseWriter, r *http.Request) (QueryRequest, auth.Identity, bool) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return req, auth.Identity{}, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		sendJSONError(w, http.StatusBadRequest, "query is required")
		return req, auth.Identity{}, false
	}
	who, ok := s.subjectOrDeny(w, r, req.Username)
	return req, who, ok
}

// intParam parses raw, returning def when empty. Values are clamped to
// [lo, hi]; hi < 0 means no upper bound.
func intParam(raw string, def, lo, hi int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if n < lo {
		n = lo
	}
	if hi >= 0 && n > hi {
		n = hi
	}
	return n, nil
}
