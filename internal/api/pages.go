// ABOUTME: Handlers over local pages: keyword search, access checks, edits, deletes and chat logs
// ABOUTME: Per-page decisions always use the request subject, never the token alone

package api

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/embeddings"
	"github.com/labki-org/mwassistant-gateway/internal/store"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
	maxAccessTitles    = 100
)

var unsafeSessionChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// KeywordHit is one result of GET /api/keyword-search.
type KeywordHit struct {
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Size      int    `json:"size"`
	WordCount int    `json:"wordcount"`
	Timestamp string `json:"timestamp"`
}

// CheckAccessRequest is the body of POST /api/check-access. Titles are
// pipe-separated.
type CheckAccessRequest struct {
	Titles   string `json:"titles"`
	Username string `json:"username,omitempty"`
}

// EditRequest is the body of POST /api/edit.
type EditRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Summary  string `json:"summary,omitempty"`
	Username string `json:"username,omitempty"`
}

// DeleteRequest is the body of POST /api/delete.
type DeleteRequest struct {
	Title    string `json:"title"`
	Reason   string `json:"reason,omitempty"`
	Username string `json:"username,omitempty"`
}

// ChatLogRequest is the body of POST /api/chatlog.
type ChatLogRequest struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (s *Server) handleKeywordSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		sendJSONError(w, http.StatusBadRequest, "query is required")
		return
	}
	limit, err := intParam(q.Get("limit"), defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	who, ok := s.subjectOrDeny(w, r, q.Get("username"))
	if !ok {
		return
	}

	hits, err := s.pages.SearchText(r.Context(), query, []int{wiki.NSMain}, limit)
	if err != nil {
		s.logger.Error("keyword search failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	results := make([]KeywordHit, 0, len(hits))
	for _, h := range hits {
		ok, err := s.permissions.CanRead(r.Context(), who, h.Title)
		if err != nil {
			s.logger.Warn("read check failed, hiding result", "page", h.Title.PrefixedText(s.names), "error", err)
			continue
		}
		if !ok {
			continue
		}
		results = append(results, KeywordHit{
			Title:     h.Title.PrefixedText(s.names),
			Snippet:   h.Snippet,
			Size:      h.Size,
			WordCount: h.WordCount,
			Timestamp: embeddings.FormatTimestamp(h.Touched),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	var req CheckAccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var titles []string
	for _, t := range strings.Split(req.Titles, "|") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		sendJSONError(w, http.StatusBadRequest, "titles cannot be empty")
		return
	}
	if len(titles) > maxAccessTitles {
		sendJSONError(w, http.StatusBadRequest, "at most 100 titles are allowed per request")
		return
	}

	who, ok := s.subjectOrDeny(w, r, req.Username)
	if !ok {
		return
	}

	access := make(map[string]bool, len(titles))
	for _, raw := range titles {
		title, err := wiki.ParseTitle(raw, s.names)
		if err != nil {
			access[raw] = false
			continue
		}
		allowed, err := s.permissions.CanRead(r.Context(), who, title)
		if err != nil {
			s.logger.Warn("read check failed, denying", "page", raw, "error", err)
			allowed = false
		}
		access[raw] = allowed
	}
	writeJSON(w, http.StatusOK, map[string]any{"access": access})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title, err := wiki.ParseTitle(req.Title, s.names)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid title")
		return
	}
	who, ok := s.subjectOrDeny(w, r, req.Username)
	if !ok {
		return
	}

	allowed, err := s.permissions.CanEdit(r.Context(), who, title)
	if err != nil {
		s.logger.Warn("edit check failed, denying", "page", title.PrefixedText(s.names), "error", err)
	}
	if err != nil || !allowed {
		sendJSONError(w, http.StatusForbidden, "permission denied")
		return
	}

	res, ok := s.save(w, r, who, title, req.Content, req.Summary, 0)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"title":       title.PrefixedText(s.names),
		"revision_id": res.RevisionID,
		"new":         res.New,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title, err := wiki.ParseTitle(req.Title, s.names)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid title")
		return
	}
	who, ok := s.subjectOrDeny(w, r, req.Username)
	if !ok {
		return
	}

	allowed, err := s.permissions.CanEdit(r.Context(), who, title)
	if err != nil {
		s.logger.Warn("delete check failed, denying", "page", title.PrefixedText(s.names), "error", err)
	}
	if err != nil || !allowed {
		sendJSONError(w, http.StatusForbidden, "permission denied")
		return
	}

	err = s.pages.DeletePage(r.Context(), title)
	if errors.Is(err, store.ErrNotFound) {
		sendJSONError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		s.logger.Error("deleting page", "page", title.PrefixedText(s.names), "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if s.embeddings != nil {
		s.embeddings.PageDeleted(embeddings.PageEvent{Title: title, Actor: who})
	}
	s.logger.Info("page deleted", "page", title.PrefixedText(s.names), "user", who.Name, "reason", req.Reason)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"title":   title.PrefixedText(s.names),
	})
}

func (s *Server) handleSaveChatLog(w http.ResponseWriter, r *http.Request) {
	who := auth.MustFromContext(r.Context()).Identity
	if who.IsAnonymous() {
		sendJSONError(w, http.StatusForbidden, "you must be logged in")
		return
	}

	var req ChatLogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sessionID := unsafeSessionChars.ReplaceAllString(req.SessionID, "")
	if sessionID == "" || req.Content == "" {
		sendJSONError(w, http.StatusBadRequest, "session_id and content are required")
		return
	}

	text := who.Name + "/ChatLogs/" + s.now().UTC().Format("2006-01-02") + "_" + sessionID
	title, err := wiki.NewTitle(wiki.NSUser, text)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid title")
		return
	}

	summary := "Updating chat log for session " + sessionID
	exists, err := s.pages.Exists(r.Context(), title)
	if err != nil {
		s.logger.Error("checking chat log page", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !exists {
		summary = "Creating chat log for session " + sessionID
	}

	if _, ok := s.save(w, r, who, title, req.Content, summary, store.EditInternal); !ok {
		return
	}
	prefixed := title.PrefixedText(s.names)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"title":   prefixed,
		"url":     s.cfg.PublicURL() + "/index.php?title=" + url.QueryEscape(strings.ReplaceAll(prefixed, " ", "_")),
	})
}

// save writes a revision as who and queues the page for embedding.
func (s *Server) save(w http.ResponseWriter, r *http.Request, who auth.Identity, title wiki.Title, text, summary string, flags store.EditFlags) (*store.EditResult, bool) {
	var author *store.User
	if !who.IsAnonymous() {
		author = &store.User{ID: who.ID, Name: who.Name}
	}
	res, err := s.pages.PutContent(r.Context(), title, text, summary, flags, author)
	if errors.Is(err, wiki.ErrInvalidTitle) {
		sendJSONError(w, http.StatusBadRequest, "invalid title")
		return nil, false
	}
	if err != nil {
		s.logger.Error("saving page", "page", title.PrefixedText(s.names), "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}

	if s.embeddings != nil {
		s.embeddings.PageSaved(embeddings.PageEvent{
			Title:      title,
			Content:    text,
			RevisionID: res.RevisionID,
			Touched:    res.Touched,
			Actor:      who,
		})
	}
	s.logger.Info("page saved", "page", title.PrefixedText(s.names), "user", who.Name, "new", res.New)
	return res, true
}
