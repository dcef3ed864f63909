// ABOUTME: Host HTTP API: routes, dependencies and shared JSON helpers
// ABOUTME: Every /api route sits behind the access gate with the scope its operation needs

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/config"
	"github.com/labki-org/mwassistant-gateway/internal/embeddings"
	"github.com/labki-org/mwassistant-gateway/internal/mcp"
	"github.com/labki-org/mwassistant-gateway/internal/store"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// MaxRequestBodySize is the maximum accepted request body (1MB).
const MaxRequestBodySize = 1 << 20

// Backend is the part of the backend client the API forwards to.
type Backend interface {
	Chat(ctx context.Context, who auth.Identity, req mcp.ChatRequest) (json.RawMessage, error)
	ListSessions(ctx context.Context, who auth.Identity, limit, offset int) (json.RawMessage, error)
	GetSession(ctx context.Context, who auth.Identity, id string) (json.RawMessage, error)
	DeleteSession(ctx context.Context, who auth.Identity, id string) (json.RawMessage, error)
	Search(ctx context.Context, who auth.Identity, query string) (json.RawMessage, error)
	SMWQuery(ctx context.Context, who auth.Identity, query string) (json.RawMessage, error)
}

// Embeddings is the part of the indexer the API drives.
type Embeddings interface {
	PageSaved(ev embeddings.PageEvent) bool
	PageDeleted(ev embeddings.PageEvent) bool
	BatchUpdate(ctx context.Context, who auth.Identity, namespace int) (embeddings.BatchResult, error)
	Status(ctx context.Context, who auth.Identity) (*mcp.EmbeddingStats, []embeddings.NamespaceStatus, error)
}

// Permissions answers per-resource questions about the request subject.
type Permissions interface {
	CanRead(ctx context.Context, who auth.Identity, title wiki.Title) (bool, error)
	CanEdit(ctx context.Context, who auth.Identity, title wiki.Title) (bool, error)
	ResolveUser(ctx context.Context, name string) (auth.Identity, error)
}

// Pages is the page repository the API reads and writes locally.
type Pages interface {
	PutContent(ctx context.Context, title wiki.Title, text, summary string, flags store.EditFlags, author *store.User) (*store.EditResult, error)
	DeletePage(ctx context.Context, title wiki.Title) error
	Exists(ctx context.Context, title wiki.Title) (bool, error)
	SearchText(ctx context.Context, query string, namespaces []int, limit int) ([]store.SearchHit, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Config      *config.Config
	Gate        *auth.Gate
	Backend     Backend
	Embeddings  Embeddings
	Permissions Permissions
	Pages       Pages
	Names       wiki.NamespaceNames
	Logger      *slog.Logger
}

// Server serves the host API.
type Server struct {
	cfg         *config.Config
	gate        *auth.Gate
	backend     Backend
	embeddings  Embeddings
	permissions Permissions
	pages       Pages
	names       wiki.NamespaceNames
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Server from d.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	names := d.Names
	if names == nil {
		names = wiki.DefaultNamespaces
	}
	return &Server{
		cfg:         d.Config,
		gate:        d.Gate,
		backend:     d.Backend,
		embeddings:  d.Embeddings,
		permissions: d.Permissions,
		pages:       d.Pages,
		names:       names,
		logger:      logger.With("component", "api"),
		now:         time.Now,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(s.gate.RequireSession(), s.requireAssistant).Post("/chat", s.handleChat)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.Require(auth.ScopeChatCompletion), s.requireAssistant)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
		})

		r.With(s.gate.Require(auth.ScopeSearch), s.requireAssistant).Post("/search", s.handleSearch)
		r.With(s.gate.Require(auth.ScopeSearch)).Get("/keyword-search", s.handleKeywordSearch)
		r.With(s.gate.Require(auth.ScopeCheckAccess)).Post("/check-access", s.handleCheckAccess)
		r.With(s.gate.Require(auth.ScopeSMWQuery), s.requireAssistant).Post("/smw", s.handleSMW)
		r.With(s.gate.Require(auth.ScopeMWAction)).Post("/edit", s.handleEdit)
		r.With(s.gate.Require(auth.ScopeMWAction)).Post("/delete", s.handleDelete)
		r.With(s.gate.RequireSession()).Post("/chatlog", s.handleSaveChatLog)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.RequireSession(), s.requireAssistant)
			r.Get("/embeddings/stats", s.handleEmbeddingStats)
			r.Post("/embeddings/batch", s.handleEmbeddingBatch)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAssistant answers 503 when the backend is switched off.
func (s *Server) requireAssistant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Assistant.Enabled {
			sendJSONError(w, http.StatusServiceUnavailable, "assistant is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// subject returns the identity whose permissions govern the request. On the
// session path it is the session user. On the bearer path it is username,
// resolved through the permission engine; absent or unknown names mean
// anonymous. The token itself never grants per-resource access.
func (s *Server) subject(r *http.Request, username string) (auth.Identity, error) {
	ac := auth.MustFromContext(r.Context())
	if !ac.IsBearer() {
		return ac.Identity, nil
	}
	return s.permissions.ResolveUser(r.Context(), username)
}

// subjectOrDeny resolves the subject and writes 403 when that fails.
func (s *Server) subjectOrDeny(w http.ResponseWriter, r *http.Request, username string) (auth.Identity, bool) {
	who, err := s.subject(r, username)
	if err != nil {
		s.logger.Error("resolving request subject", "error", err)
		sendJSONError(w, http.StatusForbidden, "access denied")
		return auth.Identity{}, false
	}
	return who, true
}

// sendBackendError maps a backend failure onto a response. 4xx statuses
// from the backend pass through; everything else is a 502.
func (s *Server) sendBackendError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, config.ErrInvalid) {
		s.logger.Error("configuration error", "op", op, "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	status := mcp.StatusOf(err)
	s.logger.Warn("backend call failed", "op", op, "status", status, "error", err)
	if status >= 400 && status < 500 {
		sendJSONError(w, status, fmt.Sprintf("assistant %s failed", op))
		return
	}
	sendJSONError(w, http.StatusBadGateway, "assistant backend unavailable")
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw passes a backend JSON document through.
func writeRaw(w http.ResponseWriter, body json.RawMessage) {
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
