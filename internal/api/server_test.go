// ABOUTME: End-to-end tests for the host API over a real store, permission engine and gate
// ABOUTME: The assistant backend and the embedding indexer are stubbed

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/config"
	"github.com/labki-org/mwassistant-gateway/internal/embeddings"
	"github.com/labki-org/mwassistant-gateway/internal/mcp"
	"github.com/labki-org/mwassistant-gateway/internal/permissions"
	"github.com/labki-org/mwassistant-gateway/internal/store"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

const (
	testHostSecret    = "api-test-host-to-backend-secret-0123456789"
	testBackendSecret = "api-test-backend-to-host-secret-9876543210"
)

type backendCall struct {
	Op    string
	Who   auth.Identity
	Arg   string
	Limit int
	Chat  mcp.ChatRequest
}

type stubBackend struct {
	mu    sync.Mutex
	calls []backendCall
	err   error
}

func (b *stubBackend) record(c backendCall) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	if b.err != nil {
		return nil, b.err
	}
	return json.RawMessage(`{"op":"` + c.Op + `"}`), nil
}

func (b *stubBackend) last(t *testing.T) backendCall {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.calls)
	return b.calls[len(b.calls)-1]
}

func (b *stubBackend) Chat(_ context.Context, who auth.Identity, req mcp.ChatRequest) (json.RawMessage, error) {
	return b.record(backendCall{Op: "chat", Who: who, Chat: req})
}

func (b *stubBackend) ListSessions(_ context.Context, who auth.Identity, limit, offset int) (json.RawMessage, error) {
	return b.record(backendCall{Op: "list", Who: who, Limit: limit})
}

func (b *stubBackend) GetSession(_ context.Context, who auth.Identity, id string) (json.RawMessage, error) {
	return b.record(backendCall{Op: "get", Who: who, Arg: id})
}

func (b *stubBackend) DeleteSession(_ context.Context, who auth.Identity, id string) (json.RawMessage, error) {
	return b.record(backendCall{Op: "delete", Who: who, Arg: id})
}

func (b *stubBackend) Search(_ context.Context, who auth.Identity, q string) (json.RawMessage, error) {
	return b.record(backendCall{Op: "search", Who: who, Arg: q})
}

func (b *stubBackend) SMWQuery(_ context.Context, who auth.Identity, q string) (json.RawMessage, error) {
	return b.record(backendCall{Op: "smw", Who: who, Arg: q})
}

type stubEmbeddings struct {
	mu      sync.Mutex
	saved   []embeddings.PageEvent
	deleted []embeddings.PageEvent
	batches []int
}

func (e *stubEmbeddings) PageSaved(ev embeddings.PageEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saved = append(e.saved, ev)
	return true
}

func (e *stubEmbeddings) PageDeleted(ev embeddings.PageEvent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, ev)
	return true
}

func (e *stubEmbeddings) BatchUpdate(_ context.Context, _ auth.Identity, ns int) (embeddings.BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, ns)
	return embeddings.BatchResult{Namespace: ns, Updated: 3}, nil
}

func (e *stubEmbeddings) Status(context.Context, auth.Identity) (*mcp.EmbeddingStats, []embeddings.NamespaceStatus, error) {
	return &mcp.EmbeddingStats{TotalVectors: 4, PageTimestamps: map[string]string{}},
		[]embeddings.NamespaceStatus{{Namespace: 0, Name: "(Main)", Total: 4, Synced: 4}}, nil
}

type fixture struct {
	t       *testing.T
	cfg     *config.Config
	store   *store.SQLiteStore
	server  *Server
	handler http.Handler
	backend *stubBackend
	embed   *stubEmbeddings
	alice   auth.Identity
	bob     auth.Identity
	// session ids
	aliceSession string
	bobSession   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	alice, err := st.CreateUser(ctx, "Alice")
	require.NoError(t, err)
	require.NoError(t, st.AddUserGroup(ctx, alice.ID, store.GroupSysop))
	bob, err := st.CreateUser(ctx, "Bob")
	require.NoError(t, err)
	aliceSess, err := st.CreateSession(ctx, alice.ID, time.Hour)
	require.NoError(t, err)
	bobSess, err := st.CreateSession(ctx, bob.ID, time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{
		Server:    config.ServerConfig{PublicURL: "https://wiki.example.org/"},
		Assistant: config.AssistantConfig{Enabled: true, WikiID: "labki-test", MCPBaseURL: "http://mcp.invalid"},
		Auth: config.AuthConfig{
			MWToMCPSecret: testHostSecret,
			MCPToMWSecret: testBackendSecret,
			TokenTTL:      300,
		},
	}

	engine := permissions.New(st, logger)
	verifier, err := auth.NewVerifier(cfg, logger)
	require.NoError(t, err)
	gate := auth.NewGate(verifier, engine, engine, logger, auth.WithAuditRecorder(st))

	backend := &stubBackend{}
	embed := &stubEmbeddings{}
	srv := New(Deps{
		Config:      cfg,
		Gate:        gate,
		Backend:     backend,
		Embeddings:  embed,
		Permissions: engine,
		Pages:       st,
		Logger:      logger,
	})
	srv.now = func() time.Time { return time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC) }

	return &fixture{
		t:            t,
		cfg:          cfg,
		store:        st,
		server:       srv,
		handler:      srv.Handler(),
		backend:      backend,
		embed:        embed,
		alice:        auth.Identity{Name: alice.Name, ID: alice.ID},
		bob:          auth.Identity{Name: bob.Name, ID: bob.ID},
		aliceSession: aliceSess.ID,
		bobSession:   bobSess.ID,
	}
}

// bearer signs a backend→host assertion carrying scopes.
func bearer(t *testing.T, scopes ...string) string {
	t.Helper()
	if scopes == nil {
		scopes = []string{}
	}
	now := time.Now().Unix()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   auth.BackendLabel,
		"aud":   auth.HostLabel,
		"iat":   now,
		"exp":   now + 300,
		"user":  "Alice",
		"scope": scopes,
	}).SignedString([]byte(testBackendSecret))
	require.NoError(t, err)
	return token
}

type reqOpt func(*http.Request)

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withSession(id string) reqOpt {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: config.DefaultSessionCookie, Value: id})
	}
}

func (f *fixture) do(method, target string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	f.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) putPage(title, text string) wiki.Title {
	f.t.Helper()
	tt, err := wiki.ParseTitle(title, wiki.DefaultNamespaces)
	require.NoError(f.t, err)
	_, err = f.store.PutContent(context.Background(), tt, text, "setup", 0, nil)
	require.NoError(f.t, err)
	return tt
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChat_Session(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"session_id": "s-1",
	}

	rec := f.do(http.MethodPost, "/api/chat", body, withSession(f.aliceSession))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"op":"chat"}`, rec.Body.String())

	call := f.backend.last(t)
	assert.Equal(t, f.alice, call.Who)
	assert.Equal(t, "s-1", call.Chat.SessionID)
	assert.Equal(t, []mcp.ChatMessage{{Role: "user", Content: "hi"}}, call.Chat.Messages)
}

func TestChat_RejectsBearerAndBadBodies(t *testing.T) {
	f := newFixture(t)
	msgs := map[string]any{"messages": []map[string]string{{"role": "user", "content": "hi"}}}

	rec := f.do(http.MethodPost, "/api/chat", msgs, withBearer(bearer(t, auth.ScopeChatCompletion)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", map[string]any{}, withSession(f.aliceSession))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", map[string]any{
		"messages": msgs["messages"], "context": "sidebar",
	}, withSession(f.aliceSession))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/chat", msgs)
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous lacks assistant-use")
	assert.Empty(t, f.backend.calls)
}

func TestAssistantDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Assistant.Enabled = false

	rec := f.do(http.MethodPost, "/api/search", map[string]string{"query": "x"}, withBearer(bearer(t, auth.ScopeSearch)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(http.MethodGet, "/api/embeddings/stats", nil, withSession(f.aliceSession))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.putPage("Alpha", "alpha text")
	rec = f.do(http.MethodGet, "/api/keyword-search?query=alpha", nil, withBearer(bearer(t, auth.ScopeSearch)))
	assert.Equal(t, http.StatusOK, rec.Code, "local routes keep working")
}

func TestSessions(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeChatCompletion)

	rec := f.do(http.MethodGet, "/api/sessions?username=Bob", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	call := f.backend.last(t)
	assert.Equal(t, "list", call.Op)
	assert.Equal(t, f.bob, call.Who)
	assert.Equal(t, defaultSessionLimit, call.Limit)

	rec = f.do(http.MethodGet, "/api/sessions?limit=abc", nil, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/sessions/abc-123", nil, withSession(f.aliceSession))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, backendCall{Op: "get", Who: f.alice, Arg: "abc-123"}, f.backend.last(t))

	rec = f.do(http.MethodDelete, "/api/sessions/abc-123", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	call = f.backend.last(t)
	assert.Equal(t, "delete", call.Op)
	assert.True(t, call.Who.IsAnonymous(), "bearer without username acts as anonymous")
}

func TestSearch_ScopeRequired(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/search", map[string]string{"query": "x"}, withBearer(bearer(t, auth.ScopeSMWQuery)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"access denied"}`, rec.Body.String())

	events, err := f.store.ListAuthEvents(context.Background(), store.AuthEventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(auth.ReasonMissingScope), events[0].Reason)

	rec = f.do(http.MethodPost, "/api/search", map[string]string{"query": " x ", "username": "Alice"},
		withBearer(bearer(t, auth.ScopeSearch, auth.ScopeSMWQuery)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, backendCall{Op: "search", Who: f.alice, Arg: "x"}, f.backend.last(t))

	rec = f.do(http.MethodPost, "/api/search", map[string]string{"query": "  "}, withBearer(bearer(t, auth.ScopeSearch)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSMW(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/smw", map[string]string{"query": "[[Category:Lab]]"}, withSession(f.bobSession))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, backendCall{Op: "smw", Who: f.bob, Arg: "[[Category:Lab]]"}, f.backend.last(t))
}

func TestBackendErrors(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeChatCompletion)

	f.backend.err = &mcp.BackendError{Status: http.StatusNotFound, Body: "no session"}
	rec := f.do(http.MethodGet, "/api/sessions/gone", nil, withBearer(token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no session")

	f.backend.err = errors.New("dial tcp: connection refused")
	rec = f.do(http.MethodGet, "/api/sessions/gone", nil, withBearer(token))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestKeywordSearch_FiltersBySubject(t *testing.T) {
	f := newFixture(t)
	f.putPage("Alpha guide", "how to use alpha")
	secret := f.putPage("Secret alpha", "classified")
	f.putPage("Help:Alpha", "help namespace is not searched")
	require.NoError(t, f.store.ProtectPage(context.Background(), secret, store.RightRead, store.GroupSysop))
	token := bearer(t, auth.ScopeSearch)

	titles := func(rec *httptest.ResponseRecorder) []string {
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out struct {
			Results []KeywordHit `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		var got []string
		for _, h := range out.Results {
			got = append(got, h.Title)
			assert.Len(t, h.Timestamp, 14)
		}
		return got
	}

	assert.ElementsMatch(t, []string{"Alpha guide", "Secret alpha"},
		titles(f.do(http.MethodGet, "/api/keyword-search?query=alpha&username=Alice", nil, withBearer(token))))
	assert.Equal(t, []string{"Alpha guide"},
		titles(f.do(http.MethodGet, "/api/keyword-search?query=alpha&username=Bob", nil, withBearer(token))))
	assert.Equal(t, []string{"Alpha guide"},
		titles(f.do(http.MethodGet, "/api/keyword-search?query=alpha", nil, withBearer(token))))
	assert.Equal(t, []string{"Alpha guide"},
		titles(f.do(http.MethodGet, "/api/keyword-search?query=alpha&username=Alice", nil, withSession(f.bobSession))),
		"session callers cannot borrow another user's permissions")
	assert.Len(t,
		titles(f.do(http.MethodGet, "/api/keyword-search?query=alpha&username=Alice&limit=0", nil, withBearer(token))), 1)
}

func TestKeywordSearch_BadParams(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeSearch)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/keyword-search", nil, withBearer(token)).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/keyword-search?query=a&limit=ten", nil, withBearer(token)).Code)
}

func TestCheckAccess(t *testing.T) {
	f := newFixture(t)
	secret := f.putPage("Secret", "x")
	require.NoError(t, f.store.ProtectPage(context.Background(), secret, store.RightRead, store.GroupSysop))
	require.NoError(t, f.store.RestrictNamespace(context.Background(), wiki.NSProject, store.RightRead, "staff"))
	token := bearer(t, auth.ScopeCheckAccess)

	rec := f.do(http.MethodPost, "/api/check-access", map[string]string{
		"titles":   "Main Page| Secret |Bad<title>||Project:Plans|Special:Version",
		"username": "Bob",
	}, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"access":{
		"Main Page": true,
		"Secret": false,
		"Bad<title>": false,
		"Project:Plans": false,
		"Special:Version": false
	}}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/api/check-access", map[string]string{"titles": "Secret", "username": "Alice"}, withBearer(token))
	assert.JSONEq(t, `{"access":{"Secret":true}}`, rec.Body.String())
}

func TestCheckAccess_Limits(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeCheckAccess)

	rec := f.do(http.MethodPost, "/api/check-access", map[string]string{"titles": " | "}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	many := make([]string, 101)
	for i := range many {
		many[i] = "Page " + string(rune('A'+i%26)) + strings.Repeat("x", i)
	}
	rec = f.do(http.MethodPost, "/api/check-access", map[string]string{"titles": strings.Join(many, "|")}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/check-access", map[string]string{"titles": strings.Join(many[:100], "|")}, withBearer(token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeMWAction)

	rec := f.do(http.MethodPost, "/api/edit", map[string]string{
		"title": "Project:Notes", "content": "first draft", "summary": "start", "username": "Bob",
	}, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["new"])
	assert.Equal(t, "Project:Notes", out["title"])

	text, ok, err := f.store.GetContent(context.Background(), wiki.Title{Namespace: wiki.NSProject, Text: "Notes"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first draft", text)

	require.Len(t, f.embed.saved, 1)
	assert.Equal(t, f.bob, f.embed.saved[0].Actor)
	assert.Equal(t, "first draft", f.embed.saved[0].Content)
}

func TestEdit_Denied(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeMWAction)
	locked := f.putPage("Locked", "x")
	require.NoError(t, f.store.ProtectPage(context.Background(), locked, store.RightEdit, store.GroupSysop))

	rec := f.do(http.MethodPost, "/api/edit", map[string]string{"title": "Anything", "content": "x"}, withBearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous subject cannot edit")

	rec = f.do(http.MethodPost, "/api/edit", map[string]string{"title": "Locked", "content": "y", "username": "Bob"}, withBearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/edit", map[string]string{"title": "Locked", "content": "y"}, withSession(f.aliceSession))
	assert.Equal(t, http.StatusOK, rec.Code, "sysop session may edit")

	rec = f.do(http.MethodPost, "/api/edit", map[string]string{"title": "Bad|title", "content": "y", "username": "Bob"}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/edit", map[string]string{"title": "Other", "content": "y", "username": "Bob"},
		withBearer(bearer(t, auth.ScopeSearch)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeMWAction)
	old := f.putPage("Project:Old notes", "stale")

	rec := f.do(http.MethodPost, "/api/delete", map[string]string{
		"title": "Project:Old_notes", "reason": "obsolete", "username": "Bob",
	}, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Project:Old notes", out["title"])

	exists, err := f.store.Exists(context.Background(), old)
	require.NoError(t, err)
	assert.False(t, exists)

	require.Len(t, f.embed.deleted, 1)
	assert.Equal(t, old, f.embed.deleted[0].Title)
	assert.Equal(t, f.bob, f.embed.deleted[0].Actor)

	rec = f.do(http.MethodPost, "/api/delete", map[string]string{"title": "Project:Old notes", "username": "Bob"}, withBearer(token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, f.embed.deleted, 1)
}

func TestDelete_Denied(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, auth.ScopeMWAction)
	locked := f.putPage("Locked", "x")
	require.NoError(t, f.store.ProtectPage(context.Background(), locked, store.RightEdit, store.GroupSysop))

	rec := f.do(http.MethodPost, "/api/delete", map[string]string{"title": "Locked"}, withBearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code, "anonymous subject cannot delete")

	rec = f.do(http.MethodPost, "/api/delete", map[string]string{"title": "Locked", "username": "Bob"}, withBearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/delete", map[string]string{"title": "Locked", "username": "Bob"},
		withBearer(bearer(t, auth.ScopeSearch)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/delete", map[string]string{"title": "Bad|title", "username": "Bob"}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	exists, err := f.store.Exists(context.Background(), locked)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Empty(t, f.embed.deleted)

	rec = f.do(http.MethodPost, "/api/delete", map[string]string{"title": "Locked"}, withSession(f.aliceSession))
	assert.Equal(t, http.StatusOK, rec.Code, "sysop session may delete")
}

func TestSaveChatLog(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/chatlog", map[string]string{
		"session_id": "ab/c 12", "content": "== Chat ==\nhello",
	}, withSession(f.aliceSession))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "User:Alice/ChatLogs/2025-06-01 abc12", out["title"])
	assert.Equal(t, "https://wiki.example.org/index.php?title=User%3AAlice%2FChatLogs%2F2025-06-01_abc12", out["url"])

	title := wiki.Title{Namespace: wiki.NSUser, Text: "Alice/ChatLogs/2025-06-01 abc12"}
	text, ok, err := f.store.GetContent(context.Background(), title)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "== Chat ==\nhello", text)

	rec = f.do(http.MethodPost, "/api/chatlog", map[string]string{"session_id": "abc12", "content": "v2"}, withSession(f.aliceSession))
	require.Equal(t, http.StatusOK, rec.Code)
	n, err := f.store.RevisionCount(context.Background(), title)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveChatLog_Rejections(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"session_id": "abc", "content": "x"}

	rec := f.do(http.MethodPost, "/api/chatlog", body, withBearer(bearer(t, auth.ScopeMWAction)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/chatlog", map[string]string{"session_id": "///", "content": "x"}, withSession(f.bobSession))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, f.store.GrantRight(context.Background(), store.GroupAll, store.RightAssistantUse))
	rec = f.do(http.MethodPost, "/api/chatlog", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"you must be logged in"}`, rec.Body.String())
}

func TestEmbeddingRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/embeddings/stats", nil, withSession(f.aliceSession))
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, float64(4), out["total_vectors"])
	assert.Len(t, out["namespaces"], 1)

	rec = f.do(http.MethodGet, "/api/embeddings/stats", nil, withBearer(bearer(t, auth.ScopeEmbeddings)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/embeddings/batch", map[string]int{"namespace": wiki.NSHelp}, withSession(f.aliceSession))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"namespace":12,"updated":3,"skipped":0,"errors":0}`, rec.Body.String())

	for _, ns := range []int{wiki.NSTalk, wiki.NSUser, wiki.NSSpecial, 999} {
		rec = f.do(http.MethodPost, "/api/embeddings/batch", map[string]int{"namespace": ns}, withSession(f.aliceSession))
		assert.Equal(t, http.StatusBadRequest, rec.Code, ns)
	}
	assert.Equal(t, []int{wiki.NSHelp}, f.embed.batches)
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 10, false},
		{"5", 5, false},
		{"0", 1, false},
		{"500", 50, false},
		{" 7 ", 7, false},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := intParam(tt.raw, 10, 1, 50)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
