// ABOUTME: Typed wrappers for each backend endpoint, one scope per endpoint
// ABOUTME: Chat, session management, vector search, SMW queries and page embeddings

package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
)

// DefaultMaxTokens is sent with every chat request.
const DefaultMaxTokens = 512

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat completion call.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
	Context   string        `json:"context"`
	SessionID string        `json:"session_id,omitempty"`
}

// PageEmbedding is the body of an embedding update.
type PageEmbedding struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	Namespace    int    `json:"namespace"`
	LastModified string `json:"last_modified,omitempty"`
}

// EmbeddingStats summarizes the backend's vector index. PageTimestamps maps
// prefixed titles to the touched timestamp of the embedded revision.
type EmbeddingStats struct {
	TotalVectors   int64             `json:"total_vectors"`
	PageTimestamps map[string]string `json:"page_timestamps"`
}

// Chat forwards a conversation to the backend. The response is passed
// through untouched.
func (c *Client) Chat(ctx context.Context, who auth.Identity, req ChatRequest) (json.RawMessage, error) {
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.Context == "" {
		req.Context = "chat"
	}
	if req.Messages == nil {
		req.Messages = []ChatMessage{}
	}
	var out json.RawMessage
	err := c.call(ctx, who, auth.ScopeChatCompletion, http.MethodPost, "/chat/", nil, req, &out)
	return out, err
}

// ListSessions lists who's chat sessions.
func (c *Client) ListSessions(ctx context.Context, who auth.Identity, limit, offset int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out json.RawMessage
	err := c.call(ctx, who, auth.ScopeChatCompletion, http.MethodGet, "/chat/sessions", q, nil, &out)
	return out, err
}

// GetSession returns one session with its message history.
func (c *Client) GetSession(ctx context.Context, who auth.Identity, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, who, auth.ScopeChatCompletion, http.MethodGet, "/chat/sessions/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// DeleteSession removes one session.
func (c *Client) DeleteSession(ctx context.Context, who auth.Identity, id string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, who, auth.ScopeChatCompletion, http.MethodDelete, "/chat/sessions/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Search runs a vector search.
func (c *Client) Search(ctx context.Context, who auth.Identity, query string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, who, auth.ScopeSearch, http.MethodPost, "/search/", nil, map[string]string{"query": query}, &out)
	return out, err
}

// SMWQuery runs a semantic query described in natural language or ask syntax.
func (c *Client) SMWQuery(ctx context.Context, who auth.Identity, query string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, who, auth.ScopeSMWQuery, http.MethodPost, "/smw-query/", nil, map[string]string{"query": query}, &out)
	return out, err
}

// UpdatePageEmbedding creates or refreshes the embedding of one page.
func (c *Client) UpdatePageEmbedding(ctx context.Context, who auth.Identity, page PageEmbedding) error {
	return c.call(ctx, who, auth.ScopeEmbeddings, http.MethodPost, "/embeddings/page", nil, page, nil)
}

// DeletePageEmbedding removes the embedding of one page.
func (c *Client) DeletePageEmbedding(ctx context.Context, who auth.Identity, title string) error {
	return c.call(ctx, who, auth.ScopeEmbeddings, http.MethodDelete, "/embeddings/page", nil, map[string]string{"title": title}, nil)
}

// EmbeddingStats fetches index statistics.
func (c *Client) EmbeddingStats(ctx context.Context, who auth.Identity) (*EmbeddingStats, error) {
	var out EmbeddingStats
	if err := c.call(ctx, who, auth.ScopeEmbeddings, http.MethodGet, "/embeddings/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.PageTimestamps == nil {
		out.PageTimestamps = map[string]string{}
	}
	return &out, nil
}
