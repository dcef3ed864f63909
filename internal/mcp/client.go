// ABOUTME: HTTP client for the assistant backend; every call carries a freshly minted assertion
// ABOUTME: Retries transport failures and 5xx responses with a bounded, context-aware delay

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/config"
)

// maxResponseBody caps how much of a backend response is read.
const maxResponseBody = 8 << 20

// maxErrorExcerpt caps the body text kept on a BackendError.
const maxErrorExcerpt = 512

// Minter issues host→backend assertions.
type Minter interface {
	Mint(ctx context.Context, who auth.Identity, roles, scopes []string) (string, error)
}

// BackendError is returned when the backend answers with a non-2xx status.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("assistant backend returned %d", e.Status)
	}
	return fmt.Sprintf("assistant backend returned %d: %s", e.Status, e.Body)
}

// Client talks to the assistant backend on behalf of a wiki user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	minter     Minter
	roles      auth.RoleLookup
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a backend client from the assistant section of cfg.
// An empty base URL is a configuration error.
func NewClient(cfg *config.Config, minter Minter, roles auth.RoleLookup, opts ...Option) (*Client, error) {
	base, err := cfg.MCPBaseURL()
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Assistant.RequestTimeout},
		minter:     minter,
		roles:      roles,
		retries:    cfg.Assistant.Retries,
		retryDelay: cfg.Assistant.RetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "mcp-client")
	return c, nil
}

// call mints one assertion for who with scope, sends the request and decodes
// a 2xx JSON response into out. out may be nil.
func (c *Client) call(ctx context.Context, who auth.Identity, scope, method, path string, query url.Values, payload, out any) error {
	roles, err := c.roles.Groups(ctx, who)
	if err != nil {
		return fmt.Errorf("resolving roles: %w", err)
	}
	token, err := c.minter.Mint(ctx, who, roles, []string{scope})
	if err != nil {
		return fmt.Errorf("minting assertion: %w", err)
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	status, respBody, err := c.requestJSON(ctx, method, target, body, token)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if status < 200 || status > 299 {
		c.logger.Warn("backend request failed", "method", method, "path", path, "status", status)
		return &BackendError{Status: status, Body: excerpt(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// requestJSON performs the request, retrying transport errors and 5xx
// responses up to c.retries extra times.
func (c *Client) requestJSON(ctx context.Context, method, target string, body []byte, token string) (int, []byte, error) {
	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.retryDelay); err != nil {
				return 0, nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return 0, nil, err
			}
			c.logger.Debug("backend transport error", "attempt", attempt+1, "error", err)
			continue
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode >= 500 && attempt < attempts-1 {
			c.logger.Debug("backend server error, retrying", "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}
		return resp.StatusCode, respBody, nil
	}
	return 0, nil, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func excerpt(body []byte) string {
	s := string(bytes.TrimSpace(body))
	if len(s) > maxErrorExcerpt {
		s = s[:maxErrorExcerpt]
	}
	return s
}

// StatusOf returns the backend status carried by err, or 0.
func StatusOf(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}
