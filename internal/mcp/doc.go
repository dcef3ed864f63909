// Package mcp is the host's client for the assistant backend.
//
// Each call resolves the caller's groups, mints one short-lived assertion
// carrying exactly the scope the endpoint needs, and sends it as
//
//	Authorization: Bearer <token>
//
// Endpoints and their scopes:
//
//   - POST /chat/, GET /chat/sessions, GET|DELETE /chat/sessions/{id}: chat_completion
//   - POST /search/: search
//   - POST /smw-query/: smw_query
//   - POST|DELETE /embeddings/page, GET /embeddings/stats: embeddings
//
// Transport errors and 5xx responses are retried a configured number of
// times. Any other non-2xx status surfaces as a *BackendError.
package mcp
