// Package auth implements the trust boundary between the host and the
// assistant backend.
//
// # Token Directions
//
// Two HS256 flows, one secret per direction:
//
//   - Host→backend (Signer): {iss:"MWAssistant", aud:"mw-mcp-server", iat, exp,
//     jti, user, user_id, wiki_id, roles, scope, allowed_namespaces}. exp is
//     always iat plus the configured TTL. A fresh token is minted per call.
//   - Backend→host (Verifier): {iss:"mw-mcp-server", aud:"MWAssistant", iat,
//     exp, scope}. Extra fields are ignored. A "user" claim is never trusted.
//
// Tokens travel as "Authorization: Bearer <token>".
//
// # Verification
//
// Verify runs its checks in a fixed order and stops at the first failure:
//
//	malformed_token → invalid_encoding → invalid_json → invalid_algorithm →
//	invalid_signature → invalid_claims → invalid_issuer / invalid_audience →
//	issued_in_future → token_expired → invalid_scope_claim / missing_scope
//
// iat and exp are checked against the current time with a leeway (10s by
// default). The signature is compared in constant time. A panic inside
// Verify becomes the verification_panic rejection.
//
// # Namespace Allow-List
//
// NamespaceResolver asks the permission engine whether a reserved,
// never-existing page is readable in each non-negative namespace. The list
// is a coarse pre-filter; resource-level checks still apply. Engine errors
// exclude only the failing namespace.
//
// # Gate
//
// Gate.Require(scopes...) accepts either a bearer token carrying the scopes
// or a session whose user holds the "assistant-use" right. Both kinds of
// rejection produce 403 {"error":"access denied"}. The specific reason is
// logged and, with an AuditRecorder, stored as an auth event.
//
// Handlers read the decision with FromContext. On the bearer path there is
// no subject; operations that act for a user take an explicit username and
// check it through the permission engine.
package auth
