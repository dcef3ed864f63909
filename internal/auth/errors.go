// ABOUTME: Error taxonomy for token minting and request authorization
// ABOUTME: Rejections are opaque to callers; reason codes stay in logs

package auth

import "errors"

var (
	// ErrEncoding is returned by Mint when the claim set cannot be encoded.
	// No partial token is ever returned alongside it.
	ErrEncoding = errors.New("token encoding failed")

	// ErrAuthenticationRejected is returned for any bearer token that fails
	// verification. It never says which check failed.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrAuthorizationDenied is returned when a session identity lacks the
	// right to use the assistant.
	ErrAuthorizationDenied = errors.New("authorization denied")
)
