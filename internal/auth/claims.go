// ABOUTME: Claim sets for both token directions
// ABOUTME: AssistantClaims is minted by the host; Claims is the verified backend payload

package auth

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Fixed issuer and audience labels. Host-minted tokens go from HostLabel to
// BackendLabel; backend-minted tokens go the other way.
const (
	HostLabel    = "MWAssistant"
	BackendLabel = "mw-mcp-server"
)

// AssistantClaims is the host→backend claim set. Field order is the wire
// order of the payload.
type AssistantClaims struct {
	Issuer            string   `json:"iss"`
	Audience          string   `json:"aud"`
	IssuedAt          int64    `json:"iat"`
	ExpiresAt         int64    `json:"exp"`
	ID                string   `json:"jti"`
	User              string   `json:"user"`
	UserID            int64    `json:"user_id"`
	WikiID            string   `json:"wiki_id"`
	Roles             []string `json:"roles"`
	Scope             []string `json:"scope"`
	AllowedNamespaces []int    `json:"allowed_namespaces"`
}

func (c AssistantClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c AssistantClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c AssistantClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

func (c AssistantClaims) GetIssuer() (string, error) { return c.Issuer, nil }

func (c AssistantClaims) GetSubject() (string, error) { return c.User, nil }

func (c AssistantClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

var _ jwt.Claims = AssistantClaims{}

// Claims is a verified backend→host payload. Numbers are json.Number.
// Unknown fields are kept. There is deliberately no accessor for a subject:
// a "user" claim on an inbound token is never trusted.
type Claims map[string]any

// Issuer returns the iss claim.
func (c Claims) Issuer() string { return stringClaim(c, "iss") }

// Audience returns the aud claim.
func (c Claims) Audience() string { return stringClaim(c, "aud") }

// IssuedAt returns the iat claim, or the zero time if absent.
func (c Claims) IssuedAt() time.Time { return timeClaim(c, "iat") }

// ExpiresAt returns the exp claim, or the zero time if absent.
func (c Claims) ExpiresAt() time.Time { return timeClaim(c, "exp") }

// Scopes returns the string entries of the scope claim.
func (c Claims) Scopes() []string {
	scopes, _ := scopeList(c["scope"])
	return scopes
}

func stringClaim(c Claims, key string) string {
	s, _ := c[key].(string)
	return s
}

func timeClaim(c Claims, key string) time.Time {
	v, ok := integerClaim(c[key])
	if !ok {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

// integerClaim accepts json.Number values that parse as int64.
func integerClaim(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}

// scopeList returns the scope array when it is an array of strings.
func scopeList(v any) ([]string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
