// ABOUTME: Mints HS256 host→backend assertions carrying identity, roles, scopes and namespaces
// ABOUTME: Secret, TTL and wiki id are read once at construction; minting never touches config

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/labki-org/mwassistant-gateway/internal/config"
)

// Signer mints host→backend tokens. It is safe for concurrent use.
type Signer struct {
	secret     []byte
	ttl        time.Duration
	wikiID     string
	namespaces AllowListResolver
	clock      func() time.Time
	newID      func() string
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithSignerClock overrides the time source used for iat.
func WithSignerClock(clock func() time.Time) SignerOption {
	return func(s *Signer) { s.clock = clock }
}

// NewSigner reads the host→backend secret, token TTL and wiki id from cfg.
// A missing value is a configuration error wrapping config.ErrInvalid.
// namespaces may be nil, in which case tokens carry an empty allow-list.
func NewSigner(cfg *config.Config, namespaces AllowListResolver, opts ...SignerOption) (*Signer, error) {
	secret, err := cfg.MWToMCPSecret()
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.TokenTTL()
	if err != nil {
		return nil, err
	}
	wikiID, err := cfg.WikiID()
	if err != nil {
		return nil, err
	}

	s := &Signer{
		secret:     secret,
		ttl:        ttl,
		wikiID:     wikiID,
		namespaces: namespaces,
		clock:      time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime of minted tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint returns a signed assertion for who. roles and scopes are embedded in
// the order given.
func (s *Signer) Mint(ctx context.Context, who Identity, roles, scopes []string) (string, error) {
	allowed := []int{}
	if s.namespaces != nil {
		allowed = s.namespaces.Resolve(ctx, who)
	}

	claims := s.claims(who, roles, scopes, allowed)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return token, nil
}

func (s *Signer) claims(who Identity, roles, scopes []string, allowed []int) AssistantClaims {
	iat := s.clock().Unix()
	return AssistantClaims{
		Issuer:            HostLabel,
		Audience:          BackendLabel,
		IssuedAt:          iat,
		ExpiresAt:         iat + int64(s.ttl/time.Second),
		ID:                s.newID(),
		User:              NormalizeUsername(who.Name),
		UserID:            who.ID,
		WikiID:            s.wikiID,
		Roles:             nonNil(roles),
		Scope:             nonNil(scopes),
		AllowedNamespaces: nonNil(allowed),
	}
}

// NormalizeUsername replaces invalid UTF-8 with U+FFFD and applies Unicode
// NFC so the backend sees one spelling per name.
func NormalizeUsername(name string) string {
	return norm.NFC.String(strings.ToValidUTF8(name, "\uFFFD"))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
