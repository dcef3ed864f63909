// ABOUTME: Tests for host→backend token minting
// ABOUTME: Checks the exact claim contract, username normalization and signature round trips

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labki-org/mwassistant-gateway/internal/config"
)

type staticAllowList []int

func (s staticAllowList) Resolve(context.Context, Identity) []int { return s }

func newTestSigner(t *testing.T, namespaces AllowListResolver) *Signer {
	t.Helper()
	s, err := NewSigner(testConfig(), namespaces, WithSignerClock(fixedClock))
	require.NoError(t, err)
	return s
}

func TestMint_AliceScenario(t *testing.T) {
	s := newTestSigner(t, staticAllowList{0, 2, 12})
	alice := Identity{Name: "Alice", ID: 7}

	token, err := s.Mint(context.Background(), alice, []string{"sysop"}, []string{ScopeChatCompletion})
	require.NoError(t, err)

	payload := decodePayload(t, token)
	assert.Equal(t, "Alice", payload["user"])
	assert.Equal(t, json.Number("7"), payload["user_id"])
	assert.Equal(t, []any{ScopeChatCompletion}, payload["scope"])
	assert.Equal(t, []any{"sysop"}, payload["roles"])
	assert.Equal(t, HostLabel, payload["iss"])
	assert.Equal(t, BackendLabel, payload["aud"])
	assert.Equal(t, "labki-test", payload["wiki_id"])
	assert.Equal(t, []any{json.Number("0"), json.Number("2"), json.Number("12")}, payload["allowed_namespaces"])
	assert.NotEmpty(t, payload["jti"])

	iat, err := payload["iat"].(json.Number).Int64()
	require.NoError(t, err)
	exp, err := payload["exp"].(json.Number).Int64()
	require.NoError(t, err)
	assert.Equal(t, testNow.Unix(), iat)
	assert.Equal(t, int64(testTTLSeconds), exp-iat)
}

func TestMint_ExactClaimSet(t *testing.T) {
	s := newTestSigner(t, nil)

	token, err := s.Mint(context.Background(), Identity{Name: "Bob", ID: 3}, nil, nil)
	require.NoError(t, err)

	payload := decodePayload(t, token)
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t,
		[]string{"iss", "aud", "iat", "exp", "jti", "user", "user_id", "wiki_id", "roles", "scope", "allowed_namespaces"},
		keys)

	parts := splitToken(t, token)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"roles":[]`)
	assert.Contains(t, string(raw), `"scope":[]`)
	assert.Contains(t, string(raw), `"allowed_namespaces":[]`)
}

func TestMint_Header(t *testing.T) {
	s := newTestSigner(t, nil)
	token, err := s.Mint(context.Background(), Identity{Name: "Bob", ID: 3}, nil, []string{ScopeSearch})
	require.NoError(t, err)

	parts := splitToken(t, token)
	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"HS256","typ":"JWT"}`, string(header))

	for _, p := range parts {
		assert.NotContains(t, p, "=", "segments carry no padding")
		assert.NotContains(t, p, "+")
		assert.NotContains(t, p, "/")
	}
}

func TestMint_PreservesOrder(t *testing.T) {
	s := newTestSigner(t, nil)
	token, err := s.Mint(context.Background(), Identity{Name: "Bob", ID: 3},
		[]string{"user", "sysop", "bureaucrat"}, []string{ScopeSearch, ScopeChatCompletion})
	require.NoError(t, err)

	payload := decodePayload(t, token)
	assert.Equal(t, []any{"user", "sysop", "bureaucrat"}, payload["roles"])
	assert.Equal(t, []any{ScopeSearch, ScopeChatCompletion}, payload["scope"])
}

func TestMint_FreshNoncePerToken(t *testing.T) {
	s := newTestSigner(t, nil)
	who := Identity{Name: "Alice", ID: 7}

	a, err := s.Mint(context.Background(), who, nil, nil)
	require.NoError(t, err)
	b, err := s.Mint(context.Background(), who, nil, nil)
	require.NoError(t, err)

	assert.NotEqual(t, decodePayload(t, a)["jti"], decodePayload(t, b)["jti"])
	assert.NotEqual(t, a, b)
}

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "Alice", "Alice"},
		{"composed stays", "Caf\u00e9", "Caf\u00e9"},
		{"decomposed becomes composed", "Cafe\u0301", "Caf\u00e9"},
		{"invalid utf-8 replaced", "Al\xffice", "Al\uFFFDice"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUsername(tt.in))
		})
	}
}

func TestMint_NormalizesUsername(t *testing.T) {
	s := newTestSigner(t, nil)
	token, err := s.Mint(context.Background(), Identity{Name: "Jose\u0301\xfe", ID: 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Jos\u00e9\uFFFD", decodePayload(t, token)["user"])
}

func TestNewSigner_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing secret", func(c *config.Config) { c.Auth.MWToMCPSecret = "" }},
		{"zero ttl", func(c *config.Config) { c.Auth.TokenTTL = 0 }},
		{"negative ttl", func(c *config.Config) { c.Auth.TokenTTL = -5 }},
		{"missing wiki id", func(c *config.Config) { c.Assistant.WikiID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			s, err := NewSigner(cfg, nil)
			assert.ErrorIs(t, err, config.ErrInvalid)
			assert.Nil(t, s)
		})
	}
}

func TestMint_RoundTripWithSymmetricPair(t *testing.T) {
	s := newTestSigner(t, staticAllowList{0})

	// a verifier that accepts host-minted tokens: same secret, mirrored labels
	v := newTestVerifier(t)
	v.secret = []byte(testHostSecret)
	v.issuer = HostLabel
	v.audience = BackendLabel

	scopeSets := [][]string{
		{ScopeChatCompletion},
		{ScopeSearch, ScopeEmbeddings},
		{ScopeCheckAccess, ScopeSMWQuery, ScopeMWAction},
		{},
	}
	for _, scopes := range scopeSets {
		token, err := s.Mint(context.Background(), Identity{Name: "Alice", ID: 7}, []string{"user"}, scopes)
		require.NoError(t, err)

		res := v.Verify(token, scopes)
		require.True(t, res.OK(), "scopes %v: %s", scopes, res.Reason)
		assert.True(t, HasScopes(res.Claims.Scopes(), scopes))
	}
}

func TestMint_OtherDirectionRejects(t *testing.T) {
	s := newTestSigner(t, nil)
	token, err := s.Mint(context.Background(), Identity{Name: "Alice", ID: 7}, nil, []string{ScopeSearch})
	require.NoError(t, err)

	// a host-minted token is signed with the other secret
	res := newTestVerifier(t).Verify(token, nil)
	assert.Equal(t, ReasonSignature, res.Reason)
}

func TestHS256_SignThenVerify(t *testing.T) {
	inputs := []string{"", "a.b", strings.Repeat("x", 1000), "héader.päyload"}
	for _, in := range inputs {
		sig, err := jwt.SigningMethodHS256.Sign(in, []byte(testHostSecret))
		require.NoError(t, err)
		assert.NoError(t, jwt.SigningMethodHS256.Verify(in, sig, []byte(testHostSecret)))
		assert.Error(t, jwt.SigningMethodHS256.Verify(in+"x", sig, []byte(testHostSecret)))
	}
}

func TestMint_ExpiryIsIatPlusTTL(t *testing.T) {
	now := time.Unix(1_800_000_123, 999_000_000)
	cfg := testConfig()
	cfg.Auth.TokenTTL = 45
	s, err := NewSigner(cfg, nil, WithSignerClock(func() time.Time { return now }))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, s.TTL())

	token, err := s.Mint(context.Background(), Identity{Name: "A", ID: 1}, nil, nil)
	require.NoError(t, err)

	payload := decodePayload(t, token)
	assert.Equal(t, json.Number("1800000123"), payload["iat"])
	assert.Equal(t, json.Number("1800000168"), payload["exp"])
}
