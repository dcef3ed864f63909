// ABOUTME: Shared fixtures for auth tests: configs, fixed clocks and hand-built tokens

package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/labki-org/mwassistant-gateway/internal/config"
)

const (
	testHostSecret    = "host-to-backend-secret-for-tests-0123456789"
	testBackendSecret = "backend-to-host-secret-for-tests-9876543210"
	testTTLSeconds    = 300
)

// testNow is the fixed "current time" used by verifier tests.
var testNow = time.Unix(1_750_000_000, 0)

func fixedClock() time.Time { return testNow }

func testConfig() *config.Config {
	return &config.Config{
		Assistant: config.AssistantConfig{WikiID: "labki-test", MCPBaseURL: "http://mcp.invalid"},
		Auth: config.AuthConfig{
			MWToMCPSecret: testHostSecret,
			MCPToMWSecret: testBackendSecret,
			TokenTTL:      testTTLSeconds,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestVerifier(t *testing.T, opts ...VerifierOption) *Verifier {
	t.Helper()
	opts = append([]VerifierOption{WithClock(fixedClock)}, opts...)
	v, err := NewVerifier(testConfig(), discardLogger(), opts...)
	require.NoError(t, err)
	return v
}

// backendClaims returns a valid backend→host claim set at testNow.
func backendClaims(scopes ...string) jwt.MapClaims {
	if scopes == nil {
		scopes = []string{}
	}
	return jwt.MapClaims{
		"iss":   BackendLabel,
		"aud":   HostLabel,
		"iat":   testNow.Unix(),
		"exp":   testNow.Add(time.Minute).Unix(),
		"scope": scopes,
	}
}

func signHS256(t *testing.T, claims jwt.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func segment(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(data)
}

func rawSegment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// decodePayload returns the payload of a minted token as a generic map.
func decodePayload(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := splitToken(t, token)
	data, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out))
	return out
}

func splitToken(t *testing.T, token string) []string {
	t.Helper()
	parts := bytes.Split([]byte(token), []byte("."))
	require.Len(t, parts, 3)
	return []string{string(parts[0]), string(parts[1]), string(parts[2])}
}

// flip returns s with the byte at i replaced by a different base64url letter.
func flip(s string, i int) string {
	b := []byte(s)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}
