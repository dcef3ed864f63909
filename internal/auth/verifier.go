// ABOUTME: Verifies HS256 backend→host assertions with ordered, short-circuiting checks
// ABOUTME: Each failure has its own reason code for logs; callers only see "rejected"

package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/labki-org/mwassistant-gateway/internal/config"
)

// Reason identifies why a token was rejected. Reasons are logged, never
// returned to the remote caller.
type Reason string

const (
	ReasonMalformed         Reason = "malformed_token"
	ReasonEncoding          Reason = "invalid_encoding"
	ReasonJSON              Reason = "invalid_json"
	ReasonAlgorithm         Reason = "invalid_algorithm"
	ReasonSignature         Reason = "invalid_signature"
	ReasonClaims            Reason = "invalid_claims"
	ReasonIssuer            Reason = "invalid_issuer"
	ReasonAudience          Reason = "invalid_audience"
	ReasonIssuedInFuture    Reason = "issued_in_future"
	ReasonExpired           Reason = "token_expired"
	ReasonScopeClaim        Reason = "invalid_scope_claim"
	ReasonMissingScope      Reason = "missing_scope"
	ReasonVerificationPanic Reason = "verification_panic"
)

// Result is either a verified claim set (Reason empty) or a rejection.
type Result struct {
	Claims Claims
	Reason Reason
}

// OK reports whether the token was accepted.
func (r Result) OK() bool { return r.Reason == "" }

// TokenVerifier checks inbound bearer tokens against required scopes.
type TokenVerifier interface {
	Verify(token string, requiredScopes []string) Result
}

// maxExcerpt caps the length of claim values copied into logs.
const maxExcerpt = 64

var (
	errNotObject    = errors.New("not a JSON object")
	errTrailingData = errors.New("trailing data after JSON object")
)

// Verifier checks backend→host tokens. It is safe for concurrent use.
type Verifier struct {
	secret    []byte
	leeway    int64 // seconds
	issuer    string
	audience  string
	parser    *jwt.Parser
	sigParser *jwt.Parser // unpadded only
	logger    *slog.Logger
	clock     func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source used for iat/exp checks.
func WithClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) { v.clock = clock }
}

// NewVerifier reads the backend→host secret and leeway from cfg. A missing
// secret is a configuration error wrapping config.ErrInvalid.
func NewVerifier(cfg *config.Config, logger *slog.Logger, opts ...VerifierOption) (*Verifier, error) {
	secret, err := cfg.MCPToMWSecret()
	if err != nil {
		return nil, err
	}
	leeway, err := cfg.Leeway()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := &Verifier{
		secret:    secret,
		leeway:    int64(leeway / time.Second),
		issuer:    BackendLabel,
		audience:  HostLabel,
		parser:    jwt.NewParser(jwt.WithPaddingAllowed(), jwt.WithStrictDecoding()),
		sigParser: jwt.NewParser(jwt.WithStrictDecoding()),
		logger:    logger.With("component", "token-verifier"),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify runs every check in order and stops at the first failure. It never
// panics; an unexpected fault becomes a verification_panic rejection.
func (v *Verifier) Verify(token string, requiredScopes []string) (res Result) {
	var payload map[string]any
	defer func() {
		if p := recover(); p != nil {
			v.logger.Error("token verification panicked", "panic", fmt.Sprint(p))
			res = Result{Reason: ReasonVerificationPanic}
		}
	}()

	reject := func(reason Reason) Result {
		v.logRejection(reason, payload)
		return Result{Reason: reason}
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return reject(ReasonMalformed)
	}

	headerJSON, err := v.parser.DecodeSegment(parts[0])
	if err != nil {
		return reject(ReasonEncoding)
	}
	payloadJSON, err := v.parser.DecodeSegment(parts[1])
	if err != nil {
		return reject(ReasonEncoding)
	}

	header, err := decodeObject(headerJSON)
	if err != nil {
		return reject(ReasonJSON)
	}
	if payload, err = decodeObject(payloadJSON); err != nil {
		return reject(ReasonJSON)
	}

	if alg, _ := header["alg"].(string); alg != jwt.SigningMethodHS256.Alg() {
		return reject(ReasonAlgorithm)
	}

	// The signature must be the exact unpadded encoding the backend emits.
	sig, err := v.sigParser.DecodeSegment(parts[2])
	if err != nil {
		return reject(ReasonSignature)
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, v.secret); err != nil {
		return reject(ReasonSignature)
	}

	iss, issOK := payload["iss"].(string)
	aud, audOK := payload["aud"].(string)
	iat, iatOK := integerClaim(payload["iat"])
	exp, expOK := integerClaim(payload["exp"])
	if !issOK || !audOK || !iatOK || !expOK {
		return reject(ReasonClaims)
	}
	if iss != v.issuer {
		return reject(ReasonIssuer)
	}
	if aud != v.audience {
		return reject(ReasonAudience)
	}

	now := v.clock().Unix()
	if iat > now+v.leeway {
		return reject(ReasonIssuedInFuture)
	}
	if exp < now-v.leeway {
		return reject(ReasonExpired)
	}

	var scopes []string
	if raw, present := payload["scope"]; present {
		var ok bool
		if scopes, ok = scopeList(raw); !ok {
			return reject(ReasonScopeClaim)
		}
	}
	if !HasScopes(scopes, requiredScopes) {
		return reject(ReasonMissingScope)
	}

	return Result{Claims: Claims(payload)}
}

// logRejection records the reason plus short, non-sensitive claim excerpts.
// The token and secret are never logged.
func (v *Verifier) logRejection(reason Reason, payload map[string]any) {
	attrs := []any{"reason", string(reason)}
	if payload != nil {
		attrs = append(attrs,
			"iss", excerpt(payload["iss"]),
			"aud", excerpt(payload["aud"]),
			"scope", excerpt(payload["scope"]),
		)
	}
	v.logger.Warn("token rejected", attrs...)
}

func excerpt(v any) string {
	if v == nil {
		return ""
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "?"
		}
		s = string(data)
	}
	if len(s) > maxExcerpt {
		s = strings.ToValidUTF8(s[:maxExcerpt], "") + "..."
	}
	return s
}

// decodeObject decodes exactly one JSON object, keeping numbers as
// json.Number so integer claims can be told apart from floats.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNotObject
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return obj, nil
}
