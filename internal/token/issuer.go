// AngelaMos | 2026
// issuer.go

package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/angelamos/auth-api/internal/config"
	"github.com/angelamos/auth-api/internal/core"
)

// Purpose names the secret a token is signed with. A token only ever
// verifies against its own purpose's secret, which is what keeps a
// verification token out of general API endpoints even if the purpose
// claim were stripped.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "password_reset"
)

// Snapshot is the account view embedded in every token. It reflects the
// account at issuance time; the gate reconciles activation state against
// the live status row where that matters.
type Snapshot struct {
	AccountID  string `json:"account_id"`
	Email      string `json:"email"`
	Firstname  string `json:"firstname"`
	Lastname   string `json:"lastname"`
	Role       string `json:"role"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
}

type Claims struct {
	Snapshot
	Purpose   Purpose
	TokenID   string
	ExpiresAt time.Time

	// Raw is the presented token string, kept so the single action a
	// purpose token authorizes can revoke it afterwards.
	Raw string
}

type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type purposeKey struct {
	key jwk.Key
	ttl time.Duration
}

type Issuer struct {
	keys     map[Purpose]purposeKey
	issuer   string
	audience string
}

func NewIssuer(cfg config.TokensConfig) (*Issuer, error) {
	entries := []struct {
		purpose Purpose
		secret  string
		ttl     time.Duration
	}{
		{PurposeAccess, cfg.AccessSecret, cfg.AccessExpire},
		{PurposeRefresh, cfg.RefreshSecret, cfg.RefreshExpire},
		{PurposeVerification, cfg.VerificationSecret, cfg.VerificationExpire},
		{PurposePasswordReset, cfg.PasswordResetSecret, cfg.PasswordResetExpire},
	}

	keys := make(map[Purpose]purposeKey, len(entries))
	for _, entry := range entries {
		if entry.secret == "" {
			return nil, fmt.Errorf("token issuer: missing %s secret", entry.purpose)
		}
		if entry.ttl <= 0 {
			return nil, fmt.Errorf("token issuer: missing %s expiry", entry.purpose)
		}

		key, err := jwk.Import([]byte(entry.secret))
		if err != nil {
			return nil, fmt.Errorf("import %s key: %w", entry.purpose, err)
		}
		if setErr := key.Set(jwk.AlgorithmKey, jwa.HS256()); setErr != nil {
			return nil, fmt.Errorf("set %s algorithm: %w", entry.purpose, setErr)
		}

		keys[entry.purpose] = purposeKey{key: key, ttl: entry.ttl}
	}

	return &Issuer{
		keys:     keys,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}, nil
}

// Issue mints a token for the given purpose. A refresh companion is
// returned only for access-purpose issuance; purpose-scoped tokens are
// single-use and never receive one.
func (i *Issuer) Issue(snapshot Snapshot, purpose Purpose) (*Pair, error) {
	accessToken, expiresAt, err := i.mint(snapshot, purpose)
	if err != nil {
		return nil, err
	}

	pair := &Pair{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}

	if purpose == PurposeAccess {
		refreshToken, _, refreshErr := i.mint(snapshot, PurposeRefresh)
		if refreshErr != nil {
			return nil, refreshErr
		}
		pair.RefreshToken = refreshToken
	}

	return pair, nil
}

func (i *Issuer) mint(
	snapshot Snapshot,
	purpose Purpose,
) (string, time.Time, error) {
	pk, ok := i.keys[purpose]
	if !ok {
		return "", time.Time{}, fmt.Errorf("mint: invalid purpose %q", purpose)
	}

	now := time.Now()
	expiresAt := now.Add(pk.ttl)

	built, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(i.issuer).
		Audience([]string{i.audience}).
		Subject(snapshot.AccountID).
		IssuedAt(now).
		Expiration(expiresAt).
		NotBefore(now).
		Claim("email", snapshot.Email).
		Claim("firstname", snapshot.Firstname).
		Claim("lastname", snapshot.Lastname).
		Claim("role", snapshot.Role).
		Claim("is_active", snapshot.IsActive).
		Claim("is_verified", snapshot.IsVerified).
		Claim("purpose", string(purpose)).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(built, jwt.WithKey(jwa.HS256(), pk.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return string(signed), expiresAt, nil
}

// Verify checks the token against the expected purpose's secret. A token
// signed for another purpose fails the signature check and surfaces as
// invalid; an intact signature with a divergent purpose claim surfaces
// as a purpose mismatch.
func (i *Issuer) Verify(
	tokenString string,
	expected Purpose,
) (*Claims, error) {
	pk, ok := i.keys[expected]
	if !ok {
		return nil, fmt.Errorf("verify: invalid purpose %q", expected)
	}

	parsed, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256(), pk.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var purposeClaim string
	if err := parsed.Get("purpose", &purposeClaim); err != nil {
		return nil, fmt.Errorf(
			"verify token: missing purpose claim: %w",
			core.ErrTokenInvalid,
		)
	}
	if purposeClaim != string(expected) {
		return nil, fmt.Errorf(
			"verify token: signed for %q, expected %q: %w",
			purposeClaim,
			expected,
			core.ErrTokenPurposeMismatch,
		)
	}

	subject, ok := parsed.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	claims := &Claims{
		Snapshot: Snapshot{AccountID: subject},
		Purpose:  expected,
		Raw:      tokenString,
	}

	stringClaims := map[string]*string{
		"email":     &claims.Email,
		"firstname": &claims.Firstname,
		"lastname":  &claims.Lastname,
		"role":      &claims.Role,
	}
	for name, dest := range stringClaims {
		if err := parsed.Get(name, dest); err != nil {
			return nil, fmt.Errorf(
				"verify token: missing %s claim: %w",
				name,
				core.ErrTokenInvalid,
			)
		}
	}

	boolClaims := map[string]*bool{
		"is_active":   &claims.IsActive,
		"is_verified": &claims.IsVerified,
	}
	for name, dest := range boolClaims {
		if err := parsed.Get(name, dest); err != nil {
			return nil, fmt.Errorf(
				"verify token: missing %s claim: %w",
				name,
				core.ErrTokenInvalid,
			)
		}
	}

	if jti, jtiOK := parsed.JwtID(); jtiOK {
		claims.TokenID = jti
	}
	if exp, expOK := parsed.Expiration(); expOK {
		claims.ExpiresAt = exp
	}

	return claims, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}
