// AngelaMos | 2026
// handler_test.go

package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelamos/auth-api/internal/code"
	"github.com/angelamos/auth-api/internal/config"
	"github.com/angelamos/auth-api/internal/middleware"
	"github.com/angelamos/auth-api/internal/token"
)

type apiFixture struct {
	router *chi.Mux
	repo   *fakeRepo
	codes  *fakeCodes
	mailer *fakeMailer
}

// newAPIFixture wires the real router, token issuer and revocation
// ledger (over miniredis) around the in-memory repository, mirroring the
// production wiring.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	issuer, err := token.NewIssuer(config.TokensConfig{
		Issuer:              "auth-api-test",
		Audience:            "auth-api-clients",
		AccessSecret:        "access-secret-for-tests-0123456789",
		AccessExpire:        time.Hour,
		RefreshSecret:       "refresh-secret-for-tests-0123456789",
		RefreshExpire:       24 * time.Hour,
		VerificationSecret:  "verification-secret-for-tests-0123",
		VerificationExpire:  10 * time.Minute,
		PasswordResetSecret: "password-reset-secret-for-tests-01",
		PasswordResetExpire: 10 * time.Minute,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	ledger := token.NewRevocationLedger(client)

	repo := newFakeRepo()
	codes := newFakeCodes()
	mailer := &fakeMailer{}

	svc := NewService(repo, codes, issuer, ledger, mailer)
	handler := NewHandler(svc)

	gate := middleware.NewGate(issuer, ledger, repo)

	accessGate := gate.Middleware(middleware.GateConfig{
		Purpose:       token.PurposeAccess,
		RequireActive: true,
		ExchangePath:  "/v1/auth/authtoken",
	}, handler)
	verificationGate := gate.Middleware(middleware.GateConfig{
		Purpose: token.PurposeVerification,
	}, nil)
	resetGate := gate.Middleware(middleware.GateConfig{
		Purpose: token.PurposePasswordReset,
	}, nil)

	router := chi.NewRouter()
	router.Route("/v1", func(r chi.Router) {
		handler.RegisterRoutes(r, accessGate, verificationGate, resetGate)
	})

	return &apiFixture{
		router: router,
		repo:   repo,
		codes:  codes,
		mailer: mailer,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(
	t *testing.T,
	method, path, bearer string,
	body any,
) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}

	return rec, env
}

func (f *apiFixture) signupEndUser(t *testing.T) (accountID, verifyToken string) {
	t.Helper()

	rec, env := f.do(t, http.MethodPost, "/v1/auth/signup/enduser", "",
		map[string]string{
			"email":     "jo@example.com",
			"firstname": "Jo",
			"lastname":  "Doe",
			"password":  "correct horse battery",
		})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	var data struct {
		Account struct {
			ID string `json:"id"`
		} `json:"account"`
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Tokens.AccessToken)

	return data.Account.ID, data.Tokens.AccessToken
}

func (f *apiFixture) loginTokens(t *testing.T, password string) (access, refresh string) {
	t.Helper()

	rec, env := f.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]string{
			"email":    "jo@example.com",
			"password": password,
		})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	var data struct {
		Tokens struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	return data.Tokens.AccessToken, data.Tokens.RefreshToken
}

func TestSignupInvalidRole(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodPost, "/v1/auth/signup/owner", "",
		map[string]string{
			"email":     "jo@example.com",
			"firstname": "Jo",
			"lastname":  "Doe",
			"password":  "correct horse battery",
		})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", env.Status)
}

func TestSignupValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodPost, "/v1/auth/signup/enduser", "",
		map[string]string{
			"email":    "not-an-email",
			"password": "short",
		})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "email")
}

func TestSignupThenVerifyFlow(t *testing.T) {
	f := newAPIFixture(t)
	accountID, verifyToken := f.signupEndUser(t)

	codeValue := f.codes.slots[accountID][code.PurposeVerification]
	require.NotZero(t, codeValue)

	// The mailed body carries the same code.
	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].Body, fmt.Sprint(codeValue))

	rec, env := f.do(t, http.MethodPost, "/v1/auth/verifyemail", verifyToken,
		map[string]int{"code": codeValue})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.True(t, f.repo.statuses[accountID].IsVerified)

	// The verification token authorized exactly one action; replaying it
	// hits the revocation ledger.
	rec, _ = f.do(t, http.MethodPost, "/v1/auth/verifyemail", verifyToken,
		map[string]int{"code": codeValue})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyEmailWrongCodeKeepsTokenUsable(t *testing.T) {
	f := newAPIFixture(t)
	accountID, verifyToken := f.signupEndUser(t)

	rec, env := f.do(t, http.MethodPost, "/v1/auth/verifyemail", verifyToken,
		map[string]int{"code": 999999})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "verification code")
	assert.False(t, f.repo.statuses[accountID].IsVerified)

	// A failed attempt does not burn the token; the right code still
	// works.
	codeValue := f.codes.slots[accountID][code.PurposeVerification]
	rec, _ = f.do(t, http.MethodPost, "/v1/auth/verifyemail", verifyToken,
		map[string]int{"code": codeValue})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAccessTokenRejectedOnVerificationEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.signupEndUser(t)

	access, _ := f.loginTokens(t, "correct horse battery")

	rec, _ := f.do(t, http.MethodPost, "/v1/auth/verifyemail", access,
		map[string]int{"code": 123456})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	f := newAPIFixture(t)
	f.signupEndUser(t)

	access, refresh := f.loginTokens(t, "correct horse battery")
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	rec, env := f.do(t, http.MethodGet, "/v1/auth/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	var data struct {
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "jo@example.com", data.Email)
}

func TestLoginWrongPasswordEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	f.signupEndUser(t)

	rec, env := f.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]string{
			"email":    "jo@example.com",
			"password": "not the password",
		})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", env.Status)
	assert.Nil(t, env.Data)
}

func TestMeWithoutToken(t *testing.T) {
	f := newAPIFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthTokenExchange(t *testing.T) {
	f := newAPIFixture(t)
	f.signupEndUser(t)

	access, _ := f.loginTokens(t, "correct horse battery")

	rec, env := f.do(t, http.MethodGet, "/v1/auth/authtoken", access, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	var data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.AccessToken)
	assert.NotEmpty(t, data.RefreshToken)
	assert.NotEqual(t, access, data.AccessToken)

	// The fresh pair works on authenticated endpoints.
	rec, _ = f.do(t, http.MethodGet, "/v1/auth/me", data.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	f := newAPIFixture(t)
	f.signupEndUser(t)

	access, _ := f.loginTokens(t, "correct horse battery")

	rec, _ := f.do(t, http.MethodPost, "/v1/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/v1/auth/me", access, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "token expired or blacklisted", env.Message)
}

func TestInactiveAccountDeniedLiveOnAccess(t *testing.T) {
	f := newAPIFixture(t)
	accountID, _ := f.signupEndUser(t)

	access, _ := f.loginTokens(t, "correct horse battery")

	// Deactivated after the token was minted; the gate reads the live
	// row, so the token stops working immediately.
	f.repo.statuses[accountID].IsActive = false

	rec, _ := f.do(t, http.MethodGet, "/v1/auth/me", access, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestForgotAndResetPasswordFlow(t *testing.T) {
	f := newAPIFixture(t)
	accountID, _ := f.signupEndUser(t)

	rec, env := f.do(t, http.MethodPost, "/v1/auth/forgotpassword", "",
		map[string]string{"email": "jo@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	var data struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.AccessToken)

	codeValue := f.codes.slots[accountID][code.PurposePasswordReset]
	require.NotZero(t, codeValue)

	rec, env = f.do(t, http.MethodPatch, "/v1/auth/resetpassword",
		data.AccessToken,
		map[string]any{
			"code":     codeValue,
			"password": "a brand new passphrase",
		})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	// Old password is dead, new one works.
	rec, _ = f.do(t, http.MethodPost, "/v1/auth/login", "",
		map[string]string{
			"email":    "jo@example.com",
			"password": "correct horse battery",
		})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	access, _ := f.loginTokens(t, "a brand new passphrase")
	assert.NotEmpty(t, access)

	// The reset token was revoked with the reset.
	rec, _ = f.do(t, http.MethodPatch, "/v1/auth/resetpassword",
		data.AccessToken,
		map[string]any{
			"code":     codeValue,
			"password": "yet another passphrase",
		})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResendVerificationEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	accountID, _ := f.signupEndUser(t)

	rec, env := f.do(t, http.MethodPost, "/v1/auth/verificationemail", "",
		map[string]string{"email": "jo@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Len(t, f.mailer.sent, 2)

	// Verified accounts cannot request more codes.
	f.repo.statuses[accountID].IsVerified = true
	rec, _ = f.do(t, http.MethodPost, "/v1/auth/verificationemail", "",
		map[string]string{"email": "jo@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
