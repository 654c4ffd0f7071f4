// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelamos/auth-api/internal/account"
	"github.com/angelamos/auth-api/internal/code"
	"github.com/angelamos/auth-api/internal/core"
	"github.com/angelamos/auth-api/internal/notifier"
	"github.com/angelamos/auth-api/internal/token"
)

type fakeRepo struct {
	accounts    map[string]*account.Account
	statuses    map[string]*account.Status
	credentials map[string]string

	created  []string
	rotated  []string
	verified []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:    make(map[string]*account.Account),
		statuses:    make(map[string]*account.Status),
		credentials: make(map[string]string),
	}
}

func (r *fakeRepo) CreateWithSatellites(
	_ context.Context,
	acct *account.Account,
	passwordHash string,
) (*account.Status, error) {
	for _, existing := range r.accounts {
		if existing.Email == acct.Email {
			return nil, core.ErrDuplicateKey
		}
	}

	stored := *acct
	stored.CreatedAt = time.Now()
	r.accounts[acct.ID] = &stored
	r.credentials[acct.ID] = passwordHash

	status := account.InitialStatus(acct.ID, acct.Role)
	r.statuses[acct.ID] = &status
	r.created = append(r.created, acct.ID)

	return &status, nil
}

func (r *fakeRepo) GetByID(
	_ context.Context,
	id string,
) (*account.Account, error) {
	acct, ok := r.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return acct, nil
}

func (r *fakeRepo) GetByEmail(
	_ context.Context,
	email string,
) (*account.Account, error) {
	for _, acct := range r.accounts {
		if acct.Email == email {
			return acct, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *fakeRepo) GetStatus(
	_ context.Context,
	accountID string,
) (*account.Status, error) {
	status, ok := r.statuses[accountID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return status, nil
}

func (r *fakeRepo) MarkVerified(_ context.Context, accountID string) error {
	status, ok := r.statuses[accountID]
	if !ok {
		return core.ErrNotFound
	}
	if status.IsVerified {
		return core.ErrAlreadyVerified
	}
	status.IsVerified = true
	r.verified = append(r.verified, accountID)
	return nil
}

func (r *fakeRepo) GetCredential(
	_ context.Context,
	accountID string,
) (*account.Credential, error) {
	hash, ok := r.credentials[accountID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &account.Credential{
		AccountID:    accountID,
		PasswordHash: hash,
	}, nil
}

func (r *fakeRepo) RotateCredential(
	_ context.Context,
	accountID, passwordHash string,
) error {
	if _, ok := r.credentials[accountID]; !ok {
		return core.ErrNotFound
	}
	r.credentials[accountID] = passwordHash
	r.rotated = append(r.rotated, accountID)
	return nil
}

type fakeCodes struct {
	next  int
	slots map[string]map[code.Purpose]int
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{
		next:  100001,
		slots: make(map[string]map[code.Purpose]int),
	}
}

func (c *fakeCodes) Issue(
	_ context.Context,
	accountID string,
	purpose code.Purpose,
) (int, error) {
	if c.slots[accountID] == nil {
		c.slots[accountID] = make(map[code.Purpose]int)
	}
	value := c.next
	c.next++
	c.slots[accountID][purpose] = value
	return value, nil
}

func (c *fakeCodes) Consume(
	_ context.Context,
	accountID string,
	purpose code.Purpose,
	submitted int,
) error {
	stored, ok := c.slots[accountID][purpose]
	if !ok || stored != submitted {
		return core.ErrCodeMismatch
	}
	delete(c.slots[accountID], purpose)
	return nil
}

type issued struct {
	snapshot token.Snapshot
	purpose  token.Purpose
}

type fakeTokens struct {
	history []issued
}

func (f *fakeTokens) Issue(
	snapshot token.Snapshot,
	purpose token.Purpose,
) (*token.Pair, error) {
	f.history = append(f.history, issued{snapshot: snapshot, purpose: purpose})

	pair := &token.Pair{
		AccessToken: fmt.Sprintf("%s-token-%d", purpose, len(f.history)),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if purpose == token.PurposeAccess {
		pair.RefreshToken = fmt.Sprintf("refresh-token-%d", len(f.history))
	}
	return pair, nil
}

func (f *fakeTokens) last(t *testing.T) issued {
	t.Helper()
	require.NotEmpty(t, f.history)
	return f.history[len(f.history)-1]
}

type fakeLedger struct {
	revoked []string
}

func (f *fakeLedger) Revoke(
	_ context.Context,
	tokenString string,
	_ time.Time,
) error {
	f.revoked = append(f.revoked, tokenString)
	return nil
}

type fakeMailer struct {
	sent []notifier.Message
}

func (f *fakeMailer) Send(_ context.Context, msg notifier.Message) {
	f.sent = append(f.sent, msg)
}

type fixture struct {
	repo   *fakeRepo
	codes  *fakeCodes
	tokens *fakeTokens
	ledger *fakeLedger
	mailer *fakeMailer
	svc    *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:   newFakeRepo(),
		codes:  newFakeCodes(),
		tokens: &fakeTokens{},
		ledger: &fakeLedger{},
		mailer: &fakeMailer{},
	}
	f.svc = NewService(f.repo, f.codes, f.tokens, f.ledger, f.mailer)
	return f
}

func signupRequest() SignupRequest {
	return SignupRequest{
		Email:     "Jo@Example.com",
		Firstname: "Jo",
		Lastname:  "Doe",
		Password:  "correct horse battery",
	}
}

func (f *fixture) signup(t *testing.T) *AuthResponse {
	t.Helper()
	resp, err := f.svc.Signup(
		context.Background(),
		signupRequest(),
		account.RoleEndUser,
	)
	require.NoError(t, err)
	return resp
}

func TestSignupCreatesAccountAndStartsVerification(t *testing.T) {
	f := newFixture()

	resp := f.signup(t)

	assert.Equal(t, "jo@example.com", resp.Account.Email)
	assert.Equal(t, account.RoleEndUser, resp.Account.Role)
	assert.True(t, resp.Account.IsActive)
	assert.False(t, resp.Account.IsVerified)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.Empty(t, resp.Tokens.RefreshToken)

	require.Len(t, f.repo.created, 1)
	assert.Equal(t, token.PurposeVerification, f.tokens.last(t).purpose)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "jo@example.com", f.mailer.sent[0].To)

	codeValue := f.codes.slots[f.repo.created[0]][code.PurposeVerification]
	assert.Contains(t, f.mailer.sent[0].Body, fmt.Sprint(codeValue))
}

func TestSignupStoresHashedPassword(t *testing.T) {
	f := newFixture()
	f.signup(t)

	hash := f.repo.credentials[f.repo.created[0]]
	assert.NotEqual(t, signupRequest().Password, hash)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
}

func TestSignupVerifiedDuplicate(t *testing.T) {
	f := newFixture()
	f.signup(t)

	accountID := f.repo.created[0]
	f.repo.statuses[accountID].IsVerified = true

	_, err := f.svc.Signup(
		context.Background(),
		signupRequest(),
		account.RoleEndUser,
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
	assert.Len(t, f.repo.created, 1)
}

func TestSignupUnverifiedResumes(t *testing.T) {
	f := newFixture()
	f.signup(t)

	resp, err := f.svc.Signup(
		context.Background(),
		signupRequest(),
		account.RoleEndUser,
	)
	require.NoError(t, err)

	// No second account, but a fresh code and token.
	assert.Len(t, f.repo.created, 1)
	assert.Len(t, f.mailer.sent, 2)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
}

func TestSignupPrivilegedRoleStartsInactive(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Signup(
		context.Background(),
		signupRequest(),
		account.RoleAdmin,
	)
	require.NoError(t, err)

	assert.Equal(t, account.RoleAdmin, resp.Account.Role)
	assert.False(t, resp.Account.IsActive)
}

func TestResendVerification(t *testing.T) {
	f := newFixture()
	f.signup(t)

	resp, err := f.svc.ResendVerification(context.Background(), "jo@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.Len(t, f.mailer.sent, 2)

	_, err = f.svc.ResendVerification(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)

	f.repo.statuses[f.repo.created[0]].IsVerified = true
	_, err = f.svc.ResendVerification(context.Background(), "jo@example.com")
	assert.ErrorIs(t, err, core.ErrAlreadyVerified)
}

func verificationClaims(accountID string) *token.Claims {
	return &token.Claims{
		Snapshot:  token.Snapshot{AccountID: accountID},
		Purpose:   token.PurposeVerification,
		ExpiresAt: time.Now().Add(10 * time.Minute),
		Raw:       "presented.verification.token",
	}
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]
	codeValue := f.codes.slots[accountID][code.PurposeVerification]

	err := f.svc.VerifyEmail(
		context.Background(),
		verificationClaims(accountID),
		codeValue,
	)
	require.NoError(t, err)

	assert.True(t, f.repo.statuses[accountID].IsVerified)
	assert.Contains(t, f.ledger.revoked, "presented.verification.token")
}

func TestVerifyEmailWrongCode(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]

	err := f.svc.VerifyEmail(
		context.Background(),
		verificationClaims(accountID),
		999999,
	)
	assert.ErrorIs(t, err, core.ErrCodeMismatch)
	assert.False(t, f.repo.statuses[accountID].IsVerified)
	assert.Empty(t, f.ledger.revoked)
}

func TestVerifyEmailAtMostOnce(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]
	codeValue := f.codes.slots[accountID][code.PurposeVerification]

	claims := verificationClaims(accountID)
	require.NoError(t, f.svc.VerifyEmail(context.Background(), claims, codeValue))

	// Replaying the same code against the now-verified account fails
	// before the code is even compared.
	err := f.svc.VerifyEmail(context.Background(), claims, codeValue)
	assert.ErrorIs(t, err, core.ErrAlreadyVerified)
	assert.Len(t, f.repo.verified, 1)
}

func TestForgotPassword(t *testing.T) {
	f := newFixture()
	f.signup(t)

	resp, err := f.svc.ForgotPassword(context.Background(), "jo@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
	assert.Equal(t, token.PurposePasswordReset, f.tokens.last(t).purpose)

	require.Len(t, f.mailer.sent, 2)
	codeValue := f.codes.slots[f.repo.created[0]][code.PurposePasswordReset]
	assert.Contains(t, f.mailer.sent[1].Body, fmt.Sprint(codeValue))

	_, err = f.svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func resetClaims(accountID string) *token.Claims {
	return &token.Claims{
		Snapshot:  token.Snapshot{AccountID: accountID},
		Purpose:   token.PurposePasswordReset,
		ExpiresAt: time.Now().Add(10 * time.Minute),
		Raw:       "presented.reset.token",
	}
}

func TestResetPassword(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]

	_, err := f.svc.ForgotPassword(context.Background(), "jo@example.com")
	require.NoError(t, err)
	codeValue := f.codes.slots[accountID][code.PurposePasswordReset]

	oldHash := f.repo.credentials[accountID]

	err = f.svc.ResetPassword(
		context.Background(),
		resetClaims(accountID),
		codeValue,
		"a brand new passphrase",
	)
	require.NoError(t, err)

	assert.NotEqual(t, oldHash, f.repo.credentials[accountID])
	assert.Contains(t, f.ledger.revoked, "presented.reset.token")

	// The code is gone; a replay cannot rotate again.
	err = f.svc.ResetPassword(
		context.Background(),
		resetClaims(accountID),
		codeValue,
		"yet another passphrase",
	)
	assert.ErrorIs(t, err, core.ErrCodeMismatch)
	assert.Len(t, f.repo.rotated, 1)
}

func TestResetPasswordWrongCodeLeavesCredential(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]

	_, err := f.svc.ForgotPassword(context.Background(), "jo@example.com")
	require.NoError(t, err)

	oldHash := f.repo.credentials[accountID]

	err = f.svc.ResetPassword(
		context.Background(),
		resetClaims(accountID),
		123456,
		"a brand new passphrase",
	)
	assert.ErrorIs(t, err, core.ErrCodeMismatch)
	assert.Equal(t, oldHash, f.repo.credentials[accountID])
	assert.Empty(t, f.ledger.revoked)
}

func TestLogin(t *testing.T) {
	f := newFixture()
	f.signup(t)

	resp, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: signupRequest().Password,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)
	assert.Equal(t, token.PurposeAccess, f.tokens.last(t).purpose)
	assert.Equal(t, "jo@example.com", f.tokens.last(t).snapshot.Email)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture()
	f.signup(t)

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "jo@example.com",
		Password: "not the password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture()

	claims := &token.Claims{
		Snapshot:  token.Snapshot{AccountID: "acct-1"},
		Purpose:   token.PurposeAccess,
		ExpiresAt: time.Now().Add(time.Hour),
		Raw:       "presented.access.token",
	}

	require.NoError(t, f.svc.Logout(context.Background(), claims))
	assert.Equal(t, []string{"presented.access.token"}, f.ledger.revoked)
}

func TestExchangeReloadsLiveStatus(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]

	// Status changed since the presented token was minted.
	f.repo.statuses[accountID].IsVerified = true

	claims := &token.Claims{
		Snapshot: token.Snapshot{
			AccountID:  accountID,
			IsVerified: false,
		},
		Purpose:   token.PurposeAccess,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	pair, err := f.svc.Exchange(context.Background(), claims)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	last := f.tokens.last(t)
	assert.Equal(t, token.PurposeAccess, last.purpose)
	assert.True(t, last.snapshot.IsVerified)
}

func TestExchangeMissingAccount(t *testing.T) {
	f := newFixture()

	claims := &token.Claims{
		Snapshot:  token.Snapshot{AccountID: "gone"},
		Purpose:   token.PurposeAccess,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	_, err := f.svc.Exchange(context.Background(), claims)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestCurrentAccount(t *testing.T) {
	f := newFixture()
	f.signup(t)
	accountID := f.repo.created[0]

	resp, err := f.svc.CurrentAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", resp.Email)

	_, err = f.svc.CurrentAccount(context.Background(), "gone")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
