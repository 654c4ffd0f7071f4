// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelamos/auth-api/internal/account"
	"github.com/angelamos/auth-api/internal/code"
	"github.com/angelamos/auth-api/internal/core"
	"github.com/angelamos/auth-api/internal/notifier"
	"github.com/angelamos/auth-api/internal/token"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type CodeIssuer interface {
	Issue(
		ctx context.Context,
		accountID string,
		purpose code.Purpose,
	) (int, error)
	Consume(
		ctx context.Context,
		accountID string,
		purpose code.Purpose,
		submitted int,
	) error
}

type TokenIssuer interface {
	Issue(snapshot token.Snapshot, purpose token.Purpose) (*token.Pair, error)
}

type Ledger interface {
	Revoke(ctx context.Context, tokenString string, expiresAt time.Time) error
}

// Service sequences the account, code, token and revocation components
// for the signup, verification, reset and session flows.
type Service struct {
	accounts account.Repository
	codes    CodeIssuer
	tokens   TokenIssuer
	ledger   Ledger
	mailer   notifier.Mailer
}

func NewService(
	accounts account.Repository,
	codes CodeIssuer,
	tokens TokenIssuer,
	ledger Ledger,
	mailer notifier.Mailer,
) *Service {
	return &Service{
		accounts: accounts,
		codes:    codes,
		tokens:   tokens,
		ledger:   ledger,
		mailer:   mailer,
	}
}

// Signup creates the account with its credential, status and code rows
// in one transaction, then starts the verification flow. Re-signup on an
// existing unverified account re-issues the verification code and token
// instead of erroring, so abandoned signups can resume.
func (s *Service) Signup(
	ctx context.Context,
	req SignupRequest,
	role string,
) (*AuthResponse, error) {
	email := account.NormalizeEmail(req.Email)

	existing, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return s.resumeSignup(ctx, existing)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("signup: %w", err)
	}

	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct := &account.Account{
		ID:        uuid.New().String(),
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		Email:     email,
		Role:      role,
	}

	status, err := s.accounts.CreateWithSatellites(ctx, acct, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	return s.startVerification(ctx, acct, status)
}

func (s *Service) resumeSignup(
	ctx context.Context,
	existing *account.Account,
) (*AuthResponse, error) {
	status, err := s.accounts.GetStatus(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	if status.IsVerified {
		return nil, fmt.Errorf("signup: %w", core.ErrDuplicateKey)
	}

	return s.startVerification(ctx, existing, status)
}

// ResendVerification re-issues the verification code and token for an
// unverified account.
func (s *Service) ResendVerification(
	ctx context.Context,
	email string,
) (*AuthResponse, error) {
	acct, err := s.accounts.GetByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("resend verification: %w", err)
	}

	status, err := s.accounts.GetStatus(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("resend verification: %w", err)
	}

	if status.IsVerified {
		return nil, fmt.Errorf(
			"resend verification: %w",
			core.ErrAlreadyVerified,
		)
	}

	return s.startVerification(ctx, acct, status)
}

func (s *Service) startVerification(
	ctx context.Context,
	acct *account.Account,
	status *account.Status,
) (*AuthResponse, error) {
	codeValue, err := s.codes.Issue(ctx, acct.ID, code.PurposeVerification)
	if err != nil {
		return nil, fmt.Errorf("issue verification code: %w", err)
	}

	s.mailer.Send(ctx, notifier.Message{
		To:      acct.Email,
		Subject: "Verify your email address",
		Body:    fmt.Sprintf("Your verification code is %d", codeValue),
	})

	pair, err := s.tokens.Issue(
		snapshot(acct, status),
		token.PurposeVerification,
	)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}

	return &AuthResponse{
		Account: toAccountResponse(acct, status),
		Tokens: TokenResponse{
			AccessToken: pair.AccessToken,
			TokenType:   "Bearer",
			ExpiresAt:   pair.ExpiresAt,
		},
	}, nil
}

// VerifyEmail consumes the submitted code and marks the account
// verified. The compare-and-clear in the code issuer plus the guarded
// status update make the whole transition at-most-once; the presented
// token is revoked so it cannot authorize anything else.
func (s *Service) VerifyEmail(
	ctx context.Context,
	claims *token.Claims,
	submitted int,
) error {
	status, err := s.accounts.GetStatus(ctx, claims.AccountID)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}

	if status.IsVerified {
		return fmt.Errorf("verify email: %w", core.ErrAlreadyVerified)
	}

	err = s.codes.Consume(
		ctx,
		claims.AccountID,
		code.PurposeVerification,
		submitted,
	)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}

	if err := s.accounts.MarkVerified(ctx, claims.AccountID); err != nil {
		return fmt.Errorf("verify email: %w", err)
	}

	if err := s.ledger.Revoke(ctx, claims.Raw, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke verification token: %w", err)
	}

	return nil
}

// ForgotPassword issues a reset code (delivered by mail) and a
// password-reset token (returned to the caller).
func (s *Service) ForgotPassword(
	ctx context.Context,
	email string,
) (*TokenResponse, error) {
	acct, err := s.accounts.GetByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("forgot password: %w", err)
	}

	codeValue, err := s.codes.Issue(ctx, acct.ID, code.PurposePasswordReset)
	if err != nil {
		return nil, fmt.Errorf("issue reset code: %w", err)
	}

	s.mailer.Send(ctx, notifier.Message{
		To:      acct.Email,
		Subject: "Reset your password",
		Body:    fmt.Sprintf("Your password reset code is %d", codeValue),
	})

	status, err := s.accounts.GetStatus(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("forgot password: %w", err)
	}

	pair, err := s.tokens.Issue(
		snapshot(acct, status),
		token.PurposePasswordReset,
	)
	if err != nil {
		return nil, fmt.Errorf("issue reset token: %w", err)
	}

	return &TokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   pair.ExpiresAt,
	}, nil
}

// ResetPassword consumes the reset code, rotates the credential and
// revokes the presented token.
func (s *Service) ResetPassword(
	ctx context.Context,
	claims *token.Claims,
	submitted int,
	newPassword string,
) error {
	err := s.codes.Consume(
		ctx,
		claims.AccountID,
		code.PurposePasswordReset,
		submitted,
	)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	passwordHash, err := core.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.accounts.RotateCredential(ctx, claims.AccountID, passwordHash)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	if err := s.ledger.Revoke(ctx, claims.Raw, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke reset token: %w", err)
	}

	return nil
}

// Login verifies the password and issues an access/refresh pair carrying
// the current status snapshot.
func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
) (*AuthResponse, error) {
	acct, err := s.accounts.GetByEmail(ctx, account.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	cred, err := s.accounts.GetCredential(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	valid, newHash, err := core.VerifyPasswordTimingSafe(
		req.Password,
		&cred.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		//nolint:errcheck // best-effort rehash upgrade
		_ = s.accounts.RotateCredential(ctx, acct.ID, newHash)
	}

	status, err := s.accounts.GetStatus(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	pair, err := s.tokens.Issue(snapshot(acct, status), token.PurposeAccess)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	return &AuthResponse{
		Account: toAccountResponse(acct, status),
		Tokens: TokenResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "Bearer",
			ExpiresAt:    pair.ExpiresAt,
		},
	}, nil
}

// Logout revokes the presented access token for the rest of its
// lifetime.
func (s *Service) Logout(ctx context.Context, claims *token.Claims) error {
	if err := s.ledger.Revoke(ctx, claims.Raw, claims.ExpiresAt); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

// Exchange mints a fresh access/refresh pair for the account behind a
// valid access token, re-reading the live record so the new snapshot is
// current.
func (s *Service) Exchange(
	ctx context.Context,
	claims *token.Claims,
) (*token.Pair, error) {
	acct, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("exchange: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("exchange: %w", err)
	}

	status, err := s.accounts.GetStatus(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	pair, err := s.tokens.Issue(snapshot(acct, status), token.PurposeAccess)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	return pair, nil
}

// CurrentAccount returns the live account and status behind a token.
func (s *Service) CurrentAccount(
	ctx context.Context,
	accountID string,
) (*AccountResponse, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status, err := s.accounts.GetStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}

	resp := toAccountResponse(acct, status)
	return &resp, nil
}

func snapshot(
	acct *account.Account,
	status *account.Status,
) token.Snapshot {
	return token.Snapshot{
		AccountID:  acct.ID,
		Email:      acct.Email,
		Firstname:  acct.Firstname,
		Lastname:   acct.Lastname,
		Role:       acct.Role,
		IsActive:   status.IsActive,
		IsVerified: status.IsVerified,
	}
}
