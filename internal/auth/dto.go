// AngelaMos | 2026
// dto.go

package auth

import (
	"time"

	"github.com/angelamos/auth-api/internal/account"
)

type SignupRequest struct {
	Email     string `json:"email"     validate:"required,email,max=255"`
	Firstname string `json:"firstname" validate:"required,min=1,max=100"`
	Lastname  string `json:"lastname"  validate:"required,min=1,max=100"`
	Password  string `json:"password"  validate:"required,min=8,max=128"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type VerifyEmailRequest struct {
	Code int `json:"code" validate:"required,min=100000,max=999999"`
}

type ResetPasswordRequest struct {
	Code     int    `json:"code"     validate:"required,min=100000,max=999999"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type AccountResponse struct {
	ID         string    `json:"id"`
	Firstname  string    `json:"firstname"`
	Lastname   string    `json:"lastname"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type AuthResponse struct {
	Account AccountResponse `json:"account"`
	Tokens  TokenResponse   `json:"tokens"`
}

func toAccountResponse(
	acct *account.Account,
	status *account.Status,
) AccountResponse {
	return AccountResponse{
		ID:         acct.ID,
		Firstname:  acct.Firstname,
		Lastname:   acct.Lastname,
		Email:      acct.Email,
		Role:       acct.Role,
		IsActive:   status.IsActive,
		IsVerified: status.IsVerified,
		CreatedAt:  acct.CreatedAt,
	}
}
