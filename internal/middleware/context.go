// AngelaMos | 2026
// context.go

package middleware

import (
	"context"

	"github.com/angelamos/auth-api/internal/token"
)

type contextKey string

const (
	AccountIDKey contextKey = "account_id"
	RoleKey      contextKey = "account_role"
	ClaimsKey    contextKey = "token_claims"
	RequestIDKey contextKey = "request_id"
)

func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	ctx = context.WithValue(ctx, AccountIDKey, claims.AccountID)
	ctx = context.WithValue(ctx, RoleKey, claims.Role)
	ctx = context.WithValue(ctx, ClaimsKey, claims)
	return ctx
}

func GetAccountID(ctx context.Context) string {
	if id, ok := ctx.Value(AccountIDKey).(string); ok {
		return id
	}
	return ""
}

func GetRole(ctx context.Context) string {
	if role, ok := ctx.Value(RoleKey).(string); ok {
		return role
	}
	return ""
}

func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*token.Claims); ok {
		return claims
	}
	return nil
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func IsAuthenticated(ctx context.Context) bool {
	return GetAccountID(ctx) != ""
}
