// AngelaMos | 2026
// revocation.go

package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelamos/auth-api/internal/core"
)

const revokedKeyPrefix = "revoked:"

// RevocationLedger records tokens that must no longer be honored. Keys
// are sha256 digests of the raw token string and live exactly as long as
// the token itself could; past expiry the signature check rejects the
// token anyway, so the ledger needs no separate compaction.
type RevocationLedger struct {
	redis *redis.Client
}

func NewRevocationLedger(client *redis.Client) *RevocationLedger {
	return &RevocationLedger{redis: client}
}

func revokedKey(tokenString string) string {
	return revokedKeyPrefix + core.HashToken(tokenString)
}

// Revoke is an idempotent append. Revoking an already-revoked or
// already-expired token is a no-op.
func (l *RevocationLedger) Revoke(
	ctx context.Context,
	tokenString string,
	expiresAt time.Time,
) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := l.redis.Set(ctx, revokedKey(tokenString), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

func (l *RevocationLedger) IsRevoked(
	ctx context.Context,
	tokenString string,
) (bool, error) {
	exists, err := l.redis.Exists(ctx, revokedKey(tokenString)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}

	return exists > 0, nil
}
