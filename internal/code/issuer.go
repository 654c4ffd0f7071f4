// AngelaMos | 2026
// issuer.go

package code

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/angelamos/auth-api/internal/core"
)

// Purpose selects which slot of the account's one-time code row a code
// occupies. One slot per purpose; issuing overwrites the previous code
// for that purpose only.
type Purpose string

const (
	PurposeVerification  Purpose = "verification"
	PurposePasswordReset Purpose = "password_reset"
	PurposeActivation    Purpose = "activation"
	PurposeDeactivation  Purpose = "deactivation"
)

// slotColumns whitelists the column per purpose; purposes never reach
// the SQL text unchecked.
var slotColumns = map[Purpose]string{
	PurposeVerification:  "verification_code",
	PurposePasswordReset: "password_reset_code",
	PurposeActivation:    "activation_code",
	PurposeDeactivation:  "deactivation_code",
}

const (
	codeMin = 100000
	codeMax = 999999
)

type Issuer struct {
	db core.DBTX
}

func NewIssuer(db core.DBTX) *Issuer {
	return &Issuer{db: db}
}

// Generate returns a uniform random 6-digit code.
func Generate() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return 0, fmt.Errorf("generate code: %w", err)
	}
	return codeMin + int(n.Int64()), nil
}

// Issue mints a fresh code and stores it in the purpose's slot,
// invalidating whatever code that slot held. Other purposes' slots are
// untouched. A missing auth_codes row is a data-integrity violation
// (creation is transactional with the account) and surfaces as NotFound.
func (i *Issuer) Issue(
	ctx context.Context,
	accountID string,
	purpose Purpose,
) (int, error) {
	column, ok := slotColumns[purpose]
	if !ok {
		return 0, fmt.Errorf("issue code: invalid purpose %q", purpose)
	}

	codeValue, err := Generate()
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		UPDATE auth_codes
		SET %s = $2, updated_at = NOW()
		WHERE account_id = $1`, column)

	result, err := i.db.ExecContext(ctx, query, accountID, codeValue)
	if err != nil {
		return 0, fmt.Errorf("issue code: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("issue code: %w", err)
	}

	if rows == 0 {
		return 0, fmt.Errorf("issue code: %w", core.ErrNotFound)
	}

	return codeValue, nil
}

// Consume compares and clears in a single conditional update, so a code
// can be redeemed at most once even under concurrent attempts. Zero rows
// affected means the submitted code does not match the slot (or the slot
// was already cleared).
func (i *Issuer) Consume(
	ctx context.Context,
	accountID string,
	purpose Purpose,
	submitted int,
) error {
	column, ok := slotColumns[purpose]
	if !ok {
		return fmt.Errorf("consume code: invalid purpose %q", purpose)
	}

	query := fmt.Sprintf(`
		UPDATE auth_codes
		SET %s = NULL, updated_at = NOW()
		WHERE account_id = $1 AND %s = $2`, column, column)

	result, err := i.db.ExecContext(ctx, query, accountID, submitted)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("consume code: %w", core.ErrCodeMismatch)
	}

	return nil
}
