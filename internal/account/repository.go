// AngelaMos | 2026
// repository.go

package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/angelamos/auth-api/internal/core"
)

type Repository interface {
	// CreateWithSatellites inserts the account together with its
	// credential, status and one-time code rows in one transaction.
	// Either all four rows exist afterwards or none do.
	CreateWithSatellites(
		ctx context.Context,
		acct *Account,
		passwordHash string,
	) (*Status, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetStatus(ctx context.Context, accountID string) (*Status, error)
	MarkVerified(ctx context.Context, accountID string) error
	GetCredential(ctx context.Context, accountID string) (*Credential, error)
	RotateCredential(
		ctx context.Context,
		accountID, passwordHash string,
	) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateWithSatellites(
	ctx context.Context,
	acct *Account,
	passwordHash string,
) (*Status, error) {
	status := InitialStatus(acct.ID, acct.Role)

	err := core.InTx(ctx, r.db, func(tx *sqlx.Tx) error {
		accountQuery := `
			INSERT INTO accounts (id, firstname, lastname, email, role)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at`

		err := tx.GetContext(ctx, acct, accountQuery,
			acct.ID,
			acct.Firstname,
			acct.Lastname,
			acct.Email,
			acct.Role,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("create account: %w", core.ErrDuplicateKey)
			}
			return fmt.Errorf("create account: %w", err)
		}

		credentialQuery := `
			INSERT INTO credentials (account_id, password_hash)
			VALUES ($1, $2)`

		if _, err := tx.ExecContext(ctx, credentialQuery, acct.ID, passwordHash); err != nil {
			return fmt.Errorf("create credential: %w", err)
		}

		statusQuery := `
			INSERT INTO statuses (account_id, is_active, is_verified)
			VALUES ($1, $2, $3)
			RETURNING created_at, updated_at`

		err = tx.GetContext(ctx, &status, statusQuery,
			status.AccountID,
			status.IsActive,
			status.IsVerified,
		)
		if err != nil {
			return fmt.Errorf("create status: %w", err)
		}

		codesQuery := `
			INSERT INTO auth_codes (account_id)
			VALUES ($1)`

		if _, err := tx.ExecContext(ctx, codesQuery, acct.ID); err != nil {
			return fmt.Errorf("create auth codes: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &status, nil
}

func (r *repository) GetByID(
	ctx context.Context,
	id string,
) (*Account, error) {
	query := `
		SELECT id, firstname, lastname, email, role, google_id, github_id,
		       created_at, updated_at
		FROM accounts
		WHERE id = $1`

	var acct Account
	err := r.db.GetContext(ctx, &acct, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	return &acct, nil
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*Account, error) {
	query := `
		SELECT id, firstname, lastname, email, role, google_id, github_id,
		       created_at, updated_at
		FROM accounts
		WHERE email = $1`

	var acct Account
	err := r.db.GetContext(ctx, &acct, query, NormalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account by email: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}

	return &acct, nil
}

func (r *repository) GetStatus(
	ctx context.Context,
	accountID string,
) (*Status, error) {
	query := `
		SELECT account_id, is_active, is_verified, created_at, updated_at
		FROM statuses
		WHERE account_id = $1`

	var status Status
	err := r.db.GetContext(ctx, &status, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get status: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	return &status, nil
}

// MarkVerified flips is_verified exactly once. The guarded WHERE clause
// makes concurrent verifications race-safe: only one update can win, the
// loser sees ErrAlreadyVerified.
func (r *repository) MarkVerified(
	ctx context.Context,
	accountID string,
) error {
	query := `
		UPDATE statuses
		SET is_verified = TRUE, updated_at = NOW()
		WHERE account_id = $1 AND is_verified = FALSE`

	result, err := r.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if rows == 0 {
		exists, existsErr := r.statusExists(ctx, accountID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return fmt.Errorf("mark verified: %w", core.ErrNotFound)
		}
		return fmt.Errorf("mark verified: %w", core.ErrAlreadyVerified)
	}

	return nil
}

func (r *repository) statusExists(
	ctx context.Context,
	accountID string,
) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM statuses WHERE account_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, accountID); err != nil {
		return false, fmt.Errorf("check status exists: %w", err)
	}
	return exists, nil
}

func (r *repository) GetCredential(
	ctx context.Context,
	accountID string,
) (*Credential, error) {
	query := `
		SELECT account_id, password_hash, created_at, updated_at
		FROM credentials
		WHERE account_id = $1`

	var cred Credential
	err := r.db.GetContext(ctx, &cred, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get credential: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	return &cred, nil
}

func (r *repository) RotateCredential(
	ctx context.Context,
	accountID, passwordHash string,
) error {
	query := `
		UPDATE credentials
		SET password_hash = $2, updated_at = NOW()
		WHERE account_id = $1`

	result, err := r.db.ExecContext(ctx, query, accountID, passwordHash)
	if err != nil {
		return fmt.Errorf("rotate credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate credential: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("rotate credential: %w", core.ErrNotFound)
	}

	return nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
