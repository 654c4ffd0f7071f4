// AngelaMos | 2026
// entity.go

package account

import (
	"strings"
	"time"
)

// Account is the identity root. Credential, Status and the one-time code
// record are satellites addressed by account id, created in the same
// transaction as the account itself.
type Account struct {
	ID        string    `db:"id"`
	Firstname string    `db:"firstname"`
	Lastname  string    `db:"lastname"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	GoogleID  *string   `db:"google_id"`
	GithubID  *string   `db:"github_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Status struct {
	AccountID  string    `db:"account_id"`
	IsActive   bool      `db:"is_active"`
	IsVerified bool      `db:"is_verified"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type Credential struct {
	AccountID    string    `db:"account_id"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

const (
	RoleEndUser    = "EndUser"
	RoleAdmin      = "Admin"
	RoleSuperAdmin = "SuperAdmin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleEndUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// InitialStatus returns the status a fresh account starts with. Only end
// users are active immediately; privileged roles wait for a separate
// activation flow. Nobody starts verified.
func InitialStatus(accountID, role string) Status {
	return Status{
		AccountID:  accountID,
		IsActive:   role == RoleEndUser,
		IsVerified: false,
	}
}

// Authorized is the gate's activation predicate. Endpoints on the
// verification and reset flows pass requireActive=false, since an account
// must be able to verify or reset before it is active.
func Authorized(status Status, requireActive bool) bool {
	if !requireActive {
		return true
	}
	return status.IsActive
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Account) IsPrivileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}
