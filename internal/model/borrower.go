package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Role selects the lending policy a borrower is bound to.
type Role string

// Borrower roles.
const (
	RoleStandard   Role = "standard"
	RolePrivileged Role = "privileged"
)

// Borrower is a registered patron who may hold items.
type Borrower struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	PasswordHash string          `json:"-"`
	Role         Role            `json:"role"`
	Detail       string          `json:"detail,omitempty"`
	FineBalance  decimal.Decimal `json:"fine_balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Staff is a librarian account. Staff hold no loans.
type Staff struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is the loan ledger of a borrower: the items whose holder is the
// borrower, recomputed from the catalog on every read.
type Account struct {
	Borrower    Borrower        `json:"borrower"`
	Items       []Item          `json:"items"`
	FineBalance decimal.Decimal `json:"fine_balance"`
}

// Holds reports whether itemID is in the ledger.
func (a *Account) Holds(itemID string) bool {
	for _, it := range a.Items {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
