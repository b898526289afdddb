// Package policy holds the per-role lending rules: how many items a borrower
// may hold, for how long, and what an overdue day costs.
package policy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/model"
)

// Day is the unit fines accrue in.
const Day = 24 * time.Hour

// ErrUnknownRole is returned for roles without a rules row.
var ErrUnknownRole = errors.New("unknown borrower role")

// Rules is one row of the policy table.
type Rules struct {
	MaxLoans     int
	LoanDuration time.Duration
	FinePerDay   decimal.Decimal
}

// table maps each role to its rules. A new role needs a model.Role constant
// and a row here.
var table = map[model.Role]Rules{
	model.RoleStandard: {
		MaxLoans:     5,
		LoanDuration: 14 * Day,
		FinePerDay:   decimal.RequireFromString("0.50"),
	},
	model.RolePrivileged: {
		MaxLoans:     10,
		LoanDuration: 30 * Day,
		FinePerDay:   decimal.RequireFromString("0.25"),
	},
}

// For returns the rules bound to role.
func For(role model.Role) (Rules, error) {
	r, ok := table[role]
	if !ok {
		return Rules{}, ErrUnknownRole
	}
	return r, nil
}

// Valid reports whether role has a rules row.
func Valid(role model.Role) bool {
	_, ok := table[role]
	return ok
}

// MaxLoans returns the number of items role may hold at once (0 for unknown roles).
func MaxLoans(role model.Role) int {
	return table[role].MaxLoans
}

// LoanDuration returns the loan period for role.
func LoanDuration(role model.Role) time.Duration {
	return table[role].LoanDuration
}

// FinePerDay returns the fine charged per whole overdue day.
func FinePerDay(role model.Role) decimal.Decimal {
	r, ok := table[role]
	if !ok {
		return decimal.Zero
	}
	return r.FinePerDay
}

// DueDate returns when an item checked out at now is due back.
func DueDate(role model.Role, now time.Time) time.Time {
	return now.Add(LoanDuration(role))
}

// DaysElapsed returns the whole days between due and now, or 0 when now is
// not after due. Partial days are truncated.
func DaysElapsed(due, now time.Time) int64 {
	if !now.After(due) {
		return 0
	}
	return int64(now.Sub(due) / Day)
}

// Fine returns the fine owed for an item due at due and returned at now.
func Fine(role model.Role, due, now time.Time) decimal.Decimal {
	days := DaysElapsed(due, now)
	if days <= 0 {
		return decimal.Zero
	}
	return FinePerDay(role).Mul(decimal.NewFromInt(days))
}
