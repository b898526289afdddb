package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/model"
)

const borrowerColumns = `id, name, password_hash, role, detail, fine_balance, created_at`

// CreateBorrower registers a new borrower with a zero fine balance.
func CreateBorrower(ctx context.Context, db *sql.DB, b *model.Borrower) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO borrowers (id, name, password_hash, role, detail, fine_balance)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.PasswordHash, string(b.Role), b.Detail, decimal.Zero.String(),
	)
	if err != nil {
		return fmt.Errorf("creating borrower: %w", err)
	}
	return nil
}

// GetBorrower returns a borrower by ID, or nil if not found.
func GetBorrower(ctx context.Context, db *sql.DB, id string) (*model.Borrower, error) {
	b, err := scanBorrower(db.QueryRowContext(ctx,
		`SELECT `+borrowerColumns+` FROM borrowers WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting borrower: %w", err)
	}
	return b, nil
}

// ListBorrowers returns all borrowers ordered by name.
func ListBorrowers(ctx context.Context, db *sql.DB) ([]model.Borrower, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+borrowerColumns+` FROM borrowers ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing borrowers: %w", err)
	}
	defer rows.Close()

	var borrowers []model.Borrower
	for rows.Next() {
		b, err := scanBorrower(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning borrower: %w", err)
		}
		borrowers = append(borrowers, *b)
	}
	return borrowers, rows.Err()
}

// SetBorrowerBalance overwrites a borrower's fine balance.
func SetBorrowerBalance(ctx context.Context, db *sql.DB, id string, balance decimal.Decimal) error {
	result, err := db.ExecContext(ctx,
		`UPDATE borrowers SET fine_balance = ? WHERE id = ?`,
		balance.String(), id,
	)
	if err != nil {
		return fmt.Errorf("updating fine balance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("updating fine balance: borrower %q not found", id)
	}
	return nil
}

func scanBorrower(row rowScanner) (*model.Borrower, error) {
	b := &model.Borrower{}
	var role, balance string
	var detail sql.NullString
	if err := row.Scan(&b.ID, &b.Name, &b.PasswordHash, &role, &detail, &balance, &b.CreatedAt); err != nil {
		return nil, err
	}
	fine, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parsing fine balance %q: %w", balance, err)
	}
	b.Role = model.Role(role)
	b.Detail = detail.String
	b.FineBalance = fine
	return b, nil
}
