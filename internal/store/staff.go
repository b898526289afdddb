package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/knjiznica/internal/model"
)

// CreateStaff registers a librarian account.
func CreateStaff(ctx context.Context, db *sql.DB, s *model.Staff) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO staff (id, name, password_hash) VALUES (?, ?, ?)`,
		s.ID, s.Name, s.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("creating staff: %w", err)
	}
	return nil
}

// GetStaff returns a librarian by ID, or nil if not found.
func GetStaff(ctx context.Context, db *sql.DB, id string) (*model.Staff, error) {
	s := &model.Staff{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, created_at FROM staff WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.PasswordHash, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting staff: %w", err)
	}
	return s, nil
}
