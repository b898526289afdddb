package db

import (
	"database/sql"
	"testing"
)

// NewTestDB returns an in-memory catalog database with the schema and all
// migrations applied. Any seed statements run afterwards in one
// transaction, so a test starts either fully seeded or not at all.
func NewTestDB(t *testing.T, seed ...string) *sql.DB {
	t.Helper()

	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test catalog: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := EnsureSchema(database); err != nil {
		t.Fatalf("applying catalog schema: %v", err)
	}
	if len(seed) == 0 {
		return database
	}

	tx, err := database.Begin()
	if err != nil {
		t.Fatalf("seeding test catalog: %v", err)
	}
	defer tx.Rollback()
	for i, stmt := range seed {
		if _, err := tx.Exec(stmt); err != nil {
			t.Fatalf("seed statement %d: %v", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("committing seed: %v", err)
	}
	return database
}
