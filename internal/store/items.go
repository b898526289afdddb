package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/model"
)

var dialect = goqu.Dialect("sqlite3")

// ErrItemNotFound is returned by writes that target an item which does not exist.
var ErrItemNotFound = errors.New("item not found")

var itemColumns = []any{
	"id", "title", "creator", "publisher", "available", "holder_id", "due_date", "cover_mime", "created_at",
}

// foldTitle lowercases s for search. SQLite's lower() only folds ASCII, so
// titles are folded here and stored alongside the original.
func foldTitle(s string) string {
	return strings.ToLower(s)
}

// ItemFilter narrows ListItems. Zero values match everything.
type ItemFilter struct {
	HolderID      string
	TitleContains string
}

// PutItem inserts an item or replaces its descriptive and loan state.
// The cover image is left untouched.
func PutItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	var due any
	if item.DueDate != nil {
		due = item.DueDate.UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, title, title_fold, creator, publisher, available, holder_id, due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     title = excluded.title,
		     title_fold = excluded.title_fold,
		     creator = excluded.creator,
		     publisher = excluded.publisher,
		     available = excluded.available,
		     holder_id = excluded.holder_id,
		     due_date = excluded.due_date`,
		item.ID, item.Title, foldTitle(item.Title), item.Creator, item.Publisher, item.Available, item.HolderID, due,
	)
	if err != nil {
		return fmt.Errorf("putting item: %w", err)
	}
	return nil
}

// GetItem returns an item by ID, or nil if it does not exist.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.Item, error) {
	query, args, err := dialect.From("items").Select(itemColumns...).
		Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building item query: %w", err)
	}

	item, err := scanItem(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns items ordered by title, filtered by f.
func ListItems(ctx context.Context, db *sql.DB, f ItemFilter) ([]model.Item, error) {
	ds := dialect.From("items").Select(itemColumns...).
		Order(goqu.I("title").Asc(), goqu.I("id").Asc())

	if f.HolderID != "" {
		ds = ds.Where(goqu.C("holder_id").Eq(f.HolderID))
	}
	if f.TitleContains != "" {
		ds = ds.Where(goqu.L("instr(title_fold, ?) > 0", foldTitle(f.TitleContains)))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building item listing: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item and its cover.
func DeleteItem(ctx context.Context, db *sql.DB, id string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// SetItemCover sets an item's cover image.
func SetItemCover(ctx context.Context, db *sql.DB, id string, image []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET cover = ?, cover_mime = ? WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting item cover: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("setting item cover %q: %w", id, ErrItemNotFound)
	}
	return nil
}

// GetItemCover returns an item's cover image and MIME type, or nil data if
// the item has no cover.
func GetItemCover(ctx context.Context, db *sql.DB, id string) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT cover, cover_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item cover: %w", err)
	}
	return image, mime.String, nil
}

// CommitReturn clears the loan on itemID and sets the holder's fine balance
// in one transaction. It fails without changes if the item is no longer held
// by borrowerID.
func CommitReturn(ctx context.Context, db *sql.DB, itemID, borrowerID string, balance decimal.Decimal) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET available = 1, holder_id = NULL, due_date = NULL
		 WHERE id = ? AND holder_id = ?`,
		itemID, borrowerID,
	)
	if err != nil {
		return fmt.Errorf("releasing item: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("releasing item: %q is not on loan to %q", itemID, borrowerID)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE borrowers SET fine_balance = ? WHERE id = ?`,
		balance.String(), borrowerID,
	)
	if err != nil {
		return fmt.Errorf("updating fine balance: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil || n != 1 {
		return fmt.Errorf("updating fine balance: borrower %q not found", borrowerID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing return: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var creator, publisher, holder, coverMime sql.NullString
	var due sql.NullTime
	if err := row.Scan(&item.ID, &item.Title, &creator, &publisher, &item.Available,
		&holder, &due, &coverMime, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Creator = creator.String
	item.Publisher = publisher.String
	item.CoverMime = coverMime.String
	if holder.Valid {
		h := holder.String
		item.HolderID = &h
	}
	if due.Valid {
		d := due.Time.In(time.UTC)
		item.DueDate = &d
	}
	return item, nil
}
