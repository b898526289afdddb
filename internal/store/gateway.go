package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/model"
)

// DefaultTimeout bounds a single gateway call when Gateway.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Gateway exposes the store functions bound to one database, with each call
// limited by Timeout.
type Gateway struct {
	DB      *sql.DB
	Timeout time.Duration
}

// NewGateway returns a Gateway over db using the default timeout.
func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{DB: db, Timeout: DefaultTimeout}
}

func (g *Gateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (g *Gateway) GetItem(ctx context.Context, id string) (*model.Item, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return GetItem(ctx, g.DB, id)
}

func (g *Gateway) PutItem(ctx context.Context, item *model.Item) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return PutItem(ctx, g.DB, item)
}

func (g *Gateway) DeleteItem(ctx context.Context, id string) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return DeleteItem(ctx, g.DB, id)
}

func (g *Gateway) ListItemsHeldBy(ctx context.Context, borrowerID string) ([]model.Item, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return ListItems(ctx, g.DB, ItemFilter{HolderID: borrowerID})
}

func (g *Gateway) ListAllItems(ctx context.Context) ([]model.Item, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return ListItems(ctx, g.DB, ItemFilter{})
}

func (g *Gateway) SearchItems(ctx context.Context, query string) ([]model.Item, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return ListItems(ctx, g.DB, ItemFilter{TitleContains: query})
}

func (g *Gateway) GetBorrower(ctx context.Context, id string) (*model.Borrower, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return GetBorrower(ctx, g.DB, id)
}

func (g *Gateway) ListBorrowers(ctx context.Context) ([]model.Borrower, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return ListBorrowers(ctx, g.DB)
}

func (g *Gateway) CreateBorrower(ctx context.Context, b *model.Borrower) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return CreateBorrower(ctx, g.DB, b)
}

func (g *Gateway) SetBorrowerBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return SetBorrowerBalance(ctx, g.DB, id, balance)
}

func (g *Gateway) GetStaff(ctx context.Context, id string) (*model.Staff, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return GetStaff(ctx, g.DB, id)
}

func (g *Gateway) CreateStaff(ctx context.Context, s *model.Staff) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return CreateStaff(ctx, g.DB, s)
}

// CommitReturn releases the item and sets the balance in one transaction.
func (g *Gateway) CommitReturn(ctx context.Context, itemID, borrowerID string, balance decimal.Decimal) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return CommitReturn(ctx, g.DB, itemID, borrowerID, balance)
}
