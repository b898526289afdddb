package lending

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/model"
)

// Gateway is the persistence the engine reads from and writes to. Lookups
// return (nil, nil) when the record does not exist; any non-nil error is a
// storage failure.
type Gateway interface {
	GetItem(ctx context.Context, id string) (*model.Item, error)
	PutItem(ctx context.Context, item *model.Item) error
	DeleteItem(ctx context.Context, id string) error
	ListItemsHeldBy(ctx context.Context, borrowerID string) ([]model.Item, error)
	ListAllItems(ctx context.Context) ([]model.Item, error)
	SearchItems(ctx context.Context, query string) ([]model.Item, error)

	GetBorrower(ctx context.Context, id string) (*model.Borrower, error)
	ListBorrowers(ctx context.Context) ([]model.Borrower, error)
	CreateBorrower(ctx context.Context, b *model.Borrower) error
	SetBorrowerBalance(ctx context.Context, id string, balance decimal.Decimal) error

	GetStaff(ctx context.Context, id string) (*model.Staff, error)
	CreateStaff(ctx context.Context, s *model.Staff) error
}

// ReturnCommitter is implemented by gateways that can release an item and
// set its holder's fine balance atomically. The engine prefers it over two
// separate writes.
type ReturnCommitter interface {
	CommitReturn(ctx context.Context, itemID, borrowerID string, balance decimal.Decimal) error
}
