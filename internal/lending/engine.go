// Package lending implements the circulation rules of the library: lending
// items to borrowers, taking them back with overdue fines, and keeping the
// catalog and borrower ledgers consistent under concurrent requests.
package lending

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/policy"
)

const tracerName = "github.com/erazemk/knjiznica/internal/lending"

// Engine serializes work per item and per borrower. When an operation needs
// both, it locks the borrower first.
type Engine struct {
	gw     Gateway
	tracer trace.Tracer

	items     keyedMutex
	borrowers keyedMutex
	staff     keyedMutex
}

// CheckoutResult describes a successful checkout.
type CheckoutResult struct {
	Item    model.Item `json:"item"`
	DueDate time.Time  `json:"due_date"`
}

// ReturnResult describes a successful return.
type ReturnResult struct {
	Item        model.Item      `json:"item"`
	Fine        decimal.Decimal `json:"fine"`
	FineBalance decimal.Decimal `json:"fine_balance"`
}

// New returns an Engine backed by gw.
func New(gw Gateway) *Engine {
	return &Engine{
		gw:     gw,
		tracer: otel.Tracer(tracerName),
	}
}

func (e *Engine) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "lending."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("lending.error_code", string(CodeOf(err))))
	}
	span.End()
}

// Checkout lends itemID to borrowerID. The item must exist and be available,
// and the borrower must hold fewer items than their role allows.
func (e *Engine) Checkout(ctx context.Context, borrowerID, itemID string, now time.Time) (res *CheckoutResult, err error) {
	ctx, span := e.start(ctx, "Checkout",
		attribute.String("borrower.id", borrowerID), attribute.String("item.id", itemID))
	defer func() { finish(span, err) }()

	unlockBorrower := e.borrowers.Lock(borrowerID)
	defer unlockBorrower()
	unlockItem := e.items.Lock(itemID)
	defer unlockItem()

	item, err := e.gw.GetItem(ctx, itemID)
	if err != nil {
		return nil, persistence("reading item", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if !item.Available {
		return nil, ErrItemUnavailable
	}

	b, err := e.gw.GetBorrower(ctx, borrowerID)
	if err != nil {
		return nil, persistence("reading borrower", err)
	}
	if b == nil {
		return nil, ErrBorrowerNotFound
	}
	rules, err := policy.For(b.Role)
	if err != nil {
		return nil, invalid("borrower has no lending policy")
	}

	held, err := e.gw.ListItemsHeldBy(ctx, borrowerID)
	if err != nil {
		return nil, persistence("reading loans", err)
	}
	if len(held) >= rules.MaxLoans {
		return nil, ErrBorrowLimitExceeded
	}

	due := policy.DueDate(b.Role, now)
	item.Lend(borrowerID, due)
	if err := e.gw.PutItem(ctx, item); err != nil {
		return nil, persistence("saving checkout", err)
	}

	slog.Info("item checked out", "item", itemID, "borrower", borrowerID, "due", due)
	return &CheckoutResult{Item: *item, DueDate: due}, nil
}

// ReturnItem takes itemID back from borrowerID and adds any overdue fine to
// the borrower's balance. The item is released only if the fine is recorded.
func (e *Engine) ReturnItem(ctx context.Context, borrowerID, itemID string, now time.Time) (res *ReturnResult, err error) {
	ctx, span := e.start(ctx, "ReturnItem",
		attribute.String("borrower.id", borrowerID), attribute.String("item.id", itemID))
	defer func() { finish(span, err) }()

	unlockBorrower := e.borrowers.Lock(borrowerID)
	defer unlockBorrower()
	unlockItem := e.items.Lock(itemID)
	defer unlockItem()

	item, err := e.gw.GetItem(ctx, itemID)
	if err != nil {
		return nil, persistence("reading item", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if !item.HeldBy(borrowerID) {
		return nil, ErrNotBorrowedByUser
	}

	b, err := e.gw.GetBorrower(ctx, borrowerID)
	if err != nil {
		return nil, persistence("reading borrower", err)
	}
	if b == nil {
		return nil, ErrBorrowerNotFound
	}

	fine := decimal.Zero
	if item.DueDate != nil {
		fine = policy.Fine(b.Role, *item.DueDate, now)
	}
	balance := b.FineBalance.Add(fine)

	if err := e.commitReturn(ctx, item, b, balance, fine); err != nil {
		return nil, err
	}

	item.Release()
	span.SetAttributes(attribute.String("lending.fine", fine.StringFixed(2)))
	slog.Info("item returned", "item", itemID, "borrower", borrowerID,
		"fine", fine.StringFixed(2), "balance", balance.StringFixed(2))
	return &ReturnResult{Item: *item, Fine: fine, FineBalance: balance}, nil
}

func (e *Engine) commitReturn(ctx context.Context, item *model.Item, b *model.Borrower, balance, fine decimal.Decimal) error {
	if rc, ok := e.gw.(ReturnCommitter); ok {
		if err := rc.CommitReturn(ctx, item.ID, b.ID, balance); err != nil {
			return persistence("committing return", err)
		}
		return nil
	}

	// Balance goes first so a failed release can be undone by restoring it.
	charged := fine.IsPositive()
	if charged {
		if err := e.gw.SetBorrowerBalance(ctx, b.ID, balance); err != nil {
			return persistence("recording fine", err)
		}
	}

	released := *item
	released.Release()
	err := e.gw.PutItem(ctx, &released)
	if err == nil {
		return nil
	}
	if !charged {
		return persistence("releasing item", err)
	}

	if rerr := e.gw.SetBorrowerBalance(ctx, b.ID, b.FineBalance); rerr != nil {
		slog.Error("return left fine charged on an item still on loan",
			"item", item.ID, "borrower", b.ID, "fine", fine.StringFixed(2),
			"release_error", err, "restore_error", rerr)
		return &Error{
			Kind:    KindPersistence,
			Code:    CodeReturnIndeterminate,
			Message: ErrReturnIndeterminate.Message,
			Err:     errors.Join(err, rerr),
		}
	}
	return persistence("releasing item", err)
}

// PayFine clears the borrower's fine balance and returns the amount that was
// cleared. Paying a zero balance is a successful no-op.
func (e *Engine) PayFine(ctx context.Context, borrowerID string) (paid decimal.Decimal, err error) {
	ctx, span := e.start(ctx, "PayFine", attribute.String("borrower.id", borrowerID))
	defer func() { finish(span, err) }()

	unlock := e.borrowers.Lock(borrowerID)
	defer unlock()

	b, err := e.gw.GetBorrower(ctx, borrowerID)
	if err != nil {
		return decimal.Zero, persistence("reading borrower", err)
	}
	if b == nil {
		return decimal.Zero, ErrBorrowerNotFound
	}
	if b.FineBalance.IsZero() {
		return decimal.Zero, nil
	}

	if err := e.gw.SetBorrowerBalance(ctx, borrowerID, decimal.Zero); err != nil {
		return decimal.Zero, persistence("clearing fine", err)
	}

	slog.Info("fine paid", "borrower", borrowerID, "amount", b.FineBalance.StringFixed(2))
	return b.FineBalance, nil
}

// Refresh returns the borrower's current account, rebuilt from storage.
func (e *Engine) Refresh(ctx context.Context, borrowerID string) (acc *model.Account, err error) {
	ctx, span := e.start(ctx, "Refresh", attribute.String("borrower.id", borrowerID))
	defer func() { finish(span, err) }()

	unlock := e.borrowers.Lock(borrowerID)
	defer unlock()

	b, err := e.gw.GetBorrower(ctx, borrowerID)
	if err != nil {
		return nil, persistence("reading borrower", err)
	}
	if b == nil {
		return nil, ErrBorrowerNotFound
	}

	items, err := e.gw.ListItemsHeldBy(ctx, borrowerID)
	if err != nil {
		return nil, persistence("reading loans", err)
	}
	if items == nil {
		items = []model.Item{}
	}

	return &model.Account{Borrower: *b, Items: items, FineBalance: b.FineBalance}, nil
}

// AddItem adds a new, available item to the catalog.
func (e *Engine) AddItem(ctx context.Context, item model.Item) (res *model.Item, err error) {
	ctx, span := e.start(ctx, "AddItem", attribute.String("item.id", item.ID))
	defer func() { finish(span, err) }()

	item.ID = strings.TrimSpace(item.ID)
	item.Title = strings.TrimSpace(item.Title)
	if item.ID == "" {
		return nil, invalid("item id is required")
	}
	if item.Title == "" {
		return nil, invalid("item title is required")
	}

	unlock := e.items.Lock(item.ID)
	defer unlock()

	existing, err := e.gw.GetItem(ctx, item.ID)
	if err != nil {
		return nil, persistence("reading item", err)
	}
	if existing != nil {
		return nil, ErrDuplicateID
	}

	item.Release()
	item.CoverMime = ""
	if err := e.gw.PutItem(ctx, &item); err != nil {
		return nil, persistence("saving item", err)
	}

	saved, err := e.gw.GetItem(ctx, item.ID)
	if err != nil {
		return nil, persistence("reading item", err)
	}
	if saved == nil {
		return nil, persistence("reading item", errors.New("item vanished after insert"))
	}

	slog.Info("item added", "item", item.ID, "title", item.Title)
	return saved, nil
}

// RemoveItem deletes an item from the catalog. Items on loan cannot be removed.
func (e *Engine) RemoveItem(ctx context.Context, itemID string) (err error) {
	ctx, span := e.start(ctx, "RemoveItem", attribute.String("item.id", itemID))
	defer func() { finish(span, err) }()

	unlock := e.items.Lock(itemID)
	defer unlock()

	item, err := e.gw.GetItem(ctx, itemID)
	if err != nil {
		return persistence("reading item", err)
	}
	if item == nil {
		return ErrItemNotFound
	}
	if !item.Available {
		return ErrItemOnLoan
	}

	if err := e.gw.DeleteItem(ctx, itemID); err != nil {
		return persistence("deleting item", err)
	}

	slog.Info("item removed", "item", itemID)
	return nil
}

// Item returns a single catalog item.
func (e *Engine) Item(ctx context.Context, itemID string) (*model.Item, error) {
	item, err := e.gw.GetItem(ctx, itemID)
	if err != nil {
		return nil, persistence("reading item", err)
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// Catalog lists all items, or those whose title contains query.
func (e *Engine) Catalog(ctx context.Context, query string) (items []model.Item, err error) {
	ctx, span := e.start(ctx, "Catalog", attribute.String("catalog.query", query))
	defer func() { finish(span, err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		items, err = e.gw.ListAllItems(ctx)
	} else {
		items, err = e.gw.SearchItems(ctx, query)
	}
	if err != nil {
		return nil, persistence("listing items", err)
	}
	if items == nil {
		items = []model.Item{}
	}
	return items, nil
}

// RegisterBorrower creates a borrower with a zero fine balance. The caller
// supplies the password hash.
func (e *Engine) RegisterBorrower(ctx context.Context, b model.Borrower) (res *model.Borrower, err error) {
	ctx, span := e.start(ctx, "RegisterBorrower", attribute.String("borrower.id", b.ID))
	defer func() { finish(span, err) }()

	b.ID = strings.TrimSpace(b.ID)
	b.Name = strings.TrimSpace(b.Name)
	switch {
	case b.ID == "":
		return nil, invalid("borrower id is required")
	case b.Name == "":
		return nil, invalid("borrower name is required")
	case b.PasswordHash == "":
		return nil, invalid("password is required")
	case !policy.Valid(b.Role):
		return nil, invalid("unknown borrower role")
	}

	unlock := e.borrowers.Lock(b.ID)
	defer unlock()

	existing, err := e.gw.GetBorrower(ctx, b.ID)
	if err != nil {
		return nil, persistence("reading borrower", err)
	}
	if existing != nil {
		return nil, ErrDuplicateID
	}

	b.FineBalance = decimal.Zero
	if err := e.gw.CreateBorrower(ctx, &b); err != nil {
		return nil, persistence("saving borrower", err)
	}

	slog.Info("borrower registered", "borrower", b.ID, "role", b.Role)
	return e.Borrower(ctx, b.ID)
}

// Borrower returns a single borrower, including the password hash.
func (e *Engine) Borrower(ctx context.Context, borrowerID string) (*model.Borrower, error) {
	b, err := e.gw.GetBorrower(ctx, borrowerID)
	if err != nil {
		return nil, persistence("reading borrower", err)
	}
	if b == nil {
		return nil, ErrBorrowerNotFound
	}
	return b, nil
}

// Borrowers lists every borrower.
func (e *Engine) Borrowers(ctx context.Context) ([]model.Borrower, error) {
	list, err := e.gw.ListBorrowers(ctx)
	if err != nil {
		return nil, persistence("listing borrowers", err)
	}
	if list == nil {
		list = []model.Borrower{}
	}
	return list, nil
}

// RegisterStaff creates a librarian account.
func (e *Engine) RegisterStaff(ctx context.Context, s model.Staff) (res *model.Staff, err error) {
	ctx, span := e.start(ctx, "RegisterStaff", attribute.String("staff.id", s.ID))
	defer func() { finish(span, err) }()

	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	switch {
	case s.ID == "":
		return nil, invalid("staff id is required")
	case s.Name == "":
		return nil, invalid("staff name is required")
	case s.PasswordHash == "":
		return nil, invalid("password is required")
	}

	unlock := e.staff.Lock(s.ID)
	defer unlock()

	existing, err := e.gw.GetStaff(ctx, s.ID)
	if err != nil {
		return nil, persistence("reading staff", err)
	}
	if existing != nil {
		return nil, ErrDuplicateID
	}

	if err := e.gw.CreateStaff(ctx, &s); err != nil {
		return nil, persistence("saving staff", err)
	}

	slog.Info("staff registered", "staff", s.ID)
	return e.StaffMember(ctx, s.ID)
}

// StaffMember returns a single staff account, including the password hash.
func (e *Engine) StaffMember(ctx context.Context, staffID string) (*model.Staff, error) {
	s, err := e.gw.GetStaff(ctx, staffID)
	if err != nil {
		return nil, persistence("reading staff", err)
	}
	if s == nil {
		return nil, ErrStaffNotFound
	}
	return s, nil
}
