package lending

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/model"
)

// memGateway is an in-memory Gateway. The fail* hooks inject storage errors.
type memGateway struct {
	mu        sync.Mutex
	items     map[string]model.Item
	borrowers map[string]model.Borrower
	staff     map[string]model.Staff

	failGetItem    error
	failPutItem    error
	failListHeld   error
	failSetBalance []error // consumed one per call; nil entries succeed
	balanceWrites  int
}

func newMemGateway() *memGateway {
	return &memGateway{
		items:     make(map[string]model.Item),
		borrowers: make(map[string]model.Borrower),
		staff:     make(map[string]model.Staff),
	}
}

func (m *memGateway) GetItem(_ context.Context, id string) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGetItem != nil {
		return nil, m.failGetItem
	}
	it, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return cloneItem(it), nil
}

func (m *memGateway) PutItem(_ context.Context, item *model.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPutItem != nil {
		return m.failPutItem
	}
	m.items[item.ID] = *cloneItem(*item)
	return nil
}

func (m *memGateway) DeleteItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memGateway) ListItemsHeldBy(_ context.Context, borrowerID string) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failListHeld != nil {
		return nil, m.failListHeld
	}
	return m.list(func(it model.Item) bool { return it.HeldBy(borrowerID) }), nil
}

func (m *memGateway) ListAllItems(_ context.Context) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(model.Item) bool { return true }), nil
}

func (m *memGateway) SearchItems(_ context.Context, query string) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(query)
	return m.list(func(it model.Item) bool { return strings.Contains(strings.ToLower(it.Title), q) }), nil
}

func (m *memGateway) list(keep func(model.Item) bool) []model.Item {
	var out []model.Item
	for _, it := range m.items {
		if keep(it) {
			out = append(out, *cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memGateway) GetBorrower(_ context.Context, id string) (*model.Borrower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.borrowers[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *memGateway) ListBorrowers(_ context.Context) ([]model.Borrower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Borrower
	for _, b := range m.borrowers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memGateway) CreateBorrower(_ context.Context, b *model.Borrower) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowers[b.ID] = *b
	return nil
}

func (m *memGateway) SetBorrowerBalance(_ context.Context, id string, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceWrites++
	if len(m.failSetBalance) > 0 {
		err := m.failSetBalance[0]
		m.failSetBalance = m.failSetBalance[1:]
		if err != nil {
			return err
		}
	}
	b := m.borrowers[id]
	b.FineBalance = balance
	m.borrowers[id] = b
	return nil
}

func (m *memGateway) GetStaff(_ context.Context, id string) (*model.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.staff[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memGateway) CreateStaff(_ context.Context, s *model.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = *s
	return nil
}

func (m *memGateway) item(id string) model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *cloneItem(m.items[id])
}

func (m *memGateway) balance(id string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.borrowers[id].FineBalance
}

func cloneItem(it model.Item) *model.Item {
	c := it
	if it.HolderID != nil {
		h := *it.HolderID
		c.HolderID = &h
	}
	if it.DueDate != nil {
		d := *it.DueDate
		c.DueDate = &d
	}
	return &c
}

// committingGateway adds an atomic CommitReturn to memGateway.
type committingGateway struct {
	*memGateway
	failCommit error
	commits    int
}

func (c *committingGateway) CommitReturn(_ context.Context, itemID, borrowerID string, balance decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	if c.failCommit != nil {
		return c.failCommit
	}
	it := c.items[itemID]
	it.Release()
	c.items[itemID] = it
	b := c.borrowers[borrowerID]
	b.FineBalance = balance
	c.borrowers[borrowerID] = b
	return nil
}
