package api

import (
	"net/http"
	"time"

	"github.com/erazemk/knjiznica/internal/lending"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/policy"
)

// BorrowersHandler serves the staff borrower listing.
type BorrowersHandler struct {
	Engine *lending.Engine
}

type borrowerView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        model.Role `json:"role"`
	Detail      string     `json:"detail,omitempty"`
	MaxLoans    int        `json:"max_loans"`
	FineBalance string     `json:"fine_balance"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newBorrowerView(b *model.Borrower) borrowerView {
	return borrowerView{
		ID:          b.ID,
		Name:        b.Name,
		Role:        b.Role,
		Detail:      b.Detail,
		MaxLoans:    policy.MaxLoans(b.Role),
		FineBalance: money(b.FineBalance),
		CreatedAt:   b.CreatedAt,
	}
}

// List handles GET /api/borrowers.
func (h *BorrowersHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Borrowers(r.Context())
	if err != nil {
		engineError(w, r, err)
		return
	}

	views := make([]borrowerView, 0, len(list))
	for i := range list {
		views = append(views, newBorrowerView(&list[i]))
	}
	jsonResponse(w, http.StatusOK, views)
}
