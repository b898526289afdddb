package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/knjiznica/internal/lending"
	"github.com/erazemk/knjiznica/internal/model"
)

// LoansHandler serves the signed-in borrower's circulation endpoints.
type LoansHandler struct {
	Engine *lending.Engine
	Now    func() time.Time
}

type itemRequest struct {
	ItemID string `json:"item_id"`
}

type accountResponse struct {
	Borrower    borrowerView `json:"borrower"`
	Items       []model.Item `json:"items"`
	Loans       int          `json:"loans"`
	MaxLoans    int          `json:"max_loans"`
	FineBalance string       `json:"fine_balance"`
}

type checkoutResponse struct {
	Item    model.Item `json:"item"`
	DueDate time.Time  `json:"due_date"`
}

type returnResponse struct {
	Item        model.Item `json:"item"`
	Fine        string     `json:"fine"`
	FineBalance string     `json:"fine_balance"`
}

type payResponse struct {
	Paid        string `json:"paid"`
	FineBalance string `json:"fine_balance"`
}

// Account handles GET /api/account.
func (h *LoansHandler) Account(w http.ResponseWriter, r *http.Request) {
	id, err := principalID(r)
	if err != nil {
		jsonError(w, http.StatusUnauthorized, err.Error())
		return
	}

	acc, err := h.Engine.Refresh(r.Context(), id)
	if err != nil {
		engineError(w, r, err)
		return
	}

	view := newBorrowerView(&acc.Borrower)
	jsonResponse(w, http.StatusOK, accountResponse{
		Borrower:    view,
		Items:       acc.Items,
		Loans:       len(acc.Items),
		MaxLoans:    view.MaxLoans,
		FineBalance: money(acc.FineBalance),
	})
}

// Checkout handles POST /api/loans.
func (h *LoansHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, itemID, ok := h.parse(w, r)
	if !ok {
		return
	}

	res, err := h.Engine.Checkout(r.Context(), id, itemID, h.Now())
	if err != nil {
		engineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, checkoutResponse{Item: res.Item, DueDate: res.DueDate})
}

// Return handles POST /api/returns.
func (h *LoansHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, itemID, ok := h.parse(w, r)
	if !ok {
		return
	}

	res, err := h.Engine.ReturnItem(r.Context(), id, itemID, h.Now())
	if err != nil {
		engineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, returnResponse{
		Item:        res.Item,
		Fine:        money(res.Fine),
		FineBalance: money(res.FineBalance),
	})
}

// PayFine handles POST /api/fines/pay.
func (h *LoansHandler) PayFine(w http.ResponseWriter, r *http.Request) {
	id, err := principalID(r)
	if err != nil {
		jsonError(w, http.StatusUnauthorized, err.Error())
		return
	}

	paid, err := h.Engine.PayFine(r.Context(), id)
	if err != nil {
		engineError(w, r, err)
		return
	}

	if paid.IsPositive() {
		slog.Info("fine settled over api", "borrower", id, "request_id", RequestID(r.Context()))
	}
	jsonResponse(w, http.StatusOK, payResponse{Paid: money(paid), FineBalance: money(decimal.Zero)})
}

func (h *LoansHandler) parse(w http.ResponseWriter, r *http.Request) (borrowerID, itemID string, ok bool) {
	borrowerID, err := principalID(r)
	if err != nil {
		jsonError(w, http.StatusUnauthorized, err.Error())
		return "", "", false
	}

	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return "", "", false
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		invalidInput(w, "item_id required")
		return "", "", false
	}
	return borrowerID, req.ItemID, true
}
