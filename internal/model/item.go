package model

import "time"

// Item is a single lendable catalog entry. Availability state is only ever
// changed by the lending engine.
type Item struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Creator   string     `json:"creator,omitempty"`
	Publisher string     `json:"publisher,omitempty"`
	Available bool       `json:"available"`
	HolderID  *string    `json:"holder_id,omitempty"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CoverMime string     `json:"cover_mime,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HeldBy reports whether the item is currently on loan to borrowerID.
func (i Item) HeldBy(borrowerID string) bool {
	return !i.Available && i.HolderID != nil && *i.HolderID == borrowerID
}

// Lend marks the item as on loan.
func (i *Item) Lend(borrowerID string, due time.Time) {
	i.Available = false
	i.HolderID = &borrowerID
	i.DueDate = &due
}

// Release clears the loan state.
func (i *Item) Release() {
	i.Available = true
	i.HolderID = nil
	i.DueDate = nil
}
