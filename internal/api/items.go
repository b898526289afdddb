package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/knjiznica/internal/imaging"
	"github.com/erazemk/knjiznica/internal/lending"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// ItemsHandler handles catalog endpoints.
type ItemsHandler struct {
	DB     *sql.DB
	Engine *lending.Engine
}

type createItemRequest struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Creator   string `json:"creator"`
	Publisher string `json:"publisher"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.Catalog(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		engineError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Engine.AddItem(r.Context(), model.Item{
		ID:        req.ID,
		Title:     req.Title,
		Creator:   req.Creator,
		Publisher: req.Publisher,
	})
	if err != nil {
		engineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Engine.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		engineError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveItem(r.Context(), r.PathValue("id")); err != nil {
		engineError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item removed"})
}

// UploadCover handles PUT /api/items/{id}/cover.
func (h *ItemsHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.Engine.Item(r.Context(), id); err != nil {
		engineError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<10)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("cover")
	if err != nil {
		invalidInput(w, "cover file required")
		return
	}
	defer file.Close()

	cover, err := imaging.NormalizeCover(file)
	if errors.Is(err, imaging.ErrUnsupportedFormat) {
		invalidInput(w, "cover must be JPEG, PNG or WebP")
		return
	}
	if err != nil {
		invalidInput(w, "could not read cover image")
		return
	}

	err = store.SetItemCover(r.Context(), h.DB, id, cover.Data, cover.MIME)
	if errors.Is(err, store.ErrItemNotFound) {
		engineError(w, r, lending.ErrItemNotFound)
		return
	}
	if err != nil {
		slog.Error("saving cover", "item", id, "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}

	slog.Info("cover uploaded", "item", id, "width", cover.Width, "height", cover.Height)
	jsonResponse(w, http.StatusOK, map[string]any{
		"message": "cover uploaded",
		"width":   cover.Width,
		"height":  cover.Height,
	})
}

// GetCover handles GET /api/items/{id}/cover.
func (h *ItemsHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetItemCover(r.Context(), h.DB, r.PathValue("id"))
	if err != nil {
		slog.Error("loading cover", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no cover")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
