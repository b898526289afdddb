package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/knjiznica/internal/auth"
	"github.com/erazemk/knjiznica/internal/lending"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sql.DB
	Engine    *lending.Engine
	JWTSecret string
	Now       func() time.Time
}

type loginRequest struct {
	Kind     auth.Kind `json:"kind"`
	ID       string    `json:"id"`
	Password string    `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	Kind  auth.Kind `json:"kind"`
	Name  string    `json:"name"`
}

type registerRequest struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	Detail   string     `json:"detail"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ID == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "id and password required")
		return
	}
	if req.Kind == "" {
		req.Kind = auth.KindBorrower
	}

	var name, hash string
	var err error
	switch req.Kind {
	case auth.KindBorrower:
		var b *model.Borrower
		if b, err = h.Engine.Borrower(r.Context(), req.ID); err == nil {
			name, hash = b.Name, b.PasswordHash
		}
	case auth.KindStaff:
		var s *model.Staff
		if s, err = h.Engine.StaffMember(r.Context(), req.ID); err == nil {
			name, hash = s.Name, s.PasswordHash
		}
	default:
		jsonError(w, http.StatusBadRequest, "kind must be borrower or staff")
		return
	}
	if lending.KindOf(err) == lending.KindNotFound {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		engineError(w, r, err)
		return
	}

	if !auth.CheckPassword(hash, req.Password) {
		slog.Warn("login failed", "kind", req.Kind, "id", req.ID, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, req.Kind, req.ID, name)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("logged in", "kind", req.Kind, "id", req.ID)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token, Kind: req.Kind, Name: name})
}

// Register handles POST /api/auth/register (borrower self-registration).
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		invalidInput(w, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStandard
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	b, err := h.Engine.RegisterBorrower(r.Context(), model.Borrower{
		ID:           req.ID,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         model.Role(strings.ToLower(string(req.Role))),
		Detail:       req.Detail,
	})
	if err != nil {
		engineError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, newBorrowerView(b))
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	now := h.Now()
	expires := now.Add(auth.TokenExpiry)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}

	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, expires, now); err != nil {
		slog.Error("revoking token", "error", err)
		jsonError(w, http.StatusServiceUnavailable, "storage unavailable, try again")
		return
	}

	slog.Info("logged out", "kind", claims.Kind, "id", claims.Subject)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// errNoPrincipal is returned by principalID when the context has no claims.
var errNoPrincipal = errors.New("not authenticated")

func principalID(r *http.Request) (string, error) {
	claims := GetClaims(r.Context())
	if claims == nil {
		return "", errNoPrincipal
	}
	return claims.Subject, nil
}
