package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/knjiznica/internal/auth"
	"github.com/erazemk/knjiznica/internal/lending"
)

// Deps are the collaborators the API needs.
type Deps struct {
	DB        *sql.DB
	Engine    *lending.Engine
	JWTSecret string
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, Engine: d.Engine, JWTSecret: d.JWTSecret, Now: d.Now}
	loansHandler := &LoansHandler{Engine: d.Engine, Now: d.Now}
	itemsHandler := &ItemsHandler{DB: d.DB, Engine: d.Engine}
	borrowersHandler := &BorrowersHandler{Engine: d.Engine}
	staffHandler := &StaffHandler{Engine: d.Engine}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	requireBorrower := RequireKind(auth.KindBorrower)
	requireStaff := RequireKind(auth.KindStaff)

	// Public: login and self-registration.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)

	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Borrower circulation.
	mux.Handle("GET /api/account", authMW(requireBorrower(http.HandlerFunc(loansHandler.Account))))
	mux.Handle("POST /api/loans", authMW(requireBorrower(http.HandlerFunc(loansHandler.Checkout))))
	mux.Handle("POST /api/returns", authMW(requireBorrower(http.HandlerFunc(loansHandler.Return))))
	mux.Handle("POST /api/fines/pay", authMW(requireBorrower(http.HandlerFunc(loansHandler.PayFine))))

	// Catalog: read (everyone signed in), write (staff).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireStaff(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("DELETE /api/items/{id}", authMW(requireStaff(http.HandlerFunc(itemsHandler.Delete))))
	mux.Handle("PUT /api/items/{id}/cover", authMW(requireStaff(http.HandlerFunc(itemsHandler.UploadCover))))
	mux.Handle("GET /api/items/{id}/cover", authMW(http.HandlerFunc(itemsHandler.GetCover)))

	// Staff administration.
	mux.Handle("GET /api/borrowers", authMW(requireStaff(http.HandlerFunc(borrowersHandler.List))))
	mux.Handle("POST /api/staff", authMW(requireStaff(http.HandlerFunc(staffHandler.Create))))

	return mux
}
