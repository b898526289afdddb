package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/knjiznica/internal/auth"
	"github.com/erazemk/knjiznica/internal/db"
	"github.com/erazemk/knjiznica/internal/lending"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

const testJWTSecret = "test-secret"

// testClock is a settable clock shared by the handlers under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	*httptest.Server
	clock      *testClock
	staffToken string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database := db.NewTestDB(t)
	engine := lending.New(store.NewGateway(database))
	clock := &testClock{now: time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)}

	router := NewRouter(Deps{DB: database, Engine: engine, JWTSecret: testJWTSecret, Now: clock.Now})
	server := httptest.NewServer(LoggingMiddleware(router))
	t.Cleanup(server.Close)

	// Create the librarian account.
	hash, _ := auth.HashPassword("librarian-pass")
	if err := store.CreateStaff(context.Background(), database, &model.Staff{ID: "lib", Name: "Librarian", PasswordHash: hash}); err != nil {
		t.Fatalf("creating staff: %v", err)
	}

	ts := &testServer{Server: server, clock: clock}
	ts.staffToken = ts.login(t, auth.KindStaff, "lib", "librarian-pass")
	return ts
}

func (ts *testServer) login(t *testing.T, kind auth.Kind, id, password string) string {
	t.Helper()
	resp, body := ts.do(t, "POST", "/api/auth/login", "", map[string]string{
		"kind": string(kind), "id": id, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s/%s failed: %d %v", kind, id, resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

func (ts *testServer) registerBorrower(t *testing.T, id string, role model.Role) string {
	t.Helper()
	resp, body := ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"id": id, "name": "Borrower " + id, "password": "borrower-pass", "role": string(role),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %v", id, resp.StatusCode, body)
	}
	return ts.login(t, auth.KindBorrower, id, "borrower-pass")
}

func (ts *testServer) addItem(t *testing.T, id, title string) {
	t.Helper()
	resp, body := ts.do(t, "POST", "/api/items", ts.staffToken, map[string]string{"id": id, "title": title})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add item %s: %d %v", id, resp.StatusCode, body)
	}
}

// do sends a JSON request and decodes a JSON object response.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func expectError(t *testing.T, resp *http.Response, body map[string]any, status int, code lending.Code) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("expected %d, got %d (%v)", status, resp.StatusCode, body)
	}
	if got, _ := body["code"].(string); got != string(code) {
		t.Errorf("expected code %s, got %q", code, got)
	}
}

func TestLoginEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, _ := ts.do(t, "POST", "/api/auth/login", "", map[string]string{"kind": "staff", "id": "lib", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"kind": "borrower", "id": "lib", "password": "librarian-pass"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for staff id used as borrower, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "POST", "/api/auth/login", "", map[string]string{"kind": "admin", "id": "lib", "password": "librarian-pass"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %d", resp.StatusCode)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	ts := setupTestServer(t)

	resp, _ := ts.do(t, "GET", "/api/items", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/items", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
}

func TestKindBasedAccess(t *testing.T) {
	ts := setupTestServer(t)
	borrower := ts.registerBorrower(t, "alice", model.RoleStandard)

	resp, _ := ts.do(t, "POST", "/api/items", borrower, map[string]string{"id": "x", "title": "X"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for borrower adding items, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/borrowers", borrower, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for borrower listing borrowers, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/account", ts.staffToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for staff account, got %d", resp.StatusCode)
	}
}

func TestLendingFlow(t *testing.T) {
	ts := setupTestServer(t)
	ts.addItem(t, "x", "Alamut")
	alice := ts.registerBorrower(t, "alice", model.RoleStandard)
	bob := ts.registerBorrower(t, "bob", model.RoleStandard)

	// Check out.
	resp, body := ts.do(t, "POST", "/api/loans", alice, map[string]string{"item_id": "x"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	due, _ := time.Parse(time.RFC3339, body["due_date"].(string))
	if want := ts.clock.Now().Add(14 * 24 * time.Hour); !due.Equal(want) {
		t.Errorf("due date = %v, want %v", due, want)
	}

	// Someone else cannot take it.
	resp, body = ts.do(t, "POST", "/api/loans", bob, map[string]string{"item_id": "x"})
	expectError(t, resp, body, http.StatusUnprocessableEntity, lending.CodeItemUnavailable)

	// Nor return it.
	resp, body = ts.do(t, "POST", "/api/returns", bob, map[string]string{"item_id": "x"})
	expectError(t, resp, body, http.StatusUnprocessableEntity, lending.CodeNotBorrowedByUser)

	// Account lists the loan.
	resp, body = ts.do(t, "GET", "/api/account", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("account: expected 200, got %d", resp.StatusCode)
	}
	if loans := body["loans"].(float64); loans != 1 {
		t.Errorf("expected 1 loan, got %v", loans)
	}

	// Return six days late.
	ts.clock.Advance(20 * 24 * time.Hour)
	resp, body = ts.do(t, "POST", "/api/returns", alice, map[string]string{"item_id": "x"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("return: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["fine"] != "3.00" || body["fine_balance"] != "3.00" {
		t.Errorf("expected fine 3.00, got fine=%v balance=%v", body["fine"], body["fine_balance"])
	}

	_, body = ts.do(t, "GET", "/api/account", alice, nil)
	if body["fine_balance"] != "3.00" {
		t.Errorf("expected account balance 3.00, got %v", body["fine_balance"])
	}

	// Pay twice.
	_, body = ts.do(t, "POST", "/api/fines/pay", alice, nil)
	if body["paid"] != "3.00" {
		t.Errorf("expected to pay 3.00, got %v", body["paid"])
	}
	resp, body = ts.do(t, "POST", "/api/fines/pay", alice, nil)
	if resp.StatusCode != http.StatusOK || body["paid"] != "0.00" {
		t.Errorf("expected second payment to be a no-op, got %d %v", resp.StatusCode, body)
	}

	// Item is back on the shelf.
	_, body = ts.do(t, "GET", "/api/items/x", bob, nil)
	if body["available"] != true {
		t.Errorf("expected item available, got %v", body)
	}
}

func TestCheckoutUnknownItem(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerBorrower(t, "alice", model.RoleStandard)

	resp, body := ts.do(t, "POST", "/api/loans", alice, map[string]string{"item_id": "ghost"})
	expectError(t, resp, body, http.StatusNotFound, lending.CodeItemNotFound)

	resp, body = ts.do(t, "POST", "/api/loans", alice, map[string]string{})
	expectError(t, resp, body, http.StatusBadRequest, lending.CodeInvalidInput)
}

func TestBorrowLimitOverAPI(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerBorrower(t, "alice", model.RoleStandard)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		ts.addItem(t, id, "Book "+id)
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		resp, body := ts.do(t, "POST", "/api/loans", alice, map[string]string{"item_id": id})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("checkout %s: %d %v", id, resp.StatusCode, body)
		}
	}

	resp, body := ts.do(t, "POST", "/api/loans", alice, map[string]string{"item_id": "f"})
	expectError(t, resp, body, http.StatusUnprocessableEntity, lending.CodeBorrowLimitExceeded)
}

func TestRemoveItemOnLoan(t *testing.T) {
	ts := setupTestServer(t)
	ts.addItem(t, "x", "Alamut")
	alice := ts.registerBorrower(t, "alice", model.RoleStandard)
	ts.do(t, "POST", "/api/loans", alice, map[string]string{"item_id": "x"})

	resp, body := ts.do(t, "DELETE", "/api/items/x", ts.staffToken, nil)
	expectError(t, resp, body, http.StatusConflict, lending.CodeItemOnLoan)

	ts.do(t, "POST", "/api/returns", alice, map[string]string{"item_id": "x"})

	resp, _ = ts.do(t, "DELETE", "/api/items/x", ts.staffToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after return, got %d", resp.StatusCode)
	}

	resp, body = ts.do(t, "GET", "/api/items/x", ts.staffToken, nil)
	expectError(t, resp, body, http.StatusNotFound, lending.CodeItemNotFound)
}

func TestAddItemDuplicate(t *testing.T) {
	ts := setupTestServer(t)
	ts.addItem(t, "x", "Alamut")

	resp, body := ts.do(t, "POST", "/api/items", ts.staffToken, map[string]string{"id": "x", "title": "Other"})
	expectError(t, resp, body, http.StatusConflict, lending.CodeDuplicateID)

	resp, body = ts.do(t, "POST", "/api/items", ts.staffToken, map[string]string{"id": "y"})
	expectError(t, resp, body, http.StatusBadRequest, lending.CodeInvalidInput)
}

func TestRegisterValidation(t *testing.T) {
	ts := setupTestServer(t)

	resp, body := ts.do(t, "POST", "/api/auth/register", "", map[string]string{"id": "a", "name": "A", "password": "short"})
	expectError(t, resp, body, http.StatusBadRequest, lending.CodeInvalidInput)

	resp, body = ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"id": "a", "name": "A", "password": "long-enough", "role": "guest",
	})
	expectError(t, resp, body, http.StatusBadRequest, lending.CodeInvalidInput)

	ts.registerBorrower(t, "alice", model.RolePrivileged)
	resp, body = ts.do(t, "POST", "/api/auth/register", "", map[string]string{
		"id": "alice", "name": "Alice", "password": "long-enough",
	})
	expectError(t, resp, body, http.StatusConflict, lending.CodeDuplicateID)
}

func TestBorrowersListing(t *testing.T) {
	ts := setupTestServer(t)
	ts.registerBorrower(t, "alice", model.RolePrivileged)
	ts.registerBorrower(t, "bob", model.RoleStandard)

	req, _ := http.NewRequest("GET", ts.URL+"/api/borrowers", nil)
	req.Header.Set("Authorization", "Bearer "+ts.staffToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var list []map[string]any
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 2 {
		t.Fatalf("expected 2 borrowers, got %d", len(list))
	}
	if list[0]["id"] != "alice" || list[0]["max_loans"].(float64) != 10 {
		t.Errorf("unexpected first borrower: %v", list[0])
	}
	if _, leaked := list[0]["password_hash"]; leaked {
		t.Error("password hash must not be exposed")
	}
}

func TestStaffCreation(t *testing.T) {
	ts := setupTestServer(t)

	resp, body := ts.do(t, "POST", "/api/staff", ts.staffToken, map[string]string{
		"id": "lib2", "name": "Second", "password": "second-pass",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", resp.StatusCode, body)
	}
	ts.login(t, auth.KindStaff, "lib2", "second-pass")

	resp, body = ts.do(t, "POST", "/api/staff", ts.staffToken, map[string]string{
		"id": "lib2", "name": "Again", "password": "second-pass",
	})
	expectError(t, resp, body, http.StatusConflict, lending.CodeDuplicateID)
}

func TestCatalogSearch(t *testing.T) {
	ts := setupTestServer(t)
	ts.addItem(t, "a", "Zlati kamen")
	ts.addItem(t, "b", "Alamut")

	req, _ := http.NewRequest("GET", ts.URL+"/api/items?q=kamen", nil)
	req.Header.Set("Authorization", "Bearer "+ts.staffToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("expected only item a, got %+v", items)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := setupTestServer(t)
	alice := ts.registerBorrower(t, "alice", model.RoleStandard)

	resp, _ := ts.do(t, "POST", "/api/auth/logout", alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, "GET", "/api/account", alice, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

// coverForm returns a multipart body carrying a small PNG in the "cover" field.
func coverForm(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for x := 0; x < 40; x++ {
		for y := 0; y < 60; y++ {
			img.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}
	var pngData bytes.Buffer
	if err := png.Encode(&pngData, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("cover", "cover.png")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write(pngData.Bytes())
	mw.Close()
	return &form, mw.FormDataContentType()
}

func TestCoverUploadAndFetch(t *testing.T) {
	ts := setupTestServer(t)
	ts.addItem(t, "x", "Alamut")

	form, contentType := coverForm(t)

	req, _ := http.NewRequest("PUT", ts.URL+"/api/items/x/cover", form)
	req.Header.Set("Authorization", "Bearer "+ts.staffToken)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", ts.URL+"/api/items/x/cover", nil)
	req.Header.Set("Authorization", "Bearer "+ts.staffToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}

	resp2, body := ts.do(t, "GET", "/api/items/missing/cover", ts.staffToken, nil)
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing cover, got %d (%v)", resp2.StatusCode, body)
	}
}

func TestCoverUploadItemRemovedBeforeWrite(t *testing.T) {
	// The engine still sees the item, but the cover write lands on a
	// database where it has already been removed.
	ctx := context.Background()
	catalog := db.NewTestDB(t)
	engine := lending.New(store.NewGateway(catalog))
	if _, err := engine.AddItem(ctx, model.Item{ID: "x", Title: "Alamut"}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	h := &ItemsHandler{DB: db.NewTestDB(t), Engine: engine}

	form, contentType := coverForm(t)
	req := httptest.NewRequest("PUT", "/api/items/x/cover", form)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("id", "x")
	rec := httptest.NewRecorder()

	h.UploadCover(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["code"] != string(lending.CodeItemNotFound) {
		t.Errorf("expected code %s, got %q", lending.CodeItemNotFound, body["code"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := setupTestServer(t)

	resp, _ := ts.do(t, "GET", "/api/items", ts.staffToken, nil)
	if _, err := uuid.Parse(resp.Header.Get(RequestIDHeader)); err != nil {
		t.Errorf("expected a generated request id, got %q", resp.Header.Get(RequestIDHeader))
	}

	want := uuid.NewString()
	req, _ := http.NewRequest("GET", ts.URL+"/api/items", nil)
	req.Header.Set("Authorization", "Bearer "+ts.staffToken)
	req.Header.Set(RequestIDHeader, want)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != want {
		t.Errorf("expected request id %q to be echoed, got %q", want, got)
	}
}
