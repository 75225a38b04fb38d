package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"booklending/internal/repositories"
	"booklending/internal/services"
	"booklending/internal/testutil"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)

	userRepo := repositories.NewUserRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	librarianRepo := repositories.NewLibrarianRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)

	svc := Services{
		Auth:    services.NewAuthService(db, userRepo, tokenRepo, bcrypt.MinCost),
		Loans:   services.NewLoanService(db, studentRepo, bookRepo, loanRepo),
		Books:   services.NewBookService(db, bookRepo, loanRepo),
		Members: services.NewMemberService(db, userRepo, studentRepo, librarianRepo, bookRepo, loanRepo, tokenRepo, bcrypt.MinCost),
	}
	require.NoError(t, svc.Auth.BootstrapAdmin(context.Background(), "admin@example.com", "admin-password"))

	router := gin.New()
	RegisterRoutes(router, svc, Options{
		AllowedOrigins: []string{"http://localhost:5173"},
		RequestTimeout: 5 * time.Second,
	})
	return &testServer{t: t, router: router}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var res services.LoginResult
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Token
}

func (s *testServer) registerStudent(email, number string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/students", "", gin.H{
		"email":          email,
		"password":       "student-password",
		"name":           "Student " + number,
		"student_number": number,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return s.login(email, "student-password")
}

func (s *testServer) createBook(adminToken, title string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/books", adminToken, gin.H{"title": title, "author": "Frank Herbert"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var book struct {
		ID          string `json:"id"`
		IsAvailable bool   `json:"is_available"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.True(s.t, book.IsAvailable)
	return book.ID
}

func (s *testServer) bookAvailable(token, id string) bool {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/books/"+id, token, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var book struct {
		IsAvailable bool `json:"is_available"`
	}
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &book))
	return book.IsAvailable
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "admin@example.com", "password": "admin-password"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "admin@example.com", body["email"])
	assert.Equal(t, "admin", body["role"])
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["user_id"])

	rec = s.do(http.MethodPost, "/auth/login", "", gin.H{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec)["error"])
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)
	token := s.login("admin@example.com", "admin-password")

	rec := s.do(http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/books", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/loans", "/books", "/students"} {
		rec := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := s.do(http.MethodGet, "/loans", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// "Token <key>" is accepted as well.
	token := s.login("admin@example.com", "admin-password")
	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req.Header.Set("Authorization", "Token "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBorrowAndReturnFlow(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-password")
	s1 := s.registerStudent("s1@example.com", "1001")
	s2 := s.registerStudent("s2@example.com", "1002")
	bookID := s.createBook(admin, "Dune")

	rec := s.do(http.MethodPost, "/loans", s1, gin.H{"book_id": bookID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	loan := decode(t, rec)
	loanID := loan["id"].(string)
	assert.Equal(t, "Dune", loan["book_title"])
	assert.Equal(t, "Student 1001", loan["student_name"])
	assert.Equal(t, false, loan["is_returned"])
	assert.Nil(t, loan["return_date"])
	assert.Nil(t, loan["actual_return_date"])
	assert.False(t, s.bookAvailable(s1, bookID))

	rec = s.do(http.MethodPost, "/loans", s2, gin.H{"book_id": bookID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BookUnavailable", decode(t, rec)["code"])

	rec = s.do(http.MethodGet, "/loans", s2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/loans", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []loanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	rec = s.do(http.MethodPost, "/loans/"+loanID+"/return_book", s1, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "returned", body["status"])
	returned := body["loan"].(map[string]interface{})
	assert.Equal(t, true, returned["is_returned"])
	assert.NotNil(t, returned["actual_return_date"])
	assert.True(t, s.bookAvailable(s1, bookID))

	rec = s.do(http.MethodPost, "/loans/"+loanID+"/return_book", s1, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/loans", s2, gin.H{"book_id": bookID, "loan_date": "2026-10-01"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-10-01", decode(t, rec)["loan_date"])
}

func TestBorrowErrors(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-password")
	student := s.registerStudent("s1@example.com", "1001")
	bookID := s.createBook(admin, "Dune")

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
		code   string
	}{
		{"missing book id", student, gin.H{}, http.StatusBadRequest, "Validation"},
		{"malformed book id", student, gin.H{"book_id": "42"}, http.StatusBadRequest, "Validation"},
		{"malformed loan date", student, gin.H{"book_id": bookID, "loan_date": "15/10/2026"}, http.StatusBadRequest, "Validation"},
		{"unknown book", student, gin.H{"book_id": "3f9a3c1e-8d1f-4c0b-9a55-0d1d3c1e8d1f"}, http.StatusNotFound, "BookMissing"},
		{"admin cannot borrow", admin, gin.H{"book_id": bookID}, http.StatusForbidden, "Forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/loans", tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode(t, rec)["code"])
		})
	}

	rec := s.do(http.MethodPost, "/loans/3f9a3c1e-8d1f-4c0b-9a55-0d1d3c1e8d1f/return_book", student, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LoanMissing", decode(t, rec)["code"])
}

func TestAdminOnlyWrites(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-password")
	student := s.registerStudent("s1@example.com", "1001")
	bookID := s.createBook(admin, "Dune")

	rec := s.do(http.MethodPost, "/books", student, gin.H{"title": "Emma", "author": "Jane Austen"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, "/books/"+bookID, student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/loans", student, gin.H{"book_id": bookID})
	require.Equal(t, http.StatusCreated, rec.Code)
	loanID := decode(t, rec)["id"].(string)

	rec = s.do(http.MethodPatch, "/loans/"+loanID, student, gin.H{"is_returned": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodDelete, "/loans/"+loanID, student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/students", student, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodGet, "/students", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminLoanOverrides(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-password")
	student := s.registerStudent("s1@example.com", "1001")
	bookID := s.createBook(admin, "Dune")

	rec := s.do(http.MethodPost, "/loans", student, gin.H{"book_id": bookID})
	require.Equal(t, http.StatusCreated, rec.Code)
	loanID := decode(t, rec)["id"].(string)

	rec = s.do(http.MethodPatch, "/loans/"+loanID, admin, gin.H{"return_date": "2026-10-29"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-10-29", decode(t, rec)["return_date"])

	rec = s.do(http.MethodPatch, "/loans/"+loanID, admin, gin.H{"return_date": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, decode(t, rec)["return_date"])

	rec = s.do(http.MethodPatch, "/loans/"+loanID, admin, gin.H{"is_returned": "yes"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, "/loans/"+loanID, admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, s.bookAvailable(admin, bookID))
}

func TestBookAvailabilityCannotBeSetDirectly(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-password")
	bookID := s.createBook(admin, "Dune")

	rec := s.do(http.MethodPatch, "/books/"+bookID, admin, gin.H{"title": "Dune (2nd ed.)", "is_available": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Dune (2nd ed.)", body["title"])
	assert.Equal(t, true, body["is_available"])
}

func TestStudentRegistrationConflict(t *testing.T) {
	s := newTestServer(t)
	s.registerStudent("s1@example.com", "1001")

	rec := s.do(http.MethodPost, "/auth/register", "", gin.H{
		"email":          "s1@example.com",
		"password":       "student-password",
		"name":           "Someone",
		"student_number": "1002",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, "/students", "", gin.H{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/loans", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("token  abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("abc"))
}

func TestCreateBook_BlankFieldsRejected(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-password")

	rec := s.do(http.MethodPost, "/books", admin, gin.H{"title": "   ", "author": "Jane Austen"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation", decode(t, rec)["code"])

	rec = s.do(http.MethodGet, "/books", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var books []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	assert.Empty(t, books)
}

func TestWriteError_HidesUnexpectedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	writeError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, services.ErrInternal.Message, body["error"])
	assert.Equal(t, services.ErrInternal.Code, body["code"])
}
