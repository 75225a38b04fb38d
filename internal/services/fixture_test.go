package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"booklending/internal/auth"
	"booklending/internal/models"
	"booklending/internal/repositories"
	"booklending/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	users   repositories.UserRepository
	books   repositories.BookRepository
	loans   repositories.LoanRepository
	tokens  repositories.TokenRepository
	auth    AuthService
	loanSvc LoanService
	bookSvc BookService
	members MemberService
	admin   auth.Identity
	seq     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	userRepo := repositories.NewUserRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	librarianRepo := repositories.NewLibrarianRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	tokenRepo := repositories.NewTokenRepository(db)

	loanSvc := NewLoanService(db, studentRepo, bookRepo, loanRepo)
	loanSvc.(*loanService).now = func() time.Time { return fixedNow }

	f := &fixture{
		db:      db,
		users:   userRepo,
		books:   bookRepo,
		loans:   loanRepo,
		tokens:  tokenRepo,
		auth:    NewAuthService(db, userRepo, tokenRepo, bcrypt.MinCost),
		loanSvc: loanSvc,
		bookSvc: NewBookService(db, bookRepo, loanRepo),
		members: NewMemberService(db, userRepo, studentRepo, librarianRepo, bookRepo, loanRepo, tokenRepo, bcrypt.MinCost),
	}

	require.NoError(t, f.auth.BootstrapAdmin(context.Background(), "admin@example.com", "admin-password"))
	admin, err := userRepo.GetByEmail(nil, "admin@example.com")
	require.NoError(t, err)
	f.admin = auth.Identity{UserID: admin.ID, Email: admin.Email, Role: models.RoleAdmin}
	return f
}

// student registers a new student and returns the caller identity for it.
func (f *fixture) student(t *testing.T, name string) (auth.Identity, *models.Student) {
	t.Helper()
	f.seq++
	s, err := f.members.RegisterStudent(context.Background(), StudentRegistration{
		Account: Account{
			Email:    fmt.Sprintf("student%d@example.com", f.seq),
			Password: "student-password",
		},
		Name:          name,
		StudentNumber: fmt.Sprintf("S%04d", f.seq),
	})
	require.NoError(t, err)
	return auth.Identity{UserID: s.UserID, Email: s.User.Email, Role: models.RoleStudent}, s
}

func (f *fixture) librarian(t *testing.T) auth.Identity {
	t.Helper()
	f.seq++
	l, err := f.members.CreateLibrarian(context.Background(), f.admin, LibrarianRegistration{
		Account: Account{
			Email:    fmt.Sprintf("librarian%d@example.com", f.seq),
			Password: "librarian-password",
		},
		Name:           "Librarian",
		EmployeeNumber: fmt.Sprintf("E%04d", f.seq),
	})
	require.NoError(t, err)
	return auth.Identity{UserID: l.UserID, Email: l.User.Email, Role: models.RoleLibrarian}
}

func (f *fixture) book(t *testing.T, title string) *models.Book {
	t.Helper()
	b, err := f.bookSvc.Create(context.Background(), f.admin, title, "Some Author")
	require.NoError(t, err)
	return b
}

func (f *fixture) reloadBook(t *testing.T, b *models.Book) *models.Book {
	t.Helper()
	got, err := f.books.GetByID(nil, b.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) countLoans(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Loan{}).Count(&n).Error)
	return n
}

// requireAvailabilityInvariant checks that every book is unavailable exactly
// when it has an active loan, and that no book has two active loans.
func (f *fixture) requireAvailabilityInvariant(t *testing.T) {
	t.Helper()
	var books []models.Book
	require.NoError(t, f.db.Find(&books).Error)
	for _, b := range books {
		var active int64
		require.NoError(t, f.db.Model(&models.Loan{}).
			Where("book_id = ? AND is_returned = ?", b.ID, false).
			Count(&active).Error)
		require.LessOrEqual(t, active, int64(1), "book %s has %d active loans", b.ID, active)
		require.Equal(t, active == 0, b.IsAvailable, "book %s availability does not match its loans", b.ID)
	}
}
