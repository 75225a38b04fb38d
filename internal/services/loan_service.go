package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/auth"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// LoanService owns the borrow/return lifecycle. It is the only writer of
// books.is_available: a book is unavailable exactly while it has an active loan.
type LoanService interface {
	Borrow(ctx context.Context, who auth.Identity, bookID uuid.UUID, loanDate *time.Time) (*models.Loan, error)
	Return(ctx context.Context, who auth.Identity, loanID uuid.UUID) (*models.Loan, error)

	List(ctx context.Context, who auth.Identity) ([]models.Loan, error)
	Get(ctx context.Context, who auth.Identity, loanID uuid.UUID) (*models.Loan, error)

	Update(ctx context.Context, who auth.Identity, loanID uuid.UUID, upd LoanUpdate) (*models.Loan, error)
	Delete(ctx context.Context, who auth.Identity, loanID uuid.UUID) error
}

// LoanUpdate carries the fields an administrator may override. Nil pointers
// leave the stored value untouched.
type LoanUpdate struct {
	LoanDate         *time.Time
	ReturnDate       *time.Time
	ClearReturnDate  bool
	IsReturned       *bool
	ActualReturnDate *time.Time
}

type loanService struct {
	db          *gorm.DB
	studentRepo repositories.StudentRepository
	bookRepo    repositories.BookRepository
	loanRepo    repositories.LoanRepository
	now         func() time.Time
}

// NewLoanService wires up the loan lifecycle dependencies.
func NewLoanService(
	db *gorm.DB,
	studentRepo repositories.StudentRepository,
	bookRepo repositories.BookRepository,
	loanRepo repositories.LoanRepository,
) LoanService {
	return &loanService{
		db:          db,
		studentRepo: studentRepo,
		bookRepo:    bookRepo,
		loanRepo:    loanRepo,
		now:         time.Now,
	}
}

// ─── Borrow ───────────────────────────────────────────────────────────────────

// Borrow lends a book to the student behind who.
//
// Steps (all in one transaction):
//  1. Resolve the caller's student profile.
//  2. Lock the book row (FOR UPDATE) and check it is available.
//  3. Insert the loan.
//  4. Flip is_available true → false; zero rows changed means another borrow won.
//
// The partial unique index on active loans is the last line: a violation there
// is reported as ErrBookUnavailable as well.
func (s *loanService) Borrow(ctx context.Context, who auth.Identity, bookID uuid.UUID, loanDate *time.Time) (*models.Loan, error) {
	if err := authorize(auth.OpLoanCreate, who); err != nil {
		log.Printf("[WARN] Borrow: user %s (role=%s) is not allowed to borrow", who.UserID, who.Role)
		return nil, err
	}

	day := dateOf(s.now())
	if loanDate != nil {
		day = dateOf(*loanDate)
	}

	var loanID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.GetByUserID(tx, who.UserID)
		if err != nil {
			if isNotFound(err) {
				return ErrStudentProfileMissing
			}
			return err
		}

		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if isNotFound(err) {
				return ErrBookMissing
			}
			return err
		}
		if !book.IsAvailable {
			log.Printf("[INFO] Borrow: book %s is not available for student %s", bookID, student.ID)
			return ErrBookUnavailable
		}

		loan := &models.Loan{
			StudentID:  student.ID,
			BookID:     book.ID,
			LoanDate:   day,
			IsReturned: false,
		}
		if err := s.loanRepo.Create(tx, loan); err != nil {
			if isUniqueViolation(err) {
				log.Printf("[WARN] Borrow: active loan already exists for book %s", bookID)
				return ErrBookUnavailable
			}
			return err
		}

		n, err := s.bookRepo.SetAvailability(tx, book.ID, true, false)
		if err != nil {
			return err
		}
		if n == 0 {
			log.Printf("[WARN] Borrow: book %s was taken concurrently", bookID)
			return ErrBookUnavailable
		}

		loanID = loan.ID
		log.Printf("[INFO] Borrow: loan created (id=%s) for student %s / book %s on %s", loan.ID, student.ID, book.ID, day.Format(dateLayout))
		return nil
	})
	if err != nil {
		return nil, asServiceError("Borrow", err)
	}

	loan, err := s.loanRepo.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		return nil, asServiceError("Borrow: reload loan", err)
	}
	return loan, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// Return closes a loan and makes its book available again. Returning an
// already returned loan changes nothing.
func (s *loanService) Return(ctx context.Context, who auth.Identity, loanID uuid.UUID) (*models.Loan, error) {
	if err := authorize(auth.OpLoanReturn, who); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if isNotFound(err) {
				return ErrLoanMissing
			}
			return err
		}
		if loan.IsReturned {
			log.Printf("[INFO] Return: loan %s already returned, nothing to do", loanID)
			return nil
		}
		return s.closeLoan(tx, loan, dateOf(s.now()))
	})
	if err != nil {
		return nil, asServiceError("Return", err)
	}

	loan, err := s.loanRepo.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		return nil, asServiceError("Return: reload loan", err)
	}
	return loan, nil
}

// closeLoan marks an active, locked loan returned and frees its book.
func (s *loanService) closeLoan(tx *gorm.DB, loan *models.Loan, on time.Time) error {
	n, err := s.loanRepo.MarkReturned(tx, loan.ID, on)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	freed, err := s.bookRepo.SetAvailability(tx, loan.BookID, false, true)
	if err != nil {
		return err
	}
	if freed == 0 {
		log.Printf("[WARN] Return: book %s of loan %s was already marked available", loan.BookID, loan.ID)
	}
	log.Printf("[INFO] Return: loan %s returned on %s, book %s available", loan.ID, on.Format(dateLayout), loan.BookID)
	return nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// List returns the loans visible to who: a student sees only their own loans,
// every other role sees all of them.
func (s *loanService) List(ctx context.Context, who auth.Identity) ([]models.Loan, error) {
	if err := authorize(auth.OpLoanRead, who); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var (
		loans []models.Loan
		err   error
	)
	if who.Role == models.RoleStudent {
		loans, err = s.loanRepo.ListByStudentUser(db, who.UserID)
	} else {
		loans, err = s.loanRepo.List(db)
	}
	if err != nil {
		return nil, asServiceError("ListLoans", err)
	}
	return loans, nil
}

// Get returns one loan. Loans outside a student's scope are reported missing.
func (s *loanService) Get(ctx context.Context, who auth.Identity, loanID uuid.UUID) (*models.Loan, error) {
	if err := authorize(auth.OpLoanRead, who); err != nil {
		return nil, err
	}

	loan, err := s.loanRepo.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrLoanMissing
		}
		return nil, asServiceError("GetLoan", err)
	}
	if who.Role == models.RoleStudent && loan.Student.UserID != who.UserID {
		return nil, ErrLoanMissing
	}
	return loan, nil
}

// ─── Administrative Overrides ─────────────────────────────────────────────────

// Update applies an administrator's edit. Flipping is_returned goes through the
// same availability bookkeeping as Borrow and Return.
func (s *loanService) Update(ctx context.Context, who auth.Identity, loanID uuid.UUID, upd LoanUpdate) (*models.Loan, error) {
	if err := authorize(auth.OpLoanModify, who); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if isNotFound(err) {
				return ErrLoanMissing
			}
			return err
		}

		fields := map[string]interface{}{}
		if upd.LoanDate != nil {
			fields["loan_date"] = dateOf(*upd.LoanDate)
		}
		if upd.ClearReturnDate {
			fields["return_date"] = nil
		} else if upd.ReturnDate != nil {
			fields["return_date"] = dateOf(*upd.ReturnDate)
		}

		returned := loan.IsReturned
		if upd.IsReturned != nil {
			returned = *upd.IsReturned
		}
		if upd.ActualReturnDate != nil {
			if !returned {
				return ValidationError("actual_return_date can only be set on a returned loan.")
			}
			fields["actual_return_date"] = dateOf(*upd.ActualReturnDate)
		}
		if err := checkReturnAfterLoan(loan, upd, returned); err != nil {
			return err
		}

		if len(fields) > 0 {
			if err := s.loanRepo.Update(tx, loan.ID, fields); err != nil {
				return err
			}
		}

		switch {
		case returned && !loan.IsReturned:
			on := dateOf(s.now())
			if upd.ActualReturnDate != nil {
				on = dateOf(*upd.ActualReturnDate)
			}
			return s.closeLoan(tx, loan, on)
		case !returned && loan.IsReturned:
			return s.reopenLoan(tx, loan)
		}
		return nil
	})
	if err != nil {
		return nil, asServiceError("UpdateLoan", err)
	}

	loan, err := s.loanRepo.GetByID(s.db.WithContext(ctx), loanID)
	if err != nil {
		return nil, asServiceError("UpdateLoan: reload loan", err)
	}
	log.Printf("[INFO] UpdateLoan: loan %s updated by %s", loanID, who.UserID)
	return loan, nil
}

// checkReturnAfterLoan rejects updates that would leave a returned loan with
// an actual return date before its loan date.
func checkReturnAfterLoan(loan *models.Loan, upd LoanUpdate, returned bool) error {
	loanDay := dateOf(loan.LoanDate)
	if upd.LoanDate != nil {
		loanDay = dateOf(*upd.LoanDate)
	}

	var actual *time.Time
	switch {
	case upd.ActualReturnDate != nil:
		actual = upd.ActualReturnDate
	case returned && loan.IsReturned:
		actual = loan.ActualReturnDate
	}
	if actual != nil && dateOf(*actual).Before(loanDay) {
		return ValidationError("actual_return_date may not be before loan_date.")
	}
	return nil
}

// reopenLoan turns a returned loan active again, provided its book is free.
func (s *loanService) reopenLoan(tx *gorm.DB, loan *models.Loan) error {
	book, err := s.bookRepo.GetByIDForUpdate(tx, loan.BookID)
	if err != nil {
		if isNotFound(err) {
			return ErrBookMissing
		}
		return err
	}
	if !book.IsAvailable {
		return ErrBookUnavailable
	}

	err = s.loanRepo.Update(tx, loan.ID, map[string]interface{}{
		"is_returned":        false,
		"actual_return_date": nil,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrBookUnavailable
		}
		return err
	}

	n, err := s.bookRepo.SetAvailability(tx, book.ID, true, false)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookUnavailable
	}
	log.Printf("[INFO] UpdateLoan: loan %s reopened, book %s unavailable", loan.ID, book.ID)
	return nil
}

// Delete removes a loan. Deleting an active loan frees its book.
func (s *loanService) Delete(ctx context.Context, who auth.Identity, loanID uuid.UUID) error {
	if err := authorize(auth.OpLoanModify, who); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(tx, loanID)
		if err != nil {
			if isNotFound(err) {
				return ErrLoanMissing
			}
			return err
		}
		if !loan.IsReturned {
			if _, err := s.bookRepo.SetAvailability(tx, loan.BookID, false, true); err != nil {
				return err
			}
		}
		return s.loanRepo.Delete(tx, loan.ID)
	})
	if err != nil {
		return asServiceError("DeleteLoan", err)
	}
	log.Printf("[INFO] DeleteLoan: loan %s deleted by %s", loanID, who.UserID)
	return nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

const dateLayout = "2006-01-02"

// dateOf truncates t to its calendar day in UTC.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func authorize(op auth.Operation, who auth.Identity) error {
	if !auth.Allowed(op, who.Role) {
		return ErrForbidden
	}
	return nil
}
