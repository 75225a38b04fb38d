package services

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklending/internal/auth"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// Account holds the login fields shared by students and librarians.
type Account struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type StudentRegistration struct {
	Account
	Name          string
	StudentNumber string
}

type LibrarianRegistration struct {
	Account
	Name           string
	EmployeeNumber string
}

// ProfileUpdate edits a student or librarian. Number is the student or
// employee number.
type ProfileUpdate struct {
	Name      *string
	Number    *string
	Email     *string
	FirstName *string
	LastName  *string
}

// MemberService manages student and librarian accounts. Student registration
// is public; everything else is for administrators.
type MemberService interface {
	RegisterStudent(ctx context.Context, reg StudentRegistration) (*models.Student, error)
	ListStudents(ctx context.Context, who auth.Identity) ([]models.Student, error)
	GetStudent(ctx context.Context, who auth.Identity, id uuid.UUID) (*models.Student, error)
	UpdateStudent(ctx context.Context, who auth.Identity, id uuid.UUID, upd ProfileUpdate) (*models.Student, error)
	DeleteStudent(ctx context.Context, who auth.Identity, id uuid.UUID) error

	CreateLibrarian(ctx context.Context, who auth.Identity, reg LibrarianRegistration) (*models.Librarian, error)
	ListLibrarians(ctx context.Context, who auth.Identity) ([]models.Librarian, error)
	GetLibrarian(ctx context.Context, who auth.Identity, id uuid.UUID) (*models.Librarian, error)
	UpdateLibrarian(ctx context.Context, who auth.Identity, id uuid.UUID, upd ProfileUpdate) (*models.Librarian, error)
	DeleteLibrarian(ctx context.Context, who auth.Identity, id uuid.UUID) error
}

type memberService struct {
	db            *gorm.DB
	userRepo      repositories.UserRepository
	studentRepo   repositories.StudentRepository
	librarianRepo repositories.LibrarianRepository
	bookRepo      repositories.BookRepository
	loanRepo      repositories.LoanRepository
	tokenRepo     repositories.TokenRepository
	bcryptCost    int
}

func NewMemberService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	studentRepo repositories.StudentRepository,
	librarianRepo repositories.LibrarianRepository,
	bookRepo repositories.BookRepository,
	loanRepo repositories.LoanRepository,
	tokenRepo repositories.TokenRepository,
	bcryptCost int,
) MemberService {
	return &memberService{
		db:            db,
		userRepo:      userRepo,
		studentRepo:   studentRepo,
		librarianRepo: librarianRepo,
		bookRepo:      bookRepo,
		loanRepo:      loanRepo,
		tokenRepo:     tokenRepo,
		bcryptCost:    bcryptCost,
	}
}

// ─── Students ─────────────────────────────────────────────────────────────────

// RegisterStudent creates the user account and the student profile together.
func (s *memberService) RegisterStudent(ctx context.Context, reg StudentRegistration) (*models.Student, error) {
	if strings.TrimSpace(reg.Name) == "" || strings.TrimSpace(reg.StudentNumber) == "" {
		return nil, ValidationError("name and student_number are required.")
	}

	var studentID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.createUser(tx, reg.Account, models.RoleStudent)
		if err != nil {
			return err
		}
		student := &models.Student{
			UserID:        user.ID,
			Name:          strings.TrimSpace(reg.Name),
			StudentNumber: strings.TrimSpace(reg.StudentNumber),
		}
		if err := s.studentRepo.Create(tx, student); err != nil {
			return err
		}
		studentID = student.ID
		return nil
	})
	if err != nil {
		return nil, asServiceError("RegisterStudent", err)
	}
	log.Printf("[INFO] RegisterStudent: student %s registered (%s)", studentID, normalizeEmail(reg.Email))
	return s.reloadStudent(ctx, studentID)
}

func (s *memberService) ListStudents(ctx context.Context, who auth.Identity) ([]models.Student, error) {
	if err := authorize(auth.OpStudentManage, who); err != nil {
		return nil, err
	}
	students, err := s.studentRepo.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, asServiceError("ListStudents", err)
	}
	return students, nil
}

func (s *memberService) GetStudent(ctx context.Context, who auth.Identity, id uuid.UUID) (*models.Student, error) {
	if err := authorize(auth.OpStudentManage, who); err != nil {
		return nil, err
	}
	student, err := s.studentRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrStudentMissing
		}
		return nil, asServiceError("GetStudent", err)
	}
	return student, nil
}

func (s *memberService) UpdateStudent(ctx context.Context, who auth.Identity, id uuid.UUID, upd ProfileUpdate) (*models.Student, error) {
	if err := authorize(auth.OpStudentManage, who); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.GetByID(tx, id)
		if err != nil {
			if isNotFound(err) {
				return ErrStudentMissing
			}
			return err
		}
		fields := profileFields(upd, "student_number")
		if len(fields) > 0 {
			if err := s.studentRepo.Update(tx, id, fields); err != nil {
				return err
			}
		}
		return s.updateUser(tx, student.UserID, upd)
	})
	if err != nil {
		return nil, asServiceError("UpdateStudent", err)
	}
	return s.reloadStudent(ctx, id)
}

// DeleteStudent removes the student, their loans and their user account. Books
// held on active loans become available again.
func (s *memberService) DeleteStudent(ctx context.Context, who auth.Identity, id uuid.UUID) error {
	if err := authorize(auth.OpStudentManage, who); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		student, err := s.studentRepo.GetByID(tx, id)
		if err != nil {
			if isNotFound(err) {
				return ErrStudentMissing
			}
			return err
		}

		active, err := s.loanRepo.ListActiveByStudent(tx, student.ID)
		if err != nil {
			return err
		}
		for _, loan := range active {
			if _, err := s.bookRepo.SetAvailability(tx, loan.BookID, false, true); err != nil {
				return err
			}
		}
		if err := s.loanRepo.DeleteByStudent(tx, student.ID); err != nil {
			return err
		}
		if err := s.studentRepo.Delete(tx, student.ID); err != nil {
			return err
		}
		return s.deleteUser(tx, student.UserID)
	})
	if err != nil {
		return asServiceError("DeleteStudent", err)
	}
	log.Printf("[INFO] DeleteStudent: student %s deleted by %s", id, who.UserID)
	return nil
}

// ─── Librarians ───────────────────────────────────────────────────────────────

func (s *memberService) CreateLibrarian(ctx context.Context, who auth.Identity, reg LibrarianRegistration) (*models.Librarian, error) {
	if err := authorize(auth.OpLibrarianManage, who); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reg.Name) == "" || strings.TrimSpace(reg.EmployeeNumber) == "" {
		return nil, ValidationError("name and employee_number are required.")
	}

	var librarianID uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.createUser(tx, reg.Account, models.RoleLibrarian)
		if err != nil {
			return err
		}
		librarian := &models.Librarian{
			UserID:         user.ID,
			Name:           strings.TrimSpace(reg.Name),
			EmployeeNumber: strings.TrimSpace(reg.EmployeeNumber),
		}
		if err := s.librarianRepo.Create(tx, librarian); err != nil {
			return err
		}
		librarianID = librarian.ID
		return nil
	})
	if err != nil {
		return nil, asServiceError("CreateLibrarian", err)
	}
	log.Printf("[INFO] CreateLibrarian: librarian %s created by %s", librarianID, who.UserID)
	return s.reloadLibrarian(ctx, librarianID)
}

func (s *memberService) ListLibrarians(ctx context.Context, who auth.Identity) ([]models.Librarian, error) {
	if err := authorize(auth.OpLibrarianManage, who); err != nil {
		return nil, err
	}
	librarians, err := s.librarianRepo.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, asServiceError("ListLibrarians", err)
	}
	return librarians, nil
}

func (s *memberService) GetLibrarian(ctx context.Context, who auth.Identity, id uuid.UUID) (*models.Librarian, error) {
	if err := authorize(auth.OpLibrarianManage, who); err != nil {
		return nil, err
	}
	librarian, err := s.librarianRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrLibrarianMissing
		}
		return nil, asServiceError("GetLibrarian", err)
	}
	return librarian, nil
}

func (s *memberService) UpdateLibrarian(ctx context.Context, who auth.Identity, id uuid.UUID, upd ProfileUpdate) (*models.Librarian, error) {
	if err := authorize(auth.OpLibrarianManage, who); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		librarian, err := s.librarianRepo.GetByID(tx, id)
		if err != nil {
			if isNotFound(err) {
				return ErrLibrarianMissing
			}
			return err
		}
		fields := profileFields(upd, "employee_number")
		if len(fields) > 0 {
			if err := s.librarianRepo.Update(tx, id, fields); err != nil {
				return err
			}
		}
		return s.updateUser(tx, librarian.UserID, upd)
	})
	if err != nil {
		return nil, asServiceError("UpdateLibrarian", err)
	}
	return s.reloadLibrarian(ctx, id)
}

func (s *memberService) DeleteLibrarian(ctx context.Context, who auth.Identity, id uuid.UUID) error {
	if err := authorize(auth.OpLibrarianManage, who); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		librarian, err := s.librarianRepo.GetByID(tx, id)
		if err != nil {
			if isNotFound(err) {
				return ErrLibrarianMissing
			}
			return err
		}
		if err := s.librarianRepo.Delete(tx, librarian.ID); err != nil {
			return err
		}
		return s.deleteUser(tx, librarian.UserID)
	})
	if err != nil {
		return asServiceError("DeleteLibrarian", err)
	}
	log.Printf("[INFO] DeleteLibrarian: librarian %s deleted by %s", id, who.UserID)
	return nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *memberService) reloadStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	student, err := s.studentRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, asServiceError("reload student", err)
	}
	return student, nil
}

func (s *memberService) reloadLibrarian(ctx context.Context, id uuid.UUID) (*models.Librarian, error) {
	librarian, err := s.librarianRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, asServiceError("reload librarian", err)
	}
	return librarian, nil
}

func (s *memberService) createUser(tx *gorm.DB, acc Account, role models.Role) (*models.User, error) {
	email := normalizeEmail(acc.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ValidationError("A valid email is required.")
	}
	if acc.Password == "" {
		return nil, ValidationError("password is required.")
	}

	if _, err := s.userRepo.GetByEmail(tx, email); err == nil {
		return nil, &Error{Kind: KindConflict, Code: ErrDuplicate.Code, Message: "A user with this email already exists."}
	} else if !isNotFound(err) {
		return nil, err
	}

	hash, err := hashPassword(acc.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstName:    strings.TrimSpace(acc.FirstName),
		LastName:     strings.TrimSpace(acc.LastName),
	}
	if err := s.userRepo.Create(tx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *memberService) updateUser(tx *gorm.DB, userID uuid.UUID, upd ProfileUpdate) error {
	fields := map[string]interface{}{}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if !strings.Contains(email, "@") {
			return ValidationError("A valid email is required.")
		}
		fields["email"] = email
	}
	if upd.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*upd.LastName)
	}
	if len(fields) == 0 {
		return nil
	}
	return s.userRepo.Update(tx, userID, fields)
}

func (s *memberService) deleteUser(tx *gorm.DB, userID uuid.UUID) error {
	if err := s.tokenRepo.DeleteByUser(tx, userID); err != nil {
		return err
	}
	return s.userRepo.Delete(tx, userID)
}

func profileFields(upd ProfileUpdate, numberColumn string) map[string]interface{} {
	fields := map[string]interface{}{}
	if upd.Name != nil {
		fields["name"] = strings.TrimSpace(*upd.Name)
	}
	if upd.Number != nil {
		fields[numberColumn] = strings.TrimSpace(*upd.Number)
	}
	return fields
}
