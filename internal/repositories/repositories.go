package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"booklending/internal/models"
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(db *gorm.DB, id uuid.UUID) error
}

type StudentRepository interface {
	Create(db *gorm.DB, student *models.Student) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Student, error)
	GetByUserID(db *gorm.DB, userID uuid.UUID) (*models.Student, error)
	List(db *gorm.DB) ([]models.Student, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(db *gorm.DB, id uuid.UUID) error
}

type LibrarianRepository interface {
	Create(db *gorm.DB, librarian *models.Librarian) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Librarian, error)
	List(db *gorm.DB) ([]models.Librarian, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(db *gorm.DB, id uuid.UUID) error
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	SetAvailability(db *gorm.DB, id uuid.UUID, from, to bool) (int64, error)
	Delete(db *gorm.DB, id uuid.UUID) error
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	List(db *gorm.DB) ([]models.Loan, error)
	ListByStudentUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error)
	ListActiveByStudent(db *gorm.DB, studentID uuid.UUID) ([]models.Loan, error)
	MarkReturned(db *gorm.DB, id uuid.UUID, returnedOn time.Time) (int64, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(db *gorm.DB, id uuid.UUID) error
	DeleteByStudent(db *gorm.DB, studentID uuid.UUID) error
	DeleteByBook(db *gorm.DB, bookID uuid.UUID) error
}

type TokenRepository interface {
	GetByUser(db *gorm.DB, userID uuid.UUID) (*models.AuthToken, error)
	GetByKey(db *gorm.DB, key string) (*models.AuthToken, error)
	Create(db *gorm.DB, token *models.AuthToken) error
	DeleteByUser(db *gorm.DB, userID uuid.UUID) error
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.User{}).Where("id = ?", id).Updates(fields).Error
}

// Delete removes the user row. Callers remove dependent profiles and tokens first.
func (r *userRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.User{}, "id = ?", id).Error
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(db *gorm.DB, student *models.Student) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("User").Create(student).Error
}

func (r *studentRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var student models.Student
	if err := db.Preload("User").First(&student, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) GetByUserID(db *gorm.DB, userID uuid.UUID) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var student models.Student
	if err := db.First(&student, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) List(db *gorm.DB) ([]models.Student, error) {
	if db == nil {
		db = r.db
	}
	var students []models.Student
	if err := db.Preload("User").Order("name").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (r *studentRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Student{}).Where("id = ?", id).Updates(fields).Error
}

func (r *studentRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Student{}, "id = ?", id).Error
}

type librarianRepository struct {
	db *gorm.DB
}

func NewLibrarianRepository(db *gorm.DB) LibrarianRepository {
	return &librarianRepository{db: db}
}

func (r *librarianRepository) Create(db *gorm.DB, librarian *models.Librarian) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("User").Create(librarian).Error
}

func (r *librarianRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Librarian, error) {
	if db == nil {
		db = r.db
	}
	var librarian models.Librarian
	if err := db.Preload("User").First(&librarian, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &librarian, nil
}

func (r *librarianRepository) List(db *gorm.DB) ([]models.Librarian, error) {
	if db == nil {
		db = r.db
	}
	var librarians []models.Librarian
	if err := db.Preload("User").Order("name").Find(&librarians).Error; err != nil {
		return nil, err
	}
	return librarians, nil
}

func (r *librarianRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Librarian{}).Where("id = ?", id).Updates(fields).Error
}

func (r *librarianRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Librarian{}, "id = ?", id).Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("title").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).Where("id = ?", id).Updates(fields).Error
}

// SetAvailability flips is_available from one value to the other and reports
// how many rows changed. Zero means the book was not in the expected state.
func (r *bookRepository) SetAvailability(db *gorm.DB, id uuid.UUID, from, to bool) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND is_available = ?", id, from).
		Update("is_available", to)
	return res.RowsAffected, res.Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Book{}, "id = ?", id).Error
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("Student", "Book").Create(loan).Error
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Preload("Student").
		Preload("Book").
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetByIDForUpdate locks the loan row only; associations are not loaded.
func (r *loanRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) List(db *gorm.DB) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Preload("Student").
		Preload("Book").
		Order("loan_date DESC, created_at DESC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListByStudentUser(db *gorm.DB, userID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Joins("JOIN students ON students.id = loans.student_id").
		Where("students.user_id = ?", userID).
		Preload("Student").
		Preload("Book").
		Order("loans.loan_date DESC, loans.created_at DESC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListActiveByStudent(db *gorm.DB, studentID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND is_returned = ?", studentID, false).
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// MarkReturned closes an active loan. It reports zero rows when the loan was
// already returned.
func (r *loanRepository) MarkReturned(db *gorm.DB, id uuid.UUID, returnedOn time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND is_returned = ?", id, false).
		Updates(map[string]interface{}{
			"is_returned":        true,
			"actual_return_date": returnedOn,
		})
	return res.RowsAffected, res.Error
}

func (r *loanRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Loan{}).Where("id = ?", id).Updates(fields).Error
}

func (r *loanRepository) Delete(db *gorm.DB, id uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Loan{}, "id = ?", id).Error
}

func (r *loanRepository) DeleteByStudent(db *gorm.DB, studentID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Loan{}, "student_id = ?", studentID).Error
}

func (r *loanRepository) DeleteByBook(db *gorm.DB, bookID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Loan{}, "book_id = ?", bookID).Error
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) GetByUser(db *gorm.DB, userID uuid.UUID) (*models.AuthToken, error) {
	if db == nil {
		db = r.db
	}
	var token models.AuthToken
	if err := db.First(&token, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) GetByKey(db *gorm.DB, key string) (*models.AuthToken, error) {
	if db == nil {
		db = r.db
	}
	var token models.AuthToken
	if err := db.Preload("User").First(&token, "token_key = ?", key).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) Create(db *gorm.DB, token *models.AuthToken) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("User").Create(token).Error
}

func (r *tokenRepository) DeleteByUser(db *gorm.DB, userID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.AuthToken{}, "user_id = ?", userID).Error
}
