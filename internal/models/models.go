package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleStudent   Role = "student"
)

// ParseRole returns the Role named by s and whether it is one of the known roles.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleLibrarian, RoleStudent:
		return r, true
	}
	return "", false
}

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"size:254;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         Role      `gorm:"size:10;not null;index" json:"role"`
	FirstName    string    `gorm:"size:150" json:"first_name"`
	LastName     string    `gorm:"size:150" json:"last_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Student struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"-"`
	User          User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	StudentNumber string    `gorm:"size:20;not null;uniqueIndex" json:"student_number"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Librarian struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"-"`
	User           User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	EmployeeNumber string    `gorm:"size:20;not null;uniqueIndex" json:"employee_number"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Book struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Author      string    `gorm:"size:100;not null" json:"author"`
	IsAvailable bool      `gorm:"not null;default:true" json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Loan is one student's possession of one book. A loan with IsReturned == false
// is active; the book it references must then have IsAvailable == false.
type Loan struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"student"`
	Student          Student    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BookID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"book"`
	Book             Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	LoanDate         time.Time  `gorm:"type:date;not null" json:"loan_date"`
	ReturnDate       *time.Time `gorm:"type:date" json:"return_date"`
	IsReturned       bool       `gorm:"not null;default:false;index" json:"is_returned"`
	ActualReturnDate *time.Time `gorm:"type:date" json:"actual_return_date"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AuthToken is the opaque bearer token issued at login. A user holds at most one.
type AuthToken struct {
	Key       string    `gorm:"column:token_key;size:40;primaryKey" json:"token"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error      { u.ID = ensureID(u.ID); return nil }
func (s *Student) BeforeCreate(*gorm.DB) error   { s.ID = ensureID(s.ID); return nil }
func (l *Librarian) BeforeCreate(*gorm.DB) error { l.ID = ensureID(l.ID); return nil }
func (b *Book) BeforeCreate(*gorm.DB) error      { b.ID = ensureID(b.ID); return nil }
func (l *Loan) BeforeCreate(*gorm.DB) error      { l.ID = ensureID(l.ID); return nil }

func ensureID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// All lists every model in dependency order, for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Student{},
		&Librarian{},
		&Book{},
		&Loan{},
		&AuthToken{},
	}
}
