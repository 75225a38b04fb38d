package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrorKind classifies a failure so transports can map it to a status code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindValidation
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Error is the error type returned by every service operation. Message is safe
// to show to clients; Err carries the underlying cause for logs only.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Code so that sentinels compare equal to copies that
// carry a different message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	ErrStudentProfileMissing = &Error{Kind: KindNotFound, Code: "StudentProfileMissing", Message: "Student profile not found."}
	ErrBookMissing           = &Error{Kind: KindNotFound, Code: "BookMissing", Message: "Book not found."}
	ErrLoanMissing           = &Error{Kind: KindNotFound, Code: "LoanMissing", Message: "Loan not found."}
	ErrStudentMissing        = &Error{Kind: KindNotFound, Code: "StudentMissing", Message: "Student not found."}
	ErrLibrarianMissing      = &Error{Kind: KindNotFound, Code: "LibrarianMissing", Message: "Librarian not found."}

	// ErrBookUnavailable is returned when a borrow targets a book with an active loan.
	ErrBookUnavailable = &Error{Kind: KindConflict, Code: "BookUnavailable", Message: "This book is currently not available."}
	ErrDuplicate       = &Error{Kind: KindConflict, Code: "Duplicate", Message: "A record with the same unique value already exists."}

	ErrForbidden          = &Error{Kind: KindForbidden, Code: "Forbidden", Message: "You do not have permission to perform this action."}
	ErrUnauthenticated    = &Error{Kind: KindUnauthorized, Code: "Unauthenticated", Message: "Authentication credentials were not provided or are invalid."}
	ErrInvalidCredentials = &Error{Kind: KindValidation, Code: "InvalidCredentials", Message: "Invalid credentials"}

	// ErrInternal is what clients see for any unexpected failure.
	ErrInternal = &Error{Kind: KindInternal, Code: "Internal", Message: "internal server error"}
)

// ValidationError reports a malformed request payload.
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Code: "Validation", Message: msg}
}

// internalError logs the cause and hides it behind a generic message.
func internalError(op string, err error) *Error {
	wrapped := pkgerrors.Wrap(err, op)
	log.Printf("[ERROR] %v", wrapped)
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Message: ErrInternal.Message, Err: wrapped}
}

// asServiceError passes *Error values through and turns anything else into an
// internal error.
func asServiceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return internalError(op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation checks for a unique-constraint error, either translated by
// GORM or raw from PostgreSQL (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
