// Package auth holds the authorization policy: which role may invoke which operation.
package auth

import (
	"github.com/google/uuid"

	"booklending/internal/models"
)

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

type Operation string

const (
	OpBookRead        Operation = "book.read"
	OpBookWrite       Operation = "book.write"
	OpLoanCreate      Operation = "loan.create"
	OpLoanRead        Operation = "loan.read"
	OpLoanReturn      Operation = "loan.return"
	OpLoanModify      Operation = "loan.modify"
	OpStudentManage   Operation = "student.manage"
	OpLibrarianManage Operation = "librarian.manage"
	OpLogout          Operation = "auth.logout"
)

var (
	anyRole   = []models.Role{models.RoleAdmin, models.RoleLibrarian, models.RoleStudent}
	adminOnly = []models.Role{models.RoleAdmin}
)

// policy is the single source of truth for role checks.
//
// OpLoanReturn is open to every authenticated role: any caller can return
// any loan.
var policy = map[Operation][]models.Role{
	OpBookRead:        anyRole,
	OpBookWrite:       adminOnly,
	OpLoanCreate:      {models.RoleStudent},
	OpLoanRead:        anyRole,
	OpLoanReturn:      anyRole,
	OpLoanModify:      adminOnly,
	OpStudentManage:   adminOnly,
	OpLibrarianManage: adminOnly,
	OpLogout:          anyRole,
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(op Operation, role models.Role) bool {
	for _, r := range policy[op] {
		if r == role {
			return true
		}
	}
	return false
}
