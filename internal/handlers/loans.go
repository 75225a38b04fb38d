package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booklending/internal/models"
	"booklending/internal/services"
)

const dateLayout = "2006-01-02"

type loanResponse struct {
	ID               uuid.UUID `json:"id"`
	Student          uuid.UUID `json:"student"`
	StudentName      string    `json:"student_name"`
	Book             uuid.UUID `json:"book"`
	BookTitle        string    `json:"book_title"`
	LoanDate         string    `json:"loan_date"`
	ReturnDate       *string   `json:"return_date"`
	IsReturned       bool      `json:"is_returned"`
	ActualReturnDate *string   `json:"actual_return_date"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newLoanResponse(l *models.Loan) loanResponse {
	return loanResponse{
		ID:               l.ID,
		Student:          l.StudentID,
		StudentName:      l.Student.Name,
		Book:             l.BookID,
		BookTitle:        l.Book.Title,
		LoanDate:         l.LoanDate.Format(dateLayout),
		ReturnDate:       formatDate(l.ReturnDate),
		IsReturned:       l.IsReturned,
		ActualReturnDate: formatDate(l.ActualReturnDate),
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

type borrowRequest struct {
	BookID   string `json:"book_id" binding:"required,uuid"`
	LoanDate string `json:"loan_date"`
}

func (h *LibraryHandler) borrowBook(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		badRequest(c, "invalid book id")
		return
	}

	var loanDate *time.Time
	if req.LoanDate != "" {
		d, err := time.Parse(dateLayout, req.LoanDate)
		if err != nil {
			badRequest(c, "loan_date must be formatted as YYYY-MM-DD")
			return
		}
		loanDate = &d
	}

	loan, err := h.svc.Loans.Borrow(c.Request.Context(), identity(c), bookID, loanDate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newLoanResponse(loan))
}

func (h *LibraryHandler) returnBook(c *gin.Context) {
	loanID, ok := pathID(c, "loan")
	if !ok {
		return
	}

	loan, err := h.svc.Loans.Return(c.Request.Context(), identity(c), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "returned",
		"loan":   newLoanResponse(loan),
	})
}

func (h *LibraryHandler) listLoans(c *gin.Context) {
	loans, err := h.svc.Loans.List(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]loanResponse, 0, len(loans))
	for i := range loans {
		out = append(out, newLoanResponse(&loans[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *LibraryHandler) getLoan(c *gin.Context) {
	loanID, ok := pathID(c, "loan")
	if !ok {
		return
	}
	loan, err := h.svc.Loans.Get(c.Request.Context(), identity(c), loanID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLoanResponse(loan))
}

// updateLoan serves both PUT and PATCH; absent fields are left alone and an
// explicit null clears return_date.
func (h *LibraryHandler) updateLoan(c *gin.Context) {
	loanID, ok := pathID(c, "loan")
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, err.Error())
		return
	}
	upd, err := parseLoanUpdate(raw)
	if err != nil {
		writeError(c, err)
		return
	}

	loan, err := h.svc.Loans.Update(c.Request.Context(), identity(c), loanID, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLoanResponse(loan))
}

func (h *LibraryHandler) deleteLoan(c *gin.Context) {
	loanID, ok := pathID(c, "loan")
	if !ok {
		return
	}
	if err := h.svc.Loans.Delete(c.Request.Context(), identity(c), loanID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseLoanUpdate(raw map[string]json.RawMessage) (services.LoanUpdate, error) {
	var upd services.LoanUpdate
	var err error

	if v, ok := raw["loan_date"]; ok {
		if upd.LoanDate, err = parseDateField("loan_date", v); err != nil {
			return upd, err
		}
		if upd.LoanDate == nil {
			return upd, services.ValidationError("loan_date may not be null.")
		}
	}
	if v, ok := raw["return_date"]; ok {
		if upd.ReturnDate, err = parseDateField("return_date", v); err != nil {
			return upd, err
		}
		upd.ClearReturnDate = upd.ReturnDate == nil
	}
	if v, ok := raw["actual_return_date"]; ok {
		if upd.ActualReturnDate, err = parseDateField("actual_return_date", v); err != nil {
			return upd, err
		}
	}
	if v, ok := raw["is_returned"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return upd, services.ValidationError("is_returned must be a boolean.")
		}
		upd.IsReturned = &b
	}
	return upd, nil
}

func parseDateField(name string, v json.RawMessage) (*time.Time, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, services.ValidationError(name + " must be a date string.")
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, services.ValidationError(name + " must be formatted as YYYY-MM-DD.")
	}
	return &d, nil
}
