package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"booklending/internal/services"
)

type accountRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name" binding:"max=150"`
}

func (r accountRequest) account() services.Account {
	return services.Account{
		Email:     r.Email,
		Password:  r.Password,
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
}

type registerStudentRequest struct {
	accountRequest
	Name          string `json:"name" binding:"required,max=100"`
	StudentNumber string `json:"student_number" binding:"required,max=20"`
}

type createLibrarianRequest struct {
	accountRequest
	Name           string `json:"name" binding:"required,max=100"`
	EmployeeNumber string `json:"employee_number" binding:"required,max=20"`
}

type profileRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
	FirstName *string `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string `json:"last_name" binding:"omitempty,max=150"`

	StudentNumber  *string `json:"student_number" binding:"omitempty,min=1,max=20"`
	EmployeeNumber *string `json:"employee_number" binding:"omitempty,min=1,max=20"`
}

func (r profileRequest) update(number *string) services.ProfileUpdate {
	return services.ProfileUpdate{
		Name:      r.Name,
		Number:    number,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
}

// ─── Students ─────────────────────────────────────────────────────────────────

func (h *LibraryHandler) registerStudent(c *gin.Context) {
	var req registerStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	student, err := h.svc.Members.RegisterStudent(c.Request.Context(), services.StudentRegistration{
		Account:       req.account(),
		Name:          req.Name,
		StudentNumber: req.StudentNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

func (h *LibraryHandler) listStudents(c *gin.Context) {
	students, err := h.svc.Members.ListStudents(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *LibraryHandler) getStudent(c *gin.Context) {
	id, ok := pathID(c, "student")
	if !ok {
		return
	}
	student, err := h.svc.Members.GetStudent(c.Request.Context(), identity(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *LibraryHandler) updateStudent(c *gin.Context) {
	id, ok := pathID(c, "student")
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	student, err := h.svc.Members.UpdateStudent(c.Request.Context(), identity(c), id, req.update(req.StudentNumber))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, student)
}

func (h *LibraryHandler) deleteStudent(c *gin.Context) {
	id, ok := pathID(c, "student")
	if !ok {
		return
	}
	if err := h.svc.Members.DeleteStudent(c.Request.Context(), identity(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ─── Librarians ───────────────────────────────────────────────────────────────

func (h *LibraryHandler) createLibrarian(c *gin.Context) {
	var req createLibrarianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	librarian, err := h.svc.Members.CreateLibrarian(c.Request.Context(), identity(c), services.LibrarianRegistration{
		Account:        req.account(),
		Name:           req.Name,
		EmployeeNumber: req.EmployeeNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, librarian)
}

func (h *LibraryHandler) listLibrarians(c *gin.Context) {
	librarians, err := h.svc.Members.ListLibrarians(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, librarians)
}

func (h *LibraryHandler) getLibrarian(c *gin.Context) {
	id, ok := pathID(c, "librarian")
	if !ok {
		return
	}
	librarian, err := h.svc.Members.GetLibrarian(c.Request.Context(), identity(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, librarian)
}

func (h *LibraryHandler) updateLibrarian(c *gin.Context) {
	id, ok := pathID(c, "librarian")
	if !ok {
		return
	}
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	librarian, err := h.svc.Members.UpdateLibrarian(c.Request.Context(), identity(c), id, req.update(req.EmployeeNumber))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, librarian)
}

func (h *LibraryHandler) deleteLibrarian(c *gin.Context) {
	id, ok := pathID(c, "librarian")
	if !ok {
		return
	}
	if err := h.svc.Members.DeleteLibrarian(c.Request.Context(), identity(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
