package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booklending/internal/services"
)

type createBookRequest struct {
	Title  string `json:"title" binding:"required,max=200"`
	Author string `json:"author" binding:"required,max=100"`
}

// patchBookRequest has no is_available field: availability only changes
// through loans.
type patchBookRequest struct {
	Title  *string `json:"title" binding:"omitempty,min=1,max=200"`
	Author *string `json:"author" binding:"omitempty,min=1,max=100"`
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.svc.Books.List(c.Request.Context(), identity(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	book, err := h.svc.Books.Get(c.Request.Context(), identity(c), bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	book, err := h.svc.Books.Create(c.Request.Context(), identity(c), req.Title, req.Author)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LibraryHandler) replaceBook(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.updateBook(c, bookID, services.BookUpdate{Title: &req.Title, Author: &req.Author})
}

func (h *LibraryHandler) patchBook(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	var req patchBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	h.updateBook(c, bookID, services.BookUpdate{Title: req.Title, Author: req.Author})
}

func (h *LibraryHandler) updateBook(c *gin.Context, bookID uuid.UUID, upd services.BookUpdate) {
	book, err := h.svc.Books.Update(c.Request.Context(), identity(c), bookID, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	bookID, ok := pathID(c, "book")
	if !ok {
		return
	}
	if err := h.svc.Books.Delete(c.Request.Context(), identity(c), bookID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
