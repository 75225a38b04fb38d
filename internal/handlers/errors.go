package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booklending/internal/services"
)

// writeError maps a service error to its HTTP status. Anything that is not a
// *services.Error is treated as internal and its text is not sent.
func writeError(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		svcErr = services.ErrInternal
	}
	c.AbortWithStatusJSON(statusFor(svcErr), gin.H{
		"error": svcErr.Message,
		"code":  svcErr.Code,
	})
}

func statusFor(err *services.Error) int {
	switch err.Kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		// Borrowing an unavailable book is reported as a 400.
		if errors.Is(err, services.ErrBookUnavailable) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	writeError(c, services.ValidationError(msg))
}

// pathID parses the :id parameter; on failure it writes a 400 and returns false.
func pathID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid "+what+" id")
		return uuid.Nil, false
	}
	return id, true
}
