package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/apperr"
)

// respondError maps the domain error taxonomy onto HTTP statuses.
// Duplicates are "not modified", constraint violations 400, unknown
// entities 404, upstream job-status failures 500.
func respondError(c *gin.Context, err error) {
	var fieldErr *apperr.FieldConstraintError
	var wrongJob *apperr.WrongJobError
	var dupRef *apperr.DuplicateOrMissingReferenceError
	var jobUpdate *apperr.JobUpdateError

	switch {
	case errors.Is(err, apperr.ErrDuplicateAnnotation):
		c.Status(http.StatusNotModified)
	case errors.Is(err, apperr.ErrJobNotStarted),
		errors.Is(err, apperr.ErrTaskAlreadyFinished),
		errors.Is(err, apperr.ErrTaskNotEditable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &fieldErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Error()})
	case errors.As(err, &dupRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": dupRef.Error()})
	case errors.As(err, &wrongJob):
		c.JSON(http.StatusNotFound, gin.H{"error": wrongJob.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &jobUpdate):
		c.JSON(http.StatusInternalServerError, gin.H{"error": jobUpdate.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
