package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/apperr"
)

func respondStatus(t *testing.T, err error) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, err)
	c.Writer.WriteHeaderNow()
	return w.Code
}

func TestRespondErrorDuplicateIsNotModified(t *testing.T) {
	if got := respondStatus(t, apperr.ErrDuplicateAnnotation); got != http.StatusNotModified {
		t.Fatalf("duplicate status: want=%d got=%d", http.StatusNotModified, got)
	}
	// Wrapped duplicates map the same way.
	wrapped := fmt.Errorf("submit: %w", apperr.ErrDuplicateAnnotation)
	if got := respondStatus(t, wrapped); got != http.StatusNotModified {
		t.Fatalf("wrapped duplicate status: want=%d got=%d", http.StatusNotModified, got)
	}
}

func TestRespondErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"field constraint", apperr.NewFieldConstraint("pages", "must not be empty"), http.StatusBadRequest},
		{"duplicate or missing reference", &apperr.DuplicateOrMissingReferenceError{RevisionHash: "abc"}, http.StatusBadRequest},
		{"not editable", apperr.ErrTaskNotEditable, http.StatusBadRequest},
		{"wrong job", &apperr.WrongJobError{JobID: "j1"}, http.StatusNotFound},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"job update", &apperr.JobUpdateError{CallbackURL: "http://cb", Err: errors.New("refused")}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := respondStatus(t, tc.err); got != tc.want {
				t.Fatalf("status: want=%d got=%d", tc.want, got)
			}
		})
	}
}
