package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/requestdata"
	"github.com/kavelin/labelforge-backend/internal/services"
)

type AnnotationHandler struct {
	log     *logger.Logger
	service services.AnnotationService
}

func NewAnnotationHandler(log *logger.Logger, service services.AnnotationService) *AnnotationHandler {
	return &AnnotationHandler{
		log:     log.With("handler", "AnnotationHandler"),
		service: service,
	}
}

type submitAnnotationRequest struct {
	BaseRevisionHash string                    `json:"base_revision_hash"`
	Pages            []services.PageSubmission `json:"pages"`
	Validated        []int                     `json:"validated"`
	Failed           []int                     `json:"failed"`
	Categories       []string                  `json:"categories"`
	PipelineID       *int64                    `json:"pipeline_id"`
	TaskID           *uuid.UUID                `json:"task_id"`
	Links            []services.LinkSubmission `json:"links"`
}

// POST /api/jobs/:id/files/:fileID/annotations
func (h *AnnotationHandler) Submit(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	var req submitAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := services.SubmitInput{
		JobID:            jobID,
		FileID:           fileID,
		BaseRevisionHash: req.BaseRevisionHash,
		Pages:            req.Pages,
		Validated:        req.Validated,
		Failed:           req.Failed,
		Categories:       req.Categories,
		PipelineID:       req.PipelineID,
		TaskID:           req.TaskID,
		Links:            req.Links,
	}
	// Pipeline submissions carry their own identity; everything else is
	// attributed to the authenticated user.
	if req.PipelineID == nil {
		rd := requestdata.GetRequestData(c.Request.Context())
		if rd == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		in.UserID = &rd.UserID
	}

	rev, err := h.service.Submit(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		// Idempotent retries land here and come back 304.
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rev)
}

// GET /api/jobs/:id/files/:fileID/annotations
func (h *AnnotationHandler) History(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	revs, err := h.service.History(dbctx.Context{Ctx: c.Request.Context()}, jobID, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, revs)
}

// GET /api/jobs/:id/files/:fileID/manifest
func (h *AnnotationHandler) Manifest(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	fileID, err := uuid.Parse(c.Param("fileID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return
	}
	m, err := h.service.Manifest(dbctx.Context{Ctx: c.Request.Context()}, jobID, fileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
