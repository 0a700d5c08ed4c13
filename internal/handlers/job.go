package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/services"
)

type JobHandler struct {
	log        *logger.Logger
	jobService services.JobService
}

func NewJobHandler(log *logger.Logger, jobService services.JobService) *JobHandler {
	return &JobHandler{
		log:        log.With("handler", "JobHandler"),
		jobService: jobService,
	}
}

type createJobRequest struct {
	Name              string      `json:"name" binding:"required"`
	ValidationType    string      `json:"validation_type" binding:"required"`
	ExtensiveCoverage int         `json:"extensive_coverage"`
	CallbackURL       string      `json:"callback_url"`
	Tenant            string      `json:"tenant"`
	CallbackToken     string      `json:"callback_token"`
	Deadline          *time.Time  `json:"deadline"`
	Annotators        []uuid.UUID `json:"annotators"`
	Validators        []uuid.UUID `json:"validators"`
	Owners            []uuid.UUID `json:"owners"`
	Files             []uuid.UUID `json:"files" binding:"required"`
}

// POST /api/jobs
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.jobService.Create(dbctx.Context{Ctx: c.Request.Context()}, services.CreateJobInput{
		Name:              req.Name,
		ValidationType:    req.ValidationType,
		ExtensiveCoverage: req.ExtensiveCoverage,
		CallbackURL:       req.CallbackURL,
		Tenant:            req.Tenant,
		CallbackToken:     req.CallbackToken,
		Deadline:          req.Deadline,
		AnnotatorIDs:      req.Annotators,
		ValidatorIDs:      req.Validators,
		OwnerIDs:          req.Owners,
		FileIDs:           req.Files,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// POST /api/jobs/:id/start
func (h *JobHandler) Start(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.jobService.Start(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type updateJobUsersRequest struct {
	Annotators []uuid.UUID `json:"annotators"`
	Validators []uuid.UUID `json:"validators"`
}

// PATCH /api/jobs/:id/users
func (h *JobHandler) UpdateUsers(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	var req updateJobUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.jobService.UpdateUsers(dbctx.Context{Ctx: c.Request.Context()}, jobID, req.Annotators, req.Validators)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GET /api/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.jobService.Get(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GET /api/jobs/:id/progress
func (h *JobHandler) Progress(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	progress, err := h.jobService.Progress(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
