package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/services"
)

type TaskHandler struct {
	log         *logger.Logger
	taskService services.TaskService
	jobService  services.JobService
}

func NewTaskHandler(log *logger.Logger, taskService services.TaskService, jobService services.JobService) *TaskHandler {
	return &TaskHandler{
		log:         log.With("handler", "TaskHandler"),
		taskService: taskService,
		jobService:  jobService,
	}
}

// GET /api/jobs/:id/tasks
func (h *TaskHandler) ListByJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	tasks, err := h.taskService.ListByJob(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.taskService.Get(dbctx.Context{Ctx: c.Request.Context()}, taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type editTaskRequest struct {
	Pages  []int      `json:"pages"`
	UserID *uuid.UUID `json:"user_id"`
}

// PATCH /api/tasks/:id
func (h *TaskHandler) Edit(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	var req editTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := h.taskService.Edit(dbctx.Context{Ctx: c.Request.Context()}, taskID, req.Pages, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

type finishTaskRequest struct {
	JobID      uuid.UUID  `json:"job_id" binding:"required"`
	Policy     string     `json:"failed_page_policy"`
	AssigneeID *uuid.UUID `json:"assignee_id"`
}

// POST /api/tasks/:id/finish
func (h *TaskHandler) Finish(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	var req finishTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy := services.FailedPagePolicy(req.Policy)
	if policy == "" {
		policy = services.PolicyAuto
	}
	task, err := h.jobService.FinishTask(
		dbctx.Context{Ctx: c.Request.Context()},
		req.JobID, taskID,
		services.FinishOptions{Policy: policy, AssigneeID: req.AssigneeID},
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
