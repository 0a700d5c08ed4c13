package services

import (
	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// TaskService covers task reads and pre-start edits. Status changes stay
// with the lifecycle.
type TaskService interface {
	Get(dbc dbctx.Context, taskID uuid.UUID) (*types.Task, error)
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.Task, error)
	// Edit changes a pending task's pages or assignee; started tasks are
	// immutable.
	Edit(dbc dbctx.Context, taskID uuid.UUID, pages []int, newUserID *uuid.UUID) (*types.Task, error)
}

type taskService struct {
	log         *logger.Logger
	taskRepo    repos.TaskRepo
	fileRepo    repos.JobFileRepo
	distributor TaskDistributor
}

func NewTaskService(
	baseLog *logger.Logger,
	taskRepo repos.TaskRepo,
	fileRepo repos.JobFileRepo,
	distributor TaskDistributor,
) TaskService {
	return &taskService{
		log:         baseLog.With("service", "TaskService"),
		taskRepo:    taskRepo,
		fileRepo:    fileRepo,
		distributor: distributor,
	}
}

func (s *taskService) Get(dbc dbctx.Context, taskID uuid.UUID) (*types.Task, error) {
	return s.taskRepo.GetByID(dbc.Ctx, dbc.Tx, taskID)
}

func (s *taskService) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.Task, error) {
	return s.taskRepo.GetByJobID(dbc.Ctx, dbc.Tx, jobID)
}

func (s *taskService) Edit(dbc dbctx.Context, taskID uuid.UUID, pages []int, newUserID *uuid.UUID) (*types.Task, error) {
	task, err := s.taskRepo.GetByID(dbc.Ctx, dbc.Tx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != types.TaskPending {
		return nil, apperr.ErrTaskNotEditable
	}
	if len(pages) == 0 && newUserID == nil {
		return task, nil
	}

	oldUser := task.UserID
	newPages := []int(task.Pages)
	if len(pages) > 0 {
		newPages = pagesUnion(pages, nil)
	}
	newUser := task.UserID
	if newUserID != nil {
		newUser = *newUserID
	}

	// Page accounting on the file row follows the task under its lock.
	locked, err := s.fileRepo.GetForUpdate(dbc.Ctx, dbc.Tx, task.JobID, task.FileID)
	if err != nil {
		return nil, err
	}
	for _, p := range newPages {
		if p < 1 || p > locked.PagesNumber {
			return nil, apperr.NewFieldConstraint("pages", "page %d outside 1..%d", p, locked.PagesNumber)
		}
	}
	siblings, err := s.taskRepo.GetByJobID(dbc.Ctx, dbc.Tx, task.JobID)
	if err != nil {
		return nil, err
	}
	for _, t := range siblings {
		if t.ID == task.ID || t.FileID != task.FileID || t.IsValidation != task.IsValidation {
			continue
		}
		if t.UserID != newUser || !t.IsOpen() {
			continue
		}
		if overlap := pagesIntersect(t.Pages, newPages); len(overlap) > 0 {
			return nil, apperr.NewFieldConstraint("pages", "pages %v already assigned to the user in task %s", overlap, t.ID)
		}
	}

	task.Pages = newPages
	task.UserID = newUser
	if err := s.taskRepo.Save(dbc.Ctx, dbc.Tx, task); err != nil {
		return nil, err
	}

	// Rebuild distributed_* from every task on the file rather than
	// subtracting the old pages: a page shared with another task must stay
	// accounted for after the edit.
	var ann, val []int
	for _, t := range siblings {
		if t.FileID != locked.FileID {
			continue
		}
		pgs := []int(t.Pages)
		if t.ID == task.ID {
			pgs = newPages
		}
		if t.IsValidation {
			val = pagesUnion(val, pgs)
		} else {
			ann = pagesUnion(ann, pgs)
		}
	}
	locked.DistributedAnnotatingPages = ann
	locked.DistributedValidatingPages = val
	if err := s.fileRepo.Save(dbc.Ctx, dbc.Tx, locked); err != nil {
		return nil, err
	}

	touched := []uuid.UUID{task.UserID}
	if oldUser != task.UserID {
		touched = append(touched, oldUser)
	}
	if err := s.distributor.RecomputeOverallLoad(dbc, touched); err != nil {
		return nil, err
	}
	return task, nil
}
