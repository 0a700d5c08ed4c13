package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// AnnotationService receives annotation submissions: it registers the work
// against the task's state machine, then hands the payload to the revision
// store, both inside one transaction.
type AnnotationService interface {
	Submit(dbc dbctx.Context, in SubmitInput) (*types.Revision, error)
	History(dbc dbctx.Context, jobID, fileID uuid.UUID) ([]*types.Revision, error)
	Manifest(dbc dbctx.Context, jobID, fileID uuid.UUID) (*types.Manifest, error)
}

type annotationService struct {
	db        *gorm.DB
	log       *logger.Logger
	taskRepo  repos.TaskRepo
	revRepo   repos.RevisionRepo
	lifecycle TaskLifecycle
	store     RevisionStore
}

func NewAnnotationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	taskRepo repos.TaskRepo,
	revRepo repos.RevisionRepo,
	lifecycle TaskLifecycle,
	store RevisionStore,
) AnnotationService {
	return &annotationService{
		db:        db,
		log:       baseLog.With("service", "AnnotationService"),
		taskRepo:  taskRepo,
		revRepo:   revRepo,
		lifecycle: lifecycle,
		store:     store,
	}
}

func (s *annotationService) Submit(dbc dbctx.Context, in SubmitInput) (*types.Revision, error) {
	var rev *types.Revision
	err := s.transact(dbc, func(txc dbctx.Context) error {
		if in.TaskID != nil && in.UserID != nil {
			task, err := s.taskRepo.GetByID(txc.Ctx, txc.Tx, *in.TaskID)
			if err != nil {
				return err
			}
			if task.JobID != in.JobID {
				return &apperr.WrongJobError{JobID: in.JobID.String()}
			}
			pages := make([]int, 0, len(in.Pages))
			for _, p := range in.Pages {
				pages = append(pages, p.PageNum)
			}
			if err := s.lifecycle.RegisterSubmission(txc, task, *in.UserID, pages); err != nil {
				return err
			}
		}
		var err error
		rev, err = s.store.Submit(txc, in)
		return err
	})
	// The duplicate sentinel still carries the stored revision.
	if err != nil && err != apperr.ErrDuplicateAnnotation {
		return nil, err
	}
	return rev, err
}

func (s *annotationService) History(dbc dbctx.Context, jobID, fileID uuid.UUID) ([]*types.Revision, error) {
	return s.revRepo.ListByJobFile(dbc.Ctx, dbc.Tx, jobID, fileID)
}

func (s *annotationService) Manifest(dbc dbctx.Context, jobID, fileID uuid.UUID) (*types.Manifest, error) {
	return s.store.GetManifest(dbc, jobID, fileID)
}

func (s *annotationService) transact(dbc dbctx.Context, fn func(dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
