package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/clients/assets"
	"github.com/kavelin/labelforge-backend/internal/clients/jobstatus"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type CreateJobInput struct {
	Name              string
	ValidationType    string
	ExtensiveCoverage int
	CallbackURL       string
	Tenant            string
	CallbackToken     string
	Deadline          *time.Time
	AnnotatorIDs      []uuid.UUID
	ValidatorIDs      []uuid.UUID
	OwnerIDs          []uuid.UUID
	FileIDs           []uuid.UUID
}

type JobProgress struct {
	JobID         uuid.UUID `json:"job_id"`
	Status        string    `json:"status"`
	TasksTotal    int       `json:"tasks_total"`
	TasksFinished int       `json:"tasks_finished"`
	FilesTotal    int       `json:"files_total"`
	FilesFinished int       `json:"files_finished"`
}

// JobService owns the job-level operations: creation (with asset metadata
// fetch and schema checks), start (initial distribution + upstream status
// push), edits (redistribution) and progress reads.
type JobService interface {
	Create(dbc dbctx.Context, in CreateJobInput) (*types.Job, error)
	Start(dbc dbctx.Context, jobID uuid.UUID) (*types.Job, error)
	UpdateUsers(dbc dbctx.Context, jobID uuid.UUID, annotatorIDs, validatorIDs []uuid.UUID) (*types.Job, error)
	Get(dbc dbctx.Context, jobID uuid.UUID) (*types.Job, error)
	Progress(dbc dbctx.Context, jobID uuid.UUID) (*JobProgress, error)
	// FinishTask runs the lifecycle finish inside one transaction.
	FinishTask(dbc dbctx.Context, jobID, taskID uuid.UUID, opts FinishOptions) (*types.Task, error)
}

type jobService struct {
	db          *gorm.DB
	log         *logger.Logger
	jobRepo     repos.JobRepo
	fileRepo    repos.JobFileRepo
	taskRepo    repos.TaskRepo
	userRepo    repos.UserRepo
	distributor TaskDistributor
	lifecycle   TaskLifecycle
	assets      assets.Client
	jobStatus   jobstatus.Client
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRepo repos.JobRepo,
	fileRepo repos.JobFileRepo,
	taskRepo repos.TaskRepo,
	userRepo repos.UserRepo,
	distributor TaskDistributor,
	lifecycle TaskLifecycle,
	assetsClient assets.Client,
	jobStatusClient jobstatus.Client,
) JobService {
	return &jobService{
		db:          db,
		log:         baseLog.With("service", "JobService"),
		jobRepo:     jobRepo,
		fileRepo:    fileRepo,
		taskRepo:    taskRepo,
		userRepo:    userRepo,
		distributor: distributor,
		lifecycle:   lifecycle,
		assets:      assetsClient,
		jobStatus:   jobStatusClient,
	}
}

func (s *jobService) Create(dbc dbctx.Context, in CreateJobInput) (*types.Job, error) {
	schema, err := SchemaFor(in.ValidationType)
	if err != nil {
		return nil, err
	}

	coverage := in.ExtensiveCoverage
	if coverage < 1 {
		coverage = 1
	}

	annotators, err := s.userRepo.GetByIDs(dbc.Ctx, dbc.Tx, in.AnnotatorIDs)
	if err != nil {
		return nil, err
	}
	if len(annotators) != len(in.AnnotatorIDs) {
		return nil, apperr.NewFieldConstraint("annotators", "unknown annotator id")
	}
	validators, err := s.userRepo.GetByIDs(dbc.Ctx, dbc.Tx, in.ValidatorIDs)
	if err != nil {
		return nil, err
	}
	if len(validators) != len(in.ValidatorIDs) {
		return nil, apperr.NewFieldConstraint("validators", "unknown validator id")
	}
	owners, err := s.userRepo.GetByIDs(dbc.Ctx, dbc.Tx, in.OwnerIDs)
	if err != nil {
		return nil, err
	}

	if err := schema.CheckAnnotators(annotators, coverage); err != nil {
		return nil, err
	}
	if err := schema.CheckValidators(validators); err != nil {
		return nil, err
	}
	if len(in.FileIDs) == 0 {
		return nil, apperr.NewFieldConstraint("files", "a job needs at least one file")
	}

	metadata, err := s.assets.GetFiles(dbc.Ctx, in.Tenant, in.FileIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch file metadata: %w", err)
	}
	byID := make(map[uuid.UUID]assets.FileMetadata, len(metadata))
	for _, m := range metadata {
		byID[m.FileID] = m
	}

	var job *types.Job
	err = s.transact(dbc, func(txc dbctx.Context) error {
		job = &types.Job{
			Name:              in.Name,
			ValidationType:    in.ValidationType,
			ExtensiveCoverage: coverage,
			Status:            types.JobPending,
			CallbackURL:       in.CallbackURL,
			Tenant:            in.Tenant,
			CallbackToken:     in.CallbackToken,
			Deadline:          in.Deadline,
			Annotators:        annotators,
			Validators:        validators,
			Owners:            owners,
		}
		if _, err := s.jobRepo.Create(txc.Ctx, txc.Tx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}

		files := make([]*types.JobFile, 0, len(in.FileIDs))
		for _, fid := range in.FileIDs {
			meta, ok := byID[fid]
			if !ok {
				return apperr.NewFieldConstraint("files", "file %s not known to the asset service", fid)
			}
			files = append(files, &types.JobFile{
				JobID:         job.ID,
				FileID:        fid,
				PagesNumber:   meta.PagesNumber,
				Status:        types.FilePending,
				StorageBucket: meta.Bucket,
				StoragePath:   meta.Path,
			})
		}
		if _, err := s.fileRepo.Create(txc.Ctx, txc.Tx, files); err != nil {
			return fmt.Errorf("create job files: %w", err)
		}
		job.Files = files
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("job created", "job_id", job.ID, "validation_type", job.ValidationType, "files", len(job.Files))
	return job, nil
}

func (s *jobService) Start(dbc dbctx.Context, jobID uuid.UUID) (*types.Job, error) {
	var job *types.Job
	err := s.transact(dbc, func(txc dbctx.Context) error {
		var err error
		job, err = s.jobRepo.GetByID(txc.Ctx, txc.Tx, jobID)
		if err != nil {
			return &apperr.WrongJobError{JobID: jobID.String()}
		}
		if job.Status != types.JobPending {
			return apperr.NewFieldConstraint("status", "job %s is already started", jobID)
		}

		schema, err := SchemaFor(job.ValidationType)
		if err != nil {
			return err
		}

		if schema.HasAnnotationPhase() {
			if _, err := s.distributor.Distribute(txc, job, job.Files, job.Annotators, false, types.TaskPending); err != nil {
				return err
			}
		}
		validators := job.Validators
		if schema.ValidatorsFromAnnotators() {
			validators = job.Annotators
		}
		if _, err := s.distributor.Distribute(txc, job, job.Files, validators, true, types.TaskPending); err != nil {
			return err
		}

		if err := s.jobRepo.SetStatus(txc.Ctx, txc.Tx, job.ID, types.JobInProgress); err != nil {
			return err
		}
		job.Status = types.JobInProgress

		if err := s.lifecycle.StartJobTasks(txc, job); err != nil {
			return err
		}

		if job.CallbackURL != "" {
			// Failure rolls the whole start back; the collaborator's
			// view and ours may not diverge.
			if err := s.jobStatus.UpdateJobStatus(txc.Ctx, job.CallbackURL, types.JobInProgress, job.Tenant, job.CallbackToken); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("job started", "job_id", job.ID)
	return job, nil
}

func (s *jobService) UpdateUsers(dbc dbctx.Context, jobID uuid.UUID, annotatorIDs, validatorIDs []uuid.UUID) (*types.Job, error) {
	var job *types.Job
	err := s.transact(dbc, func(txc dbctx.Context) error {
		var err error
		job, err = s.jobRepo.GetByID(txc.Ctx, txc.Tx, jobID)
		if err != nil {
			return &apperr.WrongJobError{JobID: jobID.String()}
		}
		if job.Status == types.JobFinished {
			return apperr.NewFieldConstraint("status", "finished jobs cannot be edited")
		}

		schema, err := SchemaFor(job.ValidationType)
		if err != nil {
			return err
		}

		annotators, err := s.userRepo.GetByIDs(txc.Ctx, txc.Tx, annotatorIDs)
		if err != nil {
			return err
		}
		validators, err := s.userRepo.GetByIDs(txc.Ctx, txc.Tx, validatorIDs)
		if err != nil {
			return err
		}
		if err := schema.CheckAnnotators(annotators, job.ExtensiveCoverage); err != nil {
			return err
		}
		if err := schema.CheckValidators(validators); err != nil {
			return err
		}

		if err := s.jobRepo.ReplaceAnnotators(txc.Ctx, txc.Tx, job, annotators); err != nil {
			return err
		}
		if err := s.jobRepo.ReplaceValidators(txc.Ctx, txc.Tx, job, validators); err != nil {
			return err
		}
		job.Annotators = annotators
		job.Validators = validators

		// Re-plan over freed and new pages; started work is preserved.
		if _, err := s.distributor.Redistribute(txc, job); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("job users updated", "job_id", job.ID)
	return job, nil
}

func (s *jobService) Get(dbc dbctx.Context, jobID uuid.UUID) (*types.Job, error) {
	job, err := s.jobRepo.GetByID(dbc.Ctx, dbc.Tx, jobID)
	if err != nil {
		return nil, &apperr.WrongJobError{JobID: jobID.String()}
	}
	return job, nil
}

func (s *jobService) Progress(dbc dbctx.Context, jobID uuid.UUID) (*JobProgress, error) {
	job, err := s.jobRepo.GetByID(dbc.Ctx, dbc.Tx, jobID)
	if err != nil {
		return nil, &apperr.WrongJobError{JobID: jobID.String()}
	}
	tasks, err := s.taskRepo.GetByJobID(dbc.Ctx, dbc.Tx, jobID)
	if err != nil {
		return nil, err
	}

	p := &JobProgress{JobID: jobID, Status: job.Status, TasksTotal: len(tasks), FilesTotal: len(job.Files)}
	for _, t := range tasks {
		if t.Status == types.TaskFinished {
			p.TasksFinished++
		}
	}
	for _, f := range job.Files {
		if f.Status == types.FileValidated {
			p.FilesFinished++
		}
	}
	return p, nil
}

func (s *jobService) FinishTask(dbc dbctx.Context, jobID, taskID uuid.UUID, opts FinishOptions) (*types.Task, error) {
	var task *types.Task
	err := s.transact(dbc, func(txc dbctx.Context) error {
		job, err := s.jobRepo.GetByID(txc.Ctx, txc.Tx, jobID)
		if err != nil {
			return &apperr.WrongJobError{JobID: jobID.String()}
		}
		task, err = s.lifecycle.Finish(txc, job, taskID, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// transact runs fn inside the caller's transaction when one is present,
// otherwise opens its own.
func (s *jobService) transact(dbc dbctx.Context, fn func(dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
