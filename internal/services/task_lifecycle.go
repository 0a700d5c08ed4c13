package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/clients/jobstatus"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// FailedPagePolicy selects who re-annotates pages a validator failed.
type FailedPagePolicy string

const (
	// PolicyInitial reassigns failed pages to the original annotator.
	PolicyInitial FailedPagePolicy = "initial"
	// PolicyAuto lets the distributor pick assignees.
	PolicyAuto FailedPagePolicy = "auto"
	// PolicyUser assigns failed pages to a named user.
	PolicyUser FailedPagePolicy = "user"
)

// FinishOptions parameterizes finishing a validation task.
type FinishOptions struct {
	Policy     FailedPagePolicy
	AssigneeID *uuid.UUID
}

// TaskLifecycle drives the task state machine:
// pending -> ready -> in_progress -> finished, no backward transitions.
type TaskLifecycle interface {
	// StartJobTasks flips the initial wave of tasks to ready when the job
	// starts.
	StartJobTasks(dbc dbctx.Context, job *types.Job) error
	// RegisterSubmission records that work arrived for a task, checking
	// ownership and page range, and moves ready -> in_progress.
	RegisterSubmission(dbc dbctx.Context, task *types.Task, userID uuid.UUID, pages []int) error
	// Finish moves in_progress -> finished and runs the completion side
	// effects in order: outcome partitioning, failed-page re-annotation,
	// validation unblocking, file accounting, job completion.
	Finish(dbc dbctx.Context, job *types.Job, taskID uuid.UUID, opts FinishOptions) (*types.Task, error)
}

type taskLifecycle struct {
	log         *logger.Logger
	taskRepo    repos.TaskRepo
	fileRepo    repos.JobFileRepo
	jobRepo     repos.JobRepo
	revRepo     repos.RevisionRepo
	distributor TaskDistributor
	consensus   ConsensusEngine
	jobStatus   jobstatus.Client
}

func NewTaskLifecycle(
	baseLog *logger.Logger,
	taskRepo repos.TaskRepo,
	fileRepo repos.JobFileRepo,
	jobRepo repos.JobRepo,
	revRepo repos.RevisionRepo,
	distributor TaskDistributor,
	consensus ConsensusEngine,
	jobStatus jobstatus.Client,
) TaskLifecycle {
	return &taskLifecycle{
		log:         baseLog.With("service", "TaskLifecycle"),
		taskRepo:    taskRepo,
		fileRepo:    fileRepo,
		jobRepo:     jobRepo,
		revRepo:     revRepo,
		distributor: distributor,
		consensus:   consensus,
		jobStatus:   jobStatus,
	}
}

func (l *taskLifecycle) StartJobTasks(dbc dbctx.Context, job *types.Job) error {
	schema, err := SchemaFor(job.ValidationType)
	if err != nil {
		return err
	}

	tasks, err := l.taskRepo.GetByJobID(dbc.Ctx, dbc.Tx, job.ID)
	if err != nil {
		return err
	}

	var readyIDs []uuid.UUID
	for _, t := range tasks {
		if t.Status != types.TaskPending {
			continue
		}
		if schema.HasAnnotationPhase() {
			if !t.IsValidation {
				readyIDs = append(readyIDs, t.ID)
			}
		} else {
			// Validation-only jobs start straight at validation.
			if t.IsValidation {
				readyIDs = append(readyIDs, t.ID)
			}
		}
	}
	return l.taskRepo.SetStatusBulk(dbc.Ctx, dbc.Tx, readyIDs, types.TaskReady)
}

func (l *taskLifecycle) RegisterSubmission(dbc dbctx.Context, task *types.Task, userID uuid.UUID, pages []int) error {
	if task.UserID != userID {
		return apperr.NewFieldConstraint("user", "only the task's assigned user may submit against it")
	}
	if !pagesContainAll(task.Pages, pages) {
		return apperr.NewFieldConstraint("pages", "submission contains pages outside the task's assigned range")
	}

	switch task.Status {
	case types.TaskPending:
		return apperr.ErrJobNotStarted
	case types.TaskFinished:
		return apperr.ErrTaskAlreadyFinished
	case types.TaskReady:
		task.Status = types.TaskInProgress
		return l.taskRepo.SetStatus(dbc.Ctx, dbc.Tx, task.ID, types.TaskInProgress)
	default:
		return nil
	}
}

// taskOutcome partitions a task's pages by what its own revisions did to
// them.
type taskOutcome struct {
	validated    []int
	failed       []int
	annotated    []int
	notProcessed []int
}

func (l *taskLifecycle) outcomeFor(dbc dbctx.Context, task *types.Task) (*taskOutcome, error) {
	revs, err := l.revRepo.GetByTaskID(dbc.Ctx, dbc.Tx, task.ID)
	if err != nil {
		return nil, err
	}

	out := &taskOutcome{}
	status := make(map[int]string)
	annotated := make(map[int]struct{})
	for _, rev := range revs {
		for n := range rev.Pages.Data() {
			annotated[n] = struct{}{}
		}
		for _, p := range rev.Validated {
			status[p] = "validated"
		}
		for _, p := range rev.Failed {
			status[p] = "failed"
		}
	}

	for _, p := range task.Pages {
		st := status[p]
		_, edited := annotated[p]
		switch {
		case st == "validated":
			out.validated = append(out.validated, p)
		case st == "failed":
			out.failed = append(out.failed, p)
		case edited:
			out.annotated = append(out.annotated, p)
		default:
			out.notProcessed = append(out.notProcessed, p)
		}
		if edited {
			out.annotated = appendUnique(out.annotated, p)
		}
	}
	return out, nil
}

func appendUnique(in []int, p int) []int {
	for _, v := range in {
		if v == p {
			return in
		}
	}
	return append(in, p)
}

func (l *taskLifecycle) Finish(dbc dbctx.Context, job *types.Job, taskID uuid.UUID, opts FinishOptions) (*types.Task, error) {
	task, err := l.taskRepo.GetByID(dbc.Ctx, dbc.Tx, taskID)
	if err != nil {
		return nil, err
	}
	if task.JobID != job.ID {
		return nil, &apperr.WrongJobError{JobID: job.ID.String()}
	}

	switch task.Status {
	case types.TaskFinished:
		return nil, apperr.ErrTaskAlreadyFinished
	case types.TaskPending, types.TaskReady:
		return nil, apperr.ErrJobNotStarted
	}

	outcome, err := l.outcomeFor(dbc, task)
	if err != nil {
		return nil, err
	}

	if task.IsValidation && len(outcome.notProcessed) > 0 {
		return nil, apperr.NewFieldConstraint("pages",
			"cannot finish validation with untouched pages %v", outcome.notProcessed)
	}

	task.Status = types.TaskFinished
	if err := l.taskRepo.SetStatus(dbc.Ctx, dbc.Tx, task.ID, types.TaskFinished); err != nil {
		return nil, err
	}

	if task.IsValidation {
		if err := l.finishValidation(dbc, job, task, outcome, opts); err != nil {
			return nil, err
		}
	} else {
		if err := l.finishAnnotation(dbc, job, task); err != nil {
			return nil, err
		}
	}

	if err := l.updateFileProgress(dbc, task, outcome); err != nil {
		return nil, err
	}
	if err := l.maybeFinishJob(dbc, job); err != nil {
		return nil, err
	}
	if err := l.distributor.RecomputeOverallLoad(dbc, []uuid.UUID{task.UserID}); err != nil {
		return nil, err
	}
	return task, nil
}

// finishValidation spawns follow-up work for pages the validator failed.
// Pages the validator edited and validated are consensus-resolved and need
// no further validation round.
func (l *taskLifecycle) finishValidation(dbc dbctx.Context, job *types.Job, task *types.Task, outcome *taskOutcome, opts FinishOptions) error {
	reannotate := pagesDiff(outcome.failed, outcome.annotated)
	if len(reannotate) == 0 {
		return nil
	}

	file, err := l.fileRepo.GetByJobAndFile(dbc.Ctx, dbc.Tx, task.JobID, task.FileID)
	if err != nil {
		return err
	}

	// Return the failed pages to the pools so follow-up tasks may cover
	// them again.
	locked, err := l.fileRepo.GetForUpdate(dbc.Ctx, dbc.Tx, file.JobID, file.FileID)
	if err != nil {
		return err
	}
	locked.DistributedAnnotatingPages = pagesDiff(locked.DistributedAnnotatingPages, reannotate)
	locked.DistributedValidatingPages = pagesDiff(locked.DistributedValidatingPages, reannotate)
	locked.AnnotatedPages = pagesDiff(locked.AnnotatedPages, reannotate)
	if err := l.fileRepo.Save(dbc.Ctx, dbc.Tx, locked); err != nil {
		return err
	}

	var annotators []*types.User
	switch opts.Policy {
	case PolicyInitial:
		initial, err := l.initialAnnotator(dbc, task, reannotate)
		if err != nil {
			return err
		}
		if initial != nil {
			annotators = []*types.User{initial}
		} else {
			annotators = job.Annotators
		}
	case PolicyUser:
		if opts.AssigneeID == nil {
			return apperr.NewFieldConstraint("assignee", "policy %q requires an assignee", PolicyUser)
		}
		for _, u := range job.Annotators {
			if u.ID == *opts.AssigneeID {
				annotators = []*types.User{u}
			}
		}
		if len(annotators) == 0 {
			return apperr.NewFieldConstraint("assignee", "user %s is not an annotator of this job", opts.AssigneeID)
		}
	default:
		annotators = job.Annotators
	}

	if _, err := l.distributor.DistributePages(dbc, job, locked, reannotate, annotators, false, types.TaskReady); err != nil {
		return fmt.Errorf("spawn re-annotation tasks: %w", err)
	}

	schema, err := SchemaFor(job.ValidationType)
	if err != nil {
		return err
	}
	validators := job.Validators
	if schema.ValidatorsFromAnnotators() {
		validators = job.Annotators
	}
	if _, err := l.distributor.DistributePages(dbc, job, locked, reannotate, validators, true, types.TaskPending); err != nil {
		return fmt.Errorf("spawn follow-up validation tasks: %w", err)
	}
	return nil
}

// initialAnnotator finds the author of the earlier annotation task covering
// the failed pages.
func (l *taskLifecycle) initialAnnotator(dbc dbctx.Context, task *types.Task, pages []int) (*types.User, error) {
	siblings, err := l.taskRepo.GetByJobAndFile(dbc.Ctx, dbc.Tx, task.JobID, task.FileID)
	if err != nil {
		return nil, err
	}
	for _, t := range siblings {
		if t.IsValidation || t.ID == task.ID {
			continue
		}
		if pagesContainAll(t.Pages, pages) {
			return &types.User{ID: t.UserID}, nil
		}
	}
	return nil, nil
}

// finishAnnotation runs the unblock step: pending validation tasks whose
// full page set has reached the required number of finished independent
// annotator completions go ready, and extensive-coverage jobs get their
// agreement evaluated.
func (l *taskLifecycle) finishAnnotation(dbc dbctx.Context, job *types.Job, task *types.Task) error {
	schema, err := SchemaFor(job.ValidationType)
	if err != nil {
		return err
	}

	required := 1
	if job.ValidationType == types.ValidationExtensiveCoverage {
		required = job.ExtensiveCoverage
	}

	siblings, err := l.taskRepo.GetByJobAndFile(dbc.Ctx, dbc.Tx, task.JobID, task.FileID)
	if err != nil {
		return err
	}

	// Per-page count of finished, independent annotator completions.
	completions := make(map[int]map[uuid.UUID]struct{})
	var finishedAnnotation []*types.Task
	for _, t := range siblings {
		if t.IsValidation || t.Status != types.TaskFinished {
			continue
		}
		finishedAnnotation = append(finishedAnnotation, t)
		for _, p := range t.Pages {
			if completions[p] == nil {
				completions[p] = make(map[uuid.UUID]struct{})
			}
			completions[p][t.UserID] = struct{}{}
		}
	}

	for _, t := range siblings {
		if !t.IsValidation || t.Status != types.TaskPending {
			continue
		}
		unblocked := true
		for _, p := range t.Pages {
			if len(completions[p]) < required {
				unblocked = false
				break
			}
		}
		if !unblocked {
			continue
		}
		t.Status = types.TaskReady
		if err := l.taskRepo.SetStatus(dbc.Ctx, dbc.Tx, t.ID, types.TaskReady); err != nil {
			return err
		}
		l.log.Info("validation task unblocked", "task_id", t.ID, "job_id", job.ID)

		if schema.RequiresConsensus() {
			result, err := l.consensus.Evaluate(dbc, job, t, finishedAnnotation)
			if err != nil {
				return err
			}
			if result.Reached {
				// Machine-adjudicated consensus: no human validation
				// step required.
				if err := l.forceFinishValidation(dbc, job, t); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (l *taskLifecycle) forceFinishValidation(dbc dbctx.Context, job *types.Job, task *types.Task) error {
	task.Status = types.TaskFinished
	if err := l.taskRepo.SetStatus(dbc.Ctx, dbc.Tx, task.ID, types.TaskFinished); err != nil {
		return err
	}
	outcome := &taskOutcome{validated: append([]int(nil), task.Pages...)}
	if err := l.updateFileProgress(dbc, task, outcome); err != nil {
		return err
	}
	if err := l.maybeFinishJob(dbc, job); err != nil {
		return err
	}
	return l.distributor.RecomputeOverallLoad(dbc, []uuid.UUID{task.UserID})
}

func (l *taskLifecycle) updateFileProgress(dbc dbctx.Context, task *types.Task, outcome *taskOutcome) error {
	locked, err := l.fileRepo.GetForUpdate(dbc.Ctx, dbc.Tx, task.JobID, task.FileID)
	if err != nil {
		return err
	}

	if task.IsValidation {
		locked.ValidatedPages = pagesUnion(locked.ValidatedPages, outcome.validated)
		locked.AnnotatedPages = pagesUnion(locked.AnnotatedPages, outcome.annotated)
	} else {
		locked.AnnotatedPages = pagesUnion(locked.AnnotatedPages, task.Pages)
	}

	switch {
	case len(locked.ValidatedPages) >= locked.PagesNumber:
		locked.Status = types.FileValidated
	case len(locked.AnnotatedPages) >= locked.PagesNumber:
		locked.Status = types.FileAnnotated
	}
	return l.fileRepo.Save(dbc.Ctx, dbc.Tx, locked)
}

func (l *taskLifecycle) maybeFinishJob(dbc dbctx.Context, job *types.Job) error {
	tasks, err := l.taskRepo.GetByJobID(dbc.Ctx, dbc.Tx, job.ID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.Status != types.TaskFinished {
			return nil
		}
	}

	if job.Status == types.JobFinished {
		return nil
	}
	if err := l.jobRepo.SetStatus(dbc.Ctx, dbc.Tx, job.ID, types.JobFinished); err != nil {
		return err
	}
	job.Status = types.JobFinished

	if job.CallbackURL != "" {
		// A failed upstream update must abort the whole transition so
		// local state never diverges from the collaborator's view.
		if err := l.jobStatus.UpdateJobStatus(dbc.Ctx, job.CallbackURL, types.JobFinished, job.Tenant, job.CallbackToken); err != nil {
			return err
		}
	}
	l.log.Info("job finished", "job_id", job.ID)
	return nil
}
