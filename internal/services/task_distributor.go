package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/config"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// TaskDistributor turns a load plan into concrete page-range tasks. It owns
// the distributed_* page accounting on JobFile rows and the overall_load
// recompute on users; no other component writes those fields.
type TaskDistributor interface {
	// Distribute plans tasks of one kind over the files' unassigned pages.
	// Pages already covered by open tasks of the same kind are never
	// re-offered. A no-op (not an error) when users is empty.
	Distribute(dbc dbctx.Context, job *types.Job, files []*types.JobFile, users []*types.User, isValidation bool, status string) ([]*types.Task, error)
	// DistributePages plans tasks over an explicit page subset of one file,
	// used when failed pages spawn follow-up work.
	DistributePages(dbc dbctx.Context, job *types.Job, file *types.JobFile, pages []int, users []*types.User, isValidation bool, status string) ([]*types.Task, error)
	// Redistribute reacts to job edits: unstarted tasks are deleted and
	// their pages returned to the pool, started and finished tasks are
	// preserved, then the freed pages are re-planned.
	Redistribute(dbc dbctx.Context, job *types.Job) ([]*types.Task, error)
	// RecomputeOverallLoad refreshes the derived load of the given users
	// from their non-finished tasks.
	RecomputeOverallLoad(dbc dbctx.Context, userIDs []uuid.UUID) error
}

type taskDistributor struct {
	log      *logger.Logger
	cfg      config.Settings
	balancer LoadBalancer
	taskRepo repos.TaskRepo
	fileRepo repos.JobFileRepo
	userRepo repos.UserRepo
}

func NewTaskDistributor(
	baseLog *logger.Logger,
	cfg config.Settings,
	balancer LoadBalancer,
	taskRepo repos.TaskRepo,
	fileRepo repos.JobFileRepo,
	userRepo repos.UserRepo,
) TaskDistributor {
	return &taskDistributor{
		log:      baseLog.With("service", "TaskDistributor"),
		cfg:      cfg,
		balancer: balancer,
		taskRepo: taskRepo,
		fileRepo: fileRepo,
		userRepo: userRepo,
	}
}

type filePages struct {
	File  *types.JobFile
	Pages []int
}

type taskBlueprint struct {
	FileID uuid.UUID
	UserID uuid.UUID
	Pages  []int
}

func (d *taskDistributor) Distribute(dbc dbctx.Context, job *types.Job, files []*types.JobFile, users []*types.User, isValidation bool, status string) ([]*types.Task, error) {
	if len(users) == 0 {
		// Role validation happened at the job level; an empty pool here
		// is a no-op by contract.
		d.log.Debug("no users for distribution", "job_id", job.ID, "is_validation", isValidation)
		return nil, nil
	}

	coverage := 1
	if !isValidation && job.ValidationType == types.ValidationExtensiveCoverage {
		coverage = job.ExtensiveCoverage
	}

	var residual []filePages
	totalPages := 0
	for _, f := range files {
		locked, err := d.fileRepo.GetForUpdate(dbc.Ctx, dbc.Tx, f.JobID, f.FileID)
		if err != nil {
			return nil, fmt.Errorf("lock file %s: %w", f.FileID, err)
		}
		unassigned := pagesDiff(locked.AllPages(), distributedPages(locked, isValidation))
		if len(unassigned) == 0 {
			continue
		}
		residual = append(residual, filePages{File: locked, Pages: unassigned})
		totalPages += len(unassigned)
	}
	if totalPages == 0 {
		return nil, nil
	}

	plans := d.balancer.Plan(totalPages, users, coverage)

	var exclude excludeFunc
	if isValidation {
		ex, err := d.annotatorExclusions(dbc, job, residual)
		if err != nil {
			return nil, err
		}
		exclude = ex
	}

	blueprints := planAssignments(residual, plans, coverage, exclude)
	return d.persist(dbc, job, residual, blueprints, isValidation, status)
}

func (d *taskDistributor) DistributePages(dbc dbctx.Context, job *types.Job, file *types.JobFile, pages []int, users []*types.User, isValidation bool, status string) ([]*types.Task, error) {
	if len(users) == 0 || len(pages) == 0 {
		return nil, nil
	}

	locked, err := d.fileRepo.GetForUpdate(dbc.Ctx, dbc.Tx, file.JobID, file.FileID)
	if err != nil {
		return nil, fmt.Errorf("lock file %s: %w", file.FileID, err)
	}
	residual := []filePages{{File: locked, Pages: append([]int(nil), pages...)}}

	plans := d.balancer.Plan(len(pages), users, 1)
	blueprints := planAssignments(residual, plans, 1, nil)
	return d.persist(dbc, job, residual, blueprints, isValidation, status)
}

func (d *taskDistributor) persist(dbc dbctx.Context, job *types.Job, residual []filePages, blueprints []taskBlueprint, isValidation bool, status string) ([]*types.Task, error) {
	if len(blueprints) == 0 {
		return nil, nil
	}

	deadline := time.Now().AddDate(0, 0, d.cfg.TaskDeadlineDays)
	if job.Deadline != nil {
		deadline = *job.Deadline
	}

	tasks := make([]*types.Task, 0, len(blueprints))
	touched := make(map[uuid.UUID]struct{})
	for _, bp := range blueprints {
		for _, chunk := range splitChunks(bp.Pages, d.cfg.MaxPages) {
			tasks = append(tasks, &types.Task{
				JobID:        job.ID,
				FileID:       bp.FileID,
				UserID:       bp.UserID,
				Pages:        append([]int(nil), chunk...),
				IsValidation: isValidation,
				Status:       status,
				Deadline:     &deadline,
			})
		}
		touched[bp.UserID] = struct{}{}
	}

	created, err := d.taskRepo.Create(dbc.Ctx, dbc.Tx, tasks)
	if err != nil {
		return nil, fmt.Errorf("create tasks: %w", err)
	}

	// Fold the newly covered pages back into the file accounting, still
	// under the row locks taken above.
	for _, fp := range residual {
		var covered []int
		for _, bp := range blueprints {
			if bp.FileID == fp.File.FileID {
				covered = pagesUnion(covered, bp.Pages)
			}
		}
		if len(covered) == 0 {
			continue
		}
		if isValidation {
			fp.File.DistributedValidatingPages = pagesUnion(fp.File.DistributedValidatingPages, covered)
		} else {
			fp.File.DistributedAnnotatingPages = pagesUnion(fp.File.DistributedAnnotatingPages, covered)
		}
		if err := d.fileRepo.Save(dbc.Ctx, dbc.Tx, fp.File); err != nil {
			return nil, fmt.Errorf("update file accounting: %w", err)
		}
	}

	userIDs := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		userIDs = append(userIDs, id)
	}
	if err := d.RecomputeOverallLoad(dbc, userIDs); err != nil {
		return nil, err
	}
	return created, nil
}

func (d *taskDistributor) Redistribute(dbc dbctx.Context, job *types.Job) ([]*types.Task, error) {
	all, err := d.taskRepo.GetByJobID(dbc.Ctx, dbc.Tx, job.ID)
	if err != nil {
		return nil, err
	}

	touched := make(map[uuid.UUID]struct{})
	var deleteIDs []uuid.UUID
	survivors := make([]*types.Task, 0, len(all))
	for _, t := range all {
		if t.IsStarted() {
			survivors = append(survivors, t)
			continue
		}
		deleteIDs = append(deleteIDs, t.ID)
		touched[t.UserID] = struct{}{}
	}
	if err := d.taskRepo.DeleteByIDs(dbc.Ctx, dbc.Tx, deleteIDs); err != nil {
		return nil, fmt.Errorf("delete unstarted tasks: %w", err)
	}

	// Rebuild distributed_* from the surviving tasks so the freed pages
	// rejoin the unassigned pool.
	files, err := d.fileRepo.GetByJobID(dbc.Ctx, dbc.Tx, job.ID)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		locked, err := d.fileRepo.GetForUpdate(dbc.Ctx, dbc.Tx, f.JobID, f.FileID)
		if err != nil {
			return nil, err
		}
		var ann, val []int
		for _, t := range survivors {
			if t.FileID != locked.FileID {
				continue
			}
			if t.IsValidation {
				val = pagesUnion(val, t.Pages)
			} else {
				ann = pagesUnion(ann, t.Pages)
			}
		}
		locked.DistributedAnnotatingPages = ann
		locked.DistributedValidatingPages = val
		if err := d.fileRepo.Save(dbc.Ctx, dbc.Tx, locked); err != nil {
			return nil, err
		}
	}

	schema, err := SchemaFor(job.ValidationType)
	if err != nil {
		return nil, err
	}

	annotationStatus := types.TaskPending
	validationStatus := types.TaskPending
	if job.Status == types.JobInProgress {
		if schema.HasAnnotationPhase() {
			annotationStatus = types.TaskReady
		} else {
			validationStatus = types.TaskReady
		}
	}

	var created []*types.Task
	if schema.HasAnnotationPhase() {
		tasks, err := d.Distribute(dbc, job, files, job.Annotators, false, annotationStatus)
		if err != nil {
			return nil, err
		}
		created = append(created, tasks...)
	}
	validators := job.Validators
	if schema.ValidatorsFromAnnotators() {
		validators = job.Annotators
	}
	tasks, err := d.Distribute(dbc, job, files, validators, true, validationStatus)
	if err != nil {
		return nil, err
	}
	created = append(created, tasks...)

	for _, t := range created {
		touched[t.UserID] = struct{}{}
	}
	userIDs := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		userIDs = append(userIDs, id)
	}
	if err := d.RecomputeOverallLoad(dbc, userIDs); err != nil {
		return nil, err
	}
	return created, nil
}

func (d *taskDistributor) RecomputeOverallLoad(dbc dbctx.Context, userIDs []uuid.UUID) error {
	// Full recompute from the user's open tasks on every mutation.
	// Incremental updates risk drift; this stays correct by construction.
	for _, id := range userIDs {
		open, err := d.taskRepo.GetOpenByUser(dbc.Ctx, dbc.Tx, id)
		if err != nil {
			return fmt.Errorf("load open tasks for %s: %w", id, err)
		}
		load := 0
		for _, t := range open {
			load += len(t.Pages)
		}
		if err := d.userRepo.SetOverallLoad(dbc.Ctx, dbc.Tx, id, load); err != nil {
			return fmt.Errorf("set overall load for %s: %w", id, err)
		}
	}
	return nil
}

// annotatorExclusions keeps a user from validating pages they annotated
// under cross validation.
func (d *taskDistributor) annotatorExclusions(dbc dbctx.Context, job *types.Job, residual []filePages) (excludeFunc, error) {
	schema, err := SchemaFor(job.ValidationType)
	if err != nil {
		return nil, err
	}
	if !schema.ValidatorsFromAnnotators() {
		return nil, nil
	}

	annotated := make(map[uuid.UUID]map[int]map[uuid.UUID]struct{})
	for _, fp := range residual {
		tasks, err := d.taskRepo.GetByJobAndFile(dbc.Ctx, dbc.Tx, job.ID, fp.File.FileID)
		if err != nil {
			return nil, err
		}
		byPage := make(map[int]map[uuid.UUID]struct{})
		for _, t := range tasks {
			if t.IsValidation {
				continue
			}
			for _, p := range t.Pages {
				if byPage[p] == nil {
					byPage[p] = make(map[uuid.UUID]struct{})
				}
				byPage[p][t.UserID] = struct{}{}
			}
		}
		annotated[fp.File.FileID] = byPage
	}

	return func(fileID uuid.UUID, page int, userID uuid.UUID) bool {
		byPage, ok := annotated[fileID]
		if !ok {
			return false
		}
		_, excluded := byPage[page][userID]
		return excluded
	}, nil
}

type excludeFunc func(fileID uuid.UUID, page int, userID uuid.UUID) bool

func distributedPages(f *types.JobFile, isValidation bool) []int {
	if isValidation {
		return f.DistributedValidatingPages
	}
	return f.DistributedAnnotatingPages
}

// planAssignments maps planned page budgets to concrete (user, file, pages)
// blueprints. With coverage 1 and no exclusions it prefers the whole-file
// strategy, slicing a file across users only when no single budget covers
// it. Otherwise it assigns page by page, always picking the coverage
// distinct users with the most remaining budget.
func planAssignments(files []filePages, plans []UserPlan, coverage int, exclude excludeFunc) []taskBlueprint {
	budgets := make([]int, len(plans))
	for i, p := range plans {
		budgets[i] = p.PagesNumber
	}

	acc := make(map[uuid.UUID]map[uuid.UUID][]int) // user -> file -> pages

	add := func(userIdx int, fileID uuid.UUID, pages ...int) {
		uid := plans[userIdx].User.ID
		if acc[uid] == nil {
			acc[uid] = make(map[uuid.UUID][]int)
		}
		acc[uid][fileID] = append(acc[uid][fileID], pages...)
	}

	if coverage == 1 && exclude == nil {
		// Whole-file pass first, biggest files first so they still fit.
		ordered := make([]filePages, len(files))
		copy(ordered, files)
		sort.SliceStable(ordered, func(a, b int) bool {
			return len(ordered[a].Pages) > len(ordered[b].Pages)
		})
		var partial []filePages
		for _, fp := range ordered {
			best := -1
			for i := range plans {
				if budgets[i] >= len(fp.Pages) && (best == -1 || budgets[i] > budgets[best]) {
					best = i
				}
			}
			if best >= 0 {
				add(best, fp.File.FileID, fp.Pages...)
				budgets[best] -= len(fp.Pages)
			} else {
				partial = append(partial, fp)
			}
		}
		// Partial-file pass: slice remaining files in page order across
		// the users with budget left.
		for _, fp := range partial {
			rest := fp.Pages
			for len(rest) > 0 {
				best := -1
				for i := range plans {
					if budgets[i] > 0 && (best == -1 || budgets[i] > budgets[best]) {
						best = i
					}
				}
				if best == -1 {
					break
				}
				n := budgets[best]
				if n > len(rest) {
					n = len(rest)
				}
				add(best, fp.File.FileID, rest[:n]...)
				budgets[best] -= n
				rest = rest[n:]
			}
		}
	} else {
		for _, fp := range files {
			for _, page := range fp.Pages {
				picked := make(map[int]struct{}, coverage)
				for c := 0; c < coverage; c++ {
					best := -1
					for i := range plans {
						if _, dup := picked[i]; dup {
							continue
						}
						if exclude != nil && exclude(fp.File.FileID, page, plans[i].User.ID) {
							continue
						}
						if best == -1 ||
							budgets[i] > budgets[best] {
							best = i
						}
					}
					if best == -1 {
						// Fewer eligible users than coverage: best effort.
						break
					}
					picked[best] = struct{}{}
					add(best, fp.File.FileID, page)
					budgets[best]--
				}
			}
		}
	}

	var blueprints []taskBlueprint
	for i := range plans {
		uid := plans[i].User.ID
		byFile, ok := acc[uid]
		if !ok {
			continue
		}
		fileIDs := make([]uuid.UUID, 0, len(byFile))
		for fid := range byFile {
			fileIDs = append(fileIDs, fid)
		}
		sort.Slice(fileIDs, func(a, b int) bool {
			return fileIDs[a].String() < fileIDs[b].String()
		})
		for _, fid := range fileIDs {
			pages := byFile[fid]
			sort.Ints(pages)
			blueprints = append(blueprints, taskBlueprint{FileID: fid, UserID: uid, Pages: pages})
		}
	}
	return blueprints
}
