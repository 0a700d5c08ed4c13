package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/config"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type taskServiceFixture struct {
	svc      TaskService
	taskRepo *fakeTaskRepo
	fileRepo *fakeJobFileRepo
	file     *types.JobFile
	jobID    uuid.UUID
}

func newTaskServiceFixture(pages int, users ...*types.User) *taskServiceFixture {
	jobID := uuid.New()
	file := testFile(jobID, pages)
	taskRepo := newFakeTaskRepo()
	fileRepo := newFakeJobFileRepo(file)
	userRepo := newFakeUserRepo(users...)
	distributor := NewTaskDistributor(testLogger(), config.Defaults(), NewLoadBalancer(testLogger()), taskRepo, fileRepo, userRepo)
	return &taskServiceFixture{
		svc:      NewTaskService(testLogger(), taskRepo, fileRepo, distributor),
		taskRepo: taskRepo,
		fileRepo: fileRepo,
		file:     file,
		jobID:    jobID,
	}
}

func (f *taskServiceFixture) seedTask(t *testing.T, user *types.User, pages []int, status string, isValidation bool) *types.Task {
	t.Helper()
	task := &types.Task{
		JobID:        f.jobID,
		FileID:       f.file.FileID,
		UserID:       user.ID,
		Pages:        pages,
		IsValidation: isValidation,
		Status:       status,
	}
	if _, err := f.taskRepo.Create(context.Background(), nil, []*types.Task{task}); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

func (f *taskServiceFixture) annotatingPages(t *testing.T) []int {
	t.Helper()
	file, err := f.fileRepo.GetByJobAndFile(context.Background(), nil, f.jobID, f.file.FileID)
	if err != nil {
		t.Fatalf("reload file: %v", err)
	}
	return file.DistributedAnnotatingPages
}

func TestEditKeepsSharedPagesAccounted(t *testing.T) {
	u1 := testUser(50, 0)
	u2 := testUser(50, 0)
	f := newTaskServiceFixture(10, u1, u2)

	// Two open annotation tasks cover the same pages, as under extensive
	// coverage.
	task1 := f.seedTask(t, u1, []int{1, 2}, types.TaskPending, false)
	f.seedTask(t, u2, []int{1, 2}, types.TaskPending, false)
	f.file.DistributedAnnotatingPages = []int{1, 2}

	dbc := dbctx.Context{Ctx: context.Background()}
	edited, err := f.svc.Edit(dbc, task1.ID, []int{3}, nil)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !pagesEqual(edited.Pages, []int{3}) {
		t.Fatalf("edited task pages: want=[3] got=%v", edited.Pages)
	}

	// Pages 1 and 2 are still held by the other user's open task and must
	// stay in the distributed set next to the edited task's page 3.
	if got := f.annotatingPages(t); !pagesEqual(got, []int{1, 2, 3}) {
		t.Fatalf("distributed annotating pages: want=[1 2 3] got=%v", got)
	}
}

func TestEditRejectsPageOutsideFile(t *testing.T) {
	u1 := testUser(50, 0)
	f := newTaskServiceFixture(5, u1)
	task := f.seedTask(t, u1, []int{1, 2}, types.TaskPending, false)
	f.file.DistributedAnnotatingPages = []int{1, 2}

	dbc := dbctx.Context{Ctx: context.Background()}
	_, err := f.svc.Edit(dbc, task.ID, []int{6}, nil)
	var fieldErr *apperr.FieldConstraintError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("want FieldConstraintError, got %v", err)
	}

	stored, err := f.taskRepo.GetByID(context.Background(), nil, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if !pagesEqual(stored.Pages, []int{1, 2}) {
		t.Fatalf("rejected edit must not change pages, got %v", stored.Pages)
	}
	if got := f.annotatingPages(t); !pagesEqual(got, []int{1, 2}) {
		t.Fatalf("rejected edit must not change accounting, got %v", got)
	}
}

func TestEditRejectsOverlapWithUsersOpenTask(t *testing.T) {
	u1 := testUser(50, 0)
	f := newTaskServiceFixture(10, u1)
	task := f.seedTask(t, u1, []int{1, 2}, types.TaskPending, false)
	f.seedTask(t, u1, []int{3, 4}, types.TaskReady, false)
	f.file.DistributedAnnotatingPages = []int{1, 2, 3, 4}

	dbc := dbctx.Context{Ctx: context.Background()}
	_, err := f.svc.Edit(dbc, task.ID, []int{4, 5}, nil)
	var fieldErr *apperr.FieldConstraintError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("want FieldConstraintError, got %v", err)
	}
	if got := f.annotatingPages(t); !pagesEqual(got, []int{1, 2, 3, 4}) {
		t.Fatalf("rejected edit must not change accounting, got %v", got)
	}
}

func TestEditAllowsPagesOfFinishedTask(t *testing.T) {
	u1 := testUser(50, 0)
	f := newTaskServiceFixture(10, u1)
	task := f.seedTask(t, u1, []int{1, 2}, types.TaskPending, false)
	f.seedTask(t, u1, []int{3, 4}, types.TaskFinished, false)
	f.file.DistributedAnnotatingPages = []int{1, 2, 3, 4}

	// A finished task no longer blocks its pages for the same user, but its
	// pages stay in the distributed set.
	dbc := dbctx.Context{Ctx: context.Background()}
	edited, err := f.svc.Edit(dbc, task.ID, []int{4, 5}, nil)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !pagesEqual(edited.Pages, []int{4, 5}) {
		t.Fatalf("edited task pages: want=[4 5] got=%v", edited.Pages)
	}
	if got := f.annotatingPages(t); !pagesEqual(got, []int{3, 4, 5}) {
		t.Fatalf("distributed annotating pages: want=[3 4 5] got=%v", got)
	}
}

func TestEditStartedTaskRejected(t *testing.T) {
	u1 := testUser(50, 0)
	f := newTaskServiceFixture(10, u1)
	task := f.seedTask(t, u1, []int{1, 2}, types.TaskInProgress, false)

	dbc := dbctx.Context{Ctx: context.Background()}
	if _, err := f.svc.Edit(dbc, task.ID, []int{3}, nil); !errors.Is(err, apperr.ErrTaskNotEditable) {
		t.Fatalf("want ErrTaskNotEditable, got %v", err)
	}
}
