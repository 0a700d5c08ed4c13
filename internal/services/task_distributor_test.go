package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/kavelin/labelforge-backend/internal/config"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/types"
)

func testFile(jobID uuid.UUID, pages int) *types.JobFile {
	return &types.JobFile{
		ID:          uuid.New(),
		JobID:       jobID,
		FileID:      uuid.New(),
		PagesNumber: pages,
		Status:      types.FilePending,
	}
}

func pageOwners(blueprints []taskBlueprint) map[int][]uuid.UUID {
	owners := make(map[int][]uuid.UUID)
	for _, bp := range blueprints {
		for _, p := range bp.Pages {
			owners[p] = append(owners[p], bp.UserID)
		}
	}
	return owners
}

func TestPlanAssignmentsWholeFilePreferred(t *testing.T) {
	jobID := uuid.New()
	big := testFile(jobID, 8)
	small := testFile(jobID, 3)
	u1 := testUser(100, 0)
	u2 := testUser(100, 0)

	files := []filePages{
		{File: small, Pages: small.AllPages()},
		{File: big, Pages: big.AllPages()},
	}
	plans := []UserPlan{
		{User: u1, PagesNumber: 8},
		{User: u2, PagesNumber: 3},
	}

	blueprints := planAssignments(files, plans, 1, nil)

	perUserFiles := make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, bp := range blueprints {
		if perUserFiles[bp.UserID] == nil {
			perUserFiles[bp.UserID] = make(map[uuid.UUID]bool)
		}
		perUserFiles[bp.UserID][bp.FileID] = true
	}
	// Each file fits one budget whole, so nobody gets a slice of a file
	// someone else also holds.
	if !perUserFiles[u1.ID][big.FileID] || len(perUserFiles[u1.ID]) != 1 {
		t.Fatalf("user 1 should hold exactly the big file, got %v", perUserFiles[u1.ID])
	}
	if !perUserFiles[u2.ID][small.FileID] || len(perUserFiles[u2.ID]) != 1 {
		t.Fatalf("user 2 should hold exactly the small file, got %v", perUserFiles[u2.ID])
	}
}

func TestPlanAssignmentsSlicesOversizedFile(t *testing.T) {
	jobID := uuid.New()
	file := testFile(jobID, 10)
	u1 := testUser(100, 0)
	u2 := testUser(100, 0)

	files := []filePages{{File: file, Pages: file.AllPages()}}
	plans := []UserPlan{
		{User: u1, PagesNumber: 6},
		{User: u2, PagesNumber: 4},
	}

	blueprints := planAssignments(files, plans, 1, nil)

	covered := make(map[int]int)
	for _, bp := range blueprints {
		for _, p := range bp.Pages {
			covered[p]++
		}
	}
	for p := 1; p <= 10; p++ {
		if covered[p] != 1 {
			t.Fatalf("page %d covered %d times, want 1", p, covered[p])
		}
	}
}

func TestPlanAssignmentsCoverageTwoDistinctUsers(t *testing.T) {
	jobID := uuid.New()
	file := testFile(jobID, 6)
	users := []*types.User{testUser(100, 0), testUser(100, 0), testUser(100, 0)}

	files := []filePages{{File: file, Pages: file.AllPages()}}
	plans := []UserPlan{
		{User: users[0], PagesNumber: 4},
		{User: users[1], PagesNumber: 4},
		{User: users[2], PagesNumber: 4},
	}

	blueprints := planAssignments(files, plans, 2, nil)

	for p, owners := range pageOwners(blueprints) {
		if len(owners) != 2 {
			t.Fatalf("page %d has %d owners, want 2", p, len(owners))
		}
		if owners[0] == owners[1] {
			t.Fatalf("page %d assigned twice to user %s", p, owners[0])
		}
	}
}

func TestPlanAssignmentsExclusionRespected(t *testing.T) {
	jobID := uuid.New()
	file := testFile(jobID, 4)
	annotator := testUser(100, 0)
	other := testUser(100, 0)

	files := []filePages{{File: file, Pages: file.AllPages()}}
	plans := []UserPlan{
		{User: annotator, PagesNumber: 4},
		{User: other, PagesNumber: 4},
	}
	exclude := func(fileID uuid.UUID, page int, userID uuid.UUID) bool {
		return userID == annotator.ID
	}

	blueprints := planAssignments(files, plans, 1, exclude)

	for p, owners := range pageOwners(blueprints) {
		for _, o := range owners {
			if o == annotator.ID {
				t.Fatalf("page %d went to its excluded annotator", p)
			}
		}
	}
	if got := len(pageOwners(blueprints)); got != 4 {
		t.Fatalf("covered %d pages, want 4", got)
	}
}

func TestDistributeChunksAtMaxPages(t *testing.T) {
	jobID := uuid.New()
	job := &types.Job{ID: jobID, ValidationType: types.ValidationCross, ExtensiveCoverage: 1, Status: types.JobPending}
	file := testFile(jobID, 25)
	user := testUser(100, 0)

	taskRepo := newFakeTaskRepo()
	fileRepo := newFakeJobFileRepo(file)
	userRepo := newFakeUserRepo(user)

	cfg := config.Defaults()
	cfg.MaxPages = 10
	d := NewTaskDistributor(testLogger(), cfg, NewLoadBalancer(testLogger()), taskRepo, fileRepo, userRepo)

	dbc := dbctx.Context{Ctx: context.Background()}
	created, err := d.Distribute(dbc, job, []*types.JobFile{file}, []*types.User{user}, false, types.TaskPending)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("created %d tasks, want 3 chunks of a 25-page file", len(created))
	}
	for _, task := range created {
		if len(task.Pages) > 10 {
			t.Fatalf("task holds %d pages, exceeds the chunk limit", len(task.Pages))
		}
	}

	updated, _ := fileRepo.GetByJobAndFile(dbc.Ctx, nil, jobID, file.FileID)
	if len(updated.DistributedAnnotatingPages) != 25 {
		t.Fatalf("distributed accounting covers %d pages, want 25", len(updated.DistributedAnnotatingPages))
	}
	if user.OverallLoad != 25 {
		t.Fatalf("overall load = %d, want 25", user.OverallLoad)
	}
}

func TestDistributeSkipsAlreadyCoveredPages(t *testing.T) {
	jobID := uuid.New()
	job := &types.Job{ID: jobID, ValidationType: types.ValidationCross, ExtensiveCoverage: 1}
	file := testFile(jobID, 10)
	file.DistributedAnnotatingPages = []int{1, 2, 3, 4, 5}
	user := testUser(100, 0)

	taskRepo := newFakeTaskRepo()
	fileRepo := newFakeJobFileRepo(file)
	userRepo := newFakeUserRepo(user)

	d := NewTaskDistributor(testLogger(), config.Defaults(), NewLoadBalancer(testLogger()), taskRepo, fileRepo, userRepo)

	dbc := dbctx.Context{Ctx: context.Background()}
	created, err := d.Distribute(dbc, job, []*types.JobFile{file}, []*types.User{user}, false, types.TaskPending)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}

	var got []int
	for _, task := range created {
		got = pagesUnion(got, task.Pages)
	}
	want := []int{6, 7, 8, 9, 10}
	if !pagesEqual(got, want) {
		t.Fatalf("distributed pages = %v, want %v", got, want)
	}
}

func TestDistributeEmptyUserPoolIsNoop(t *testing.T) {
	jobID := uuid.New()
	job := &types.Job{ID: jobID, ValidationType: types.ValidationCross}
	file := testFile(jobID, 5)

	d := NewTaskDistributor(testLogger(), config.Defaults(), NewLoadBalancer(testLogger()),
		newFakeTaskRepo(), newFakeJobFileRepo(file), newFakeUserRepo())

	created, err := d.Distribute(dbctx.Context{Ctx: context.Background()}, job, []*types.JobFile{file}, nil, false, types.TaskPending)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no tasks, got %d", len(created))
	}
}

func TestRedistributePreservesStartedTasks(t *testing.T) {
	jobID := uuid.New()
	u1 := testUser(100, 0)
	u2 := testUser(100, 0)
	job := &types.Job{
		ID:                jobID,
		ValidationType:    types.ValidationCross,
		ExtensiveCoverage: 1,
		Status:            types.JobInProgress,
		Annotators:        []*types.User{u1, u2},
	}
	file := testFile(jobID, 10)
	file.DistributedAnnotatingPages = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	taskRepo := newFakeTaskRepo()
	fileRepo := newFakeJobFileRepo(file)
	userRepo := newFakeUserRepo(u1, u2)

	dbc := dbctx.Context{Ctx: context.Background()}
	seed := []*types.Task{
		{JobID: jobID, FileID: file.FileID, UserID: u1.ID, Pages: []int{1, 2, 3, 4, 5}, Status: types.TaskInProgress},
		{JobID: jobID, FileID: file.FileID, UserID: u1.ID, Pages: []int{6, 7, 8, 9, 10}, Status: types.TaskReady},
	}
	if _, err := taskRepo.Create(dbc.Ctx, nil, seed); err != nil {
		t.Fatalf("seed tasks: %v", err)
	}
	started := seed[0].ID

	d := NewTaskDistributor(testLogger(), config.Defaults(), NewLoadBalancer(testLogger()), taskRepo, fileRepo, userRepo)
	if _, err := d.Redistribute(dbc, job); err != nil {
		t.Fatalf("redistribute: %v", err)
	}

	if _, err := taskRepo.GetByID(dbc.Ctx, nil, started); err != nil {
		t.Fatalf("started task deleted by redistribution: %v", err)
	}
	if _, err := taskRepo.GetByID(dbc.Ctx, nil, seed[1].ID); err == nil {
		t.Fatalf("unstarted task survived redistribution")
	}

	// Every page is covered again, with the started task's pages intact.
	all, _ := taskRepo.GetByJobID(dbc.Ctx, nil, jobID)
	var annotating []int
	for _, task := range all {
		if !task.IsValidation {
			annotating = pagesUnion(annotating, task.Pages)
		}
	}
	if !pagesEqual(annotating, file.AllPages()) {
		t.Fatalf("annotation coverage after redistribute = %v", annotating)
	}
}

func TestSplitChunks(t *testing.T) {
	pages := []int{1, 2, 3, 4, 5, 6, 7}
	chunks := splitChunks(pages, 3)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 3 || len(chunks[1]) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("unexpected chunk sizes: %v", chunks)
	}

	if got := splitChunks(pages, 0); len(got) != 1 || len(got[0]) != 7 {
		t.Fatalf("no limit should mean one chunk, got %v", got)
	}
}
