package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/clients/agreement"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*types.Task
	order []uuid.UUID
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]*types.Task)}
}

func (r *fakeTaskRepo) Create(ctx context.Context, tx *gorm.DB, tasks []*types.Task) ([]*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.CreatedAt = time.Now()
		r.tasks[t.ID] = t
		r.order = append(r.order, t.ID)
	}
	return tasks, nil
}

func (r *fakeTaskRepo) GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return t, nil
}

func (r *fakeTaskRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Task
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok && t.JobID == jobID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) GetByJobAndFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) ([]*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Task
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok && t.JobID == jobID && t.FileID == fileID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) GetOpenByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Task
	for _, id := range r.order {
		if t, ok := r.tasks[id]; ok && t.UserID == userID && t.IsOpen() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) SetStatus(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTaskRepo) SetStatusBulk(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID, status string) error {
	for _, id := range taskIDs {
		if err := r.SetStatus(ctx, tx, id, status); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeTaskRepo) Save(ctx context.Context, tx *gorm.DB, task *types.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range taskIDs {
		delete(r.tasks, id)
	}
	return nil
}

type fakeJobFileRepo struct {
	mu    sync.Mutex
	files []*types.JobFile
}

func newFakeJobFileRepo(files ...*types.JobFile) *fakeJobFileRepo {
	return &fakeJobFileRepo{files: files}
}

func (r *fakeJobFileRepo) Create(ctx context.Context, tx *gorm.DB, files []*types.JobFile) ([]*types.JobFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range files {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		r.files = append(r.files, f)
	}
	return files, nil
}

func (r *fakeJobFileRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.JobFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.JobFile
	for _, f := range r.files {
		if f.JobID == jobID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeJobFileRepo) GetByJobAndFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.JobFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.JobID == jobID && f.FileID == fileID {
			return f, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeJobFileRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.JobFile, error) {
	return r.GetByJobAndFile(ctx, tx, jobID, fileID)
}

func (r *fakeJobFileRepo) Save(ctx context.Context, tx *gorm.DB, file *types.JobFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.files {
		if f.JobID == file.JobID && f.FileID == file.FileID {
			r.files[i] = file
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*types.User
}

func newFakeUserRepo(users ...*types.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*types.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		r.users[u.ID] = u
	}
	return users, nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.User
	for _, id := range userIDs {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) EmailExists(ctx context.Context, tx *gorm.DB, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, tx, email)
	if err == gorm.ErrRecordNotFound {
		return false, nil
	}
	return err == nil, err
}

func (r *fakeUserRepo) SetOverallLoad(ctx context.Context, tx *gorm.DB, userID uuid.UUID, load int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the real repo: a gorm Update matching no rows is not an error.
	if u, ok := r.users[userID]; ok {
		u.OverallLoad = load
	}
	return nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.Job
}

func newFakeJobRepo(jobs ...*types.Job) *fakeJobRepo {
	r := &fakeJobRepo{jobs: make(map[uuid.UUID]*types.Job)}
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}
	return r
}

func (r *fakeJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	r.jobs[job.ID] = job
	return job, nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

func (r *fakeJobRepo) SetStatus(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	j.Status = status
	return nil
}

func (r *fakeJobRepo) ReplaceAnnotators(ctx context.Context, tx *gorm.DB, job *types.Job, users []*types.User) error {
	job.Annotators = users
	return nil
}

func (r *fakeJobRepo) ReplaceValidators(ctx context.Context, tx *gorm.DB, job *types.Job, users []*types.User) error {
	job.Validators = users
	return nil
}

type fakeRevisionRepo struct {
	mu   sync.Mutex
	revs []*types.Revision
	seq  int
}

func newFakeRevisionRepo() *fakeRevisionRepo {
	return &fakeRevisionRepo{}
}

func (r *fakeRevisionRepo) Create(ctx context.Context, tx *gorm.DB, rev *types.Revision) (*types.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rev.CreatedAt = time.Unix(int64(r.seq), 0)
	r.revs = append(r.revs, rev)
	return rev, nil
}

func (r *fakeRevisionRepo) GetByHash(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hash string) (*types.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rev := range r.revs {
		if rev.JobID == jobID && rev.FileID == fileID && rev.RevisionHash == hash {
			return rev, nil
		}
	}
	return nil, nil
}

func (r *fakeRevisionRepo) GetLatest(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.Revision
	for _, rev := range r.revs {
		if rev.JobID == jobID && rev.FileID == fileID {
			latest = rev
		}
	}
	return latest, nil
}

func (r *fakeRevisionRepo) ListByJobFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) ([]*types.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Revision
	for _, rev := range r.revs {
		if rev.JobID == jobID && rev.FileID == fileID {
			out = append(out, rev)
		}
	}
	return out, nil
}

func (r *fakeRevisionRepo) GetByTaskID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) ([]*types.Revision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Revision
	for _, rev := range r.revs {
		if rev.TaskID != nil && *rev.TaskID == taskID {
			out = append(out, rev)
		}
	}
	return out, nil
}

func (r *fakeRevisionRepo) ExistsByHashes(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hashes []string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make(map[string]bool)
	for _, rev := range r.revs {
		if rev.JobID == jobID && rev.FileID == fileID {
			found[rev.RevisionHash] = true
		}
	}
	for _, h := range hashes {
		if !found[h] {
			return false, nil
		}
	}
	return true, nil
}

type fakeRevisionLinkRepo struct {
	mu    sync.Mutex
	links []*types.RevisionLink
}

func newFakeRevisionLinkRepo() *fakeRevisionLinkRepo {
	return &fakeRevisionLinkRepo{}
}

func (r *fakeRevisionLinkRepo) Create(ctx context.Context, tx *gorm.DB, links []*types.RevisionLink) ([]*types.RevisionLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range links {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		r.links = append(r.links, l)
	}
	return links, nil
}

func (r *fakeRevisionLinkRepo) GetByRevision(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hash string) ([]*types.RevisionLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.RevisionLink
	for _, l := range r.links {
		if l.JobID == jobID && l.FileID == fileID &&
			(l.OriginalRevision == hash || l.LinkedRevision == hash) {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeAgreementScoreRepo struct {
	mu     sync.Mutex
	scores []*types.AgreementScore
}

func newFakeAgreementScoreRepo() *fakeAgreementScoreRepo {
	return &fakeAgreementScoreRepo{}
}

func (r *fakeAgreementScoreRepo) Create(ctx context.Context, tx *gorm.DB, scores []*types.AgreementScore) ([]*types.AgreementScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range scores {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		r.scores = append(r.scores, s)
	}
	return scores, nil
}

func (r *fakeAgreementScoreRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.AgreementScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.AgreementScore
	for _, s := range r.scores {
		if s.JobID == jobID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeAgreementScoreRepo) GetByTaskIDs(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID) ([]*types.AgreementScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[uuid.UUID]bool, len(taskIDs))
	for _, id := range taskIDs {
		ids[id] = true
	}
	var out []*types.AgreementScore
	for _, s := range r.scores {
		if ids[s.TaskFrom] || ids[s.TaskTo] {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return data, nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeObjectStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type fakeScorer struct {
	mu     sync.Mutex
	metric float64
	calls  [][]agreement.TaskPair
}

func (f *fakeScorer) Score(ctx context.Context, jobID uuid.UUID, pairs []agreement.TaskPair) ([]agreement.PairScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pairs)
	out := make([]agreement.PairScore, len(pairs))
	for i, p := range pairs {
		out[i] = agreement.PairScore{TaskFrom: p.TaskFrom, TaskTo: p.TaskTo, Metric: f.metric}
	}
	return out, nil
}

type fakeJobStatusClient struct {
	mu       sync.Mutex
	statuses []string
	err      error
}

func (f *fakeJobStatusClient) UpdateJobStatus(ctx context.Context, callbackURL, status, tenant, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statuses = append(f.statuses, status)
	return nil
}
