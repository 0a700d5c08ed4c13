package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/kavelin/labelforge-backend/internal/apperr"
	"github.com/kavelin/labelforge-backend/internal/clients/gcp"
	"github.com/kavelin/labelforge-backend/internal/clients/redis"
	"github.com/kavelin/labelforge-backend/internal/dbctx"
	"github.com/kavelin/labelforge-backend/internal/hashing"
	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/repos"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// PageSubmission is one page's annotation content within a submission.
type PageSubmission struct {
	PageNum int             `json:"page_num"`
	Content json.RawMessage `json:"content"`
}

// LinkSubmission declares a labeled similarity link to an existing revision.
type LinkSubmission struct {
	RevisionHash string `json:"revision_hash"`
	Label        string `json:"label"`
}

// SubmitInput carries one annotation submission against a (job, file).
type SubmitInput struct {
	JobID            uuid.UUID
	FileID           uuid.UUID
	BaseRevisionHash string
	Pages            []PageSubmission
	Validated        []int
	Failed           []int
	Categories       []string
	UserID           *uuid.UUID
	PipelineID       *int64
	TaskID           *uuid.UUID
	Links            []LinkSubmission
}

// RevisionStore resolves concurrent submissions of page annotations into a
// consistent, content-addressed history.
type RevisionStore interface {
	// Submit persists a new revision. Stale bases are merged against the
	// current latest revision; byte-identical resubmissions collapse to
	// the already-stored revision and return apperr.ErrDuplicateAnnotation
	// with no write, upload or manifest rewrite.
	Submit(dbc dbctx.Context, in SubmitInput) (*types.Revision, error)
	// GetManifest returns the reconciled current state of a file.
	GetManifest(dbc dbctx.Context, jobID, fileID uuid.UUID) (*types.Manifest, error)
	// BuildManifest replays the revision history in creation order and
	// refreshes the cached/uploaded manifest.
	BuildManifest(dbc dbctx.Context, jobID, fileID uuid.UUID) (*types.Manifest, error)
}

type revisionStore struct {
	log      *logger.Logger
	revRepo  repos.RevisionRepo
	linkRepo repos.RevisionLinkRepo
	store    gcp.ObjectStore
	cache    redis.ManifestCache
}

func NewRevisionStore(
	baseLog *logger.Logger,
	revRepo repos.RevisionRepo,
	linkRepo repos.RevisionLinkRepo,
	store gcp.ObjectStore,
	cache redis.ManifestCache,
) RevisionStore {
	return &revisionStore{
		log:      baseLog.With("service", "RevisionStore"),
		revRepo:  revRepo,
		linkRepo: linkRepo,
		store:    store,
		cache:    cache,
	}
}

func pageBlobKey(jobID, fileID uuid.UUID, contentHash string) string {
	return fmt.Sprintf("annotation/%s/%s/pages/%s.json", jobID, fileID, contentHash)
}

func manifestBlobKey(jobID, fileID uuid.UUID) string {
	return fmt.Sprintf("annotation/%s/%s/manifest.json", jobID, fileID)
}

func (s *revisionStore) Submit(dbc dbctx.Context, in SubmitInput) (*types.Revision, error) {
	if (in.UserID == nil) == (in.PipelineID == nil) {
		return nil, apperr.NewFieldConstraint("author", "a revision is authored by exactly one of user or pipeline")
	}

	latest, err := s.revRepo.GetLatest(dbc.Ctx, dbc.Tx, in.JobID, in.FileID)
	if err != nil {
		return nil, fmt.Errorf("load latest revision: %w", err)
	}

	pageDigests := make(map[int]string, len(in.Pages))
	blobs := make(map[string]json.RawMessage, len(in.Pages))
	for _, p := range in.Pages {
		digest, err := hashing.HashPage(p.Content)
		if err != nil {
			return nil, apperr.NewFieldConstraint("pages", "page %d: %v", p.PageNum, err)
		}
		pageDigests[p.PageNum] = digest
		blobs[digest] = p.Content
	}

	base := in.BaseRevisionHash
	latestHash := ""
	if latest != nil {
		latestHash = latest.RevisionHash
	}
	isLatest := base == latestHash

	pages := pageDigests
	if !isLatest && latest != nil {
		// A concurrent writer got there first: union the caller's pages
		// with the latest revision's and rebase onto it. A page present
		// in the latest revision but not sent by the caller must not be
		// dropped.
		merged := make(map[int]string)
		for n, h := range latest.Pages.Data() {
			merged[n] = h
		}
		for n, h := range pageDigests {
			merged[n] = h
		}
		pages = merged
		base = latest.RevisionHash
	}

	// Idempotent retry: the submission reproduces the current state, so
	// there is nothing to write, upload or rebuild. Rebasing would mint a
	// fresh hash for it, so the comparison is on state, not on hash.
	if latest != nil && s.sameState(latest, pages, in.Validated, in.Failed, in.Categories) {
		s.log.Debug("duplicate submission collapsed",
			"job_id", in.JobID, "file_id", in.FileID, "revision", latest.RevisionHash)
		return latest, apperr.ErrDuplicateAnnotation
	}

	author := hashing.AuthorKey(in.UserID, in.PipelineID)
	hash := hashing.HashRevision(base, pages, in.Validated, in.Failed, author)

	existing, err := s.revRepo.GetByHash(dbc.Ctx, dbc.Tx, in.JobID, in.FileID, hash)
	if err != nil {
		return nil, fmt.Errorf("check revision hash: %w", err)
	}
	if existing != nil {
		return nil, &apperr.DuplicateOrMissingReferenceError{RevisionHash: hash}
	}

	if len(in.Links) > 0 {
		hashes := make([]string, 0, len(in.Links))
		for _, l := range in.Links {
			hashes = append(hashes, l.RevisionHash)
		}
		ok, err := s.revRepo.ExistsByHashes(dbc.Ctx, dbc.Tx, in.JobID, in.FileID, hashes)
		if err != nil {
			return nil, fmt.Errorf("check linked revisions: %w", err)
		}
		if !ok {
			return nil, &apperr.DuplicateOrMissingReferenceError{RevisionHash: hash}
		}
	}

	rev := &types.Revision{
		JobID:            in.JobID,
		FileID:           in.FileID,
		RevisionHash:     hash,
		UserID:           in.UserID,
		PipelineID:       in.PipelineID,
		Pages:            datatypes.NewJSONType(pages),
		Validated:        sortedPages(in.Validated),
		Failed:           sortedPages(in.Failed),
		Categories:       datatypes.NewJSONSlice(in.Categories),
		BaseRevisionHash: base,
		TaskID:           in.TaskID,
	}
	if _, err := s.revRepo.Create(dbc.Ctx, dbc.Tx, rev); err != nil {
		return nil, fmt.Errorf("persist revision: %w", err)
	}

	links := make([]*types.RevisionLink, 0, len(in.Links))
	for _, l := range in.Links {
		links = append(links, &types.RevisionLink{
			JobID:            in.JobID,
			FileID:           in.FileID,
			OriginalRevision: hash,
			LinkedRevision:   l.RevisionHash,
			Label:            l.Label,
		})
	}
	if _, err := s.linkRepo.Create(dbc.Ctx, dbc.Tx, links); err != nil {
		return nil, fmt.Errorf("persist revision links: %w", err)
	}

	if err := s.uploadPages(dbc.Ctx, in.JobID, in.FileID, blobs); err != nil {
		return nil, fmt.Errorf("upload page blobs: %w", err)
	}

	// The manifest refresh is dispatched asynchronously; its completion is
	// not required for the submit to be correct.
	go func() {
		bg := dbctx.Context{Ctx: context.Background()}
		if _, err := s.BuildManifest(bg, in.JobID, in.FileID); err != nil {
			s.log.Warn("manifest rebuild failed",
				"job_id", in.JobID, "file_id", in.FileID, "error", err)
		}
	}()

	return rev, nil
}

func (s *revisionStore) sameState(latest *types.Revision, pages map[int]string, validated, failed []int, categories []string) bool {
	latestPages := latest.Pages.Data()
	if len(latestPages) != len(pages) {
		return false
	}
	for n, h := range pages {
		if latestPages[n] != h {
			return false
		}
	}
	return pagesEqual(latest.Validated, validated) &&
		pagesEqual(latest.Failed, failed) &&
		stringsEqual(latest.Categories, categories)
}

func (s *revisionStore) uploadPages(ctx context.Context, jobID, fileID uuid.UUID, blobs map[string]json.RawMessage) error {
	if s.store == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for digest, content := range blobs {
		digest, content := digest, content
		g.Go(func() error {
			return s.store.Put(gctx, pageBlobKey(jobID, fileID, digest), content)
		})
	}
	return g.Wait()
}

func (s *revisionStore) GetManifest(dbc dbctx.Context, jobID, fileID uuid.UUID) (*types.Manifest, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(dbc.Ctx, jobID, fileID)
		if err != nil {
			s.log.Warn("manifest cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}
	return s.BuildManifest(dbc, jobID, fileID)
}

func (s *revisionStore) BuildManifest(dbc dbctx.Context, jobID, fileID uuid.UUID) (*types.Manifest, error) {
	if s.cache != nil {
		if err := s.cache.Invalidate(dbc.Ctx, jobID, fileID); err != nil {
			s.log.Warn("manifest cache invalidate failed", "error", err)
		}
	}

	revs, err := s.revRepo.ListByJobFile(dbc.Ctx, dbc.Tx, jobID, fileID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}

	m := &types.Manifest{
		JobID:  jobID,
		FileID: fileID,
		Pages:  make(map[int]string),
	}

	// One linearization of the history: creation order, latest writer of
	// each page/status wins, a later validated supersedes an earlier
	// failed for the same page and vice versa.
	status := make(map[int]string)
	for _, rev := range revs {
		for n, h := range rev.Pages.Data() {
			m.Pages[n] = h
		}
		for _, p := range rev.Validated {
			status[p] = "validated"
		}
		for _, p := range rev.Failed {
			status[p] = "failed"
		}
		if len(rev.Categories) > 0 {
			m.Categories = append([]string(nil), rev.Categories...)
		}
		m.LatestRevision = rev.RevisionHash
	}
	for p, st := range status {
		if st == "validated" {
			m.Validated = append(m.Validated, p)
		} else {
			m.Failed = append(m.Failed, p)
		}
	}
	m.Validated = sortedPages(m.Validated)
	m.Failed = sortedPages(m.Failed)

	if s.store != nil && len(revs) > 0 {
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode manifest: %w", err)
		}
		if err := s.store.Put(dbc.Ctx, manifestBlobKey(jobID, fileID), raw); err != nil {
			s.log.Warn("manifest upload failed", "job_id", jobID, "file_id", fileID, "error", err)
		}
	}
	if s.cache != nil && len(revs) > 0 {
		if err := s.cache.Set(dbc.Ctx, m); err != nil {
			s.log.Warn("manifest cache write failed", "error", err)
		}
	}
	return m, nil
}

func sortedPages(in []int) []int {
	out := append([]int(nil), in...)
	if len(out) == 0 {
		return out
	}
	return pagesUnion(out, nil)
}
