package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type RevisionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rev *types.Revision) (*types.Revision, error)
	GetByHash(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hash string) (*types.Revision, error)
	// GetLatest returns the most recent revision for (job, file), or nil
	// when none exists.
	GetLatest(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.Revision, error)
	// ListByJobFile returns all revisions ordered by creation time
	// ascending; the manifest rebuild depends on this order.
	ListByJobFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) ([]*types.Revision, error)
	GetByTaskID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) ([]*types.Revision, error)
	ExistsByHashes(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hashes []string) (bool, error)
}

type revisionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRevisionRepo(db *gorm.DB, baseLog *logger.Logger) RevisionRepo {
	return &revisionRepo{db: db, log: baseLog.With("repo", "RevisionRepo")}
}

func (r *revisionRepo) Create(ctx context.Context, tx *gorm.DB, rev *types.Revision) (*types.Revision, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(rev).Error; err != nil {
		return nil, err
	}
	return rev, nil
}

func (r *revisionRepo) GetByHash(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hash string) (*types.Revision, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rev types.Revision
	err := transaction.WithContext(ctx).
		Where("job_id = ? AND file_id = ? AND revision_hash = ?", jobID, fileID, hash).
		First(&rev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *revisionRepo) GetLatest(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.Revision, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rev types.Revision
	err := transaction.WithContext(ctx).
		Where("job_id = ? AND file_id = ?", jobID, fileID).
		Order("created_at DESC").
		First(&rev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

func (r *revisionRepo) ListByJobFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) ([]*types.Revision, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Revision
	if err := transaction.WithContext(ctx).
		Where("job_id = ? AND file_id = ?", jobID, fileID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *revisionRepo) GetByTaskID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) ([]*types.Revision, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Revision
	if err := transaction.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *revisionRepo) ExistsByHashes(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hashes []string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(hashes) == 0 {
		return true, nil
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Revision{}).
		Where("job_id = ? AND file_id = ? AND revision_hash IN ?", jobID, fileID, hashes).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count == int64(len(hashes)), nil
}
