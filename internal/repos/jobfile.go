package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type JobFileRepo interface {
	Create(ctx context.Context, tx *gorm.DB, files []*types.JobFile) ([]*types.JobFile, error)
	GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.JobFile, error)
	GetByJobAndFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.JobFile, error)
	// GetForUpdate takes an exclusive row lock on the file row. Every
	// mutation of the page-accounting columns must go through it.
	GetForUpdate(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.JobFile, error)
	Save(ctx context.Context, tx *gorm.DB, file *types.JobFile) error
}

type jobFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobFileRepo(db *gorm.DB, baseLog *logger.Logger) JobFileRepo {
	return &jobFileRepo{db: db, log: baseLog.With("repo", "JobFileRepo")}
}

func (r *jobFileRepo) Create(ctx context.Context, tx *gorm.DB, files []*types.JobFile) ([]*types.JobFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(files) == 0 {
		return []*types.JobFile{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *jobFileRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.JobFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.JobFile
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *jobFileRepo) GetByJobAndFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.JobFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var file types.JobFile
	if err := transaction.WithContext(ctx).
		Where("job_id = ? AND file_id = ?", jobID, fileID).
		First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *jobFileRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) (*types.JobFile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var file types.JobFile
	if err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("job_id = ? AND file_id = ?", jobID, fileID).
		First(&file).Error; err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *jobFileRepo) Save(ctx context.Context, tx *gorm.DB, file *types.JobFile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Save(file).Error
}
