package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error)
	GetByID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.Job, error)
	SetStatus(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, status string) error
	ReplaceAnnotators(ctx context.Context, tx *gorm.DB, job *types.Job, users []*types.User) error
	ReplaceValidators(ctx context.Context, tx *gorm.DB, job *types.Job, users []*types.User) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (*types.Job, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var job types.Job
	if err := transaction.WithContext(ctx).
		Preload("Annotators").
		Preload("Validators").
		Preload("Owners").
		Preload("Files").
		Where("id = ?", jobID).
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) SetStatus(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ?", jobID).
		Update("status", status).Error
}

func (r *jobRepo) ReplaceAnnotators(ctx context.Context, tx *gorm.DB, job *types.Job, users []*types.User) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(job).
		Association("Annotators").
		Replace(users)
}

func (r *jobRepo) ReplaceValidators(ctx context.Context, tx *gorm.DB, job *types.Job, users []*types.User) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(job).
		Association("Validators").
		Replace(users)
}
