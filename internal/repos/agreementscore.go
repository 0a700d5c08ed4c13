package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type AgreementScoreRepo interface {
	Create(ctx context.Context, tx *gorm.DB, scores []*types.AgreementScore) ([]*types.AgreementScore, error)
	GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.AgreementScore, error)
	GetByTaskIDs(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID) ([]*types.AgreementScore, error)
}

type agreementScoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAgreementScoreRepo(db *gorm.DB, baseLog *logger.Logger) AgreementScoreRepo {
	return &agreementScoreRepo{db: db, log: baseLog.With("repo", "AgreementScoreRepo")}
}

func (r *agreementScoreRepo) Create(ctx context.Context, tx *gorm.DB, scores []*types.AgreementScore) ([]*types.AgreementScore, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(scores) == 0 {
		return []*types.AgreementScore{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&scores).Error; err != nil {
		return nil, err
	}
	return scores, nil
}

func (r *agreementScoreRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.AgreementScore, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AgreementScore
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *agreementScoreRepo) GetByTaskIDs(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID) ([]*types.AgreementScore, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AgreementScore
	if len(taskIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("task_from IN ? OR task_to IN ?", taskIDs, taskIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
