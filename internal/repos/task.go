package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type TaskRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tasks []*types.Task) ([]*types.Task, error)
	GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error)
	GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Task, error)
	GetByJobAndFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) ([]*types.Task, error)
	GetOpenByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Task, error)
	SetStatus(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, status string) error
	SetStatusBulk(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID, status string) error
	Save(ctx context.Context, tx *gorm.DB, task *types.Task) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID) error
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) Create(ctx context.Context, tx *gorm.DB, tasks []*types.Task) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(tasks) == 0 {
		return []*types.Task{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepo) GetByID(ctx context.Context, tx *gorm.DB, taskID uuid.UUID) (*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var task types.Task
	if err := transaction.WithContext(ctx).
		Where("id = ?", taskID).
		First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) GetByJobID(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Task
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *taskRepo) GetByJobAndFile(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Task
	if err := transaction.WithContext(ctx).
		Where("job_id = ? AND file_id = ?", jobID, fileID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *taskRepo) GetOpenByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Task, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Task
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, types.TaskFinished).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *taskRepo) SetStatus(ctx context.Context, tx *gorm.DB, taskID uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("id = ?", taskID).
		Update("status", status).Error
}

func (r *taskRepo) SetStatusBulk(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(taskIDs) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.Task{}).
		Where("id IN ?", taskIDs).
		Update("status", status).Error
}

func (r *taskRepo) Save(ctx context.Context, tx *gorm.DB, task *types.Task) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).Save(task).Error
}

func (r *taskRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, taskIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(taskIDs) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("id IN ?", taskIDs).
		Delete(&types.Task{}).Error
}
