package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

type RevisionLinkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, links []*types.RevisionLink) ([]*types.RevisionLink, error)
	// GetByRevision returns links touching the given revision from either
	// side.
	GetByRevision(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hash string) ([]*types.RevisionLink, error)
}

type revisionLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRevisionLinkRepo(db *gorm.DB, baseLog *logger.Logger) RevisionLinkRepo {
	return &revisionLinkRepo{db: db, log: baseLog.With("repo", "RevisionLinkRepo")}
}

func (r *revisionLinkRepo) Create(ctx context.Context, tx *gorm.DB, links []*types.RevisionLink) ([]*types.RevisionLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(links) == 0 {
		return []*types.RevisionLink{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *revisionLinkRepo) GetByRevision(ctx context.Context, tx *gorm.DB, jobID, fileID uuid.UUID, hash string) ([]*types.RevisionLink, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.RevisionLink
	if err := transaction.WithContext(ctx).
		Where("job_id = ? AND file_id = ? AND (original_revision = ? OR linked_revision = ?)", jobID, fileID, hash, hash).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
