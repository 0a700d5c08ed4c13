package types

import (
	"time"

	"github.com/google/uuid"
)

// RevisionLink is a labeled similarity edge between two revisions of the
// same (job, file). The original side owns the row; lookups from either
// side go through the indexes, there is no back-reference.
type RevisionLink struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID  uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	FileID uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`

	OriginalRevision string `gorm:"column:original_revision;not null;index" json:"original_revision"`
	LinkedRevision   string `gorm:"column:linked_revision;not null;index" json:"linked_revision"`
	Label            string `gorm:"column:label;not null" json:"label"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RevisionLink) TableName() string { return "revision_link" }
