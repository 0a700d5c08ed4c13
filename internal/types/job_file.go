package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobFile is one document within a job. The row is the serialization point
// for all page accounting: every mutation of the distributed_* or
// *_pages columns runs under an exclusive row lock.
type JobFile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID  uuid.UUID `gorm:"type:uuid;not null;index:idx_job_file,unique" json:"job_id"`
	FileID uuid.UUID `gorm:"type:uuid;not null;index:idx_job_file,unique" json:"file_id"`

	PagesNumber int `gorm:"column:pages_number;not null" json:"pages_number"`

	// Pages already covered by some non-deleted task of the matching kind.
	DistributedAnnotatingPages datatypes.JSONSlice[int] `gorm:"column:distributed_annotating_pages;type:jsonb" json:"distributed_annotating_pages"`
	DistributedValidatingPages datatypes.JSONSlice[int] `gorm:"column:distributed_validating_pages;type:jsonb" json:"distributed_validating_pages"`

	AnnotatedPages datatypes.JSONSlice[int] `gorm:"column:annotated_pages;type:jsonb" json:"annotated_pages"`
	ValidatedPages datatypes.JSONSlice[int] `gorm:"column:validated_pages;type:jsonb" json:"validated_pages"`

	Status string `gorm:"column:status;not null;default:'pending'" json:"status"`

	// Physical location, supplied by the asset collaborator at job creation.
	StorageBucket string `gorm:"column:storage_bucket" json:"storage_bucket"`
	StoragePath   string `gorm:"column:storage_path" json:"storage_path"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobFile) TableName() string { return "job_file" }

// AllPages returns 1..PagesNumber.
func (f *JobFile) AllPages() []int {
	pages := make([]int, 0, f.PagesNumber)
	for p := 1; p <= f.PagesNumber; p++ {
		pages = append(pages, p)
	}
	return pages
}
