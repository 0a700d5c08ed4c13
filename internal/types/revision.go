package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Revision is one immutable, content-hashed snapshot of a file's annotation
// state. Keyed by (job_id, file_id, revision_hash); never mutated, only
// superseded by later revisions.
type Revision struct {
	JobID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"job_id"`
	FileID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"file_id"`
	RevisionHash string    `gorm:"column:revision_hash;primaryKey" json:"revision_hash"`

	// Author is a user XOR a pipeline, never both.
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	PipelineID *int64     `gorm:"column:pipeline_id" json:"pipeline_id,omitempty"`

	// Pages maps page number to the page's content hash.
	Pages      datatypes.JSONType[map[int]string] `gorm:"column:pages;type:jsonb" json:"pages"`
	Validated  datatypes.JSONSlice[int]           `gorm:"column:validated;type:jsonb" json:"validated"`
	Failed     datatypes.JSONSlice[int]           `gorm:"column:failed;type:jsonb" json:"failed"`
	Categories datatypes.JSONSlice[string]        `gorm:"column:categories;type:jsonb" json:"categories"`

	BaseRevisionHash string     `gorm:"column:base_revision_hash" json:"base_revision_hash,omitempty"`
	TaskID           *uuid.UUID `gorm:"type:uuid;index" json:"task_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Revision) TableName() string { return "revision" }

// Manifest is the reconciled "current state" view of a file, derived by
// replaying its revision history in creation order.
type Manifest struct {
	JobID          uuid.UUID      `json:"job_id"`
	FileID         uuid.UUID      `json:"file_id"`
	LatestRevision string         `json:"latest_revision"`
	Pages          map[int]string `json:"pages"`
	Validated      []int          `json:"validated"`
	Failed         []int          `json:"failed"`
	Categories     []string       `json:"categories"`
}
