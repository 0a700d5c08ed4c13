package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Task is one page-range assignment to one user.
type Task struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID  uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	FileID uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Pages        datatypes.JSONSlice[int] `gorm:"column:pages;type:jsonb;not null" json:"pages"`
	IsValidation bool                     `gorm:"column:is_validation;not null;default:false" json:"is_validation"`
	Status       string                   `gorm:"column:status;not null;default:'pending'" json:"status"`

	// Deadline is advisory metadata, not an enforced cutoff.
	Deadline *time.Time `gorm:"column:deadline" json:"deadline,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Task) TableName() string { return "task" }

func (t *Task) IsOpen() bool {
	return t.Status != TaskFinished
}

// IsStarted reports whether the task has accepted work and must survive
// redistribution untouched.
func (t *Task) IsStarted() bool {
	return t.Status == TaskInProgress || t.Status == TaskFinished
}
