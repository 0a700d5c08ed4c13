package types

import (
	"time"

	"github.com/google/uuid"
)

// AgreementScore is an append-only pairwise similarity record between two
// annotators' independent work on the same pages. Rows are stored with
// TaskFrom < TaskTo so a pair is never stored in both orders.
type AgreementScore struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID    uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	TaskFrom uuid.UUID `gorm:"type:uuid;not null;index:idx_score_pair,unique" json:"task_from"`
	TaskTo   uuid.UUID `gorm:"type:uuid;not null;index:idx_score_pair,unique" json:"task_to"`
	Metric   float64   `gorm:"column:metric;not null" json:"metric"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (AgreementScore) TableName() string { return "agreement_score" }
