package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Job struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	ValidationType string    `gorm:"column:validation_type;not null;default:'cross'" json:"validation_type"`
	// ExtensiveCoverage is the required reviewer multiplicity (>= 1).
	ExtensiveCoverage int    `gorm:"column:extensive_coverage;not null;default:1" json:"extensive_coverage"`
	Status            string `gorm:"column:status;not null;default:'pending'" json:"status"`

	// CallbackURL, Tenant and CallbackToken parameterize the external
	// job-status collaborator.
	CallbackURL   string `gorm:"column:callback_url" json:"callback_url"`
	Tenant        string `gorm:"column:tenant" json:"tenant"`
	CallbackToken string `gorm:"column:callback_token" json:"-"`

	Deadline *time.Time `gorm:"column:deadline" json:"deadline,omitempty"`

	Annotators []*User `gorm:"many2many:job_annotator" json:"annotators,omitempty"`
	Validators []*User `gorm:"many2many:job_validator" json:"validators,omitempty"`
	Owners     []*User `gorm:"many2many:job_owner" json:"owners,omitempty"`

	Files []*JobFile `gorm:"foreignKey:JobID;references:ID" json:"files,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "job" }
