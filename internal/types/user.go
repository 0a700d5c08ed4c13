package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Email    string    `gorm:"column:email;not null;uniqueIndex" json:"email"`
	Password string    `gorm:"column:password;not null" json:"-"`
	Name     string    `gorm:"column:name" json:"name"`
	// DefaultLoad is the user's nominal page capacity.
	DefaultLoad int `gorm:"column:default_load;not null;default:100" json:"default_load"`
	// OverallLoad is derived: the sum of pages across the user's
	// non-finished tasks. Recomputed on every task mutation, never
	// hand-edited.
	OverallLoad int `gorm:"column:overall_load;not null;default:0" json:"overall_load"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }
