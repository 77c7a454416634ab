package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invitation is a single-use admin onboarding code. The row is deleted when
// redeemed; expired rows are purged by the worker.
type Invitation struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Kind           OrgKind   `gorm:"type:varchar(16);not null" json:"kind"`
	Email          string    `gorm:"not null;index" json:"email"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	Role           string    `gorm:"type:varchar(32);not null;default:'admin'" json:"role"`
	Code           string    `gorm:"type:varchar(16);not null;uniqueIndex" json:"-"`
	ExpiresAt      time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Invitation) TableName() string {
	return "invitations"
}

func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
