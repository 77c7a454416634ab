package models

import "github.com/google/uuid"

// Variant discriminates the four credential spaces. Email uniqueness is
// scoped to a variant.
type Variant string

const (
	VariantHubSuperAdmin Variant = "hub_superadmin"
	VariantHubAdmin      Variant = "hub_admin"
	VariantProjectOwner  Variant = "project_owner"
	VariantProjectAdmin  Variant = "project_admin"
)

const (
	RoleSuperAdmin = "superadmin"
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
)

func (v Variant) Valid() bool {
	switch v {
	case VariantHubSuperAdmin, VariantHubAdmin, VariantProjectOwner, VariantProjectAdmin:
		return true
	}
	return false
}

// IsOwner reports whether accounts of this variant own their organization.
func (v Variant) IsOwner() bool {
	return v == VariantHubSuperAdmin || v == VariantProjectOwner
}

func (v Variant) OrgKind() OrgKind {
	switch v {
	case VariantHubSuperAdmin, VariantHubAdmin:
		return OrgKindHub
	default:
		return OrgKindProject
	}
}

type Account struct {
	Base
	Variant        Variant    `gorm:"type:varchar(32);not null;uniqueIndex:idx_accounts_variant_email,priority:1" json:"variant"`
	Email          string     `gorm:"not null;uniqueIndex:idx_accounts_variant_email,priority:2" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	Role           string     `gorm:"type:varchar(32);not null;default:'admin'" json:"role"` // superadmin, owner, admin
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	Logo           string     `json:"logo"`
	Description    string     `json:"description"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (Account) TableName() string {
	return "accounts"
}

// Linked reports whether the account resolves to an organization.
func (a *Account) Linked() bool {
	return a.OrganizationID != nil && *a.OrganizationID != uuid.Nil
}
