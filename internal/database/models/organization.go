package models

import "github.com/google/uuid"

type OrgKind string

const (
	OrgKindHub     OrgKind = "hub"
	OrgKindProject OrgKind = "project"
)

func (k OrgKind) Valid() bool {
	return k == OrgKindHub || k == OrgKindProject
}

// OwnerVariant is the account variant that creates and owns organizations of this kind.
func (k OrgKind) OwnerVariant() Variant {
	if k == OrgKindHub {
		return VariantHubSuperAdmin
	}
	return VariantProjectOwner
}

// AdminVariant is the account variant joined to organizations of this kind by invitation.
func (k OrgKind) AdminVariant() Variant {
	if k == OrgKindHub {
		return VariantHubAdmin
	}
	return VariantProjectAdmin
}

// OwnerRole is the role recorded on the owning account.
func (k OrgKind) OwnerRole() string {
	if k == OrgKindHub {
		return RoleSuperAdmin
	}
	return RoleOwner
}

// Organization is a hub or a project. Name, address and owner are unique per kind.
type Organization struct {
	Base
	Kind               OrgKind   `gorm:"type:varchar(16);not null;uniqueIndex:idx_org_kind_name,priority:1;uniqueIndex:idx_org_kind_address,priority:1;uniqueIndex:idx_org_kind_owner,priority:1" json:"kind"`
	OwnerID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_kind_owner,priority:2" json:"owner_id"`
	Name               string    `gorm:"not null;uniqueIndex:idx_org_kind_name,priority:2" json:"name"`
	Address            string    `gorm:"not null;uniqueIndex:idx_org_kind_address,priority:2" json:"address"`
	AddressPlaceholder bool      `gorm:"default:false" json:"address_placeholder"`
	Logo               string    `json:"logo"`
	Description        string    `json:"description"`
	CampaignsCreated   int       `gorm:"default:0" json:"campaigns_created"`
	XPAllocated        int64     `gorm:"default:0" json:"xp_allocated"`
}

func (Organization) TableName() string {
	return "organizations"
}
