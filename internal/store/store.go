// Package store persists accounts, organizations and invitations. Uniqueness
// is enforced by database indexes; violations surface as *DuplicateKeyError.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExpired  = errors.New("record expired")
)

// DuplicateKeyError names the unique fields that collided on insert.
type DuplicateKeyError struct {
	Fields []string
}

func (e *DuplicateKeyError) Error() string {
	if len(e.Fields) == 0 {
		return "duplicate key"
	}
	return "duplicate key: " + strings.Join(e.Fields, ", ")
}

// Has reports whether field is among the collided fields.
func (e *DuplicateKeyError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// IsDuplicateKey reports whether err is, or wraps, a *DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var dup *DuplicateKeyError
	return errors.As(err, &dup)
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Store) FindAccountByEmail(ctx context.Context, variant models.Variant, email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).
		Where("variant = ? AND email = ?", variant, email).
		First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (s *Store) FindAccountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).
		Preload("Organization").
		First(&account, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

// CreateAccount inserts account. The only unique key on accounts is
// (variant, email), so a collision is always reported against email.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) error {
	if err := s.db.WithContext(ctx).Omit("Organization").Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &DuplicateKeyError{Fields: []string{"email"}}
		}
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// UpdateAccount applies a partial update. Last write wins.
func (s *Store) UpdateAccount(ctx context.Context, id uuid.UUID, patch map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("updating account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FindOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (s *Store) FindOrganizationByOwner(ctx context.Context, kind models.OrgKind, ownerID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	if err := s.db.WithContext(ctx).
		Where("kind = ? AND owner_id = ?", kind, ownerID).
		First(&org).Error; err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if err := s.db.WithContext(ctx).Create(org).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.organizationConflict(ctx, org)
		}
		return fmt.Errorf("creating organization: %w", err)
	}
	return nil
}

// CreateOwnerWithOrganization inserts the owning account, its organization and
// the link between them in one transaction.
func (s *Store) CreateOwnerWithOrganization(ctx context.Context, account *models.Account, org *models.Organization) error {
	var orgCollision bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Organization").Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &DuplicateKeyError{Fields: []string{"email"}}
			}
			return fmt.Errorf("creating account: %w", err)
		}

		org.OwnerID = account.ID
		if err := tx.Create(org).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				orgCollision = true
			}
			return fmt.Errorf("creating organization: %w", err)
		}

		if err := tx.Model(&models.Account{}).
			Where("id = ?", account.ID).
			Update("organization_id", org.ID).Error; err != nil {
			return fmt.Errorf("linking account: %w", err)
		}
		return nil
	})
	if err != nil {
		if orgCollision {
			return s.organizationConflict(ctx, org)
		}
		return err
	}

	account.OrganizationID = &org.ID
	account.Organization = org
	return nil
}

// organizationConflict works out which unique organization fields are taken.
// It runs after the failed insert has been rolled back and only shapes the
// error message; it never decides whether the insert is allowed.
func (s *Store) organizationConflict(ctx context.Context, org *models.Organization) error {
	dup := &DuplicateKeyError{}
	checks := []struct {
		field string
		query string
		value interface{}
	}{
		{"name", "kind = ? AND name = ?", org.Name},
		{"address", "kind = ? AND address = ?", org.Address},
		{"owner", "kind = ? AND owner_id = ?", org.OwnerID},
	}

	for _, c := range checks {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Organization{}).
			Where(c.query, org.Kind, c.value).
			Count(&count).Error; err == nil && count > 0 {
			dup.Fields = append(dup.Fields, c.field)
		}
	}
	return dup
}

func (s *Store) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &DuplicateKeyError{Fields: []string{"code"}}
		}
		return fmt.Errorf("creating invitation: %w", err)
	}
	return nil
}

// RedeemInvitation consumes the invitation matching (kind, code, email) and
// runs fn inside the same transaction. The delete is conditional on the row
// still existing, so two concurrent redemptions cannot both succeed; if fn
// fails the transaction rolls back and the code stays redeemable.
// Expired invitations are deleted and reported as ErrExpired.
func (s *Store) RedeemInvitation(
	ctx context.Context,
	kind models.OrgKind,
	code, email string,
	now time.Time,
	fn func(tx *Store, inv *models.Invitation) error,
) error {
	var expired bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv models.Invitation
		if err := tx.Where("kind = ? AND code = ? AND email = ?", kind, code, email).
			First(&inv).Error; err != nil {
			return notFound(err)
		}

		res := tx.Where("id = ?", inv.ID).Delete(&models.Invitation{})
		if res.Error != nil {
			return fmt.Errorf("consuming invitation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if inv.Expired(now) {
			expired = true
			return nil
		}

		return fn(&Store{db: tx}, &inv)
	})
	if err != nil {
		return err
	}
	if expired {
		return ErrExpired
	}
	return nil
}

// PurgeExpiredInvitations deletes every invitation that expired before now.
func (s *Store) PurgeExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.Invitation{})
	if res.Error != nil {
		return 0, fmt.Errorf("purging invitations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
