package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/metrics"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/internal/upload"
)

// Reconciler repairs owner accounts written by an older sign-up path that
// never linked the account to its organization. It runs on sign-in and is
// idempotent: a linked account is left untouched, and the (kind, owner)
// unique index keeps a second organization from ever being created.
//
// TODO: remove once nexura_auth_repairs_total{type=~"link_existing|create_organization"}
// stays at zero for a full refresh-token lifetime (30 days).
type Reconciler struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewReconciler(st *store.Store, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: st, metrics: m, logger: logger}
}

// Reconcile makes sure account resolves to an existing organization of its
// kind, linking or creating one as needed. account is updated in place.
// An account whose link points at a missing row is treated as unlinked.
func (r *Reconciler) Reconcile(ctx context.Context, account *models.Account) error {
	if account.Linked() {
		ok, err := r.resolves(ctx, account)
		if err != nil || ok {
			return err
		}
		r.logger.Warn("account linked to missing organization",
			"account_id", account.ID,
			"organization_id", *account.OrganizationID,
		)
		account.OrganizationID = nil
		account.Organization = nil
	}
	if !account.Variant.IsOwner() {
		// Admins join through an invitation; there is nothing to infer a link from.
		r.logger.Error("admin account without organization", "account_id", account.ID, "variant", account.Variant)
		return ErrOrganizationMissing
	}

	kind := account.Variant.OrgKind()
	org, err := r.store.FindOrganizationByOwner(ctx, kind, account.ID)
	switch {
	case err == nil:
		r.metrics.Repair(metrics.RepairLinkExisting)
	case errors.Is(err, store.ErrNotFound):
		org, err = r.createOrganization(ctx, account, kind)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("finding organization by owner: %w", err)
	}

	if err := r.store.UpdateAccount(ctx, account.ID, map[string]interface{}{"organization_id": org.ID}); err != nil {
		return fmt.Errorf("linking account: %w", err)
	}
	account.OrganizationID = &org.ID
	account.Organization = org

	r.logger.Warn("repaired unlinked account",
		"account_id", account.ID,
		"organization_id", org.ID,
		"kind", kind,
	)
	return nil
}

// resolves reports whether the linked organization exists and has the
// account's kind. It reads only.
func (r *Reconciler) resolves(ctx context.Context, account *models.Account) (bool, error) {
	org := account.Organization
	if org == nil || org.ID != *account.OrganizationID {
		var err error
		org, err = r.store.FindOrganizationByID(ctx, *account.OrganizationID)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("loading organization: %w", err)
		}
	}
	if org.Kind != account.Variant.OrgKind() {
		return false, nil
	}
	account.Organization = org
	return true, nil
}

func (r *Reconciler) createOrganization(ctx context.Context, account *models.Account, kind models.OrgKind) (*models.Organization, error) {
	org := organizationFromAccount(account, kind)

	err := r.store.CreateOrganization(ctx, org)
	var dup *store.DuplicateKeyError
	if errors.As(err, &dup) {
		if dup.Has("owner") {
			// A concurrent sign-in created it first; link to that one.
			return r.store.FindOrganizationByOwner(ctx, kind, account.ID)
		}
		// The legacy profile clashes with another organization. Fall back to
		// values derived from the account id, which are unique by construction.
		if dup.Has("name") {
			org.Name = org.Name + "-" + shortID(account.ID)
		}
		if dup.Has("address") {
			org.Address = PlaceholderAddress(account.ID)
			org.AddressPlaceholder = true
		}
		org.ID = uuid.Nil
		err = r.store.CreateOrganization(ctx, org)
	}
	if err != nil {
		return nil, fmt.Errorf("creating organization: %w", err)
	}

	if org.AddressPlaceholder {
		r.logger.Warn("organization created with placeholder address",
			"organization_id", org.ID,
			"address", org.Address,
		)
	}
	r.metrics.Repair(metrics.RepairCreateOrg)
	return org, nil
}

func organizationFromAccount(account *models.Account, kind models.OrgKind) *models.Organization {
	org := &models.Organization{
		Kind:        kind,
		OwnerID:     account.ID,
		Name:        strings.TrimSpace(account.Name),
		Address:     strings.TrimSpace(account.Address),
		Logo:        account.Logo,
		Description: account.Description,
	}
	if org.Name == "" {
		org.Name = strings.SplitN(account.Email, "@", 2)[0] + "-" + shortID(account.ID)
	}
	if org.Address == "" {
		org.Address = PlaceholderAddress(account.ID)
		org.AddressPlaceholder = true
	}
	if org.Logo == "" {
		org.Logo = upload.PlaceholderLogo(org.Name)
	}
	return org
}

// PlaceholderAddress derives a wallet-shaped address (0x + 40 hex digits)
// from an account id. It is not a key anyone controls: organizations
// carrying one are flagged AddressPlaceholder and must be given a real
// address before any on-chain use.
func PlaceholderAddress(id uuid.UUID) string {
	sum := sha256.Sum256(id[:])
	return "0x" + hex.EncodeToString(sum[:20])
}

func shortID(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}
