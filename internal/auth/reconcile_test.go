package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/metrics"
	"github.com/nexura/nexura-api/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countOrganizations(t *testing.T, env *testutil.Env, ownerID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, env.DB.Model(&models.Organization{}).Where("owner_id = ?", ownerID).Count(&count).Error)
	return count
}

func TestReconciler_CreatesOrganizationOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubSuperAdmin, "legacy@acme.io", "pw")

	require.NoError(t, env.Reconciler.Reconcile(ctx, account))
	require.True(t, account.Linked())
	require.NotNil(t, account.Organization)

	org := account.Organization
	assert.Equal(t, account.ID, org.OwnerID)
	assert.Equal(t, models.OrgKindHub, org.Kind)
	assert.True(t, org.AddressPlaceholder)
	assert.Equal(t, auth.PlaceholderAddress(account.ID), org.Address)
	assert.Contains(t, org.Logo, "ui-avatars.com")

	stored, err := env.Store.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, *stored.OrganizationID)

	// A second run on a fresh read of the same row is a no-op.
	require.NoError(t, env.Reconciler.Reconcile(ctx, stored))
	assert.Equal(t, org.ID, *stored.OrganizationID)
	assert.Equal(t, int64(1), countOrganizations(t, env, account.ID))
}

func TestReconciler_LinksExistingOrganization(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantProjectOwner, "legacy@moon.io", "pw")

	org := &models.Organization{
		Kind:    models.OrgKindProject,
		OwnerID: account.ID,
		Name:    "Moon",
		Address: "0x1111111111111111111111111111111111111111",
	}
	require.NoError(t, env.Store.CreateOrganization(ctx, org))

	require.NoError(t, env.Reconciler.Reconcile(ctx, account))
	assert.Equal(t, org.ID, *account.OrganizationID)
	assert.Equal(t, int64(1), countOrganizations(t, env, account.ID))
}

func TestReconciler_StaleCopyDoesNotDuplicate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubSuperAdmin, "legacy@acme.io", "pw")
	stale := *account

	require.NoError(t, env.Reconciler.Reconcile(ctx, account))
	// stale still looks unlinked, as a concurrent sign-in would see it.
	require.NoError(t, env.Reconciler.Reconcile(ctx, &stale))

	assert.Equal(t, *account.OrganizationID, *stale.OrganizationID)
	assert.Equal(t, int64(1), countOrganizations(t, env, account.ID))
}

func TestReconciler_ResolvesNameAndAddressClashes(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	taken := testutil.CreateOwner(t, env, models.OrgKindHub, "Acme")

	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubSuperAdmin, "legacy@acme.io", "pw")
	account.Name = "Acme"
	account.Address = taken.Account.Organization.Address

	require.NoError(t, env.Reconciler.Reconcile(ctx, account))
	org := account.Organization
	assert.NotEqual(t, "Acme", org.Name)
	assert.Contains(t, org.Name, "Acme-")
	assert.Equal(t, auth.PlaceholderAddress(account.ID), org.Address)
	assert.True(t, org.AddressPlaceholder)
}

func TestReconciler_RelinksDanglingOrganization(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubSuperAdmin, "legacy@acme.io", "pw")

	// Rows written before the foreign key existed can point nowhere.
	require.NoError(t, env.DB.Exec("PRAGMA foreign_keys = OFF").Error)
	dangling := uuid.New()
	require.NoError(t, env.Store.UpdateAccount(ctx, account.ID, map[string]interface{}{"organization_id": dangling}))

	stored, err := env.Store.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, stored.Linked())

	require.NoError(t, env.Reconciler.Reconcile(ctx, stored))
	require.NotNil(t, stored.Organization)
	assert.NotEqual(t, dangling, *stored.OrganizationID)
	assert.Equal(t, stored.ID, stored.Organization.OwnerID)
	assert.Equal(t, int64(1), countOrganizations(t, env, account.ID))

	reloaded, err := env.Store.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Organization.ID, *reloaded.OrganizationID)

	// The repaired owner can invite admins into the new organization.
	invitation, err := env.Service.InviteAdmin(ctx, reloaded, "bob@acme.io", "")
	require.NoError(t, err)
	assert.Equal(t, stored.Organization.ID, invitation.OrganizationID)
}

func TestReconciler_AdminLinkedToMissingOrganization(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubAdmin, "admin@acme.io", "pw")

	dangling := uuid.New()
	account.OrganizationID = &dangling

	err := env.Reconciler.Reconcile(ctx, account)
	assert.ErrorIs(t, err, auth.ErrOrganizationMissing)
}

func TestReconciler_LinkedAccountIsReadOnly(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	owner := testutil.CreateOwner(t, env, models.OrgKindProject, "Moonbase")

	before, err := env.Store.FindAccountByID(ctx, owner.Account.ID)
	require.NoError(t, err)
	before.Organization = nil

	require.NoError(t, env.Reconciler.Reconcile(ctx, before))
	require.NotNil(t, before.Organization)
	assert.Equal(t, *owner.Account.OrganizationID, before.Organization.ID)

	after, err := env.Store.FindAccountByID(ctx, owner.Account.ID)
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.Zero(t, promtest.ToFloat64(env.Metrics.RepairsTotal.WithLabelValues(metrics.RepairCreateOrg)))
}

func TestReconciler_AdminWithoutOrganization(t *testing.T) {
	env := testutil.NewEnv(t)
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubAdmin, "admin@acme.io", "pw")

	err := env.Reconciler.Reconcile(context.Background(), account)
	assert.ErrorIs(t, err, auth.ErrOrganizationMissing)
}

func TestReconciler_RecordsRepairs(t *testing.T) {
	env := testutil.NewEnv(t)
	account := testutil.CreateLegacyAccount(t, env.DB, models.VariantHubSuperAdmin, "legacy@acme.io", "pw")

	require.NoError(t, env.Reconciler.Reconcile(context.Background(), account))

	assert.Equal(t, 1.0, promtest.ToFloat64(env.Metrics.RepairsTotal.WithLabelValues(metrics.RepairCreateOrg)))
	assert.Zero(t, promtest.ToFloat64(env.Metrics.RepairsTotal.WithLabelValues(metrics.RepairLinkExisting)))
}

func TestPlaceholderAddress(t *testing.T) {
	id := uuid.New()
	addr := auth.PlaceholderAddress(id)

	assert.Regexp(t, `^0x[0-9a-f]{40}$`, addr)
	assert.Equal(t, addr, auth.PlaceholderAddress(id))
	assert.NotEqual(t, addr, auth.PlaceholderAddress(uuid.New()))
}
