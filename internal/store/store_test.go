package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOwner(kind models.OrgKind, email, name, address string) (*models.Account, *models.Organization) {
	account := &models.Account{
		Variant:      kind.OwnerVariant(),
		Email:        email,
		PasswordHash: "$2a$10$hash",
		Role:         kind.OwnerRole(),
		Name:         name,
	}
	org := &models.Organization{Kind: kind, Name: name, Address: address}
	return account, org
}

func TestCreateOwnerWithOrganization(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	account, org := newOwner(models.OrgKindHub, "a@acme.io", "Acme", "0x01")
	require.NoError(t, st.CreateOwnerWithOrganization(ctx, account, org))

	require.True(t, account.Linked())
	assert.Equal(t, account.ID, org.OwnerID)

	loaded, err := st.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Organization)
	assert.Equal(t, "Acme", loaded.Organization.Name)

	byOwner, err := st.FindOrganizationByOwner(ctx, models.OrgKindHub, account.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, byOwner.ID)
}

func TestCreateOwnerWithOrganization_Duplicates(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	account, org := newOwner(models.OrgKindHub, "a@acme.io", "Acme", "0x01")
	require.NoError(t, st.CreateOwnerWithOrganization(ctx, account, org))

	tests := []struct {
		name   string
		kind   models.OrgKind
		email  string
		org    string
		addr   string
		fields []string
	}{
		{"same email", models.OrgKindHub, "a@acme.io", "Other", "0x02", []string{"email"}},
		{"same name", models.OrgKindHub, "b@acme.io", "Acme", "0x03", []string{"name"}},
		{"same address", models.OrgKindHub, "c@acme.io", "Third", "0x01", []string{"address"}},
		{"same name and address", models.OrgKindHub, "d@acme.io", "Acme", "0x01", []string{"name", "address"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, o := newOwner(tt.kind, tt.email, tt.org, tt.addr)
			err := st.CreateOwnerWithOrganization(ctx, a, o)

			var dup *store.DuplicateKeyError
			require.True(t, errors.As(err, &dup), "got %v", err)
			assert.Equal(t, tt.fields, dup.Fields)

			// Nothing from the failed attempt survives.
			_, err = st.FindAccountByEmail(ctx, tt.kind.OwnerVariant(), tt.email)
			if tt.email != "a@acme.io" {
				assert.ErrorIs(t, err, store.ErrNotFound)
			}
		})
	}
}

func TestCreateOwnerWithOrganization_KindsAreSeparate(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	hub, hubOrg := newOwner(models.OrgKindHub, "a@acme.io", "Acme", "0x01")
	require.NoError(t, st.CreateOwnerWithOrganization(ctx, hub, hubOrg))

	project, projectOrg := newOwner(models.OrgKindProject, "a@acme.io", "Acme", "0x01")
	require.NoError(t, st.CreateOwnerWithOrganization(ctx, project, projectOrg))

	assert.NotEqual(t, hub.ID, project.ID)
}

func TestFindAccount_NotFound(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	_, err := st.FindAccountByEmail(ctx, models.VariantHubAdmin, "ghost@acme.io")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.FindAccountByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.FindOrganizationByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = st.UpdateAccount(ctx, uuid.New(), map[string]interface{}{"name": "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateOrganization_OwnerIsUniquePerKind(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	owner := uuid.New()
	require.NoError(t, st.CreateOrganization(ctx, &models.Organization{
		Kind: models.OrgKindProject, OwnerID: owner, Name: "One", Address: "0x01",
	}))

	err := st.CreateOrganization(ctx, &models.Organization{
		Kind: models.OrgKindProject, OwnerID: owner, Name: "Two", Address: "0x02",
	})
	var dup *store.DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.True(t, dup.Has("owner"))
	assert.False(t, dup.Has("name"))
}

func TestRedeemInvitation(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	inv := &models.Invitation{
		Kind: models.OrgKindHub, Email: "bob@acme.io", OrganizationID: uuid.New(),
		Role: models.RoleAdmin, Code: "123456", ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, st.CreateInvitation(ctx, inv))

	t.Run("wrong email", func(t *testing.T) {
		err := st.RedeemInvitation(ctx, models.OrgKindHub, "123456", "eve@acme.io", now, func(*store.Store, *models.Invitation) error {
			t.Fatal("callback must not run")
			return nil
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("callback failure keeps the code", func(t *testing.T) {
		err := st.RedeemInvitation(ctx, models.OrgKindHub, "123456", "bob@acme.io", now, func(*store.Store, *models.Invitation) error {
			return errors.New("boom")
		})
		assert.EqualError(t, err, "boom")
	})

	t.Run("success consumes", func(t *testing.T) {
		var got *models.Invitation
		err := st.RedeemInvitation(ctx, models.OrgKindHub, "123456", "bob@acme.io", now, func(_ *store.Store, i *models.Invitation) error {
			got = i
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, inv.ID, got.ID)

		err = st.RedeemInvitation(ctx, models.OrgKindHub, "123456", "bob@acme.io", now, func(*store.Store, *models.Invitation) error {
			return nil
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRedeemInvitation_ExpiredIsDeleted(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.CreateInvitation(ctx, &models.Invitation{
		Kind: models.OrgKindProject, Email: "bob@acme.io", OrganizationID: uuid.New(),
		Code: "654321", ExpiresAt: now.Add(-time.Second),
	}))

	err := st.RedeemInvitation(ctx, models.OrgKindProject, "654321", "bob@acme.io", now, func(*store.Store, *models.Invitation) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, store.ErrExpired)

	purged, err := st.PurgeExpiredInvitations(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestCreateInvitation_DuplicateCode(t *testing.T) {
	st := store.New(testutil.SetupTestDB(t))
	ctx := context.Background()

	mk := func() *models.Invitation {
		return &models.Invitation{
			Kind: models.OrgKindHub, Email: "bob@acme.io", OrganizationID: uuid.New(),
			Code: "111111", ExpiresAt: time.Now().Add(time.Minute),
		}
	}
	require.NoError(t, st.CreateInvitation(ctx, mk()))

	err := st.CreateInvitation(ctx, mk())
	var dup *store.DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"code"}, dup.Fields)
}
