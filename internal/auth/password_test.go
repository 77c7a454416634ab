package auth_test

import (
	"testing"

	"github.com/nexura/nexura-api/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hasher := auth.NewPasswordHasher(auth.DefaultBcryptCost)

	hash, err := hasher.Hash("Secr3t!")
	require.NoError(t, err)
	assert.NotEqual(t, "Secr3t!", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultBcryptCost, cost)

	assert.True(t, hasher.Verify("Secr3t!", hash))
	assert.False(t, hasher.Verify("secr3t!", hash))
	assert.False(t, hasher.Verify("Secr3t!", "not-a-hash"))
}

func TestNewPasswordHasher_EnforcesMinimumCost(t *testing.T) {
	hash, err := auth.NewPasswordHasher(4).Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultBcryptCost, cost)
}

func TestPasswordHasher_VerifyWithLegacyFallback(t *testing.T) {
	hasher := auth.NewPasswordHasher(auth.DefaultBcryptCost)
	hash, err := hasher.Hash("Secr3t!")
	require.NoError(t, err)

	tests := []struct {
		name       string
		password   string
		stored     string
		wantOK     bool
		wantLegacy bool
	}{
		{"hashed match", "Secr3t!", hash, true, false},
		{"hashed mismatch", "wrong", hash, false, false},
		{"plaintext match", "Secr3t!", "Secr3t!", true, true},
		{"plaintext mismatch", "wrong", "Secr3t!", false, false},
		{"empty stored value", "", "", false, false},
		// Presenting the stored hash itself must not authenticate.
		{"hash as password", hash, hash, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, legacy := hasher.VerifyWithLegacyFallback(tt.password, tt.stored)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLegacy, legacy)
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := auth.HashPassword("testpassword123")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("testpassword123", hash))
	assert.False(t, auth.CheckPassword("other", hash))
}
