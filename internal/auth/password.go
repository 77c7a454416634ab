package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the minimum work factor accepted for new hashes.
const DefaultBcryptCost = 10

// PasswordHasher hashes and verifies account passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < DefaultBcryptCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares password against a bcrypt hash. Any error, including a
// stored value that is not a bcrypt hash at all, is a mismatch.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyWithLegacyFallback is Verify plus one extra check for rows written
// by an old sign-up path that stored the plaintext as the hash. legacy is
// true only when the bcrypt check failed and the literal comparison
// matched; the caller must rehash before trusting the account further.
// Only the sign-in flow may call this.
func (h *PasswordHasher) VerifyWithLegacyFallback(password, stored string) (ok, legacy bool) {
	if h.Verify(password, stored) {
		return true, false
	}
	if stored == "" || isBcryptHash(stored) {
		return false, false
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1 {
		return true, true
	}
	return false, false
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// HashPassword hashes with the default cost.
func HashPassword(password string) (string, error) {
	return NewPasswordHasher(DefaultBcryptCost).Hash(password)
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return NewPasswordHasher(DefaultBcryptCost).Verify(password, hash)
}
