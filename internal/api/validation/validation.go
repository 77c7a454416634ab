package validation

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

var (
	// EmailRegex validates email format
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// AddressRegex validates an EVM wallet address
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

	// CodeRegex validates an invitation code
	codeRegex = regexp.MustCompile(`^\d{6}$`)
)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidAddress checks for a 0x-prefixed, 20-byte hex wallet address
func IsValidAddress(address string) bool {
	return addressRegex.MatchString(address)
}

// IsValidCode checks the six digit invitation code format
func IsValidCode(code string) bool {
	return codeRegex.MatchString(strings.TrimSpace(code))
}

// ValidatePassword only bounds length. Existing accounts were created
// without a strength policy, so none is imposed here.
func ValidatePassword(password string) (bool, string) {
	if password == "" {
		return false, "Password is required"
	}
	if len(password) > MaxPasswordBytes {
		return false, "Password must be at most 72 bytes"
	}
	return true, ""
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// TruncateString truncates a string to maxLen runes
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
