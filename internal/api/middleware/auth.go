package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database/models"
)

type contextKey string

const (
	AccountKey     contextKey = "account"
	AccessTokenKey contextKey = "access_token"
)

// Auth resolves the bearer token to an account through the authenticator,
// which also rejects revoked tokens.
func Auth(authenticator auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			account, err := authenticator.Authenticate(r.Context(), token)
			if errors.Is(err, auth.ErrTokenInvalid) {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), AccountKey, account)
			ctx = context.WithValue(ctx, AccessTokenKey, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	// 1. Authorization header
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// 2. X-Auth-Token header (localStorage fallback for AJAX)
	return r.Header.Get("X-Auth-Token")
}

// Helper functions to extract values from context
func GetAccount(ctx context.Context) *models.Account {
	if account, ok := ctx.Value(AccountKey).(*models.Account); ok {
		return account
	}
	return nil
}

func GetAccountID(ctx context.Context) uuid.UUID {
	if account := GetAccount(ctx); account != nil {
		return account.ID
	}
	return uuid.Nil
}

func GetAccessToken(ctx context.Context) string {
	if token, ok := ctx.Value(AccessTokenKey).(string); ok {
		return token
	}
	return ""
}

// RequireKind rejects accounts that belong to the other organization kind,
// so a hub token cannot be used on project routes and vice versa.
func RequireKind(kind models.OrgKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := GetAccount(r.Context())
			if account == nil || account.Variant.OrgKind() != kind {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOwner ensures the account owns its organization
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := GetAccount(r.Context())
		if account == nil || !account.Variant.IsOwner() {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
