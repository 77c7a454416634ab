package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/database/models"
)

// SessionManager defines the account and session operations served over HTTP.
type SessionManager interface {
	SignUp(ctx context.Context, in SignUpInput) (*Session, error)
	SignUpAdmin(ctx context.Context, in AdminSignUpInput) (*Session, error)
	SignIn(ctx context.Context, in SignInInput) (*Session, error)
	Refresh(ctx context.Context, kind models.OrgKind, refreshToken string) (*Session, error)
	ForgotPassword(ctx context.Context, kind models.OrgKind, email, role string) error
	ResetPassword(ctx context.Context, kind models.OrgKind, token, password string) error
	Logout(ctx context.Context, accessToken, refreshToken string) error
	InviteAdmin(ctx context.Context, inviter *models.Account, email, role string) (*models.Invitation, error)
}

// Authenticator resolves bearer tokens for the auth middleware.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Account, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	SignAccess(accountID uuid.UUID) (string, error)
	SignRefresh(accountID uuid.UUID) (string, error)
	SignReset(accountID uuid.UUID) (string, error)
	Verify(tokenString string, kind TokenKind) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ SessionManager  = (*Service)(nil)
	_ Authenticator   = (*Service)(nil)
	_ TokenService    = (*JWTService)(nil)
	_ RevocationStore = (*RedisRevocationStore)(nil)
)
