package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "nexura"

// TokenKind separates access, refresh and password-reset tokens; a token is
// only accepted where its own kind is expected.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
	TokenReset   TokenKind = "reset"
)

// Claims carry the account id (as subject) and nothing else about the
// account. Role and organization are loaded from the store per request.
type Claims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

func (c *Claims) AccountID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

// Remaining is how long the token stays valid from now, zero if expired.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Time.Sub(now); d > 0 {
		return d
	}
	return 0
}

type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Reset   time.Duration
}

// DefaultTokenTTLs: one hour access, 30 day refresh, 10 minute reset.
func DefaultTokenTTLs() TokenTTLs {
	return TokenTTLs{
		Access:  time.Hour,
		Refresh: 30 * 24 * time.Hour,
		Reset:   10 * time.Minute,
	}
}

type JWTService struct {
	secret []byte
	ttls   TokenTTLs
}

func NewJWTService(secret string, ttls TokenTTLs) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		ttls:   ttls,
	}
}

func (s *JWTService) TTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenRefresh:
		return s.ttls.Refresh
	case TokenReset:
		return s.ttls.Reset
	default:
		return s.ttls.Access
	}
}

func (s *JWTService) SignAccess(accountID uuid.UUID) (string, error) {
	return s.sign(accountID, TokenAccess)
}

func (s *JWTService) SignRefresh(accountID uuid.UUID) (string, error) {
	return s.sign(accountID, TokenRefresh)
}

func (s *JWTService) SignReset(accountID uuid.UUID) (string, error) {
	return s.sign(accountID, TokenReset)
}

func (s *JWTService) sign(accountID uuid.UUID, kind TokenKind) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   accountID.String(),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses tokenString and checks signature, expiry and kind.
func (s *JWTService) Verify(tokenString string, kind TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Kind != kind {
		return nil, ErrInvalidToken
	}

	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}

	return claims, nil
}
