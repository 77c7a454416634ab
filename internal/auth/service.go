package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/mail"
	"github.com/nexura/nexura-api/internal/metrics"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/internal/upload"
	"golang.org/x/crypto/bcrypt"
)

// DefaultLogoutRevokeTTL outlives every access token the service issues.
const DefaultLogoutRevokeTTL = 7 * 24 * time.Hour

// Service orchestrates sign-up, sign-in, token refresh, logout, password
// reset and admin invitations for hubs and projects.
type Service struct {
	store       *store.Store
	hasher      *PasswordHasher
	tokens      *JWTService
	revocations RevocationStore
	invitations *InvitationService
	reconciler  *Reconciler
	mailer      mail.Sender
	uploader    upload.Uploader
	metrics     *metrics.Metrics
	logger      *slog.Logger
	clientURL   string
	logoutTTL   time.Duration

	// dummyHash is compared against when no account matches, so unknown
	// emails cost the same bcrypt work as wrong passwords.
	dummyHash string
}

type ServiceConfig struct {
	Store       *store.Store
	Hasher      *PasswordHasher
	Tokens      *JWTService
	Revocations RevocationStore
	Invitations *InvitationService
	Reconciler  *Reconciler
	Mailer      mail.Sender
	Uploader    upload.Uploader // nil disables logo uploads
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	ClientURL   string
	LogoutTTL   time.Duration
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.LogoutTTL <= 0 {
		cfg.LogoutTTL = DefaultLogoutRevokeTTL
	}
	dummy, err := cfg.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("preparing dummy hash: %w", err)
	}

	return &Service{
		store:       cfg.Store,
		hasher:      cfg.Hasher,
		tokens:      cfg.Tokens,
		revocations: cfg.Revocations,
		invitations: cfg.Invitations,
		reconciler:  cfg.Reconciler,
		mailer:      cfg.Mailer,
		uploader:    cfg.Uploader,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		clientURL:   strings.TrimRight(cfg.ClientURL, "/"),
		logoutTTL:   cfg.LogoutTTL,
		dummyHash:   dummy,
	}, nil
}

type LogoFile struct {
	Data     []byte
	Filename string
}

type SignUpInput struct {
	Kind        models.OrgKind
	Name        string
	Email       string
	Password    string
	Address     string
	Description string
	Logo        *LogoFile
}

type AdminSignUpInput struct {
	Kind     models.OrgKind
	Email    string
	Code     string
	Password string
	Name     string
	Address  string
}

type SignInInput struct {
	Kind     models.OrgKind
	Email    string
	Password string
	Role     string // project only: "project" (owner, default) or "admin"
}

// Session is an issued token pair. The refresh token must only ever be
// delivered in an HTTP-only cookie.
type Session struct {
	AccessToken  string
	RefreshToken string
	Account      *models.Account
}

// NormalizeEmail is applied before every store write or lookup by email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an owner account and its organization.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	errs := fieldErrors{}
	errs.require("name", in.Name)
	errs.require("email", in.Email)
	errs.require("password", in.Password)
	if err := errs.err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	account := &models.Account{
		Base:        models.Base{ID: uuid.New()},
		Variant:     in.Kind.OwnerVariant(),
		Email:       NormalizeEmail(in.Email),
		Role:        in.Kind.OwnerRole(),
		Name:        name,
		Address:     strings.TrimSpace(in.Address),
		Description: strings.TrimSpace(in.Description),
	}

	org := &models.Organization{
		Kind:        in.Kind,
		Name:        name,
		Address:     account.Address,
		Description: account.Description,
	}
	if org.Address == "" {
		org.Address = PlaceholderAddress(account.ID)
		org.AddressPlaceholder = true
	}

	logo, err := s.resolveLogo(ctx, in.Kind, name, in.Logo)
	if err != nil {
		return nil, err
	}
	account.Logo = logo
	org.Logo = logo

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	account.PasswordHash = hash

	if err := s.store.CreateOwnerWithOrganization(ctx, account, org); err != nil {
		s.metrics.AuthEvent(string(in.Kind), "sign_up", metrics.OutcomeFailure)
		return nil, err
	}

	s.logger.Info("organization signed up",
		"kind", in.Kind,
		"account_id", account.ID,
		"organization_id", org.ID,
	)
	s.metrics.AuthEvent(string(in.Kind), "sign_up", metrics.OutcomeSuccess)
	return s.issue(account)
}

func (s *Service) resolveLogo(ctx context.Context, kind models.OrgKind, name string, logo *LogoFile) (string, error) {
	if logo == nil || len(logo.Data) == 0 {
		return upload.PlaceholderLogo(name), nil
	}
	if s.uploader == nil {
		s.logger.Warn("logo upload skipped, object storage not configured", "kind", kind)
		return upload.PlaceholderLogo(name), nil
	}

	location, err := s.uploader.Upload(ctx, logo.Data, logo.Filename, string(kind)+"-logos")
	if errors.Is(err, upload.ErrInvalidImage) {
		return "", &ValidationError{Fields: map[string]string{"logo": err.Error()}}
	}
	if err != nil {
		return "", fmt.Errorf("uploading logo: %w", err)
	}
	return location, nil
}

// SignUpAdmin creates an admin account from an invitation. The invitation is
// consumed in the same transaction that inserts the account.
func (s *Service) SignUpAdmin(ctx context.Context, in AdminSignUpInput) (*Session, error) {
	errs := fieldErrors{}
	errs.require("email", in.Email)
	errs.require("code", in.Code)
	errs.require("password", in.Password)
	if err := errs.err(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	var account *models.Account
	err = s.invitations.Redeem(ctx, in.Kind, strings.TrimSpace(in.Code), email,
		func(tx *store.Store, inv *models.Invitation) error {
			orgID := inv.OrganizationID
			account = &models.Account{
				Variant:        in.Kind.AdminVariant(),
				Email:          email,
				PasswordHash:   hash,
				Role:           inv.Role,
				OrganizationID: &orgID,
				Name:           strings.TrimSpace(in.Name),
				Address:        strings.TrimSpace(in.Address),
			}
			return tx.CreateAccount(ctx, account)
		})
	if err != nil {
		s.metrics.AuthEvent(string(in.Kind), "admin_sign_up", metrics.OutcomeFailure)
		return nil, err
	}

	s.logger.Info("admin signed up",
		"kind", in.Kind,
		"account_id", account.ID,
		"organization_id", *account.OrganizationID,
	)
	s.metrics.AuthEvent(string(in.Kind), "admin_sign_up", metrics.OutcomeSuccess)
	return s.issue(account)
}

// SignIn authenticates by email and password, repairs legacy account state
// and issues a token pair. Unknown email and wrong password fail identically.
func (s *Service) SignIn(ctx context.Context, in SignInInput) (*Session, error) {
	errs := fieldErrors{}
	errs.require("email", in.Email)
	errs.require("password", in.Password)
	if err := errs.err(); err != nil {
		return nil, err
	}

	variants, err := credentialSpaces(in.Kind, in.Role)
	if err != nil {
		return nil, err
	}

	account, legacy, err := s.authenticate(ctx, variants, NormalizeEmail(in.Email), in.Password)
	if err != nil {
		s.metrics.AuthEvent(string(in.Kind), "sign_in", metrics.OutcomeFailure)
		return nil, err
	}

	if legacy {
		err := s.rehash(ctx, account, in.Password)
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			// bcrypt cannot hold this plaintext; the owner has to reset it.
			s.logger.Warn("legacy password exceeds bcrypt limit, reset required",
				"account_id", account.ID,
				"variant", account.Variant,
			)
			s.metrics.AuthEvent(string(in.Kind), "sign_in", metrics.OutcomeFailure)
			return nil, ErrInvalidCredentials
		}
		if err != nil {
			return nil, err
		}
	}

	if err := s.reconciler.Reconcile(ctx, account); err != nil {
		return nil, err
	}

	s.metrics.AuthEvent(string(in.Kind), "sign_in", metrics.OutcomeSuccess)
	return s.issue(account)
}

func (s *Service) authenticate(ctx context.Context, variants []models.Variant, email, password string) (*models.Account, bool, error) {
	found := false
	for _, variant := range variants {
		account, err := s.store.FindAccountByEmail(ctx, variant, email)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}

		found = true
		if ok, legacy := s.hasher.VerifyWithLegacyFallback(password, account.PasswordHash); ok {
			return account, legacy, nil
		}
	}

	if !found {
		s.hasher.Verify(password, s.dummyHash)
	}
	return nil, false, ErrInvalidCredentials
}

func (s *Service) rehash(ctx context.Context, account *models.Account, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.store.UpdateAccount(ctx, account.ID, map[string]interface{}{"password_hash": hash}); err != nil {
		return fmt.Errorf("persisting rehashed password: %w", err)
	}
	account.PasswordHash = hash

	s.metrics.Repair(metrics.RepairPassword)
	s.logger.Warn("rehashed plaintext password", "account_id", account.ID, "variant", account.Variant)
	return nil
}

// credentialSpaces maps a route kind and optional role to the account
// variants searched by email.
func credentialSpaces(kind models.OrgKind, role string) ([]models.Variant, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch kind {
	case models.OrgKindHub:
		switch role {
		case "":
			return []models.Variant{models.VariantHubSuperAdmin, models.VariantHubAdmin}, nil
		case models.RoleSuperAdmin:
			return []models.Variant{models.VariantHubSuperAdmin}, nil
		case models.RoleAdmin:
			return []models.Variant{models.VariantHubAdmin}, nil
		}
	case models.OrgKindProject:
		switch role {
		case "", "project", models.RoleOwner:
			return []models.Variant{models.VariantProjectOwner}, nil
		case models.RoleAdmin:
			return []models.Variant{models.VariantProjectAdmin}, nil
		}
	}
	return nil, &ValidationError{Fields: map[string]string{"role": "role must be one of the account types for this route"}}
}

func (s *Service) issue(account *models.Account) (*Session, error) {
	access, err := s.tokens.SignAccess(account.ID)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	refresh, err := s.tokens.SignRefresh(account.ID)
	if err != nil {
		return nil, fmt.Errorf("signing refresh token: %w", err)
	}
	return &Session{AccessToken: access, RefreshToken: refresh, Account: account}, nil
}

// Refresh rotates a refresh token: the presented one is consumed and a new
// pair is issued. A refresh token works once.
func (s *Service) Refresh(ctx context.Context, kind models.OrgKind, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	account, err := s.accountFromClaims(ctx, claims, kind)
	if err != nil {
		return nil, err
	}

	first, err := s.revocations.Consume(ctx, refreshToken, claims.Remaining(time.Now()))
	if err != nil {
		return nil, err
	}
	if !first {
		s.logger.Warn("refresh token reuse", "account_id", account.ID)
		return nil, ErrTokenInvalid
	}

	s.metrics.AuthEvent(string(kind), "refresh", metrics.OutcomeSuccess)
	return s.issue(account)
}

// ForgotPassword emails a 10 minute reset link. Unlike sign-in this reports
// unknown emails as ErrAccountNotFound, which the HTTP layer turns into 404.
func (s *Service) ForgotPassword(ctx context.Context, kind models.OrgKind, email, role string) error {
	errs := fieldErrors{}
	errs.require("email", email)
	if err := errs.err(); err != nil {
		return err
	}

	variants, err := credentialSpaces(kind, role)
	if err != nil {
		return err
	}

	email = NormalizeEmail(email)
	var account *models.Account
	for _, variant := range variants {
		account, err = s.store.FindAccountByEmail(ctx, variant, email)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if account == nil {
		s.metrics.AuthEvent(string(kind), "forgot_password", metrics.OutcomeFailure)
		return ErrAccountNotFound
	}

	token, err := s.tokens.SignReset(account.ID)
	if err != nil {
		return fmt.Errorf("signing reset token: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, account.Email, s.resetLink(kind, token)); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}

	s.metrics.AuthEvent(string(kind), "forgot_password", metrics.OutcomeSuccess)
	return nil
}

func (s *Service) resetLink(kind models.OrgKind, token string) string {
	return fmt.Sprintf("%s/%s/reset-password?token=%s", s.clientURL, kind, url.QueryEscape(token))
}

// ResetPassword redeems a reset token once and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, kind models.OrgKind, token, password string) error {
	errs := fieldErrors{}
	errs.require("token", token)
	errs.require("password", password)
	if err := errs.err(); err != nil {
		return err
	}

	claims, err := s.tokens.Verify(token, TokenReset)
	if err != nil {
		return ErrTokenInvalid
	}

	used, err := s.revocations.IsRevoked(ctx, token)
	if err != nil {
		return err
	}
	if used {
		return ErrTokenAlreadyUsed
	}

	account, err := s.accountFromClaims(ctx, claims, kind)
	if errors.Is(err, ErrTokenInvalid) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	// Consume before writing so two concurrent resets cannot both land.
	first, err := s.revocations.Consume(ctx, token, s.tokens.TTL(TokenReset))
	if err != nil {
		return err
	}
	if !first {
		return ErrTokenAlreadyUsed
	}

	if err := s.store.UpdateAccount(ctx, account.ID, map[string]interface{}{"password_hash": hash}); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.logger.Info("password reset", "account_id", account.ID)
	s.metrics.AuthEvent(string(kind), "reset_password", metrics.OutcomeSuccess)
	return nil
}

// Logout denies the access token for the logout window and the refresh
// token, if one is presented, for the rest of its life.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.revocations.Revoke(ctx, accessToken, s.logoutTTL); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil
	}
	return s.revocations.Revoke(ctx, refreshToken, claims.Remaining(time.Now()))
}

// InviteAdmin issues an invitation to the inviter's organization.
func (s *Service) InviteAdmin(ctx context.Context, inviter *models.Account, email, role string) (*models.Invitation, error) {
	errs := fieldErrors{}
	errs.require("email", email)
	if err := errs.err(); err != nil {
		return nil, err
	}
	if !inviter.Variant.IsOwner() {
		return nil, ErrForbidden
	}
	if !inviter.Linked() {
		return nil, ErrOrganizationMissing
	}

	if role = strings.ToLower(strings.TrimSpace(role)); role == "" {
		role = models.RoleAdmin
	}
	if role != models.RoleAdmin {
		return nil, &ValidationError{Fields: map[string]string{"role": "only admin invitations are supported"}}
	}

	email = NormalizeEmail(email)
	kind := inviter.Variant.OrgKind()
	_, err := s.store.FindAccountByEmail(ctx, kind.AdminVariant(), email)
	if err == nil {
		return nil, &store.DuplicateKeyError{Fields: []string{"email"}}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	org, err := s.store.FindOrganizationByID(ctx, *inviter.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrganizationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}

	return s.invitations.Issue(ctx, org, email, role)
}

// Authenticate resolves a bearer access token to its account, rejecting
// revoked tokens. Role and organization come from the store, not the token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Account, error) {
	claims, err := s.tokens.Verify(accessToken, TokenAccess)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	revoked, err := s.revocations.IsRevoked(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	id, err := claims.AccountID()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	account, err := s.store.FindAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenInvalid
	}
	return account, err
}

func (s *Service) accountFromClaims(ctx context.Context, claims *Claims, kind models.OrgKind) (*models.Account, error) {
	id, err := claims.AccountID()
	if err != nil {
		return nil, ErrTokenInvalid
	}
	account, err := s.store.FindAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if account.Variant.OrgKind() != kind {
		return nil, ErrTokenInvalid
	}
	return account, nil
}
