package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/nexura/nexura-api/internal/database/models"
	"github.com/nexura/nexura-api/internal/mail"
	"github.com/nexura/nexura-api/internal/store"
)

// DefaultInvitationTTL is how long an admin invitation code stays redeemable.
const DefaultInvitationTTL = 5 * time.Minute

const (
	codeDigits      = 6
	maxCodeAttempts = 5
)

var (
	ErrInvitationNotFound = fmt.Errorf("%w: no matching code", ErrInvitationInvalid)
	ErrInvitationExpired  = fmt.Errorf("%w: code expired", ErrInvitationInvalid)
)

// InvitationService issues and redeems single-use admin invitation codes.
type InvitationService struct {
	store  *store.Store
	mailer mail.Sender
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewInvitationService(st *store.Store, mailer mail.Sender, ttl time.Duration, logger *slog.Logger) *InvitationService {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &InvitationService{
		store:  st,
		mailer: mailer,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Issue creates an invitation binding email to org and emails the code.
func (s *InvitationService) Issue(ctx context.Context, org *models.Organization, email, role string) (*models.Invitation, error) {
	if role == "" {
		role = models.RoleAdmin
	}
	email = NormalizeEmail(email)

	var inv *models.Invitation
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generating code: %w", err)
		}

		candidate := &models.Invitation{
			Kind:           org.Kind,
			Email:          email,
			OrganizationID: org.ID,
			Role:           role,
			Code:           code,
			ExpiresAt:      s.now().Add(s.ttl),
		}
		err = s.store.CreateInvitation(ctx, candidate)
		if store.IsDuplicateKey(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		inv = candidate
		break
	}
	if inv == nil {
		return nil, errors.New("could not allocate a unique invitation code")
	}

	err := s.mailer.SendAdminInvite(ctx, email, mail.Invite{
		Code:         inv.Code,
		Organization: org.Name,
		Kind:         string(org.Kind),
		ValidFor:     s.ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("sending invitation: %w", err)
	}

	s.logger.Info("admin invitation issued",
		"organization_id", org.ID,
		"kind", org.Kind,
		"expires_at", inv.ExpiresAt,
	)
	return inv, nil
}

// Redeem consumes the invitation for (kind, code, email) and runs fn in the
// same transaction. A code is redeemable once, and only before it expires.
func (s *InvitationService) Redeem(
	ctx context.Context,
	kind models.OrgKind,
	code, email string,
	fn func(tx *store.Store, inv *models.Invitation) error,
) error {
	err := s.store.RedeemInvitation(ctx, kind, code, NormalizeEmail(email), s.now(), fn)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrInvitationNotFound
	case errors.Is(err, store.ErrExpired):
		return ErrInvitationExpired
	default:
		return err
	}
}

// Purge removes invitations that expired before now.
func (s *InvitationService) Purge(ctx context.Context) (int64, error) {
	return s.store.PurgeExpiredInvitations(ctx, s.now())
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
