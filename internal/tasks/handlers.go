package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nexura/nexura-api/internal/mail"
)

// InvitationPurger removes expired invitation codes.
type InvitationPurger interface {
	Purge(ctx context.Context) (int64, error)
}

type Handler struct {
	sender      mail.Sender
	invitations InvitationPurger
	logger      *slog.Logger
}

func NewHandler(sender mail.Sender, invitations InvitationPurger, logger *slog.Logger) *Handler {
	return &Handler{
		sender:      sender,
		invitations: invitations,
		logger:      logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePasswordResetEmail, h.HandlePasswordResetEmail)
	mux.HandleFunc(TypeAdminInviteEmail, h.HandleAdminInviteEmail)
	mux.HandleFunc(TypePurgeInvitations, h.HandlePurgeInvitations)
}

func (h *Handler) HandlePasswordResetEmail(ctx context.Context, t *asynq.Task) error {
	var payload PasswordResetEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.sender.SendPasswordReset(ctx, payload.To, payload.Link); err != nil {
		h.logger.Error("password reset email failed", "to", payload.To, "error", err)
		return err
	}

	h.logger.Info("sent password reset email", "to", payload.To)
	return nil
}

func (h *Handler) HandleAdminInviteEmail(ctx context.Context, t *asynq.Task) error {
	var payload AdminInviteEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.sender.SendAdminInvite(ctx, payload.To, payload.Invite); err != nil {
		h.logger.Error("admin invite email failed",
			"to", payload.To,
			"organization", payload.Organization,
			"error", err,
		)
		return err
	}

	h.logger.Info("sent admin invite email",
		"to", payload.To,
		"organization", payload.Organization,
		"kind", payload.Kind,
	)
	return nil
}

func (h *Handler) HandlePurgeInvitations(ctx context.Context, t *asynq.Task) error {
	purged, err := h.invitations.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purge invitations: %w", err)
	}

	if purged > 0 {
		h.logger.Info("purged expired invitations", "count", purged)
	}
	return nil
}
