package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nexura/nexura-api/internal/mail"
)

// Task type names
const (
	TypePasswordResetEmail = "email:password_reset"
	TypeAdminInviteEmail   = "email:admin_invite"
	TypePurgeInvitations   = "invitations:purge"
)

// Queue names, matching the weights in pkg/queue.
const (
	QueueCritical = "critical"
	QueueLow      = "low"
)

// PasswordResetEmailPayload contains the data for a password reset email
type PasswordResetEmailPayload struct {
	To   string `json:"to"`
	Link string `json:"link"`
}

// Reset links expire with the token they carry, so retries stop well before
// the default JWT_RESET_TTL_MINUTES.
func NewPasswordResetEmailTask(payload PasswordResetEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePasswordResetEmail, data,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	), nil
}

// AdminInviteEmailPayload contains the data for an admin invitation email
type AdminInviteEmailPayload struct {
	To string `json:"to"`
	mail.Invite
}

func NewAdminInviteEmailTask(payload AdminInviteEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAdminInviteEmail, data,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
	), nil
}

// PurgeInvitationsPayload is empty - every expired invitation is removed
type PurgeInvitationsPayload struct{}

func NewPurgeInvitationsTask() *asynq.Task {
	return asynq.NewTask(TypePurgeInvitations, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))
}
