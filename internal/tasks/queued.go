package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/nexura/nexura-api/internal/mail"
)

var errQueueUnavailable = errors.New("task queue unavailable")

// Enqueuer is the part of *asynq.Client used to hand work to the worker.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueuedSender implements mail.Sender by enqueueing email tasks for the
// worker. When the queue rejects a task the message is sent directly through
// fallback instead, so a Redis outage does not stop password resets.
type QueuedSender struct {
	queue    Enqueuer
	fallback mail.Sender
	logger   *slog.Logger
}

func NewQueuedSender(queue Enqueuer, fallback mail.Sender, logger *slog.Logger) *QueuedSender {
	return &QueuedSender{queue: queue, fallback: fallback, logger: logger}
}

func (s *QueuedSender) SendPasswordReset(ctx context.Context, to, link string) error {
	task, err := NewPasswordResetEmailTask(PasswordResetEmailPayload{To: to, Link: link})
	if err == nil {
		if err = s.enqueue(ctx, task); err == nil {
			return nil
		}
	}
	s.logger.Warn("enqueue failed, sending password reset directly", "to", to, "error", err)
	return s.fallback.SendPasswordReset(ctx, to, link)
}

func (s *QueuedSender) SendAdminInvite(ctx context.Context, to string, invite mail.Invite) error {
	task, err := NewAdminInviteEmailTask(AdminInviteEmailPayload{To: to, Invite: invite})
	if err == nil {
		if err = s.enqueue(ctx, task); err == nil {
			return nil
		}
	}
	s.logger.Warn("enqueue failed, sending admin invite directly", "to", to, "error", err)
	return s.fallback.SendAdminInvite(ctx, to, invite)
}

func (s *QueuedSender) enqueue(ctx context.Context, task *asynq.Task) error {
	if s.queue == nil {
		return errQueueUnavailable
	}
	info, err := s.queue.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	s.logger.Debug("enqueued task", "type", task.Type(), "id", info.ID, "queue", info.Queue)
	return nil
}

var _ mail.Sender = (*QueuedSender)(nil)
