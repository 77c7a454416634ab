// Package mail delivers transactional email: password reset links and admin
// invitation codes.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

// Invite carries what an invitee needs to finish admin sign-up.
type Invite struct {
	Code         string        `json:"code"`
	Organization string        `json:"organization"`
	Kind         string        `json:"kind"`
	ValidFor     time.Duration `json:"valid_for"`
}

type Sender interface {
	SendPasswordReset(ctx context.Context, to, link string) error
	SendAdminInvite(ctx context.Context, to string, invite Invite) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender renders messages and hands them to an SMTP relay.
type SMTPSender struct {
	addr     string
	host     string
	username string
	password string
	from     string
	send     sendFunc
	logger   *slog.Logger
}

func NewSMTPSender(host string, port int, username, password, from string, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", host, port),
		host:     host,
		username: username,
		password: password,
		from:     from,
		send:     smtp.SendMail,
		logger:   logger,
	}
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, link string) error {
	body, err := render("reset", struct{ Link string }{link})
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "Reset your Nexura password", body)
}

func (s *SMTPSender) SendAdminInvite(ctx context.Context, to string, invite Invite) error {
	data := struct {
		Organization string
		Code         string
		Minutes      int
	}{invite.Organization, invite.Code, int(invite.ValidFor.Minutes())}
	body, err := render("invite", data)
	if err != nil {
		return err
	}
	return s.deliver(ctx, to, "Your Nexura admin invitation", body)
}

func (s *SMTPSender) deliver(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	msg := buildMessage(s.from, to, subject, html)
	if err := s.send(s.addr, auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	s.logger.Debug("email sent", "to", to, "subject", subject)
	return nil
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// LogSender writes messages to the log instead of sending them. Used when no
// SMTP relay is configured. Reset links and invite codes are bearer
// credentials and never reach the log.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendPasswordReset(ctx context.Context, to, link string) error {
	s.logger.Info("password reset email (smtp disabled)", "to", to)
	return nil
}

func (s *LogSender) SendAdminInvite(ctx context.Context, to string, invite Invite) error {
	s.logger.Info("admin invite email (smtp disabled)", "to", to, "organization", invite.Organization)
	return nil
}

// Compile-time interface satisfaction checks
var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
