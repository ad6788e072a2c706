package services

import (
	"context"
	"log/slog"

	"github.com/oscarbot/gateway-service/models"
)

// Mail operation identifiers, named after the notification templates they
// trigger.
const (
	MailPasswordReset   = "password_reset"
	MailStatusActivated = "status_activated"
)

// Mailer sends account notification mails. The returned string describes the
// delivery outcome and is surfaced to API consumers (mail_response).
type Mailer interface {
	Notify(ctx context.Context, operation string, user *models.User) (string, error)
}

// LogMailer is the default mailer: it records the notification instead of
// delivering it, for deployments without an outbound mail relay.
type LogMailer struct{}

// Notify logs the notification and reports it as queued.
func (LogMailer) Notify(_ context.Context, operation string, user *models.User) (string, error) {
	slog.Info("Mail notification queued",
		"operation", operation,
		"user", user.Name,
		"email", user.Email)
	return "queued: " + operation, nil
}
