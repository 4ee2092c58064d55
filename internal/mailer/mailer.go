// Package mailer provides EmailSender implementations. Message content and
// templating live with the delivery provider, not here.
package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer writes would-be sends to the log. Used in development and in
// tests; production wires a real provider behind the same interface.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendPasswordReset logs the reset dispatch. The raw token is deliberately
// not logged.
func (m *LogMailer) SendPasswordReset(ctx context.Context, email, rawToken string) error {
	m.logger.Info("password reset email dispatched",
		zap.String("email", email),
		zap.Int("token_length", len(rawToken)),
	)
	return nil
}
