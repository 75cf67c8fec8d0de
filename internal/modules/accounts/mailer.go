package accounts

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers account e-mails (credentials, password resets).
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct {
	from string
	log  zerolog.Logger
}

// NewLogMailer creates a mailer that logs messages sent from from.
func NewLogMailer(from string, log zerolog.Logger) *LogMailer {
	return &LogMailer{
		from: from,
		log:  log.With().Str("component", "mailer").Logger(),
	}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info().
		Str("from", m.from).
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("Outgoing email")
	return nil
}
