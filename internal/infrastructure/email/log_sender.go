package email

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/application/auth"
)

// LogSender writes messages to the log instead of delivering them. Dev only:
// reset links end up in the log output.
type LogSender struct {
	lg zerolog.Logger
}

func NewLogSender(lg zerolog.Logger) *LogSender {
	return &LogSender{lg: lg.With().Str("component", "log_sender").Logger()}
}

func (s *LogSender) Send(ctx context.Context, msg auth.Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lg.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.Body).
		Msg("email (not delivered)")
	return nil
}
