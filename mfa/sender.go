package mfa

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender is a Sender that writes codes to the structured log instead of
// delivering them. It stands in until an SMS or email gateway is wired up;
// do not use it where logs are broadly readable.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendSMS(_ context.Context, phoneNumber, code string) error {
	s.log.Info().Str("phone", maskTail(phoneNumber)).Str("code", code).Msg("mfa sms challenge")
	return nil
}

func (s *LogSender) SendEmail(_ context.Context, email, code string) error {
	s.log.Info().Str("email", email).Str("code", code).Msg("mfa email challenge")
	return nil
}

func maskTail(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
