package delivery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogSender logs messages instead of sending them. Used in development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, m Message) (Result, error) {
	id := uuid.NewString()
	s.logger.Info("delivery: message not sent (log provider)",
		slog.Int64("lead_id", m.LeadID),
		slog.String("to", m.To),
		slog.String("channel", string(m.Channel)),
		slog.String("subject", m.Subject),
		slog.Int("body_len", len(m.Body)),
		slog.String("provider_message_id", id),
	)
	return Result{Success: true, ProviderMessageID: id}, nil
}
