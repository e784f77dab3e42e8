package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig configures the SendGrid sender.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type SendGridSender struct {
	cfg    SendGridConfig
	client *sendgrid.Client
	logger *slog.Logger
}

func NewSendGridSender(cfg SendGridConfig, logger *slog.Logger) *SendGridSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridSender{cfg: cfg, client: sendgrid.NewSendClient(cfg.APIKey), logger: logger}
}

func (s *SendGridSender) Send(ctx context.Context, m Message) (Result, error) {
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromEmail)
	to := mail.NewEmail("", m.To)
	message := mail.NewSingleEmail(from, m.Subject, to, m.Body, "")

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return Result{}, fmt.Errorf("sendgrid: %w", err)
	}

	if resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid: rejected", slog.Int64("lead_id", m.LeadID), slog.Int("status", resp.StatusCode))
		return Failed(fmt.Sprintf("sendgrid returned status %d", resp.StatusCode)), nil
	}

	var id string
	if v := resp.Headers["X-Message-Id"]; len(v) > 0 {
		id = v[0]
	}
	return Result{Success: true, ProviderMessageID: id}, nil
}
