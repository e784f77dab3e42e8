package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// SMTPSender delivers email through an SMTP relay. Each message gets its own
// Message-ID, which is returned as the provider message id.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	logger *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		logger: logger,
	}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	msgID := fmt.Sprintf("<%s@outreach>", uuid.NewString())
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.cfg.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetHeader("Message-ID", msgID)
	msg.SetBody("text/plain", m.Body)

	// gomail has no context support; the dispatcher bounds the call.
	if err := s.dialer.DialAndSend(msg); err != nil {
		s.logger.Warn("smtp: send failed", slog.Int64("lead_id", m.LeadID), slog.Any("err", err))
		return Failed(fmt.Sprintf("smtp: %v", err)), nil
	}

	return Result{Success: true, ProviderMessageID: msgID}, nil
}
