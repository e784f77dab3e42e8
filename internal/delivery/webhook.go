package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender posts messages as JSON to an HTTP gateway. It is used for SMS
// where the gateway owns the carrier integration.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

type webhookPayload struct {
	LeadID  int64  `json:"lead_id"`
	To      string `json:"to"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type webhookResponse struct {
	ID string `json:"id"`
}

func (s *WebhookSender) Send(ctx context.Context, m Message) (Result, error) {
	b, err := json.Marshal(webhookPayload{LeadID: m.LeadID, To: m.To, Channel: string(m.Channel), Subject: m.Subject, Body: m.Body})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(fmt.Sprintf("webhook returned status %d", resp.StatusCode)), nil
	}

	var out webhookResponse
	_ = json.Unmarshal(body, &out)
	return Result{Success: true, ProviderMessageID: out.ID}, nil
}
