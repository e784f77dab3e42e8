// Package delivery holds the Message Delivery Service adapters. The engine only
// hands a rendered message to a Sender and records the outcome; transport,
// provider retries and provider auth stay behind this interface.
package delivery

import (
	"context"
	"errors"
)

// Channel is the transport a recipient is reached on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound touch.
type Message struct {
	LeadID  int64
	To      string
	Channel Channel
	Subject string
	Body    string
}

// Result is the provider's verdict. A nil error with Success false is a
// provider-reported rejection; Reason says why.
type Result struct {
	Success           bool
	ProviderMessageID string
	Reason            string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) (Result, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) (Result, error)

func (f SenderFunc) Send(ctx context.Context, m Message) (Result, error) {
	return f(ctx, m)
}

var (
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrNoRoute          = errors.New("no sender for channel")
)

// Failed builds a failed Result.
func Failed(reason string) Result {
	return Result{Success: false, Reason: reason}
}
