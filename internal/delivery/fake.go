package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is an in-memory Sender for tests and demos. Addresses listed in Reject
// fail; Delay simulates a slow provider and honors ctx.
type Fake struct {
	Reject map[string]string
	Delay  time.Duration

	mu   sync.Mutex
	sent []Message
}

func NewFake() *Fake {
	return &Fake{Reject: map[string]string{}}
}

func (f *Fake) Send(ctx context.Context, m Message) (Result, error) {
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-t.C:
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if reason, ok := f.Reject[m.To]; ok {
		return Failed(reason), nil
	}
	f.sent = append(f.sent, m)
	return Result{Success: true, ProviderMessageID: uuid.NewString()}, nil
}

// Sent returns a copy of the delivered messages.
func (f *Fake) Sent() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentTo counts deliveries to addr.
func (f *Fake) SentTo(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.To == addr {
			n++
		}
	}
	return n
}
