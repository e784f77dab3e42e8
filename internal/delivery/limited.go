package delivery

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited caps the rate at which the wrapped sender is called. Waiting honors
// the context, so a dispatcher timeout also bounds time spent in the limiter.
type Limited struct {
	next    Sender
	limiter *rate.Limiter
}

// NewLimited allows perSecond sends with the given burst. A non-positive rate
// disables limiting.
func NewLimited(next Sender, perSecond float64, burst int) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Send(ctx context.Context, m Message) (Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}
	return l.next.Send(ctx, m)
}
