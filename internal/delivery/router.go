package delivery

import (
	"context"
	"fmt"
)

// Router sends each message through the sender registered for its channel.
type Router struct {
	senders map[Channel]Sender
}

func NewRouter(senders map[Channel]Sender) *Router {
	m := make(map[Channel]Sender, len(senders))
	for ch, s := range senders {
		if s != nil {
			m[ch] = s
		}
	}
	return &Router{senders: m}
}

func (r *Router) Send(ctx context.Context, m Message) (Result, error) {
	s, ok := r.senders[m.Channel]
	if !ok {
		return Failed(fmt.Sprintf("%v: %s", ErrNoRoute, m.Channel)), nil
	}
	return s.Send(ctx, m)
}
