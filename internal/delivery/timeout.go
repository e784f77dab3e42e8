package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrTimeout = errors.New("delivery timed out")

// SendWithTimeout bounds a Send call. Some providers ignore the context (SMTP),
// so the call runs in its own goroutine and the caller stops waiting at the
// deadline. A timeout is reported as an error, never as success.
func SendWithTimeout(ctx context.Context, s Sender, m Message, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		return s.Send(ctx, m)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.Send(ctx, m)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}
