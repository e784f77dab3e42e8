package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/garnizeh/outreach/internal/models"
)

// Job statuses as stored in the jobs table.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *models.BackgroundJob) error

// PayloadHandler adapts a handler that only needs the raw payload.
func PayloadHandler(fn func(ctx context.Context, payload json.RawMessage) error) Handler {
	return func(ctx context.Context, j *models.BackgroundJob) error {
		return fn(ctx, j.Payload)
	}
}

// ErrMaxAttempts indicates the job reached max attempts
var ErrMaxAttempts = errors.New("max attempts reached")

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	if attempt > 16 {
		attempt = 16
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
