// Package followup drives the bounded follow-up cadence that starts once a
// lead's outreach is sent.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/outreach/internal/delivery"
	"github.com/garnizeh/outreach/internal/metrics"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/repository"
)

// StepSource supplies the cadence of a user.
type StepSource interface {
	Steps(ctx context.Context, userID int64) ([]models.CadenceStep, error)
}

type Config struct {
	BatchSize       int
	Workers         int
	ClaimTTL        time.Duration
	DeliveryTimeout time.Duration
	PhoneRegion     string
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 10 * time.Minute
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
}

// TickStats reports what one tick did.
type TickStats struct {
	Sent    int
	Stopped int
	Failed  int
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeStopped
	outcomeFailed
)

// Sequencer sends the scripted follow-up touches. Each lead is claimed with a
// conditional write on its current step before anything is sent, so parallel
// sequencers never send the same step twice.
type Sequencer struct {
	repo   repository.FollowUpRepo
	steps  StepSource
	sender delivery.Sender
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func NewSequencer(repo repository.FollowUpRepo, steps StepSource, sender delivery.Sender, cfg Config, logger *slog.Logger) *Sequencer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{repo: repo, steps: steps, sender: sender, cfg: cfg, now: time.Now, logger: logger}
}

// SetClock replaces time.Now.
func (s *Sequencer) SetClock(now func() time.Time) { s.now = now }

// Tick processes every lead whose next touch is due.
func (s *Sequencer) Tick(ctx context.Context) (TickStats, error) {
	now := s.now()
	staleBefore := now.Add(-s.cfg.ClaimTTL)

	due, err := s.repo.ListFollowUpsDue(ctx, now, staleBefore, s.cfg.BatchSize)
	if err != nil {
		return TickStats{}, fmt.Errorf("list follow-ups due: %w", err)
	}

	results := make([]outcome, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range due {
		l := due[i]
		g.Go(func() error {
			o, err := s.process(gctx, l, now, staleBefore)
			if err != nil {
				s.logger.Error("followup: process lead", slog.Int64("lead_id", l.ID), slog.Any("err", err))
				return nil
			}
			results[i] = o
			return nil
		})
	}
	_ = g.Wait()

	var stats TickStats
	for _, o := range results {
		switch o {
		case outcomeSent:
			stats.Sent++
		case outcomeStopped:
			stats.Stopped++
		case outcomeFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *Sequencer) process(ctx context.Context, listed models.Lead, now, staleBefore time.Time) (outcome, error) {
	step := listed.FollowUpStep
	ok, err := s.repo.ClaimFollowUp(ctx, listed.ID, step, now, staleBefore)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("claim: %w", err)
	}
	if !ok {
		return outcomeSkipped, nil
	}

	// engagement may have changed since the lead was listed
	l, err := s.repo.GetLeadByID(ctx, listed.ID)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("reload: %w", err)
	}
	if l == nil {
		return outcomeSkipped, nil
	}

	if reason, stop, err := s.shouldStop(ctx, l); err != nil {
		return outcomeSkipped, err
	} else if stop {
		s.logger.Info("followup: cadence stopped", slog.Int64("lead_id", l.ID), slog.String("reason", reason))
		return s.stop(ctx, l.ID, now, "")
	}

	steps, err := s.steps.Steps(ctx, l.UserID)
	if err != nil {
		return outcomeSkipped, err
	}
	if step < 1 || step > len(steps) {
		return s.stop(ctx, l.ID, now, "")
	}

	to, channel, err := delivery.Recipient(l, s.cfg.PhoneRegion)
	if err != nil {
		return s.fail(ctx, l.ID, now, err.Error())
	}
	subject, body, err := render(steps[step-1], l)
	if err != nil {
		return s.fail(ctx, l.ID, now, err.Error())
	}

	res, err := delivery.SendWithTimeout(ctx, s.sender, delivery.Message{LeadID: l.ID, To: to, Channel: channel, Subject: subject, Body: body}, s.cfg.DeliveryTimeout)
	if err != nil {
		return s.fail(ctx, l.ID, now, err.Error())
	}
	if !res.Success {
		return s.fail(ctx, l.ID, now, res.Reason)
	}

	var nextAt *time.Time
	if step < len(steps) {
		t := now.Add(steps[step].Delay)
		nextAt = &t
	}
	// the touch went out; record it even if ctx was canceled meanwhile
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	advanced, err := s.repo.AdvanceFollowUp(wctx, l.ID, step, now, nextAt)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("advance: %w", err)
	}
	if !advanced {
		s.logger.Warn("followup: step advanced concurrently", slog.Int64("lead_id", l.ID), slog.Int("step", step))
		return outcomeSkipped, nil
	}

	metrics.RecordFollowUp("sent")
	if nextAt == nil {
		metrics.RecordFollowUp("stopped")
	}
	s.logger.Info("followup: touch sent", slog.Int64("lead_id", l.ID), slog.Int("step", step), slog.Bool("last", nextAt == nil))
	return outcomeSent, nil
}

// shouldStop applies the stop rules: hot engagement, an unreachable address,
// or a reply since the last touch.
func (s *Sequencer) shouldStop(ctx context.Context, l *models.Lead) (string, bool, error) {
	if l.EngagementLevel == models.LevelHot {
		return "engagement is hot", true, nil
	}
	if l.Unreachable {
		return "lead is unreachable", true, nil
	}

	since := l.FollowUpLastSentAt
	if since == nil {
		since = l.OutreachSentAt
	}
	if since != nil {
		replied, err := s.repo.HasReplySince(ctx, l.ID, *since)
		if err != nil {
			return "", false, fmt.Errorf("check reply: %w", err)
		}
		if replied {
			return "lead replied", true, nil
		}
	}
	return "", false, nil
}

func (s *Sequencer) stop(ctx context.Context, id int64, now time.Time, failure string) (outcome, error) {
	if err := s.repo.StopFollowUp(ctx, id, now, failure); err != nil {
		return outcomeSkipped, fmt.Errorf("stop: %w", err)
	}
	metrics.RecordFollowUp("stopped")
	return outcomeStopped, nil
}

// fail records the delivery failure and ends the cadence; failed touches are
// not retried.
func (s *Sequencer) fail(ctx context.Context, id int64, now time.Time, reason string) (outcome, error) {
	s.logger.Warn("followup: delivery failed", slog.Int64("lead_id", id), slog.String("reason", reason))
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.repo.StopFollowUp(wctx, id, now, reason); err != nil {
		return outcomeSkipped, fmt.Errorf("stop after failure: %w", err)
	}
	metrics.RecordFollowUp("failed")
	return outcomeFailed, nil
}
