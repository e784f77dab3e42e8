// Package dispatch turns due outreach into delivered messages exactly once.
//
// Every send starts with a claim: a conditional UPDATE that only one worker
// can win. The winner re-reads the lead, calls the delivery provider under a
// timeout, and records either the sent marker or a terminal failure. Nothing
// in process memory decides whether a lead was sent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/outreach/internal/delivery"
	"github.com/garnizeh/outreach/internal/metrics"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/outreach"
	"github.com/garnizeh/outreach/pkg/repository"
)

// StaleClaimReason is recorded on leads whose claim expired before the send
// was confirmed.
const StaleClaimReason = models.StaleClaimReason

// defaultFirstDelay is used when the cadence cannot be loaded after a send.
const defaultFirstDelay = 48 * time.Hour

// CadenceSource tells when the first follow-up is due after a send.
type CadenceSource interface {
	FirstDelay(ctx context.Context, userID int64) (time.Duration, error)
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

type Dispatcher struct {
	repo    repository.DispatchRepo
	cadence CadenceSource
	sender  delivery.Sender
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

var _ outreach.Dispatcher = (*Dispatcher)(nil)

func New(repo repository.DispatchRepo, cadence CadenceSource, sender delivery.Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DeliveryTimeout >= cfg.ClaimTTL {
		logger.Warn("dispatch: delivery timeout not below claim ttl, clamping",
			slog.Duration("delivery_timeout", cfg.DeliveryTimeout), slog.Duration("claim_ttl", cfg.ClaimTTL))
		cfg.DeliveryTimeout = cfg.ClaimTTL / 2
	}
	return &Dispatcher{repo: repo, cadence: cadence, sender: sender, cfg: cfg, now: time.Now, logger: logger}
}

// SetClock replaces time.Now.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Tick fails expired claims, then sends every lead that is due.
func (d *Dispatcher) Tick(ctx context.Context) (models.BatchResult, error) {
	now := d.now()

	n, err := d.repo.FailStaleClaims(ctx, now.Add(-d.cfg.ClaimTTL), now, StaleClaimReason)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("fail stale claims: %w", err)
	}
	if n > 0 {
		metrics.RecordStaleClaims(n)
		d.logger.Warn("dispatch: stale claims marked as failed", slog.Int64("count", n))
	}

	due, err := d.repo.ListDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("list due: %w", err)
	}
	return d.run(ctx, due, now), nil
}

// SendAllDue sends all of the user's due leads. One failure never stops the
// rest; a lead claimed by another worker counts as neither sent nor failed.
func (d *Dispatcher) SendAllDue(ctx context.Context, userID int64) (models.BatchResult, error) {
	now := d.now()
	due, err := d.repo.ListDueForUser(ctx, userID, now)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("list due: %w", err)
	}
	return d.run(ctx, due, now), nil
}

// SendNow delivers one lead immediately, whether or not it is scheduled. A
// lead in send_failed can be retried this way.
func (d *Dispatcher) SendNow(ctx context.Context, userID, leadID int64) (*models.Lead, error) {
	l, err := d.repo.GetLeadByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if l == nil || l.UserID != userID {
		return nil, outreach.ErrNotFound
	}
	if l.IsSent() || l.SendClaimedAt != nil {
		return nil, outreach.ErrAlreadySent
	}
	if !l.HasDraft() {
		return nil, outreach.ErrNoDraft
	}

	sendErr := d.deliver(ctx, l.ID, d.now(), true)
	if errors.Is(sendErr, outreach.ErrClaimLost) {
		// the lead changed between the read and the claim
		fresh, err := d.repo.GetLeadByID(ctx, leadID)
		switch {
		case err != nil:
			return nil, fmt.Errorf("get lead: %w", err)
		case fresh == nil:
			return nil, outreach.ErrNotFound
		case fresh.IsSent() || fresh.SendClaimedAt != nil:
			return nil, outreach.ErrAlreadySent
		case !fresh.HasDraft():
			return nil, outreach.ErrNoDraft
		}
		return nil, outreach.ErrConflict
	}
	if sendErr != nil && !errors.Is(sendErr, outreach.ErrDeliveryFailure) {
		return nil, sendErr
	}

	fresh, err := d.repo.GetLeadByID(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return fresh, sendErr
}

func (d *Dispatcher) run(ctx context.Context, due []models.Lead, now time.Time) models.BatchResult {
	type verdict int
	const (
		skipped verdict = iota
		sent
		failed
	)

	results := make([]verdict, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range due {
		id := due[i].ID
		g.Go(func() error {
			err := d.deliver(gctx, id, now, false)
			switch {
			case err == nil:
				results[i] = sent
			case errors.Is(err, outreach.ErrDeliveryFailure):
				results[i] = failed
			case errors.Is(err, outreach.ErrClaimLost):
			default:
				d.logger.Error("dispatch: lead", slog.Int64("lead_id", id), slog.Any("err", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	var res models.BatchResult
	for _, v := range results {
		switch v {
		case sent:
			res.Sent++
		case failed:
			res.Failed++
		}
	}
	return res
}

// deliver claims the lead and sends it. It returns nil on a confirmed send,
// ErrClaimLost when another worker owns the lead, and ErrDeliveryFailure when
// the failure was recorded on the lead.
func (d *Dispatcher) deliver(ctx context.Context, id int64, now time.Time, direct bool) error {
	ok, err := d.repo.ClaimSend(ctx, id, now, direct)
	if err != nil {
		return fmt.Errorf("claim lead %d: %w", id, err)
	}
	if !ok {
		metrics.RecordDispatch("claim_lost")
		return outreach.ErrClaimLost
	}

	// the claim froze the lead; this read is what gets sent
	l, err := d.repo.GetLeadByID(ctx, id)
	if err != nil {
		return fmt.Errorf("reload lead %d: %w", id, err)
	}
	if l == nil {
		return outreach.ErrClaimLost
	}

	if l.Unreachable {
		return d.fail(ctx, l, "lead is unreachable")
	}
	to, channel, err := delivery.Recipient(l, d.cfg.PhoneRegion)
	if err != nil {
		return d.fail(ctx, l, err.Error())
	}

	msg := delivery.Message{LeadID: l.ID, To: to, Channel: channel, Body: *l.Outreach}
	if l.OutreachSubject != nil {
		msg.Subject = *l.OutreachSubject
	}

	start := time.Now()
	res, err := delivery.SendWithTimeout(ctx, d.sender, msg, d.cfg.DeliveryTimeout)
	metrics.ObserveDelivery(time.Since(start).Seconds())
	if err != nil {
		return d.fail(ctx, l, err.Error())
	}
	if !res.Success {
		return d.fail(ctx, l, res.Reason)
	}

	sentAt := d.now()
	delay, err := d.cadence.FirstDelay(ctx, l.UserID)
	if err != nil {
		d.logger.Error("dispatch: load cadence, using default delay", slog.Int64("lead_id", l.ID), slog.Any("err", err))
		delay = defaultFirstDelay
	}

	// the send happened; record it even if ctx was canceled meanwhile
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	marked, err := d.repo.MarkSent(wctx, l.ID, sentAt, res.ProviderMessageID, sentAt.Add(delay))
	if err != nil {
		return fmt.Errorf("mark lead %d sent: %w", l.ID, err)
	}
	if !marked {
		// the lead changed under us after the provider accepted the message
		metrics.RecordDispatch("failed")
		d.logger.Error("dispatch: delivered but not recorded", slog.Int64("lead_id", l.ID), slog.String("provider_message_id", res.ProviderMessageID))
		return fmt.Errorf("%w: delivered as %q but lead %d changed before it was recorded", outreach.ErrDeliveryFailure, res.ProviderMessageID, l.ID)
	}

	metrics.RecordDispatch("sent")
	d.logger.Info("dispatch: outreach sent", slog.Int64("lead_id", l.ID), slog.String("channel", string(channel)))
	return nil
}

// fail records a terminal failure on the lead. The failure must be stored even
// when the caller's context is already done, so it uses a detached context.
func (d *Dispatcher) fail(ctx context.Context, l *models.Lead, reason string) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.repo.MarkSendFailed(wctx, l.ID, d.now(), reason); err != nil {
		return fmt.Errorf("mark lead %d failed: %w", l.ID, err)
	}
	metrics.RecordDispatch("failed")
	d.logger.Warn("dispatch: delivery failed", slog.Int64("lead_id", l.ID), slog.String("reason", reason))
	return fmt.Errorf("%w: %s", outreach.ErrDeliveryFailure, reason)
}
