package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnizeh/outreach/internal/metrics"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/repository"
)

// RecomputeJobType is the background job that rescores one lead.
const RecomputeJobType = "engagement.recompute"

var (
	ErrLeadNotFound     = errors.New("lead not found")
	ErrInvalidEventType = errors.New("invalid event type")
)

// Store is the persistence the scorer needs.
type Store interface {
	GetLead(ctx context.Context, userID, id int64) (*models.Lead, error)
	repository.EventRepo
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error)
}

// RecomputePayload is the payload of a recompute job.
type RecomputePayload struct {
	UserID int64 `json:"user_id"`
	LeadID int64 `json:"lead_id"`
}

// Scorer recomputes and stores engagement.
type Scorer struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewScorer(store Store, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{store: store, now: time.Now, logger: logger}
}

// Recompute rescores the lead from its full event log. The write is guarded by
// the highest event id read, so a slower recompute over an older snapshot
// cannot overwrite a newer score. Running it twice is harmless.
func (s *Scorer) Recompute(ctx context.Context, userID, leadID int64) (models.Engagement, error) {
	l, err := s.store.GetLead(ctx, userID, leadID)
	if err != nil {
		return models.Engagement{}, fmt.Errorf("get lead: %w", err)
	}
	if l == nil {
		return models.Engagement{}, ErrLeadNotFound
	}

	events, err := s.store.ListEvents(ctx, leadID)
	if err != nil {
		return models.Engagement{}, fmt.Errorf("list events: %w", err)
	}

	var maxID int64
	for _, ev := range events {
		if ev.ID > maxID {
			maxID = ev.ID
		}
	}

	e := Score(events)
	applied, err := s.store.ApplyEngagement(ctx, leadID, e, maxID, s.now())
	if err != nil {
		return models.Engagement{}, fmt.Errorf("apply engagement: %w", err)
	}
	if !applied {
		s.logger.Debug("engagement: newer score already stored", slog.Int64("lead_id", leadID), slog.Int64("event_id", maxID))
	}
	return e, nil
}

// HandleRecompute is the job handler for RecomputeJobType.
func (s *Scorer) HandleRecompute(ctx context.Context, payload json.RawMessage) error {
	var p RecomputePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	_, err := s.Recompute(ctx, p.UserID, p.LeadID)
	if errors.Is(err, ErrLeadNotFound) {
		// deleted since the event landed
		return nil
	}
	return err
}

// Event is a tracking event reported by the ingest collaborator.
type Event struct {
	LeadID    int64            `json:"lead_id" validate:"required,gt=0"`
	Type      models.EventType `json:"type" validate:"required"`
	Timestamp time.Time        `json:"timestamp"`
}

// Ingestor is the entry point for tracking events. Events are appended, then
// the lead is rescored either through the job queue or inline.
type Ingestor struct {
	store  Store
	scorer *Scorer
	queue  Enqueuer
	now    func() time.Time
	logger *slog.Logger
}

// NewIngestor builds an ingestor. With a nil queue every event is scored
// inline.
func NewIngestor(store Store, scorer *Scorer, queue Enqueuer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{store: store, scorer: scorer, queue: queue, now: time.Now, logger: logger}
}

// RecordEvent stores the event for a lead owned by userID.
func (i *Ingestor) RecordEvent(ctx context.Context, userID int64, ev Event) (*models.EmailEvent, error) {
	if !ev.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, ev.Type)
	}

	l, err := i.store.GetLead(ctx, userID, ev.LeadID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if l == nil {
		return nil, ErrLeadNotFound
	}

	created := ev.Timestamp
	if created.IsZero() {
		created = i.now()
	}
	stored := &models.EmailEvent{LeadID: ev.LeadID, UserID: userID, Type: ev.Type, Created: created.UTC()}
	id, err := i.store.AppendEvent(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	stored.ID = id
	metrics.RecordEvent(string(ev.Type))

	if i.queue != nil {
		_, err := i.queue.Enqueue(ctx, RecomputeJobType, RecomputePayload{UserID: userID, LeadID: ev.LeadID}, 10, 5)
		if err == nil {
			return stored, nil
		}
		i.logger.Warn("engagement: enqueue recompute failed, scoring inline", slog.Int64("lead_id", ev.LeadID), slog.Any("err", err))
	}

	if _, err := i.scorer.Recompute(ctx, userID, ev.LeadID); err != nil {
		return nil, fmt.Errorf("recompute: %w", err)
	}
	return stored, nil
}
