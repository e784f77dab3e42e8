package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/outreach/internal/delivery"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/pkg/repository"
)

// maxWriteAttempts bounds how often a conditional write is retried after it
// lost to a concurrent writer without the lead reaching a terminal state.
const maxWriteAttempts = 3

// Store is the persistence the manager needs.
type Store interface {
	repository.LeadRepo
	repository.DraftRepo
}

// Dispatcher performs synchronous sends on behalf of the manager.
type Dispatcher interface {
	SendNow(ctx context.Context, userID, leadID int64) (*models.Lead, error)
	SendAllDue(ctx context.Context, userID int64) (models.BatchResult, error)
}

// NewLead is the input for creating a lead.
type NewLead struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
	Phone string `json:"phone,omitempty" validate:"max=32"`
}

// Manager owns a lead's draft and schedule. All writes go through conditional
// updates guarded by "not sent and not claimed", so a concurrent dispatch
// always wins over an edit or a cancel.
type Manager struct {
	store      Store
	dispatcher Dispatcher
	validate   *validator.Validate
	region     string
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Manager)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPhoneRegion sets the region used to normalize phone numbers given
// without a country code.
func WithPhoneRegion(region string) Option {
	return func(m *Manager) { m.region = region }
}

func NewManager(store Store, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:      store,
		dispatcher: dispatcher,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		region:     "US",
		now:        time.Now,
		logger:     logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Create(ctx context.Context, userID int64, in NewLead) (*models.Lead, error) {
	l, err := m.normalize(userID, in)
	if err != nil {
		return nil, err
	}

	id, err := m.store.CreateLead(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	return m.Get(ctx, userID, id)
}

func (m *Manager) normalize(userID int64, in NewLead) (*models.Lead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := m.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	l := &models.Lead{UserID: userID, Name: in.Name, Email: in.Email}
	if p := strings.TrimSpace(in.Phone); p != "" {
		e164, err := delivery.NormalizePhone(p, m.region)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		l.Phone = e164
	}
	return l, nil
}

// Get returns the lead with its current outreach, follow-up and engagement
// state.
func (m *Manager) Get(ctx context.Context, userID, leadID int64) (*models.Lead, error) {
	l, err := m.store.GetLead(ctx, userID, leadID)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

func (m *Manager) List(ctx context.Context, userID int64, limit, offset int) ([]models.Lead, int64, error) {
	leads, err := m.store.ListLeads(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	total, err := m.store.CountLeads(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}
	return leads, total, nil
}

// UpdateContact replaces the lead's name, email and phone.
func (m *Manager) UpdateContact(ctx context.Context, userID, leadID int64, in NewLead) (*models.Lead, error) {
	l, err := m.normalize(userID, in)
	if err != nil {
		return nil, err
	}
	ok, err := m.store.UpdateContact(ctx, userID, leadID, l.Name, l.Email, l.Phone, m.now())
	if err != nil {
		return nil, fmt.Errorf("update lead: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, userID, leadID)
}

func (m *Manager) Delete(ctx context.Context, userID, leadID int64) error {
	ok, err := m.store.DeleteLead(ctx, userID, leadID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// SaveDraft overwrites the outreach content. A previous send failure is
// cleared so the owner can retry after fixing the draft.
func (m *Manager) SaveDraft(ctx context.Context, userID, leadID int64, d models.Draft) (*models.Lead, error) {
	if err := m.validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return m.mutate(ctx, userID, leadID,
		func(l *models.Lead) (bool, error) {
			if sentOrSending(l) {
				return false, ErrAlreadySent
			}
			return true, nil
		},
		func() (bool, error) {
			return m.store.UpdateDraft(ctx, userID, leadID, d, m.now())
		})
}

// Schedule sets the send time. when must be strictly after now.
func (m *Manager) Schedule(ctx context.Context, userID, leadID int64, when time.Time) (*models.Lead, error) {
	when = when.UTC()
	return m.mutate(ctx, userID, leadID,
		func(l *models.Lead) (bool, error) {
			switch {
			case sentOrSending(l):
				return false, ErrAlreadySent
			case !when.After(m.now()):
				return false, ErrInvalidTime
			case !l.HasDraft():
				return false, ErrNoDraft
			}
			return true, nil
		},
		func() (bool, error) {
			return m.store.SetSchedule(ctx, userID, leadID, when, m.now())
		})
}

// CancelSchedule clears the send time. Cancelling an unscheduled lead is a
// no-op; cancelling after the dispatcher claimed it fails with ErrAlreadySent.
func (m *Manager) CancelSchedule(ctx context.Context, userID, leadID int64) (*models.Lead, error) {
	return m.mutate(ctx, userID, leadID,
		func(l *models.Lead) (bool, error) {
			if sentOrSending(l) {
				return false, ErrAlreadySent
			}
			return l.ScheduledSendAt != nil, nil
		},
		func() (bool, error) {
			return m.store.ClearSchedule(ctx, userID, leadID, m.now())
		})
}

// SendNow delivers the lead immediately, bypassing the schedule.
func (m *Manager) SendNow(ctx context.Context, userID, leadID int64) (*models.Lead, error) {
	if m.dispatcher == nil {
		return nil, errors.New("no dispatcher configured")
	}
	return m.dispatcher.SendNow(ctx, userID, leadID)
}

// SendAllDue sends every due lead of the user and reports partial results.
func (m *Manager) SendAllDue(ctx context.Context, userID int64) (models.BatchResult, error) {
	if m.dispatcher == nil {
		return models.BatchResult{}, errors.New("no dispatcher configured")
	}
	return m.dispatcher.SendAllDue(ctx, userID)
}

// mutate reads the lead, lets check classify it, and runs write when check
// allows. A write that matched no row is re-classified from a fresh read, so the
// caller gets the error that describes the state that beat it.
func (m *Manager) mutate(ctx context.Context, userID, leadID int64, check func(*models.Lead) (bool, error), write func() (bool, error)) (*models.Lead, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		l, err := m.Get(ctx, userID, leadID)
		if err != nil {
			return nil, err
		}

		proceed, err := check(l)
		if err != nil {
			return nil, err
		}
		if !proceed {
			return l, nil
		}

		ok, err := write()
		if err != nil {
			return nil, fmt.Errorf("update lead %d: %w", leadID, err)
		}
		if ok {
			return m.Get(ctx, userID, leadID)
		}

		m.logger.Debug("outreach: conditional write lost, re-reading", slog.Int64("lead_id", leadID), slog.Int("attempt", attempt+1))
	}

	return nil, ErrConflict
}

// sentOrSending treats an in-flight send as sent: its content is about to
// become historical.
func sentOrSending(l *models.Lead) bool {
	return l.IsSent() || l.SendClaimedAt != nil
}
