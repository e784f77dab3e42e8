package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/outreach"
)

// DraftJobType is the job queue type of a draft generation request.
const DraftJobType = "outreach.generate_draft"

type DraftPayload struct {
	UserID       int64  `json:"user_id"`
	LeadID       int64  `json:"lead_id"`
	Instructions string `json:"instructions,omitempty"`
}

// DraftGenerator produces a draft for a lead.
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, lead *models.Lead, instructions string) (models.Draft, error)
}

// DraftStore reads leads and saves drafts with the usual draft rules.
type DraftStore interface {
	Get(ctx context.Context, userID, leadID int64) (*models.Lead, error)
	SaveDraft(ctx context.Context, userID, leadID int64, d models.Draft) (*models.Lead, error)
}

// Drafter runs draft generation jobs.
type Drafter struct {
	gen    DraftGenerator
	store  DraftStore
	logger *slog.Logger
}

func NewDrafter(gen DraftGenerator, store DraftStore, logger *slog.Logger) *Drafter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drafter{gen: gen, store: store, logger: logger}
}

// HandleGenerate generates and saves a draft. Leads that were deleted or sent
// in the meantime are skipped without error so the job is not retried.
func (d *Drafter) HandleGenerate(ctx context.Context, payload json.RawMessage) error {
	var p DraftPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	lead, err := d.store.Get(ctx, p.UserID, p.LeadID)
	switch {
	case errors.Is(err, outreach.ErrNotFound):
		d.logger.Info("ai: lead gone, draft skipped", slog.Int64("lead_id", p.LeadID))
		return nil
	case err != nil:
		return err
	}
	if lead.IsSent() {
		d.logger.Info("ai: lead already sent, draft skipped", slog.Int64("lead_id", p.LeadID))
		return nil
	}

	draft, err := d.gen.GenerateDraft(ctx, lead, p.Instructions)
	if err != nil {
		return err
	}

	if _, err := d.store.SaveDraft(ctx, p.UserID, p.LeadID, draft); err != nil {
		if errors.Is(err, outreach.ErrAlreadySent) || errors.Is(err, outreach.ErrNotFound) {
			d.logger.Info("ai: draft discarded", slog.Int64("lead_id", p.LeadID), slog.Any("err", err))
			return nil
		}
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}
