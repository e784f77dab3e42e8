package api

import (
	"io"
	"net/http"
	"time"

	"github.com/garnizeh/outreach/internal/analytics"
	"github.com/garnizeh/outreach/internal/engagement"
	"github.com/garnizeh/outreach/internal/followup"
	"github.com/garnizeh/outreach/internal/models"
)

type EngagementHandler struct {
	ingestor   *engagement.Ingestor
	aggregator *analytics.Aggregator
	cadences   *followup.Cadences
}

func NewEngagementHandler(ing *engagement.Ingestor, agg *analytics.Aggregator, cadences *followup.Cadences) *EngagementHandler {
	return &EngagementHandler{ingestor: ing, aggregator: agg, cadences: cadences}
}

type eventRequest struct {
	LeadID    int64            `json:"lead_id"`
	Type      models.EventType `json:"type"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
}

// RecordEvent is the tracking ingest entry point.
func (h *EngagementHandler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil || req.LeadID <= 0 {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}

	ev := engagement.Event{LeadID: req.LeadID, Type: req.Type}
	if req.Timestamp != nil {
		ev.Timestamp = *req.Timestamp
	}
	stored, err := h.ingestor.RecordEvent(r.Context(), userID, ev)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, stored, http.StatusAccepted)
}

func (h *EngagementHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	s, err := h.aggregator.Summary(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, s, http.StatusOK)
}

type cadenceStepResponse struct {
	Order      int    `json:"step_order"`
	DelayHours int    `json:"delay_hours"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

func cadenceResponse(steps []models.CadenceStep, maxSteps int) map[string]any {
	out := make([]cadenceStepResponse, 0, len(steps))
	for _, s := range steps {
		out = append(out, cadenceStepResponse{Order: s.Order, DelayHours: s.DelayHours(), Subject: s.Subject, Body: s.Body})
	}
	return map[string]any{"max_steps": maxSteps, "steps": out}
}

func (h *EngagementHandler) GetCadence(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	steps, err := h.cadences.Steps(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, cadenceResponse(steps, h.cadences.MaxSteps()), http.StatusOK)
}

// PutCadence replaces the user's follow-up steps. The body is validated
// against the cadence JSON schema.
func (h *EngagementHandler) PutCadence(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64*1024))
	if err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	steps, err := h.cadences.Put(r.Context(), userID, raw)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, cadenceResponse(steps, h.cadences.MaxSteps()), http.StatusOK)
}
