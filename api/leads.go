package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/garnizeh/outreach/internal/ai"
	"github.com/garnizeh/outreach/internal/models"
	"github.com/garnizeh/outreach/internal/outreach"
)

// Enqueuer puts background work on the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error)
}

type LeadsHandler struct {
	manager *outreach.Manager
	queue   Enqueuer
}

// NewLeadsHandler builds the lead endpoints. queue may be nil, in which case
// draft generation is unavailable.
func NewLeadsHandler(m *outreach.Manager, queue Enqueuer) *LeadsHandler {
	return &LeadsHandler{manager: m, queue: queue}
}

// authorized extracts the user and the {id} path variable, writing the error
// response itself when either is missing.
func authorized(w http.ResponseWriter, r *http.Request, withLead bool) (int64, int64, bool) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return 0, 0, false
	}
	if !withLead {
		return userID, 0, true
	}
	leadID, ok := pathID(r)
	if !ok {
		writeError(w, "invalid lead id", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, leadID, true
}

func (h *LeadsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	var req outreach.NewLead
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}

	l, err := h.manager.Create(r.Context(), userID, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusCreated)
}

func (h *LeadsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	leads, total, err := h.manager.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}

	writeJSON(w, map[string]any{
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"items":  leads,
	}, http.StatusOK)
}

func (h *LeadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	l, err := h.manager.Get(r.Context(), userID, leadID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusOK)
}

func (h *LeadsHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	var req outreach.NewLead
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	l, err := h.manager.UpdateContact(r.Context(), userID, leadID, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusOK)
}

func (h *LeadsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	if err := h.manager.Delete(r.Context(), userID, leadID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeadsHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	var req models.Draft
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	l, err := h.manager.SaveDraft(r.Context(), userID, leadID, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusOK)
}

type generateDraftRequest struct {
	Instructions string `json:"instructions"`
}

// GenerateDraft queues an AI draft for the lead. The draft is saved when the
// job runs, subject to the usual draft rules.
func (h *LeadsHandler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	if h.queue == nil {
		writeError(w, "draft generation is not configured", http.StatusServiceUnavailable)
		return
	}

	// the body is optional
	var req generateDraftRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Instructions) > 2000 {
		writeError(w, "instructions too long", http.StatusBadRequest)
		return
	}

	l, err := h.manager.Get(r.Context(), userID, leadID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if l.IsSent() || l.SendClaimedAt != nil {
		writeDomainError(w, r, outreach.ErrAlreadySent)
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), ai.DraftJobType, ai.DraftPayload{UserID: userID, LeadID: leadID, Instructions: req.Instructions}, 50, 3)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"job_id": jobID}, http.StatusAccepted)
}

type scheduleRequest struct {
	SendAt time.Time `json:"send_at"`
}

func (h *LeadsHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil || req.SendAt.IsZero() {
		writeError(w, "send_at must be an RFC 3339 timestamp", http.StatusBadRequest)
		return
	}
	l, err := h.manager.Schedule(r.Context(), userID, leadID, req.SendAt)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusOK)
}

func (h *LeadsHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	l, err := h.manager.CancelSchedule(r.Context(), userID, leadID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusOK)
}

type sendFailedResponse struct {
	Error string       `json:"error"`
	Lead  *models.Lead `json:"lead,omitempty"`
}

// Send delivers the lead now. A delivery failure answers 502 with the lead,
// which carries the recorded failure.
func (h *LeadsHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, leadID, ok := authorized(w, r, true)
	if !ok {
		return
	}
	l, err := h.manager.SendNow(r.Context(), userID, leadID)
	if errors.Is(err, outreach.ErrDeliveryFailure) {
		writeJSON(w, sendFailedResponse{Error: err.Error(), Lead: l}, http.StatusBadGateway)
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, l, http.StatusOK)
}

func (h *LeadsHandler) SendDue(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := authorized(w, r, false)
	if !ok {
		return
	}
	res, err := h.manager.SendAllDue(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}
