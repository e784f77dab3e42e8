package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/outreach/internal/ai"
	"github.com/garnizeh/outreach/internal/engagement"
	"github.com/garnizeh/outreach/internal/followup"
	"github.com/garnizeh/outreach/internal/outreach"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, errorResponse{Error: msg}, status)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, outreach.ErrNotFound), errors.Is(err, engagement.ErrLeadNotFound):
		return http.StatusNotFound
	case errors.Is(err, outreach.ErrAlreadySent), errors.Is(err, outreach.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, outreach.ErrNoDraft), errors.Is(err, outreach.ErrInvalidTime):
		return http.StatusUnprocessableEntity
	case errors.Is(err, outreach.ErrDeliveryFailure), errors.Is(err, ai.ErrInvalidDraft):
		return http.StatusBadGateway
	case errors.Is(err, outreach.ErrInvalidInput), errors.Is(err, engagement.ErrInvalidEventType), errors.Is(err, followup.ErrInvalidCadence):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. Internal errors are
// logged and not echoed to the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination reads limit (1..500, default 50) and offset.
func pagination(r *http.Request) (int, int) {
	q := r.URL.Query()
	limit := 50
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	offset := 0
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
