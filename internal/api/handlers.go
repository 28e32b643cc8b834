package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/davexpro/hybrid-backup/internal/errs"
)

type triggerResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Trigger starts a full run. A held run lock is a normal 409, not an error.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	err := h.backup.Trigger(r.Context())
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusAccepted, triggerResponse{Status: "started"})
	case errors.Is(err, errs.ErrAlreadyRunning):
		h.respondJSON(w, http.StatusConflict, triggerResponse{Status: "rejected", Reason: "already_running"})
	default:
		h.respondError(w, http.StatusInternalServerError, "failed to start backup", err)
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.GetStatus(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read backup status", err)
		return
	}
	h.respondJSON(w, http.StatusOK, st)
}

func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intParam(w, r, "limit")
	if !ok {
		return
	}
	logs, err := h.status.GetLogs(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read backup logs", err)
		return
	}
	h.respondJSON(w, http.StatusOK, logs)
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	days, ok := h.intParam(w, r, "windowDays")
	if !ok {
		return
	}
	stats, err := h.status.GetStatistics(r.Context(), days)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to compute backup statistics", err)
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// intParam reads an optional integer query parameter; absent means 0 so the
// service applies its default.
func (h *Handler) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: name + " must be an integer"})
		return 0, false
	}
	return v, true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		h.log.WithError(err).Warn("Failed to write JSON response")
	}
}

// respondError logs err and returns its text; no stack traces leave the process.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	h.log.WithError(err).Error(message)
	h.respondJSON(w, status, errorResponse{Error: message + ": " + err.Error()})
}
