package http

import (
	"context"
	"net/http"
	"time"
)

const mailProbeTimeout = 10 * time.Second

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Health is a liveness check; it does not touch the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "OK", Store: h.store.Kind()})
}

// MailHealth probes the mail relay.
func (h *Handler) MailHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), mailProbeTimeout)
	defer cancel()

	if err := h.mail.Probe(ctx); err != nil {
		h.logger.Warn(ctx, "mail relay unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unreachable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "OK"})
}
