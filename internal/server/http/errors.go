package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

// ErrorCase maps a sentinel error to an HTTP status and response reason.
// An empty Message renders the error text itself.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

var errorCases = []ErrorCase{
	{Err: common.ErrValidation, Status: http.StatusBadRequest},
	{Err: common.ErrConflict, Status: http.StatusBadRequest, Message: common.ErrConflict.Error()},
	{Err: common.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: common.ErrInvalidCredentials.Error()},
	{Err: common.ErrAccountNotActivated, Status: http.StatusUnauthorized, Message: "account is not activated, check your email for the activation link"},
	{Err: common.ErrInvalidOrExpiredToken, Status: http.StatusBadRequest, Message: common.ErrInvalidOrExpiredToken.Error()},
	{Err: common.ErrTokenExpired, Status: http.StatusBadRequest, Message: common.ErrInvalidOrExpiredToken.Error()},
	{Err: common.ErrInvalidToken, Status: http.StatusBadRequest, Message: common.ErrInvalidOrExpiredToken.Error()},
	{Err: common.ErrAlreadyVerified, Status: http.StatusBadRequest, Message: common.ErrAlreadyVerified.Error()},
	{Err: common.ErrorNotFound, Status: http.StatusNotFound, Message: "account not found"},
	{Err: common.ErrorUnauthorized, Status: http.StatusUnauthorized, Message: common.ErrorUnauthorized.Error()},
	{Err: common.ErrMailDelivery, Status: http.StatusInternalServerError, Message: "failed to send email"},
	{Err: common.ErrTimeout, Status: http.StatusRequestTimeout, Message: "request timed out"},
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	for _, c := range errorCases {
		if errors.Is(err, c.Err) {
			msg := c.Message
			if msg == "" {
				msg = err.Error()
			}
			if c.Status >= http.StatusInternalServerError {
				h.logger.Warn(r.Context(), "request failed", "status", c.Status, "error", err)
			}
			writeJSON(w, c.Status, errorResponse{Error: msg})
			return
		}
	}

	h.logger.Error(r.Context(), "request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
