package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// AccountService is the lifecycle API the handlers call.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ResendActivation(ctx context.Context, email string) error
	InspectToken(ctx context.Context, token string) services.TokenInfo
	Me(ctx context.Context, sessionToken string) (*models.PublicAccount, error)
	ListAccounts(ctx context.Context) ([]models.PublicAccount, error)
	DeleteAccount(ctx context.Context, email string) error
}

// StoreStatus names the account store backend.
type StoreStatus interface {
	Kind() string
}

// MailProber checks that the mail relay is reachable.
type MailProber interface {
	Probe(ctx context.Context) error
}

// Handler serves the account endpoints.
type Handler struct {
	accounts AccountService
	store    StoreStatus
	mail     MailProber
	logger   logging.Logger
}

func NewHandler(accounts AccountService, store StoreStatus, mail MailProber, logger logging.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		store:    store,
		mail:     mail,
		logger:   logger,
	}
}

const (
	msgRegistered         = "Registration successful. Please check your email to activate your account."
	msgRegisteredNoMail   = "Registration successful, but the activation email could not be sent. Request a new activation link."
	msgVerified           = "Email verified successfully. You can now log in."
	msgResetSent          = "Password reset link sent to your email."
	msgPasswordReset      = "Password has been reset successfully."
	msgActivationSent     = "Activation email sent."
	msgAccountDeleted     = "Account deleted."
	msgInvalidRequestBody = "invalid request body"
)

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	UserID   string `json:"userId"`
	Message  string `json:"message"`
	MailSent bool   `json:"activationEmailSent"`
}

type verifyResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Login     string `json:"login"`
	Email     string `json:"email"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  loginUser `json:"user"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type accountsResponse struct {
	Accounts []models.PublicAccount `json:"accounts"`
}

// decodeJSON reads the request body into dst and answers 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, msgInvalidRequestBody)
		return false
	}
	return true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	msg := msgRegistered
	if !res.MailSent {
		msg = msgRegisteredNoMail
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: res.AccountID, Message: msg, MailSent: res.MailSent})
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{OK: true, Message: msgVerified})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token: res.Token,
		User: loginUser{
			ID:        res.Account.ID,
			FirstName: res.Account.FirstName,
			LastName:  res.Account.LastName,
			Login:     res.Account.Login,
			Email:     res.Account.Email,
		},
	})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetSent})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.Password); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgPasswordReset})
}

func (h *Handler) InspectToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.accounts.InspectToken(r.Context(), chi.URLParam(r, "token")))
}

func (h *Handler) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.accounts.ResendActivation(r.Context(), req.Email); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgActivationSent})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.respondError(w, r, common.ErrorUnauthorized)
		return
	}

	acc, err := h.accounts.Me(r.Context(), token)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountsResponse{Accounts: list})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteAccount(r.Context(), chi.URLParam(r, "email")); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgAccountDeleted})
}
