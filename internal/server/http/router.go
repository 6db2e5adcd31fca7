// Package http exposes the account lifecycle over a chi router.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configure cross-cutting behaviour of the router.
type RouterOptions struct {
	CORSAllowedOrigins []string
	// AdminKey enables the /admin routes when non-empty.
	AdminKey string
}

func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	r.Use(limitBody(MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Post("/register", h.Register)
	r.Get("/verify/{token}", h.VerifyEmail)
	r.Post("/login", h.Login)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password/{token}", h.ResetPassword)
	r.Get("/verify-token/{token}", h.InspectToken)
	r.Post("/resend-activation", h.ResendActivation)
	r.Post("/send-activation", h.ResendActivation)
	r.Get("/me", h.Me)

	r.Get("/health", h.Health)
	r.Get("/health/mail", h.MailHealth)

	if opts.AdminKey != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireKey(opts.AdminKey))
			r.Get("/accounts", h.ListAccounts)
			r.Delete("/accounts/{email}", h.DeleteAccount)
		})
	}

	return r
}
