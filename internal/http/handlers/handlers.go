package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/diagnosis/campus-tickets/internal/service"
	"github.com/diagnosis/campus-tickets/internal/session"
	"github.com/go-chi/chi/v5"
)

// WebhookParser verifies and decodes a signed card-payment webhook.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*domain.PaymentResult, error)
}

type Deps struct {
	Accounts service.AccountService
	Tickets  service.TicketService
	Events   service.EventService
	Payments service.PaymentService
	Gate     *session.Gate

	// Stripe is nil when card payments are not configured.
	Stripe WebhookParser
	// MpesaCallbackToken, when set, must match the ?token= query of
	// Daraja callbacks.
	MpesaCallbackToken string
	MaxUploadBytes     int64

	// Optional middleware; nil passes through.
	LoginLimiter func(http.Handler) http.Handler
	SendLimiter  func(http.Handler) http.Handler
	Idempotency  func(http.Handler) http.Handler
}

type Handlers struct {
	Deps
}

func New(d Deps) *Handlers {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 5 << 20
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = passthrough
	}
	if d.SendLimiter == nil {
		d.SendLimiter = passthrough
	}
	if d.Idempotency == nil {
		d.Idempotency = passthrough
	}
	return &Handlers{Deps: d}
}

func passthrough(next http.Handler) http.Handler { return next }

// Mount registers every route on r.
func (h *Handlers) Mount(r chi.Router) {
	gate := h.Gate

	r.Get("/", h.index)
	r.Get("/login", h.loginPage)
	r.With(h.LoginLimiter).Post("/login", h.login)
	r.With(h.LoginLimiter).Post("/signup", h.signup)
	r.Post("/logout", h.logout)

	r.With(h.SendLimiter, h.Idempotency).Post("/send_qr", h.sendQR)

	r.Get("/events", h.listEvents)
	r.Get("/events/{id}", h.getEvent)
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireJSON(domain.RoleStaff))
		r.Post("/events", h.createEvent)
		r.Patch("/events/{id}", h.updateEvent)
		r.Delete("/events/{id}", h.deleteEvent)
		r.Post("/upload_image", h.uploadImage)
		r.Post("/tickets/scan", h.scanTicket)
		r.Patch("/staff/users/{id}/role", h.setRole)
	})

	r.Group(func(r chi.Router) {
		r.Use(gate.RequireJSON())
		r.With(h.Idempotency).Post("/tickets", h.purchase)
		r.Get("/tickets", h.myTickets)
		r.Get("/tickets/{id}", h.getTicket)
		r.Get("/profile/me", h.getProfile)
		r.Patch("/profile/me", h.updateProfile)
	})
	r.With(gate.RequireJSON(domain.RoleStudent), h.Idempotency).Post("/initiate_payment", h.initiatePayment)

	r.Post("/payments/mpesa/callback", h.mpesaCallback)
	r.Post("/payments/stripe/webhook", h.stripeWebhook)

	r.With(gate.Require()).Get("/dashboard", h.dashboard)
	r.With(gate.Require()).Get("/profile", h.profilePage)
	r.With(gate.Require(domain.RoleStudent)).Get("/student/dashboard", h.studentDashboard)
	r.With(gate.Require(domain.RoleStaff)).Get("/staff/dashboard", h.staffDashboard)
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validation("request body is empty")
		}
		return domain.E(domain.KindValidation, "invalid JSON body", err)
	}
	return nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// current returns the profile the gate admitted.
func current(r *http.Request) *domain.Profile {
	return session.ProfileFrom(r.Context())
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	response.FromError(r.Context(), w, err)
}
