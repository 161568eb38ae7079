package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/diagnosis/campus-tickets/internal/payments"
	"github.com/diagnosis/campus-tickets/pkg/logger"
)

const maxCallbackBytes = 64 << 10

func (h *Handlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var in domain.InitiatePaymentRequest
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Payments.Initiate(r.Context(), current(r), &in)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, res)
}

// mpesaCallback acknowledges every well-formed Daraja result with
// ResultCode 0. Only a failure on our side gets a 5xx, which makes Daraja
// retry.
func (h *Handlers) mpesaCallback(w http.ResponseWriter, r *http.Request) {
	if h.MpesaCallbackToken != "" {
		got := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.MpesaCallbackToken)) != 1 {
			response.Unauthorized(w, "invalid callback token")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		response.BadRequest(w, "could not read body")
		return
	}
	res, err := payments.ParseMpesaCallback(body)
	if err != nil {
		fail(w, r, err)
		return
	}

	if err := h.Payments.HandleResult(r.Context(), res); err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			logger.WarnContext(r.Context(), "Callback for unknown transaction", "transaction_id", res.TransactionID)
		} else {
			fail(w, r, err)
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *Handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Stripe == nil {
		response.NotFound(w, "card payments are not enabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		response.BadRequest(w, "could not read body")
		return
	}
	res, err := h.Stripe.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := h.Payments.HandleResult(r.Context(), res); err != nil {
		if !domain.IsKind(err, domain.KindNotFound) {
			fail(w, r, err)
			return
		}
		logger.WarnContext(r.Context(), "Webhook for unknown payment intent", "transaction_id", res.TransactionID)
	}
	response.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
