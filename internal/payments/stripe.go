package payments

import (
	"context"
	"encoding/json"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/pkg/config"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe charges cards through PaymentIntents. Results arrive as signed
// webhook events.
type Stripe struct {
	sc            *client.API
	currency      string
	webhookSecret string
}

// NewStripe builds the gateway. backends may be nil to use the live API.
func NewStripe(cfg config.StripeConfig, backends *stripe.Backends) *Stripe {
	return &Stripe{
		sc:            client.New(cfg.SecretKey, backends),
		currency:      cfg.Currency,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

// Authorize creates a PaymentIntent. Stripe amounts are in the minor unit.
func (s *Stripe) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount * 100),
		Currency:    stripe.String(s.currency),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.AddMetadata("event_id", req.Reference)
	params.Context = ctx

	pi, err := s.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, domain.E(domain.KindPaymentFailed, "could not create card payment", err)
	}
	return &Authorization{
		TransactionID:   pi.ID,
		ClientSecret:    pi.ClientSecret,
		CustomerMessage: "Complete the card payment to receive your ticket.",
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps PaymentIntent
// outcomes to a result. Other event types return nil, nil.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*domain.PaymentResult, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, domain.E(domain.KindValidation, "invalid webhook signature", err)
	}

	var succeeded bool
	switch string(ev.Type) {
	case "payment_intent.succeeded":
		succeeded = true
	case "payment_intent.payment_failed":
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, domain.E(domain.KindValidation, "invalid payment intent", err)
	}

	res := &domain.PaymentResult{
		Provider:      ProviderStripe,
		TransactionID: pi.ID,
		Success:       succeeded,
		Amount:        pi.Amount / 100,
	}
	if succeeded {
		res.ResultDesc = "succeeded"
		res.Receipt = pi.ID
		if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
			res.Receipt = pi.LatestCharge.ID
		}
		return res, nil
	}
	res.ResultCode = 1
	res.ResultDesc = "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		res.ResultDesc = pi.LastPaymentError.Msg
	}
	return res, nil
}
