package service

import (
	"context"
	"fmt"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/payments"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/pkg/events"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/diagnosis/campus-tickets/pkg/metrics"
	"github.com/google/uuid"
)

// InitiateResult is returned to the buyer after the provider accepted the
// request. The ticket arrives by email once the payment settles.
type InitiateResult struct {
	PaymentID       string `json:"payment_id"`
	TransactionID   string `json:"transaction_id"`
	Status          string `json:"status"`
	ClientSecret    string `json:"client_secret,omitempty"`
	CustomerMessage string `json:"message"`
}

type PaymentService interface {
	Initiate(ctx context.Context, buyer *domain.Profile, req *domain.InitiatePaymentRequest) (*InitiateResult, error)
	// HandleResult settles a pending payment and issues its ticket. A
	// repeated result is ignored once the ticket exists; until then it
	// retries issuance, so a provider retry recovers a failed issuance.
	HandleResult(ctx context.Context, res *domain.PaymentResult) error
}

type paymentService struct {
	gateway  payments.Gateway
	payments postgres.PaymentsRepo
	events   postgres.EventsRepo
	profiles postgres.ProfilesRepo
	tickets  TicketService
	eventBus events.Publisher
	metrics  metrics.Recorder
}

func NewPaymentService(
	gateway payments.Gateway,
	paymentsRepo postgres.PaymentsRepo,
	eventsRepo postgres.EventsRepo,
	profiles postgres.ProfilesRepo,
	tickets TicketService,
	eventBus events.Publisher,
	rec metrics.Recorder,
) PaymentService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &paymentService{
		gateway:  gateway,
		payments: paymentsRepo,
		events:   eventsRepo,
		profiles: profiles,
		tickets:  tickets,
		eventBus: eventBus,
		metrics:  rec,
	}
}

func (s *paymentService) Initiate(ctx context.Context, buyer *domain.Profile, req *domain.InitiatePaymentRequest) (*InitiateResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ev, err := s.events.Get(ctx, req.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if ev == nil {
		return nil, domain.NotFound("event not found")
	}
	if ev.Price <= 0 {
		return nil, domain.Validation("this event does not require payment")
	}

	auth, err := s.gateway.Authorize(ctx, payments.AuthorizeRequest{
		Phone:       req.Phone,
		Email:       buyer.Email,
		Amount:      ev.Price,
		Reference:   ev.ID,
		Description: ev.Name,
	})
	if err != nil {
		s.metrics.RecordPayment(s.gateway.Name(), "rejected")
		return nil, err
	}

	p := &domain.Payment{
		ID:            uuid.NewString(),
		Provider:      s.gateway.Name(),
		TransactionID: auth.TransactionID,
		UserID:        buyer.UserID,
		EventID:       ev.ID,
		Phone:         req.Phone,
		Amount:        ev.Price,
	}
	if err := s.payments.CreatePending(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	s.metrics.RecordPayment(p.Provider, string(domain.PaymentPending))
	logger.InfoContext(ctx, "Payment initiated",
		"payment_id", p.ID,
		"provider", p.Provider,
		"transaction_id", p.TransactionID,
		"event_id", p.EventID,
	)

	publish(ctx, s.eventBus, events.PaymentInitiated, paymentEvent(p))
	return &InitiateResult{
		PaymentID:       p.ID,
		TransactionID:   p.TransactionID,
		Status:          string(p.Status),
		ClientSecret:    auth.ClientSecret,
		CustomerMessage: auth.CustomerMessage,
	}, nil
}

func (s *paymentService) HandleResult(ctx context.Context, res *domain.PaymentResult) error {
	p, err := s.payments.GetByTransaction(ctx, res.Provider, res.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil {
		logger.WarnContext(ctx, "Result for unknown payment", "provider", res.Provider, "transaction_id", res.TransactionID)
		return domain.NotFound("payment not found")
	}

	if res.Success && res.Amount > 0 && res.Amount != p.Amount {
		logger.WarnContext(ctx, "Payment amount mismatch", "payment_id", p.ID, "expected", p.Amount, "paid", res.Amount)
		res.Success = false
		res.ResultDesc = fmt.Sprintf("amount mismatch: paid %d, expected %d", res.Amount, p.Amount)
	}

	if !res.Success {
		failed, err := s.payments.Fail(ctx, p.ID, res.ResultCode, res.ResultDesc)
		if err != nil {
			return fmt.Errorf("failed to mark payment failed: %w", err)
		}
		if failed == nil {
			return nil
		}
		s.metrics.RecordPayment(p.Provider, string(domain.PaymentFailed))
		ev := paymentEvent(failed)
		ev.ResultDesc = res.ResultDesc
		publish(ctx, s.eventBus, events.PaymentFailed, ev)
		return nil
	}

	done, err := s.payments.Complete(ctx, p.ID, res.Receipt, res.ResultCode, res.ResultDesc)
	if err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	if done == nil {
		// A completed payment without a ticket failed issuance on an
		// earlier delivery of this result; the retry issues it.
		if p.Status != domain.PaymentCompleted || p.TicketID != nil {
			logger.InfoContext(ctx, "Payment already settled", "payment_id", p.ID)
			return nil
		}
		logger.InfoContext(ctx, "Reissuing ticket for paid payment", "payment_id", p.ID)
		done = p
	} else {
		s.metrics.RecordPayment(done.Provider, string(domain.PaymentCompleted))
	}

	t, err := s.tickets.Purchase(ctx, &domain.PurchaseRequest{UserID: done.UserID, EventID: done.EventID})
	if err != nil {
		logger.ErrorContext(ctx, "Paid but ticket not issued", "payment_id", done.ID, "error", err)
		return err
	}
	if err := s.payments.AttachTicket(ctx, done.ID, t.TicketID); err != nil {
		logger.ErrorContext(ctx, "Failed to link ticket to payment", "payment_id", done.ID, "ticket_id", t.TicketID, "error", err)
	}
	s.deliver(ctx, t)

	ev := paymentEvent(done)
	ev.TicketID = t.TicketID
	publish(ctx, s.eventBus, events.PaymentCompleted, ev)
	return nil
}

func (s *paymentService) deliver(ctx context.Context, t *domain.Ticket) {
	p, err := s.profiles.Get(ctx, t.UserID)
	if err != nil || p == nil {
		logger.WarnContext(ctx, "No profile to deliver ticket to", "ticket_id", t.TicketID, "error", err)
		return
	}
	if err := s.tickets.Deliver(ctx, t, p.Email); err != nil {
		logger.WarnContext(ctx, "Ticket email not sent", "ticket_id", t.TicketID, "error", err)
	}
}

func paymentEvent(p *domain.Payment) events.PaymentEvent {
	return events.PaymentEvent{
		PaymentID:     p.ID,
		Provider:      p.Provider,
		TransactionID: p.TransactionID,
		UserID:        p.UserID,
		EventID:       p.EventID,
		Amount:        p.Amount,
	}
}
