package service

import (
	"context"
	"errors"
	"testing"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/payments"
	"github.com/diagnosis/campus-tickets/pkg/events"
)

type fakeGateway struct {
	calls []payments.AuthorizeRequest
	err   error
}

func (g *fakeGateway) Name() string { return payments.ProviderMpesa }

func (g *fakeGateway) Authorize(_ context.Context, req payments.AuthorizeRequest) (*payments.Authorization, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payments.Authorization{TransactionID: "ws_CO_1", CustomerMessage: "Check your phone"}, nil
}

func newPaymentService(h *harness, gw payments.Gateway) PaymentService {
	return NewPaymentService(gw, h.payments, h.events, h.db, h.ticketSvc, h.bus, nil)
}

func TestInitiatePayment(t *testing.T) {
	h := newHarness(t)
	h.seedEvent("e1", 500)
	buyer := h.seedProfile("u1", "ada@uni.ac.ke", domain.RoleStudent)
	gw := &fakeGateway{}
	svc := newPaymentService(h, gw)

	res, err := svc.Initiate(context.Background(), buyer, &domain.InitiatePaymentRequest{Phone: "0712 345 678", EventID: "e1"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if res.TransactionID != "ws_CO_1" || res.Status != "pending" || res.CustomerMessage != "Check your phone" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(gw.calls) != 1 || gw.calls[0].Phone != "254712345678" || gw.calls[0].Amount != 500 {
		t.Fatalf("unexpected gateway calls %+v", gw.calls)
	}

	p := h.payments.only(t)
	if p.Status != domain.PaymentPending || p.UserID != "u1" || p.EventID != "e1" || p.Amount != 500 {
		t.Fatalf("unexpected payment %+v", p)
	}
	if !h.bus.has(events.PaymentInitiated) {
		t.Fatal("expected payment.initiated")
	}
}

func TestInitiatePayment_Errors(t *testing.T) {
	h := newHarness(t)
	h.seedEvent("free", 0)
	h.seedEvent("paid", 500)
	buyer := h.seedProfile("u1", "ada@uni.ac.ke", domain.RoleStudent)
	ctx := context.Background()

	tests := []struct {
		name string
		gw   *fakeGateway
		req  domain.InitiatePaymentRequest
		want domain.Kind
	}{
		{"bad phone", &fakeGateway{}, domain.InitiatePaymentRequest{Phone: "12345", EventID: "paid"}, domain.KindValidation},
		{"no event id", &fakeGateway{}, domain.InitiatePaymentRequest{Phone: "0712345678"}, domain.KindValidation},
		{"unknown event", &fakeGateway{}, domain.InitiatePaymentRequest{Phone: "0712345678", EventID: "nope"}, domain.KindNotFound},
		{"free event", &fakeGateway{}, domain.InitiatePaymentRequest{Phone: "0712345678", EventID: "free"}, domain.KindValidation},
		{
			"gateway rejects",
			&fakeGateway{err: domain.E(domain.KindPaymentFailed, "payment request was rejected", nil)},
			domain.InitiatePaymentRequest{Phone: "0712345678", EventID: "paid"},
			domain.KindPaymentFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := newPaymentService(h, tt.gw).Initiate(ctx, buyer, &req)
			if !domain.IsKind(err, tt.want) {
				t.Fatalf("expected %s, got %v", tt.want, err)
			}
		})
	}
	if len(h.payments.items) != 0 {
		t.Fatal("payment recorded for failed initiation")
	}
}

func initiated(t *testing.T) (*harness, PaymentService) {
	t.Helper()
	h := newHarness(t)
	h.seedEvent("e1", 500)
	buyer := h.seedProfile("u1", "ada@uni.ac.ke", domain.RoleStudent)
	svc := newPaymentService(h, &fakeGateway{})
	if _, err := svc.Initiate(context.Background(), buyer, &domain.InitiatePaymentRequest{Phone: "0712345678", EventID: "e1"}); err != nil {
		t.Fatal(err)
	}
	return h, svc
}

func TestHandleResult_SuccessIssuesAndMailsTicket(t *testing.T) {
	h, svc := initiated(t)
	ctx := context.Background()
	res := &domain.PaymentResult{
		Provider: payments.ProviderMpesa, TransactionID: "ws_CO_1", Success: true,
		Receipt: "NLJ7RT61SV", Amount: 500,
	}

	if err := svc.HandleResult(ctx, res); err != nil {
		t.Fatalf("HandleResult: %v", err)
	}

	p := h.payments.only(t)
	if p.Status != domain.PaymentCompleted || p.Receipt != "NLJ7RT61SV" || p.TicketID == nil {
		t.Fatalf("unexpected payment %+v", p)
	}
	ticket, err := h.ticketSvc.GetTicket(ctx, *p.TicketID)
	if err != nil {
		t.Fatalf("ticket not stored: %v", err)
	}
	if ticket.UserID != "u1" || ticket.EventID != "e1" || ticket.Status != domain.TicketPurchased {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if h.mail.count() != 1 || h.mail.sent[0].To != "ada@uni.ac.ke" || h.mail.sent[0].Subject != TicketEmailSubject {
		t.Fatalf("expected ticket email to buyer, got %d emails", h.mail.count())
	}
	if !h.bus.has(events.PaymentCompleted) {
		t.Fatal("expected payment.completed")
	}

	// Providers retry callbacks; a repeat must not issue a second ticket.
	if err := svc.HandleResult(ctx, res); err != nil {
		t.Fatalf("repeat HandleResult: %v", err)
	}
	if len(h.tickets.items) != 1 || h.mail.count() != 1 {
		t.Fatalf("repeat callback issued %d tickets, %d emails", len(h.tickets.items), h.mail.count())
	}
}

// flakyTickets fails the first n purchases, as when the artifact store is down.
type flakyTickets struct {
	TicketService
	failures int
}

func (f *flakyTickets) Purchase(ctx context.Context, req *domain.PurchaseRequest) (*domain.Ticket, error) {
	if f.failures > 0 {
		f.failures--
		return nil, domain.E(domain.KindIssuanceFailed, "could not store QR code", errors.New("store down"))
	}
	return f.TicketService.Purchase(ctx, req)
}

func TestHandleResult_RetryIssuesAfterFailedIssuance(t *testing.T) {
	h := newHarness(t)
	h.seedEvent("e1", 500)
	buyer := h.seedProfile("u1", "ada@uni.ac.ke", domain.RoleStudent)
	tickets := &flakyTickets{TicketService: h.ticketSvc, failures: 1}
	svc := NewPaymentService(&fakeGateway{}, h.payments, h.events, h.db, tickets, h.bus, nil)
	ctx := context.Background()
	if _, err := svc.Initiate(ctx, buyer, &domain.InitiatePaymentRequest{Phone: "0712345678", EventID: "e1"}); err != nil {
		t.Fatal(err)
	}
	res := &domain.PaymentResult{
		Provider: payments.ProviderMpesa, TransactionID: "ws_CO_1", Success: true,
		Receipt: "NLJ7RT61SV", Amount: 500,
	}

	if err := svc.HandleResult(ctx, res); !domain.IsKind(err, domain.KindIssuanceFailed) {
		t.Fatalf("expected ISSUANCE_FAILED, got %v", err)
	}
	if p := h.payments.only(t); p.Status != domain.PaymentCompleted || p.TicketID != nil {
		t.Fatalf("unexpected payment after failed issuance %+v", p)
	}

	if err := svc.HandleResult(ctx, res); err != nil {
		t.Fatalf("retry HandleResult: %v", err)
	}
	p := h.payments.only(t)
	if p.TicketID == nil {
		t.Fatal("retry did not link a ticket")
	}
	if len(h.tickets.items) != 1 || h.mail.count() != 1 {
		t.Fatalf("retry issued %d tickets, %d emails", len(h.tickets.items), h.mail.count())
	}
	if _, err := h.ticketSvc.GetTicket(ctx, *p.TicketID); err != nil {
		t.Fatalf("linked ticket missing: %v", err)
	}

	if err := svc.HandleResult(ctx, res); err != nil {
		t.Fatalf("third HandleResult: %v", err)
	}
	if len(h.tickets.items) != 1 {
		t.Fatalf("settled payment issued again, have %d tickets", len(h.tickets.items))
	}
}

func TestHandleResult_Failure(t *testing.T) {
	h, svc := initiated(t)

	err := svc.HandleResult(context.Background(), &domain.PaymentResult{
		Provider: payments.ProviderMpesa, TransactionID: "ws_CO_1", ResultCode: 1032, ResultDesc: "Request cancelled by user",
	})
	if err != nil {
		t.Fatalf("HandleResult: %v", err)
	}
	p := h.payments.only(t)
	if p.Status != domain.PaymentFailed || p.ResultDesc != "Request cancelled by user" {
		t.Fatalf("unexpected payment %+v", p)
	}
	if len(h.tickets.items) != 0 || h.mail.count() != 0 {
		t.Fatal("failed payment produced a ticket")
	}
	if !h.bus.has(events.PaymentFailed) {
		t.Fatal("expected payment.failed")
	}
}

func TestHandleResult_AmountMismatchFails(t *testing.T) {
	h, svc := initiated(t)

	err := svc.HandleResult(context.Background(), &domain.PaymentResult{
		Provider: payments.ProviderMpesa, TransactionID: "ws_CO_1", Success: true, Amount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if p := h.payments.only(t); p.Status != domain.PaymentFailed {
		t.Fatalf("status %q, want failed", p.Status)
	}
	if len(h.tickets.items) != 0 {
		t.Fatal("underpaid payment produced a ticket")
	}
}

func TestHandleResult_UnknownTransaction(t *testing.T) {
	_, svc := initiated(t)
	err := svc.HandleResult(context.Background(), &domain.PaymentResult{Provider: payments.ProviderMpesa, TransactionID: "other", Success: true})
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
