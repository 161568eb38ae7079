package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/qr"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/pkg/events"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/google/uuid"
)

const (
	TicketEmailSubject = "Your Event Ticket"
	TicketEmailBody    = "Here is your event ticket with QR code."
	SendQRSuccess      = "QR code with ticket info sent successfully!"
)

// Issuer renders a payload as a stored QR image and returns its URL.
type Issuer interface {
	Issue(ctx context.Context, payload any, name string) (string, error)
}

// Dispatcher emails the artifact at artifactURL as an attachment.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipient, subject, body, artifactURL string) error
}

type TicketService interface {
	// SendQR issues an ad-hoc QR for {email, ticket_info} and emails it.
	SendQR(ctx context.Context, req *domain.SendQRRequest) error
	// Purchase creates a ticket and its QR artifact. It does not send mail.
	Purchase(ctx context.Context, req *domain.PurchaseRequest) (*domain.Ticket, error)
	// Deliver emails an existing ticket's QR to email.
	Deliver(ctx context.Context, t *domain.Ticket, email string) error
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Ticket, error)
	// Scan checks a ticket in from the decoded QR text. A ticket can be
	// scanned once; later scans are a conflict.
	Scan(ctx context.Context, payload, staffID string) (*domain.Ticket, error)
	ScanImage(ctx context.Context, img []byte, staffID string) (*domain.Ticket, error)
}

type ticketService struct {
	tickets    postgres.TicketsRepo
	events     postgres.EventsRepo
	issuer     Issuer
	dispatcher Dispatcher
	eventBus   events.Publisher
	newID      func() string
}

func NewTicketService(
	tickets postgres.TicketsRepo,
	eventsRepo postgres.EventsRepo,
	issuer Issuer,
	dispatcher Dispatcher,
	eventBus events.Publisher,
) TicketService {
	return &ticketService{
		tickets:    tickets,
		events:     eventsRepo,
		issuer:     issuer,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		newID:      uuid.NewString,
	}
}

func (s *ticketService) SendQR(ctx context.Context, req *domain.SendQRRequest) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	payload := domain.SendQRPayload{UserEmail: req.Email, TicketInfo: req.TicketInfo}
	name := "sends/" + s.newID() + "/qrcode.png"

	url, err := s.issuer.Issue(ctx, payload, name)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Generated QR code", "url", url)

	if err := s.dispatcher.Dispatch(ctx, req.Email, TicketEmailSubject, TicketEmailBody, url); err != nil {
		return err
	}

	publish(ctx, s.eventBus, events.TicketSent, events.TicketSentEvent{
		Recipient:   req.Email,
		ArtifactURL: url,
		SentAt:      time.Now().UTC(),
	})
	return nil
}

func (s *ticketService) Purchase(ctx context.Context, req *domain.PurchaseRequest) (*domain.Ticket, error) {
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

	t := &domain.Ticket{
		TicketID: s.newID(),
		UserID:   req.UserID,
		EventID:  req.EventID,
		Status:   domain.TicketPurchased,
	}
	url, err := s.issuer.Issue(ctx, t.Payload(), domain.ArtifactName(t.TicketID))
	if err != nil {
		return nil, err
	}
	t.TicketURL = url

	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	publish(ctx, s.eventBus, events.TicketPurchased, events.TicketPurchasedEvent{
		TicketID:    t.TicketID,
		UserID:      t.UserID,
		EventID:     t.EventID,
		TicketURL:   t.TicketURL,
		PurchasedAt: t.PurchaseDate,
	})
	return t, nil
}

func (s *ticketService) Deliver(ctx context.Context, t *domain.Ticket, email string) error {
	if err := s.dispatcher.Dispatch(ctx, email, TicketEmailSubject, TicketEmailBody, t.TicketURL); err != nil {
		return err
	}
	publish(ctx, s.eventBus, events.TicketSent, events.TicketSentEvent{
		Recipient:   email,
		ArtifactURL: t.TicketURL,
		SentAt:      time.Now().UTC(),
	})
	return nil
}

func (s *ticketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if t == nil {
		return nil, domain.NotFound("ticket not found")
	}
	return t, nil
}

func (s *ticketService) ListForUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	ts, err := s.tickets.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	if ts == nil {
		ts = []domain.Ticket{}
	}
	return ts, nil
}

func (s *ticketService) Scan(ctx context.Context, payload, staffID string) (*domain.Ticket, error) {
	var p domain.TicketPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil || p.TicketID == "" {
		return nil, domain.Validation("not a ticket QR code")
	}

	t, err := s.GetTicket(ctx, p.TicketID)
	if err != nil {
		return nil, err
	}

	ok, err := s.tickets.MarkScanned(ctx, t.TicketID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket scanned: %w", err)
	}
	if !ok {
		return nil, domain.E(domain.KindConflict, "ticket already scanned", nil)
	}
	t.Status = domain.TicketScanned

	logger.InfoContext(ctx, "Ticket scanned", "ticket_id", t.TicketID, "staff_id", staffID)
	publish(ctx, s.eventBus, events.TicketScanned, events.TicketScannedEvent{
		TicketID:  t.TicketID,
		ScannedBy: staffID,
		ScannedAt: time.Now().UTC(),
	})
	return t, nil
}

func (s *ticketService) ScanImage(ctx context.Context, img []byte, staffID string) (*domain.Ticket, error) {
	text, err := qr.Decode(img)
	if err != nil {
		return nil, domain.E(domain.KindValidation, "could not read a QR code from the image", err)
	}
	return s.Scan(ctx, text, staffID)
}
