package service

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/campus-tickets/internal/artifact"
	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/identity"
	"github.com/diagnosis/campus-tickets/internal/notify"
	"github.com/diagnosis/campus-tickets/internal/platform/mailer"
	"github.com/diagnosis/campus-tickets/internal/qr"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/go-chi/chi/v5"
)

type fakeTickets struct {
	mu    sync.Mutex
	items map[string]domain.Ticket
}

func (f *fakeTickets) Create(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.PurchaseDate = time.Now().UTC()
	f.items[t.TicketID] = *t
	return nil
}

func (f *fakeTickets) Get(_ context.Context, id string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTickets) ListByUser(_ context.Context, userID string) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, t := range f.items {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTickets) MarkScanned(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok || t.Status != domain.TicketPurchased {
		return false, nil
	}
	t.Status = domain.TicketScanned
	f.items[id] = t
	return true, nil
}

type fakeEvents struct {
	mu    sync.Mutex
	items map[string]domain.Event
}

func (f *fakeEvents) List(_ context.Context) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Event
	for _, e := range f.items {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEvents) Get(_ context.Context, id string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeEvents) Create(_ context.Context, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	f.items[e.ID] = *e
	return nil
}

func (f *fakeEvents) Update(_ context.Context, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[e.ID]; !ok {
		return domain.NotFound("event not found")
	}
	e.UpdatedAt = time.Now()
	f.items[e.ID] = *e
	return nil
}

func (f *fakeEvents) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return false, nil
	}
	delete(f.items, id)
	return true, nil
}

// fakeDB backs both the identity users table and profiles.
type fakeDB struct {
	mu       sync.Mutex
	users    map[string]postgres.User
	profiles map[string]domain.Profile
}

func (f *fakeDB) CreateWithProfile(_ context.Context, u *postgres.User, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return postgres.ErrEmailExists
		}
	}
	f.users[u.ID] = *u
	f.profiles[p.UserID] = *p
	return nil
}

func (f *fakeDB) FindByEmail(_ context.Context, email string) (*postgres.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeDB) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

func (f *fakeDB) Get(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeDB) UpdateRole(_ context.Context, userID string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return domain.NotFound("profile not found")
	}
	p.Role = role
	f.profiles[userID] = p
	return nil
}

func (f *fakeDB) UpdateDetails(_ context.Context, p *domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[p.UserID]; !ok {
		return domain.NotFound("profile not found")
	}
	f.profiles[p.UserID] = *p
	return nil
}

type fakePayments struct {
	mu    sync.Mutex
	items map[string]domain.Payment
}

func (f *fakePayments) CreatePending(_ context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Status = domain.PaymentPending
	f.items[p.ID] = *p
	return nil
}

func (f *fakePayments) GetByTransaction(_ context.Context, provider, txID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.items {
		if p.Provider == provider && p.TransactionID == txID {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakePayments) settle(id string, status domain.PaymentStatus, receipt string, code int, desc string) *domain.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok || p.Status != domain.PaymentPending {
		return nil
	}
	p.Status = status
	p.Receipt = receipt
	p.ResultCode = &code
	p.ResultDesc = desc
	f.items[id] = p
	return &p
}

func (f *fakePayments) Complete(_ context.Context, id, receipt string, code int, desc string) (*domain.Payment, error) {
	return f.settle(id, domain.PaymentCompleted, receipt, code, desc), nil
}

func (f *fakePayments) Fail(_ context.Context, id string, code int, desc string) (*domain.Payment, error) {
	return f.settle(id, domain.PaymentFailed, "", code, desc), nil
}

func (f *fakePayments) AttachTicket(_ context.Context, id, ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.items[id]
	if p.TicketID == nil {
		p.TicketID = &ticketID
		f.items[id] = p
	}
	return nil
}

func (f *fakePayments) only(t *testing.T) domain.Payment {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) != 1 {
		t.Fatalf("expected one payment, have %d", len(f.items))
	}
	for _, p := range f.items {
		return p
	}
	return domain.Payment{}
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (f *fakeRevocations) Revoke(_ context.Context, sid string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sid] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sid string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sid], nil
}

type published struct {
	subject string
	data    any
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{subject: subject, data: data})
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.subject)
	}
	return out
}

func (b *recordingBus) has(subject string) bool {
	for _, s := range b.subjects() {
		if s == subject {
			return true
		}
	}
	return false
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg *mailer.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "msg-id", nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// harness wires the services to fakes plus a real artifact store served
// over HTTP, so issuance, fetch and mail run their production code.
type harness struct {
	tickets   *fakeTickets
	events    *fakeEvents
	db        *fakeDB
	payments  *fakePayments
	revoked   *fakeRevocations
	artifacts *artifact.MemoryRepo
	store     *artifact.PostgresStore
	mail      *recordingMailer
	bus       *recordingBus
	server    *httptest.Server
	identity  *identity.Store

	ticketSvc  TicketService
	accountSvc AccountService
	eventSvc   EventService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tickets:   &fakeTickets{items: map[string]domain.Ticket{}},
		events:    &fakeEvents{items: map[string]domain.Event{}},
		db:        &fakeDB{users: map[string]postgres.User{}, profiles: map[string]domain.Profile{}},
		payments:  &fakePayments{items: map[string]domain.Payment{}},
		revoked:   &fakeRevocations{revoked: map[string]bool{}},
		artifacts: artifact.NewMemoryRepo(),
		mail:      &recordingMailer{},
		bus:       &recordingBus{},
	}

	r := chi.NewRouter()
	r.Get("/artifacts/*", artifact.Handler(h.artifacts))
	h.server = httptest.NewServer(r)
	t.Cleanup(h.server.Close)

	h.store = artifact.NewPostgresStore(h.artifacts, h.server.URL+"/artifacts")
	issuer := qr.NewIssuer(h.store, nil)
	dispatcher := notify.NewDispatcher(notify.NewHTTPFetcher(notify.NewPlainClient(2*time.Second), 1<<20), h.mail, nil)
	h.identity = identity.NewStore(h.db, h.revoked, "test-secret", time.Hour)

	h.ticketSvc = NewTicketService(h.tickets, h.events, issuer, dispatcher, h.bus)
	h.accountSvc = NewAccountService(h.identity, h.db, issuer, dispatcher, h.bus)
	h.eventSvc = NewEventService(h.events, h.store, plainRenderer{}, h.bus)
	return h
}

func (h *harness) seedEvent(id string, price int64) domain.Event {
	e := domain.Event{
		ID: id, Name: "Freshers Night", Location: "Main Hall",
		Date: "2025-09-01", StartTime: "18:00", EndTime: "23:00", Price: price,
	}
	h.events.items[id] = e
	return e
}

func (h *harness) seedProfile(id, email string, role domain.Role) *domain.Profile {
	p := domain.Profile{UserID: id, FirstName: "Ada", LastName: "Lovelace", Email: email, Role: role}
	h.db.profiles[id] = p
	return &p
}

type plainRenderer struct{}

func (plainRenderer) HTML(src string) string { return "<p>" + src + "</p>" }
