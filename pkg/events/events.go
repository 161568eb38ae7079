package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(wrap(msg))
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(wrap(msg))
	})
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

func wrap(msg *nats.Msg) *Message {
	id := msg.Header.Get(nats.MsgIdHdr)
	if id == "" {
		id = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return &Message{
		Subject:   msg.Subject,
		Data:      msg.Data,
		Timestamp: time.Now(),
		ID:        id,
	}
}

// NopBus drops every event. Used when NATS_URL is empty.
type NopBus struct{}

func (NopBus) Publish(ctx context.Context, subject string, data interface{}) error {
	logger.DebugContext(ctx, "Event dropped (no bus)", "subject", subject)
	return nil
}

func (NopBus) Subscribe(string, func(*Message)) error              { return nil }
func (NopBus) QueueSubscribe(string, string, func(*Message)) error { return nil }
func (NopBus) Close() error                                        { return nil }

// Event subjects
const (
	TicketPurchased = "ticket.purchased"
	TicketScanned   = "ticket.scanned"
	TicketSent      = "ticket.sent"

	PaymentInitiated = "payment.initiated"
	PaymentCompleted = "payment.completed"
	PaymentFailed    = "payment.failed"

	UserSignedUp = "user.signed_up"

	EventCreated = "event.created"
	EventUpdated = "event.updated"
	EventDeleted = "event.deleted"

	// AllTickets matches every ticket subject.
	AllTickets = "ticket.>"
)

type TicketPurchasedEvent struct {
	TicketID    string    `json:"ticket_id"`
	UserID      string    `json:"user_id"`
	EventID     string    `json:"event_id"`
	TicketURL   string    `json:"ticket_url"`
	PurchasedAt time.Time `json:"purchased_at"`
}

type TicketScannedEvent struct {
	TicketID  string    `json:"ticket_id"`
	ScannedBy string    `json:"scanned_by"`
	ScannedAt time.Time `json:"scanned_at"`
}

type TicketSentEvent struct {
	Recipient   string    `json:"recipient"`
	ArtifactURL string    `json:"artifact_url"`
	SentAt      time.Time `json:"sent_at"`
}

type PaymentEvent struct {
	PaymentID     string `json:"payment_id"`
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	EventID       string `json:"event_id"`
	Amount        int64  `json:"amount"`
	TicketID      string `json:"ticket_id,omitempty"`
	ResultDesc    string `json:"result_desc,omitempty"`
}

type UserSignedUpEvent struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

type EventChangedEvent struct {
	EventID string `json:"event_id"`
	Name    string `json:"event_name,omitempty"`
}
