package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/diagnosis/campus-tickets/internal/utils"
)

type TicketStatus string

const (
	TicketPurchased TicketStatus = "purchased"
	TicketScanned   TicketStatus = "scanned"
)

func ParseTicketStatus(s string) (TicketStatus, bool) {
	switch TicketStatus(s) {
	case TicketPurchased, TicketScanned:
		return TicketStatus(s), true
	default:
		return "", false
	}
}

type Ticket struct {
	TicketID     string       `json:"ticket_id"`
	UserID       string       `json:"user_id"`
	EventID      string       `json:"event_id"`
	PurchaseDate time.Time    `json:"purchase_date"`
	Status       TicketStatus `json:"status"`
	TicketURL    string       `json:"ticket_url"`
}

// TicketPayload is what gets encoded into a ticket's QR symbol. Scanners
// only need the ticket id; the rest lets staff eyeball a decoded code.
type TicketPayload struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
}

func (t *Ticket) Payload() TicketPayload {
	return TicketPayload{TicketID: t.TicketID, UserID: t.UserID, EventID: t.EventID}
}

// ArtifactName is the storage name for a ticket's QR image.
func ArtifactName(ticketID string) string {
	return "tickets/" + ticketID + ".png"
}

// PurchaseRequest is a direct purchase record.
type PurchaseRequest struct {
	UserID  string `json:"user_id"`
	EventID string `json:"event_id"`
}

func (r *PurchaseRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.EventID = strings.TrimSpace(r.EventID)
}

func (r *PurchaseRequest) Validate() error {
	if r.UserID == "" {
		return Validation("user_id is required")
	}
	if r.EventID == "" {
		return Validation("event_id is required")
	}
	return nil
}

// SendQRRequest is the body of POST /send_qr.
type SendQRRequest struct {
	Email      string          `json:"email"`
	TicketInfo json.RawMessage `json:"ticket_info"`
}

func (r *SendQRRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

func (r *SendQRRequest) Validate() error {
	if r.Email == "" || isEmptyJSON(r.TicketInfo) {
		return Validation("Missing email or ticket_info")
	}
	if !utils.IsValidEmail(r.Email) {
		return Validation("Invalid email format")
	}
	if !json.Valid(r.TicketInfo) {
		return Validation("ticket_info must be valid JSON")
	}
	return nil
}

// SendQRPayload is the QR content for an ad-hoc ticket send.
type SendQRPayload struct {
	UserEmail  string          `json:"user_email"`
	TicketInfo json.RawMessage `json:"ticket_info"`
}

// ScanRequest carries the decoded text of a scanned ticket QR.
type ScanRequest struct {
	Payload string `json:"payload"`
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	return false
}
