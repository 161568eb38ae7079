package domain

import (
	"time"

	"github.com/diagnosis/campus-tickets/internal/utils"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type Payment struct {
	ID            string        `json:"id"`
	Provider      string        `json:"provider"`
	TransactionID string        `json:"transaction_id"`
	UserID        string        `json:"user_id"`
	EventID       string        `json:"event_id"`
	Phone         string        `json:"phone"`
	Amount        int64         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	Receipt       string        `json:"receipt,omitempty"`
	TicketID      *string       `json:"ticket_id,omitempty"`
	ResultCode    *int          `json:"result_code,omitempty"`
	ResultDesc    string        `json:"result_desc,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// InitiatePaymentRequest is the body of POST /initiate_payment.
type InitiatePaymentRequest struct {
	Phone   string `json:"phone"`
	EventID string `json:"event_id"`
}

func (r *InitiatePaymentRequest) Normalize() {
	r.Phone = utils.NormalizeMSISDN(r.Phone)
	r.EventID = utils.NormalizeString(r.EventID)
}

func (r *InitiatePaymentRequest) Validate() error {
	if r.EventID == "" {
		return Validation("event_id is required")
	}
	if r.Phone == "" {
		return Validation("Please enter a valid phone number, e.g. 2547XXXXXXXX")
	}
	return nil
}

// PaymentResult is the provider-neutral outcome delivered to a callback.
type PaymentResult struct {
	Provider      string
	TransactionID string
	Success       bool
	ResultCode    int
	ResultDesc    string
	Receipt       string
	Amount        int64
	Phone         string
}
