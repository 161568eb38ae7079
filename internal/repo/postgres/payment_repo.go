package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentsRepo interface {
	CreatePending(ctx context.Context, p *domain.Payment) error
	// GetByTransaction returns nil, nil for an unknown transaction.
	GetByTransaction(ctx context.Context, provider, transactionID string) (*domain.Payment, error)
	// Complete and Fail only move a pending payment. They return nil, nil
	// when the payment was already settled.
	Complete(ctx context.Context, id, receipt string, code int, desc string) (*domain.Payment, error)
	Fail(ctx context.Context, id string, code int, desc string) (*domain.Payment, error)
	// AttachTicket links the issued ticket. An already linked payment is
	// left unchanged.
	AttachTicket(ctx context.Context, id, ticketID string) error
}

type PaymentsRepoImpl struct{ pool *pgxpool.Pool }

func NewPaymentsRepo(pool *pgxpool.Pool) *PaymentsRepoImpl { return &PaymentsRepoImpl{pool: pool} }

const paymentCols = `id, provider, transaction_id, user_id, event_id, phone, amount, status,
       receipt, ticket_id, result_code, result_desc, created_at, updated_at`

func (r *PaymentsRepoImpl) CreatePending(ctx context.Context, p *domain.Payment) error {
	const q = `
INSERT INTO payments (id, provider, transaction_id, user_id, event_id, phone, amount, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')
RETURNING created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	p.Status = domain.PaymentPending
	return r.pool.QueryRow(ctx, q,
		p.ID, p.Provider, p.TransactionID, p.UserID, p.EventID, p.Phone, p.Amount,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentsRepoImpl) GetByTransaction(ctx context.Context, provider, transactionID string) (*domain.Payment, error) {
	q := `SELECT ` + paymentCols + ` FROM payments WHERE provider=$1 AND transaction_id=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPaymentOrNil(r.pool.QueryRow(ctx, q, provider, transactionID))
}

func (r *PaymentsRepoImpl) Complete(ctx context.Context, id, receipt string, code int, desc string) (*domain.Payment, error) {
	q := `
UPDATE payments
SET status='completed', receipt=$2, result_code=$3, result_desc=$4, updated_at=now()
WHERE id=$1 AND status='pending'
RETURNING ` + paymentCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPaymentOrNil(r.pool.QueryRow(ctx, q, id, receipt, code, desc))
}

func (r *PaymentsRepoImpl) Fail(ctx context.Context, id string, code int, desc string) (*domain.Payment, error) {
	q := `
UPDATE payments
SET status='failed', result_code=$2, result_desc=$3, updated_at=now()
WHERE id=$1 AND status='pending'
RETURNING ` + paymentCols
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return scanPaymentOrNil(r.pool.QueryRow(ctx, q, id, code, desc))
}

func (r *PaymentsRepoImpl) AttachTicket(ctx context.Context, id, ticketID string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, `UPDATE payments SET ticket_id=$2, updated_at=now() WHERE id=$1 AND ticket_id IS NULL`, id, ticketID)
	return err
}

func scanPaymentOrNil(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var status string
	err := row.Scan(
		&p.ID, &p.Provider, &p.TransactionID, &p.UserID, &p.EventID, &p.Phone, &p.Amount, &status,
		&p.Receipt, &p.TicketID, &p.ResultCode, &p.ResultDesc, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}
