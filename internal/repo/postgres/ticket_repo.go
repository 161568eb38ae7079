package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketsRepo interface {
	Create(ctx context.Context, t *domain.Ticket) error
	// Get returns nil, nil when no ticket has this id.
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error)
	// MarkScanned moves purchased -> scanned. It reports false when the
	// ticket was not in the purchased state.
	MarkScanned(ctx context.Context, ticketID string) (bool, error)
}

type TicketsRepoImpl struct{ pool *pgxpool.Pool }

func NewTicketsRepo(pool *pgxpool.Pool) *TicketsRepoImpl { return &TicketsRepoImpl{pool: pool} }

const ticketCols = `ticket_id, user_id, event_id, purchase_date, status, ticket_url`

func (r *TicketsRepoImpl) Create(ctx context.Context, t *domain.Ticket) error {
	const q = `
INSERT INTO tickets (ticket_id, user_id, event_id, status, ticket_url)
VALUES ($1,$2,$3,$4,$5)
RETURNING purchase_date`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.pool.QueryRow(ctx, q, t.TicketID, t.UserID, t.EventID, string(t.Status), t.TicketURL).Scan(&t.PurchaseDate)
}

func (r *TicketsRepoImpl) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	q := `SELECT ` + ticketCols + ` FROM tickets WHERE ticket_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := scanTicket(r.pool.QueryRow(ctx, q, ticketID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *TicketsRepoImpl) ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	q := `SELECT ` + ticketCols + ` FROM tickets WHERE user_id=$1 ORDER BY purchase_date DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TicketsRepoImpl) MarkScanned(ctx context.Context, ticketID string) (bool, error) {
	const q = `UPDATE tickets SET status='scanned', scanned_at=now() WHERE ticket_id=$1 AND status='purchased'`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tag, err := r.pool.Exec(ctx, q, ticketID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var t domain.Ticket
	var status string
	if err := row.Scan(&t.TicketID, &t.UserID, &t.EventID, &t.PurchaseDate, &status, &t.TicketURL); err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	return &t, nil
}
