package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventsRepo interface {
	List(ctx context.Context) ([]domain.Event, error)
	// Get returns nil, nil for an unknown id.
	Get(ctx context.Context, id string) (*domain.Event, error)
	Create(ctx context.Context, e *domain.Event) error
	Update(ctx context.Context, e *domain.Event) error
	Delete(ctx context.Context, id string) (bool, error)
}

type EventsRepoImpl struct{ pool *pgxpool.Pool }

func NewEventsRepo(pool *pgxpool.Pool) *EventsRepoImpl { return &EventsRepoImpl{pool: pool} }

const eventCols = `id, event_name, description, location, to_char(event_date, 'YYYY-MM-DD'),
       start_time, end_time, price, image_url, created_at, updated_at`

func (r *EventsRepoImpl) List(ctx context.Context) ([]domain.Event, error) {
	q := `SELECT ` + eventCols + ` FROM events ORDER BY event_date, start_time`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *EventsRepoImpl) Get(ctx context.Context, id string) (*domain.Event, error) {
	q := `SELECT ` + eventCols + ` FROM events WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	e, err := scanEvent(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *EventsRepoImpl) Create(ctx context.Context, e *domain.Event) error {
	const q = `
INSERT INTO events (id, event_name, description, location, event_date, start_time, end_time, price, image_url)
VALUES ($1,$2,$3,$4,$5::text::date,$6,$7,$8,$9)
RETURNING created_at, updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.pool.QueryRow(ctx, q,
		e.ID, e.Name, e.Description, e.Location, e.Date, e.StartTime, e.EndTime, e.Price, e.ImageURL,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *EventsRepoImpl) Update(ctx context.Context, e *domain.Event) error {
	const q = `
UPDATE events
SET event_name=$2, description=$3, location=$4, event_date=$5::text::date,
    start_time=$6, end_time=$7, price=$8, image_url=$9, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := r.pool.QueryRow(ctx, q,
		e.ID, e.Name, e.Description, e.Location, e.Date, e.StartTime, e.EndTime, e.Price, e.ImageURL,
	).Scan(&e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.NotFound("event not found")
	}
	return err
}

func (r *EventsRepoImpl) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	if err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.Location, &e.Date,
		&e.StartTime, &e.EndTime, &e.Price, &e.ImageURL, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
