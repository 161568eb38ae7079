package postgres

import (
	"context"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfilesRepo interface {
	// Get returns nil, nil when the user has no profile.
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	UpdateRole(ctx context.Context, userID string, role domain.Role) error
	UpdateDetails(ctx context.Context, p *domain.Profile) error
}

type ProfilesRepoImpl struct{ pool *pgxpool.Pool }

func NewProfilesRepo(pool *pgxpool.Pool) *ProfilesRepoImpl { return &ProfilesRepoImpl{pool: pool} }

func (r *ProfilesRepoImpl) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	const q = `
SELECT user_id, first_name, last_name, email, degree, role, phone, created_at, updated_at
FROM profiles WHERE user_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.Profile
	var role string
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Degree, &role, &p.Phone, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	return &p, nil
}

func (r *ProfilesRepoImpl) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	const q = `UPDATE profiles SET role=$2, updated_at=now() WHERE user_id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	tag, err := r.pool.Exec(ctx, q, userID, string(role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("profile not found")
	}
	return nil
}

func (r *ProfilesRepoImpl) UpdateDetails(ctx context.Context, p *domain.Profile) error {
	const q = `
UPDATE profiles
SET first_name=$2, last_name=$3, degree=$4, phone=$5, updated_at=now()
WHERE user_id=$1
RETURNING updated_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	err := r.pool.QueryRow(ctx, q, p.UserID, p.FirstName, p.LastName, p.Degree, p.Phone).Scan(&p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.NotFound("profile not found")
	}
	return err
}
