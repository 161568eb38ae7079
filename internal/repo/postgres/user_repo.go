package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEmailExists = errors.New("email already registered")

const uniqueViolation = "23505"

// User is the credential record behind a session; the profile lives separately.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UsersRepo interface {
	// CreateWithProfile inserts the credential and profile rows in one transaction.
	CreateWithProfile(ctx context.Context, u *User, p *domain.Profile) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

type UsersRepoImpl struct{ pool *pgxpool.Pool }

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepoImpl { return &UsersRepoImpl{pool: pool} }

func (r *UsersRepoImpl) CreateWithProfile(ctx context.Context, u *User, p *domain.Profile) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const qu = `
INSERT INTO users (id, email, password_hash)
VALUES ($1,$2,$3)
RETURNING created_at, updated_at`
		if err := tx.QueryRow(ctx, qu, u.ID, u.Email, u.PasswordHash).Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrEmailExists
			}
			return err
		}

		const qp = `
INSERT INTO profiles (user_id, first_name, last_name, email, degree, role, phone)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at, updated_at`
		return tx.QueryRow(ctx, qp,
			p.UserID, p.FirstName, p.LastName, p.Email, p.Degree, string(p.Role), p.Phone,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
	})
}

func (r *UsersRepoImpl) FindByEmail(ctx context.Context, email string) (*User, error) {
	const q = `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email=$1`
	return r.findOne(ctx, q, email)
}

func (r *UsersRepoImpl) FindByID(ctx context.Context, id string) (*User, error) {
	const q = `SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id=$1`
	return r.findOne(ctx, q, id)
}

func (r *UsersRepoImpl) findOne(ctx context.Context, q string, arg any) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var u User
	err := r.pool.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UsersRepoImpl) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(ctx, q, id, hash)
	return err
}
