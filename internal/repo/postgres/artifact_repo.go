package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	ETag        string
	UpdatedAt   time.Time
}

type ArtifactsRepo interface {
	// Put creates or overwrites the artifact stored under a.Name.
	Put(ctx context.Context, a *Artifact) error
	// Get returns nil, nil when nothing is stored under name.
	Get(ctx context.Context, name string) (*Artifact, error)
}

type ArtifactsRepoImpl struct{ pool *pgxpool.Pool }

func NewArtifactsRepo(pool *pgxpool.Pool) *ArtifactsRepoImpl { return &ArtifactsRepoImpl{pool: pool} }

func (r *ArtifactsRepoImpl) Put(ctx context.Context, a *Artifact) error {
	const q = `
INSERT INTO artifacts (name, content_type, data, etag, size)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (name) DO UPDATE
SET content_type=EXCLUDED.content_type, data=EXCLUDED.data, etag=EXCLUDED.etag,
    size=EXCLUDED.size, updated_at=now()
RETURNING updated_at`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.pool.QueryRow(ctx, q, a.Name, a.ContentType, a.Data, a.ETag, int64(len(a.Data))).Scan(&a.UpdatedAt)
}

func (r *ArtifactsRepoImpl) Get(ctx context.Context, name string) (*Artifact, error) {
	const q = `SELECT name, content_type, data, etag, updated_at FROM artifacts WHERE name=$1`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var a Artifact
	err := r.pool.QueryRow(ctx, q, name).Scan(&a.Name, &a.ContentType, &a.Data, &a.ETag, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
