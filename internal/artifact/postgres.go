package artifact

import (
	"context"
	"fmt"

	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
)

// PostgresStore keeps artifacts in the artifacts table and serves them
// through Handler under baseURL.
type PostgresStore struct {
	repo    postgres.ArtifactsRepo
	baseURL string
}

func NewPostgresStore(repo postgres.ArtifactsRepo, baseURL string) *PostgresStore {
	return &PostgresStore{repo: repo, baseURL: baseURL}
}

func (s *PostgresStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return s.repo.Put(ctx, &postgres.Artifact{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		ETag:        Digest(data),
	})
}

func (s *PostgresStore) URL(name string) string {
	return joinURL(s.baseURL, name)
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*postgres.Artifact, error) {
	return s.repo.Get(ctx, name)
}
