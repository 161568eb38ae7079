package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList remembers revoked session ids until their credential
// would have expired anyway.
type RevocationList struct {
	rdb *redis.Client
}

func NewRevocationList(rdb *redis.Client) *RevocationList {
	return &RevocationList{rdb: rdb}
}

func revokedKey(sessionID string) string {
	return "session:revoked:" + sessionID
}

func (l *RevocationList) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return l.rdb.Set(ctx, revokedKey(sessionID), "1", ttl).Err()
}

func (l *RevocationList) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	_, err := l.rdb.Get(ctx, revokedKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
