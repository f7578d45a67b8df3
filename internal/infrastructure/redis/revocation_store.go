package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RevocationStore keeps logged out session ids with a TTL equal to the
// token's remaining lifetime.
type RevocationStore struct {
	rdb *goredis.Client
}

func revokedKey(tokenID string) string {
	return Key("session", "revoked", tokenID)
}

func NewRevocationStore(c *Client) *RevocationStore {
	return &RevocationStore{rdb: c.rdb}
}

func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKey(tokenID), "1", ttl).Err()
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	err := s.rdb.Get(ctx, revokedKey(tokenID)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
