package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
)

// RedisStore keeps dismissals as TTL keys so expiry needs no sweeper.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ notificationdomain.DismissalStore = (*RedisStore)(nil)

func dismissalKey(userID snowflake.ID, featureID string, scope snowflake.ID) string {
	return fmt.Sprintf("callout_dismissal:%s:%s:%s", userID.String(), featureID, scope.String())
}

func (s *RedisStore) Dismiss(ctx context.Context, userID snowflake.ID, featureID string, scope snowflake.ID, ttl time.Duration) error {
	return s.client.Set(ctx, dismissalKey(userID, featureID, scope), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

func (s *RedisStore) Dismissed(ctx context.Context, userID snowflake.ID, featureID string, scope snowflake.ID) (bool, error) {
	n, err := s.client.Exists(ctx, dismissalKey(userID, featureID, scope)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
