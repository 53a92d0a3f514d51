package store

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotara/internal/clock"
	notificationdomain "github.com/smallbiznis/quotara/internal/notification/domain"
)

// MemoryStore is a process-local DismissalStore, used when no redis address
// is configured and in tests.
type MemoryStore struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:   c,
		entries: make(map[string]time.Time),
	}
}

var _ notificationdomain.DismissalStore = (*MemoryStore)(nil)

func (s *MemoryStore) Dismiss(ctx context.Context, userID snowflake.ID, featureID string, scope snowflake.ID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[dismissalKey(userID, featureID, scope)] = s.clock.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) Dismissed(ctx context.Context, userID snowflake.ID, featureID string, scope snowflake.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dismissalKey(userID, featureID, scope)
	expiry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.clock.Now().Before(expiry) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}
