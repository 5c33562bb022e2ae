package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultEvidenceTTL is how long cached search results stay valid
	DefaultEvidenceTTL = 6 * time.Hour
	// DefaultStatsTTL keeps daily outcome counters for a while after the day ends
	DefaultStatsTTL = 8 * 24 * time.Hour
)

// Store handles Redis operations for quota, evidence cache and stats
type Store struct {
	client redis.UniversalClient
}

// NewStore creates a new Redis store
func NewStore(client redis.UniversalClient) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks the connection, used by readiness probes
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return s.client.Ping(ctx).Err()
}
