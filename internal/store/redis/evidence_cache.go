package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// CacheEvidence stores the sources returned for a query
func (s *Store) CacheEvidence(ctx context.Context, query string, k int, sources []domain.Source, ttl time.Duration) error {
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}
	if err := s.client.Set(ctx, EvidenceKey(query, k), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache evidence: %w", err)
	}
	return nil
}

// GetCachedEvidence retrieves cached sources. A miss returns (nil, false, nil).
func (s *Store) GetCachedEvidence(ctx context.Context, query string, k int) ([]domain.Source, bool, error) {
	data, err := s.client.Get(ctx, EvidenceKey(query, k)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("failed to get cached evidence: %w", err)
	}

	var sources []domain.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal evidence: %w", err)
	}
	return sources, true, nil
}

// InvalidateEvidence removes a cached query
func (s *Store) InvalidateEvidence(ctx context.Context, query string, k int) error {
	if err := s.client.Del(ctx, EvidenceKey(query, k)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate evidence: %w", err)
	}
	return nil
}

// FlushEvidence removes all cached search results
func (s *Store) FlushEvidence(ctx context.Context) (int, error) {
	deleted := 0
	iter := s.client.Scan(ctx, 0, KeyPrefixEvidence+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("failed to delete evidence key: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to flush evidence: %w", err)
	}
	return deleted, nil
}
