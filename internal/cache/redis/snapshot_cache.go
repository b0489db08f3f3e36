package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache implements domain.SnapshotCache using Redis string keys.
// Each venue's latest funding snapshots are stored as a JSON array under the
// client's namespaced "funding:{venue}" key with a TTL of one scan interval,
// so a stalled scanner results in empty reads rather than stale quotes.
type SnapshotCache struct {
	c *Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{c: c}
}

// SetCycle stores one scan cycle's snapshots, grouped by venue, replacing the
// previous cycle. All venue keys are written in a single pipeline.
func (sc *SnapshotCache) SetCycle(ctx context.Context, snaps []domain.FundingSnapshot, ttl time.Duration) error {
	byVenue := make(map[string][]domain.FundingSnapshot)
	for _, s := range snaps {
		byVenue[s.Venue] = append(byVenue[s.Venue], s)
	}

	pipe := sc.c.Underlying().Pipeline()
	for venue, vs := range byVenue {
		payload, err := json.Marshal(vs)
		if err != nil {
			return fmt.Errorf("redis: marshal snapshots for %s: %w", venue, err)
		}
		pipe.Set(ctx, sc.c.Key("funding", venue), payload, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot cycle: %w", err)
	}
	return nil
}

// GetVenue retrieves the cached snapshots for one venue. It returns an empty
// slice (not an error) when the venue's cycle has expired or was never
// written.
func (sc *SnapshotCache) GetVenue(ctx context.Context, venue string) ([]domain.FundingSnapshot, error) {
	payload, err := sc.c.Underlying().Get(ctx, sc.c.Key("funding", venue)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get snapshots %s: %w", venue, err)
	}

	var snaps []domain.FundingSnapshot
	if err := json.Unmarshal(payload, &snaps); err != nil {
		return nil, fmt.Errorf("redis: unmarshal snapshots %s: %w", venue, err)
	}
	return snaps, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
