package domain

import (
	"context"
	"time"
)

// SnapshotCache holds the latest scan cycle's funding snapshots for external
// consumers (presentation, ad-hoc queries). Entries carry a TTL of one scan
// interval so stale cycles age out rather than being served.
type SnapshotCache interface {
	SetCycle(ctx context.Context, snaps []FundingSnapshot, ttl time.Duration) error
	GetVenue(ctx context.Context, venue string) ([]FundingSnapshot, error)
}

// RateLimiter throttles outbound venue calls. Allow counts a request against
// the key's window when admitted; Wait blocks until one is admitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// EventBus publishes serialized strategy events to out-of-process consumers.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
