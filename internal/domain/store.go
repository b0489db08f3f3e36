package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// StrategyStore persists strategies that reached a terminal state. The live
// registry is in-memory only; a strategy is written here exactly once, when
// the supervisor moves it to CLOSED or terminal ERROR.
type StrategyStore interface {
	Create(ctx context.Context, s Strategy) error
	GetByID(ctx context.Context, id string) (Strategy, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Strategy, error)
	SumRealizedPnL(ctx context.Context, since time.Time) (float64, error)
}
