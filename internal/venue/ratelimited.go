// Package venue provides gateway middleware shared by all venue adapters.
package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// RateLimited wraps a VenueGateway and blocks every outbound call until the
// venue's rate limit admits it. Limits are per venue, enforced through the
// shared domain.RateLimiter so multiple processes stay under one budget.
type RateLimited struct {
	inner   domain.VenueGateway
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
}

// NewRateLimited decorates gw with the given limiter, admitting at most limit
// calls per second. The limiter key is the venue's name.
func NewRateLimited(gw domain.VenueGateway, limiter domain.RateLimiter, limit int) *RateLimited {
	if limit <= 0 {
		limit = 1
	}
	return &RateLimited{inner: gw, limiter: limiter, limit: limit, window: time.Second}
}

func (r *RateLimited) wait(ctx context.Context, op string) error {
	if err := r.limiter.Wait(ctx, r.inner.Name(), r.limit, r.window); err != nil {
		return domain.NewVenueError(r.inner.Name(), op, "", domain.FailureTransient, fmt.Errorf("%w: %v", domain.ErrRateLimited, err))
	}
	return nil
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) ListFundingSnapshots(ctx context.Context) ([]domain.FundingSnapshot, error) {
	if err := r.wait(ctx, "list_funding"); err != nil {
		return nil, err
	}
	return r.inner.ListFundingSnapshots(ctx)
}

func (r *RateLimited) GetFundingSnapshot(ctx context.Context, symbol string) (domain.FundingSnapshot, error) {
	if err := r.wait(ctx, "get_funding"); err != nil {
		return domain.FundingSnapshot{}, err
	}
	return r.inner.GetFundingSnapshot(ctx, symbol)
}

func (r *RateLimited) GetBalance(ctx context.Context) (domain.Balance, error) {
	if err := r.wait(ctx, "get_balance"); err != nil {
		return domain.Balance{}, err
	}
	return r.inner.GetBalance(ctx)
}

func (r *RateLimited) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	if err := r.wait(ctx, "get_market"); err != nil {
		return domain.Market{}, err
	}
	return r.inner.GetMarket(ctx, symbol)
}

func (r *RateLimited) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, sizeUSD, leverage float64) (domain.Position, error) {
	if err := r.wait(ctx, "place_order"); err != nil {
		return domain.Position{}, err
	}
	return r.inner.PlaceMarketOrder(ctx, symbol, side, sizeUSD, leverage)
}

func (r *RateLimited) ClosePosition(ctx context.Context, symbol string) (domain.ClosedPosition, error) {
	if err := r.wait(ctx, "close_position"); err != nil {
		return domain.ClosedPosition{}, err
	}
	return r.inner.ClosePosition(ctx, symbol)
}

func (r *RateLimited) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if err := r.wait(ctx, "get_position"); err != nil {
		return nil, err
	}
	return r.inner.GetPosition(ctx, symbol)
}

// Compile-time interface check.
var _ domain.VenueGateway = (*RateLimited)(nil)
