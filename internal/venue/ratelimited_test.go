package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

type stubLimiter struct {
	err     error
	waits   int
	keys    []string
	limits  []int
	windows []time.Duration
}

func (l *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.err == nil, l.err
}

func (l *stubLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	l.waits++
	l.keys = append(l.keys, key)
	l.limits = append(l.limits, limit)
	l.windows = append(l.windows, window)
	return l.err
}

type stubGateway struct {
	calls int
}

func (g *stubGateway) Name() string { return "alpha" }

func (g *stubGateway) ListFundingSnapshots(ctx context.Context) ([]domain.FundingSnapshot, error) {
	g.calls++
	return nil, nil
}

func (g *stubGateway) GetFundingSnapshot(ctx context.Context, symbol string) (domain.FundingSnapshot, error) {
	g.calls++
	return domain.FundingSnapshot{}, nil
}

func (g *stubGateway) GetBalance(ctx context.Context) (domain.Balance, error) {
	g.calls++
	return domain.Balance{}, nil
}

func (g *stubGateway) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	g.calls++
	return domain.Market{}, nil
}

func (g *stubGateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, sizeUSD, leverage float64) (domain.Position, error) {
	g.calls++
	return domain.Position{}, nil
}

func (g *stubGateway) ClosePosition(ctx context.Context, symbol string) (domain.ClosedPosition, error) {
	g.calls++
	return domain.ClosedPosition{}, nil
}

func (g *stubGateway) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	g.calls++
	return nil, nil
}

func TestRateLimitedWaitsBeforeEveryCall(t *testing.T) {
	limiter := &stubLimiter{}
	inner := &stubGateway{}
	rl := NewRateLimited(inner, limiter, 5)
	ctx := context.Background()

	_, _ = rl.ListFundingSnapshots(ctx)
	_, _ = rl.GetFundingSnapshot(ctx, "BTC")
	_, _ = rl.GetBalance(ctx)
	_, _ = rl.GetMarket(ctx, "BTC")
	_, _ = rl.PlaceMarketOrder(ctx, "BTC", domain.SideLong, 100, 1)
	_, _ = rl.ClosePosition(ctx, "BTC")
	_, _ = rl.GetPosition(ctx, "BTC")

	if limiter.waits != 7 {
		t.Errorf("limiter waits = %d, want 7", limiter.waits)
	}
	if inner.calls != 7 {
		t.Errorf("inner calls = %d, want 7", inner.calls)
	}
	for i, key := range limiter.keys {
		if key != "alpha" {
			t.Errorf("limiter key = %q, want venue name", key)
		}
		if limiter.limits[i] != 5 {
			t.Errorf("limiter limit = %d, want the configured 5", limiter.limits[i])
		}
		if limiter.windows[i] != time.Second {
			t.Errorf("limiter window = %v, want 1s", limiter.windows[i])
		}
	}
}

func TestRateLimitedDefaultsLimitToOne(t *testing.T) {
	limiter := &stubLimiter{}
	rl := NewRateLimited(&stubGateway{}, limiter, 0)

	_, _ = rl.GetBalance(context.Background())
	if len(limiter.limits) != 1 || limiter.limits[0] != 1 {
		t.Errorf("limits = %v, want a single wait at limit 1", limiter.limits)
	}
}

func TestRateLimitedBlocksCallOnLimiterFailure(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	inner := &stubGateway{}
	rl := NewRateLimited(inner, limiter, 5)

	_, err := rl.PlaceMarketOrder(context.Background(), "BTC", domain.SideLong, 100, 1)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner calls = %d, the venue must not be hit when the limiter fails", inner.calls)
	}
	if !domain.IsRetryable(err) {
		t.Error("rate limit failures must be retryable")
	}
}
