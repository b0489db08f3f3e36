// Package paper implements a simulated venue gateway for paper trading. It
// fills orders instantly at the configured mark price, accrues funding on
// open positions, and keeps all state in memory.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// Quote seeds one symbol on the simulated venue.
type Quote struct {
	Symbol      string
	Rate1hPct   float64
	MarkPrice   float64
	MaxLeverage float64
}

// Gateway is an in-memory venue. It is safe for concurrent use.
type Gateway struct {
	name string

	mu        sync.Mutex
	quotes    map[string]Quote
	positions map[string]*domain.Position
	equityUSD float64
	now       func() time.Time
}

// New creates a paper venue with the given starting equity and seeded quotes.
func New(name string, equityUSD float64, quotes []Quote) *Gateway {
	g := &Gateway{
		name:      name,
		quotes:    make(map[string]Quote, len(quotes)),
		positions: make(map[string]*domain.Position),
		equityUSD: equityUSD,
		now:       time.Now,
	}
	for _, q := range quotes {
		g.quotes[q.Symbol] = q
	}
	return g
}

// SetQuote updates (or adds) a symbol's funding rate and mark price. Open
// positions are marked to the new price on the next read.
func (g *Gateway) SetQuote(q Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotes[q.Symbol] = q
}

func (g *Gateway) Name() string { return g.name }

func (g *Gateway) ListFundingSnapshots(ctx context.Context) ([]domain.FundingSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	snaps := make([]domain.FundingSnapshot, 0, len(g.quotes))
	for _, q := range g.quotes {
		snaps = append(snaps, g.snapshot(q))
	}
	return snaps, nil
}

func (g *Gateway) GetFundingSnapshot(ctx context.Context, symbol string) (domain.FundingSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return domain.FundingSnapshot{}, domain.NewVenueError(g.name, "get_funding", symbol,
			domain.FailureNotFound, fmt.Errorf("unknown symbol %s", symbol))
	}
	return g.snapshot(q), nil
}

func (g *Gateway) snapshot(q Quote) domain.FundingSnapshot {
	return domain.FundingSnapshot{
		Venue:         g.name,
		Symbol:        q.Symbol,
		Rate1hPct:     q.Rate1hPct,
		RateAnnualPct: q.Rate1hPct * 24 * 365,
		MaxLeverage:   q.MaxLeverage,
		ObservedAt:    g.now().UTC(),
	}
}

func (g *Gateway) GetBalance(ctx context.Context) (domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var margin, unrealized float64
	for _, p := range g.positions {
		margin += p.SizeUSD / p.Leverage
		unrealized += p.UnrealizedPnLUSD
	}
	return domain.Balance{
		Venue:            g.name,
		TotalEquityUSD:   g.equityUSD + unrealized,
		AvailableUSD:     g.equityUSD - margin,
		MarginUsedUSD:    margin,
		UnrealizedPnLUSD: unrealized,
	}, nil
}

func (g *Gateway) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return domain.Market{}, domain.NewVenueError(g.name, "get_market", symbol,
			domain.FailureNotFound, fmt.Errorf("unknown symbol %s", symbol))
	}
	return domain.Market{
		Venue:           g.name,
		Symbol:          symbol,
		MarkPrice:       q.MarkPrice,
		MaxLeverage:     q.MaxLeverage,
		MinOrderSizeUSD: 1,
	}, nil
}

func (g *Gateway) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, sizeUSD, leverage float64) (domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.quotes[symbol]
	if !ok {
		return domain.Position{}, domain.NewVenueError(g.name, "place_order", symbol,
			domain.FailureValidation, fmt.Errorf("unknown symbol %s", symbol))
	}
	if _, exists := g.positions[symbol]; exists {
		return domain.Position{}, domain.NewVenueError(g.name, "place_order", symbol,
			domain.FailureValidation, fmt.Errorf("position already open for %s", symbol))
	}
	if leverage > q.MaxLeverage {
		return domain.Position{}, domain.NewVenueError(g.name, "place_order", symbol,
			domain.FailureValidation, fmt.Errorf("leverage %.0f exceeds maximum %.0f", leverage, q.MaxLeverage))
	}
	if sizeUSD/leverage > g.equityUSD {
		return domain.Position{}, domain.NewVenueError(g.name, "place_order", symbol,
			domain.FailureValidation, fmt.Errorf("insufficient equity for %.2f USD at %.0fx", sizeUSD, leverage))
	}

	p := &domain.Position{
		Venue:        g.name,
		Symbol:       symbol,
		Side:         side,
		SizeUSD:      sizeUSD,
		EntryPrice:   q.MarkPrice,
		Leverage:     leverage,
		CurrentPrice: q.MarkPrice,
		OpenedAt:     g.now().UTC(),
	}
	g.positions[symbol] = p
	return *p, nil
}

func (g *Gateway) ClosePosition(ctx context.Context, symbol string) (domain.ClosedPosition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.positions[symbol]
	if !ok {
		return domain.ClosedPosition{}, domain.NewVenueError(g.name, "close_position", symbol,
			domain.FailureNotFound, domain.ErrPositionNotFound)
	}
	g.markToQuote(p)
	delete(g.positions, symbol)

	realized := p.UnrealizedPnLUSD + p.FundingAccruedUSD
	g.equityUSD += realized
	return domain.ClosedPosition{
		Venue:          g.name,
		Symbol:         symbol,
		ExitPrice:      p.CurrentPrice,
		RealizedPnLUSD: realized,
		ClosedAt:       g.now().UTC(),
	}, nil
}

func (g *Gateway) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.positions[symbol]
	if !ok {
		return nil, nil
	}
	g.markToQuote(p)
	out := *p
	return &out, nil
}

// markToQuote refreshes price PnL and accrues funding since the last mark.
// Longs pay funding when the rate is positive; shorts receive it.
func (g *Gateway) markToQuote(p *domain.Position) {
	q, ok := g.quotes[p.Symbol]
	if !ok {
		return
	}
	p.CurrentPrice = q.MarkPrice

	if p.EntryPrice > 0 {
		move := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
		if p.Side == domain.SideShort {
			move = -move
		}
		p.UnrealizedPnLUSD = move * p.SizeUSD
	}

	hours := g.now().Sub(p.OpenedAt).Hours()
	funding := q.Rate1hPct / 100 * hours * p.SizeUSD
	if p.Side == domain.SideLong {
		funding = -funding
	}
	p.FundingAccruedUSD = funding
}

// Compile-time interface check.
var _ domain.VenueGateway = (*Gateway)(nil)
