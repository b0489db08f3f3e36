package domain

import (
	"context"
	"time"
)

// FundingSnapshot is one venue's funding quote for a symbol at a point in
// time. Snapshots are immutable; each scan cycle supersedes the previous one.
type FundingSnapshot struct {
	Venue          string
	Symbol         string
	Rate1hPct      float64 // hourly funding rate in percent (0.01 = 0.01%/h)
	RateAnnualPct  float64 // annualized rate in percent
	MaxLeverage    float64 // venue-advertised maximum leverage for the symbol
	ObservedAt     time.Time
}

// Balance is a venue account balance summary.
type Balance struct {
	Venue            string
	TotalEquityUSD   float64
	AvailableUSD     float64
	MarginUsedUSD    float64
	UnrealizedPnLUSD float64
}

// Market holds per-symbol venue limits queried before order placement.
type Market struct {
	Venue           string
	Symbol          string
	MarkPrice       float64
	MaxLeverage     float64
	MinOrderSizeUSD float64
}

// ClosedPosition is the venue-confirmed result of closing a position.
type ClosedPosition struct {
	Venue          string
	Symbol         string
	ExitPrice      float64
	RealizedPnLUSD float64
	ClosedAt       time.Time
}

// VenueGateway is the capability set the core consumes from each trading
// venue. One implementation exists per venue; the core never depends on a
// specific venue's call conventions. All methods may block on the network and
// must honour ctx. Failures are reported as *VenueError so callers can branch
// on the failure kind.
type VenueGateway interface {
	// Name returns the venue identifier (e.g. "hyperliquid").
	Name() string

	// ListFundingSnapshots returns funding quotes for every symbol the venue
	// currently trades.
	ListFundingSnapshots(ctx context.Context) ([]FundingSnapshot, error)

	// GetFundingSnapshot returns the current funding quote for one symbol.
	GetFundingSnapshot(ctx context.Context, symbol string) (FundingSnapshot, error)

	// GetBalance returns the account balance on this venue.
	GetBalance(ctx context.Context) (Balance, error)

	// GetMarket returns current limits for a symbol (max leverage, min size).
	GetMarket(ctx context.Context, symbol string) (Market, error)

	// PlaceMarketOrder opens a position. Size and leverage are passed through
	// unmodified; the returned Position carries the venue-confirmed fill.
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, sizeUSD, leverage float64) (Position, error)

	// ClosePosition closes the open position for symbol. A position that no
	// longer exists yields ErrPositionNotFound, which callers treat as
	// already-closed success.
	ClosePosition(ctx context.Context, symbol string) (ClosedPosition, error)

	// GetPosition returns the open position for symbol, or nil when none.
	GetPosition(ctx context.Context, symbol string) (*Position, error)
}
