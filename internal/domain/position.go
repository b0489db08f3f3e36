package domain

import "time"

// Side is the direction of one leg.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is one open leg of a delta-neutral strategy. It is created by the
// executor from a venue-confirmed fill and owned by the Strategy that
// references it. Price, size and PnL fields are only ever refreshed from the
// owning venue's gateway, never recomputed locally.
type Position struct {
	Venue               string
	Symbol              string
	Side                Side
	SizeUSD             float64
	EntryPrice          float64
	Leverage            float64
	CurrentPrice        float64
	UnrealizedPnLUSD    float64
	FundingAccruedUSD   float64
	LiquidationPrice    float64 // 0 when the venue does not report one
	OpenedAt            time.Time
}

// LiquidationDistancePct returns the distance from the current price to the
// liquidation price as a percentage of the current price, or -1 when the
// venue reported no liquidation price.
func (p Position) LiquidationDistancePct() float64 {
	if p.LiquidationPrice <= 0 || p.CurrentPrice <= 0 {
		return -1
	}
	d := p.CurrentPrice - p.LiquidationPrice
	if d < 0 {
		d = -d
	}
	return d / p.CurrentPrice * 100
}
