package domain

import "time"

// FeeModel is the static per-venue cost model used to turn gross funding
// spreads into net spreads. Values are percentages (0.03 = 0.03%).
type FeeModel struct {
	TakerEntryFeePct  float64
	TakerExitFeePct   float64
	EstimatedSlipPct  float64
}

// RoundTripCostPct is the total entry+exit+slippage cost of one leg.
func (f FeeModel) RoundTripCostPct() float64 {
	return f.TakerEntryFeePct + f.TakerExitFeePct + f.EstimatedSlipPct
}

// Opportunity is a ranked delta-neutral candidate: long the venue with the
// lower funding rate, short the venue with the higher one. Opportunities are
// derived values, recomputed every scan and never persisted.
type Opportunity struct {
	ID             string
	Symbol         string
	LongVenue      string
	ShortVenue     string
	LongRate1hPct  float64
	ShortRate1hPct float64
	// GrossSpreadPct is short rate minus long rate, always positive for a
	// kept assignment.
	GrossSpreadPct float64
	// NetSpreadPct is the gross spread minus both legs' round-trip costs
	// amortized over a 24-hour hold window.
	NetSpreadPct float64
	// MinRequiredLeverage is the smaller of the two venues' max leverage; an
	// executed strategy must not exceed it.
	MinRequiredLeverage float64
	// Score ranks opportunities: NetSpreadPct * MinRequiredLeverage * 100.
	Score      float64
	DetectedAt time.Time
}
