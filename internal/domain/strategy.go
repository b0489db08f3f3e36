package domain

import "time"

// StrategyState is the lifecycle state of a delta-neutral strategy.
type StrategyState string

const (
	StrategyActive  StrategyState = "active"
	StrategyClosing StrategyState = "closing"
	StrategyClosed  StrategyState = "closed"
	StrategyError   StrategyState = "error"
)

// Terminal reports whether the state admits no further transitions.
func (s StrategyState) Terminal() bool {
	return s == StrategyClosed || s == StrategyError
}

// CloseReason records why a strategy entered CLOSING.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonReversal   CloseReason = "reversal"
	CloseReasonMaxHold    CloseReason = "max_hold"
	CloseReasonManual     CloseReason = "manual"
)

// Strategy is one live delta-neutral pair: a long and a short leg on two
// different venues sharing a symbol. The Strategy exclusively owns its two
// Position values; only the supervisor mutates them, by reconciling against
// venue reads.
type Strategy struct {
	ID     string
	Symbol string

	LongPosition  Position
	ShortPosition Position

	StakeSizeUSD float64
	Leverage     float64

	// EntrySpreadPct is the gross funding differential at entry
	// (short-venue rate minus long-venue rate). Used for reversal detection.
	EntrySpreadPct float64

	// Optional auto-close thresholds. nil disables the check.
	TakeProfitPct   *float64
	StopLossPct     *float64
	MaxHoldDuration *time.Duration

	State       StrategyState
	CloseReason CloseReason // set once the strategy leaves ACTIVE

	RealizedPnLUSD float64
	CreatedAt      time.Time
	ClosedAt       *time.Time
}

// CombinedPnLUSD is unrealized PnL plus accrued funding across both legs.
func (s *Strategy) CombinedPnLUSD() float64 {
	return s.LongPosition.UnrealizedPnLUSD + s.LongPosition.FundingAccruedUSD +
		s.ShortPosition.UnrealizedPnLUSD + s.ShortPosition.FundingAccruedUSD
}

// CombinedPnLPct is the combined PnL as a percentage of the stake.
func (s *Strategy) CombinedPnLPct() float64 {
	if s.StakeSizeUSD <= 0 {
		return 0
	}
	return s.CombinedPnLUSD() / s.StakeSizeUSD * 100
}
