package supervisor

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// Thresholds are the supervisor-level risk parameters applied to every
// strategy on top of its own optional take-profit/stop-loss/max-hold.
type Thresholds struct {
	// LiquidationMarginPct alerts when either leg's distance to liquidation
	// falls below this percentage. 0 disables the check.
	LiquidationMarginPct float64
}

// Observation is one cycle's fresh venue reads for a strategy. Leg pointers
// are nil when the venue no longer reports the position (closed externally).
type Observation struct {
	Long  *domain.Position
	Short *domain.Position

	// CurrentSpreadPct is the fresh funding differential, short-venue rate
	// minus long-venue rate. Valid only when SpreadKnown is true.
	CurrentSpreadPct float64
	SpreadKnown      bool

	Now time.Time
}

// Alert is an informational finding that does not force a transition.
type Alert struct {
	Type   domain.EventType
	Detail string
}

// Decision is the outcome of evaluating one strategy for one cycle.
type Decision struct {
	Close  bool
	Reason domain.CloseReason
	Alerts []Alert
}

// Evaluate is the monitoring state machine's transition function: a pure
// function of the strategy (with legs already reconciled against venue
// reads), the fresh observation, and configured thresholds. Checks run in
// priority order; the first close condition wins. The liquidation check never
// forces a close, it only raises an alert.
func Evaluate(s *domain.Strategy, obs Observation, th Thresholds) Decision {
	var d Decision

	if s.State != domain.StrategyActive {
		return d
	}

	// A leg the venue no longer reports breaks the hedge. Surface it loudly
	// but leave the close decision to the operator.
	if obs.Long == nil || obs.Short == nil {
		d.Alerts = append(d.Alerts, Alert{
			Type:   domain.EventStrategyError,
			Detail: missingLegDetail(obs),
		})
		if obs.Long == nil && obs.Short == nil {
			// Both legs are already flat; closing is a no-op that lets the
			// strategy reach its terminal record.
			d.Close = true
			d.Reason = domain.CloseReasonManual
		}
		return d
	}

	pnlPct := s.CombinedPnLPct()

	switch {
	case s.TakeProfitPct != nil && pnlPct >= *s.TakeProfitPct:
		d.Close = true
		d.Reason = domain.CloseReasonTakeProfit

	case s.StopLossPct != nil && pnlPct <= -*s.StopLossPct:
		d.Close = true
		d.Reason = domain.CloseReasonStopLoss

	case obs.SpreadKnown && obs.CurrentSpreadPct <= 0:
		// The funding differential that justified the trade has reversed.
		d.Close = true
		d.Reason = domain.CloseReasonReversal

	case s.MaxHoldDuration != nil && obs.Now.Sub(s.CreatedAt) >= *s.MaxHoldDuration:
		d.Close = true
		d.Reason = domain.CloseReasonMaxHold
	}

	if th.LiquidationMarginPct > 0 {
		for _, leg := range []*domain.Position{obs.Long, obs.Short} {
			dist := leg.LiquidationDistancePct()
			if dist >= 0 && dist < th.LiquidationMarginPct {
				d.Alerts = append(d.Alerts, Alert{
					Type: domain.EventLiquidationRisk,
					Detail: fmt.Sprintf("%s %s leg on %s is %.1f%% from liquidation (margin %.1f%%)",
						leg.Symbol, leg.Side, leg.Venue, dist, th.LiquidationMarginPct),
				})
			}
		}
	}

	return d
}

func missingLegDetail(obs Observation) string {
	switch {
	case obs.Long == nil && obs.Short == nil:
		return "both legs no longer reported by their venues"
	case obs.Long == nil:
		return "long leg no longer reported by its venue, hedge is broken"
	default:
		return "short leg no longer reported by its venue, hedge is broken"
	}
}
