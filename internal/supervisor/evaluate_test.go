package supervisor

import (
	"testing"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

func ptr[T any](v T) *T { return &v }

// activeStrategy builds an ACTIVE strategy whose combined PnL is pnlUSD on a
// 100 USD stake, so pnlUSD == pnl percent.
func activeStrategy(pnlUSD float64) *domain.Strategy {
	return &domain.Strategy{
		ID:           "s-1",
		Symbol:       "BTC",
		StakeSizeUSD: 100,
		Leverage:     2,
		LongPosition: domain.Position{
			Venue: "alpha", Symbol: "BTC", Side: domain.SideLong,
			SizeUSD: 100, EntryPrice: 100, CurrentPrice: 100,
			UnrealizedPnLUSD: pnlUSD,
		},
		ShortPosition: domain.Position{
			Venue: "beta", Symbol: "BTC", Side: domain.SideShort,
			SizeUSD: 100, EntryPrice: 100, CurrentPrice: 100,
		},
		EntrySpreadPct: 0.03,
		State:          domain.StrategyActive,
		CreatedAt:      time.Now().UTC().Add(-time.Hour),
	}
}

func observationFor(s *domain.Strategy, spread float64) Observation {
	long := s.LongPosition
	short := s.ShortPosition
	return Observation{
		Long:             &long,
		Short:            &short,
		CurrentSpreadPct: spread,
		SpreadKnown:      true,
		Now:              time.Now().UTC(),
	}
}

func TestEvaluateHoldsByDefault(t *testing.T) {
	s := activeStrategy(1)
	s.TakeProfitPct = ptr(5.0)
	s.StopLossPct = ptr(2.0)

	d := Evaluate(s, observationFor(s, 0.02), Thresholds{})
	if d.Close {
		t.Fatalf("decision = close %s, want hold", d.Reason)
	}
}

func TestEvaluateTakeProfitExactlyAtThreshold(t *testing.T) {
	cases := []struct {
		pnl   float64
		close bool
	}{
		{4.9, false},
		{5.0, true}, // >= threshold closes
		{5.1, true},
	}
	for _, tc := range cases {
		s := activeStrategy(tc.pnl)
		s.TakeProfitPct = ptr(5.0)

		d := Evaluate(s, observationFor(s, 0.02), Thresholds{})
		if d.Close != tc.close {
			t.Errorf("pnl %.1f%%: close = %v, want %v", tc.pnl, d.Close, tc.close)
		}
		if tc.close && d.Reason != domain.CloseReasonTakeProfit {
			t.Errorf("pnl %.1f%%: reason = %s, want take_profit", tc.pnl, d.Reason)
		}
	}
}

func TestEvaluateStopLoss(t *testing.T) {
	s := activeStrategy(-2.5)
	s.StopLossPct = ptr(2.0)

	d := Evaluate(s, observationFor(s, 0.02), Thresholds{})
	if !d.Close || d.Reason != domain.CloseReasonStopLoss {
		t.Fatalf("decision = %+v, want close with stop_loss", d)
	}
}

func TestEvaluateSpreadReversal(t *testing.T) {
	s := activeStrategy(0.5)

	d := Evaluate(s, observationFor(s, -0.01), Thresholds{})
	if !d.Close || d.Reason != domain.CloseReasonReversal {
		t.Fatalf("decision = %+v, want close with reversal", d)
	}

	// Zero spread also counts as reversed.
	d = Evaluate(s, observationFor(s, 0), Thresholds{})
	if !d.Close || d.Reason != domain.CloseReasonReversal {
		t.Fatalf("decision = %+v, want close with reversal at zero spread", d)
	}

	// Unknown spread never triggers the reversal check.
	obs := observationFor(s, -0.01)
	obs.SpreadKnown = false
	d = Evaluate(s, obs, Thresholds{})
	if d.Close {
		t.Fatalf("decision = close %s with unknown spread, want hold", d.Reason)
	}
}

func TestEvaluateMaxHold(t *testing.T) {
	s := activeStrategy(0.5)
	s.MaxHoldDuration = ptr(30 * time.Minute) // opened an hour ago

	d := Evaluate(s, observationFor(s, 0.02), Thresholds{})
	if !d.Close || d.Reason != domain.CloseReasonMaxHold {
		t.Fatalf("decision = %+v, want close with max_hold", d)
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	// All close conditions fire at once; take-profit wins.
	s := activeStrategy(10)
	s.TakeProfitPct = ptr(5.0)
	s.StopLossPct = ptr(2.0)
	s.MaxHoldDuration = ptr(time.Minute)

	d := Evaluate(s, observationFor(s, -0.01), Thresholds{})
	if d.Reason != domain.CloseReasonTakeProfit {
		t.Fatalf("reason = %s, want take_profit to win the priority order", d.Reason)
	}

	// Without take-profit, stop-loss outranks reversal.
	s = activeStrategy(-5)
	s.StopLossPct = ptr(2.0)
	d = Evaluate(s, observationFor(s, -0.01), Thresholds{})
	if d.Reason != domain.CloseReasonStopLoss {
		t.Fatalf("reason = %s, want stop_loss before reversal", d.Reason)
	}
}

func TestEvaluateLiquidationAlertIsInformational(t *testing.T) {
	s := activeStrategy(0.5)
	obs := observationFor(s, 0.02)
	obs.Long.CurrentPrice = 100
	obs.Long.LiquidationPrice = 90 // 10% away, inside the 20% margin

	d := Evaluate(s, obs, Thresholds{LiquidationMarginPct: 20})
	if d.Close {
		t.Fatalf("liquidation proximity must not force a close, got close %s", d.Reason)
	}
	if len(d.Alerts) != 1 || d.Alerts[0].Type != domain.EventLiquidationRisk {
		t.Fatalf("alerts = %+v, want one liquidation_risk alert", d.Alerts)
	}

	// Far from liquidation: no alert.
	obs.Long.LiquidationPrice = 50
	d = Evaluate(s, obs, Thresholds{LiquidationMarginPct: 20})
	if len(d.Alerts) != 0 {
		t.Fatalf("alerts = %+v, want none at 50%% distance", d.Alerts)
	}

	// Venue reports no liquidation price: no alert.
	obs.Long.LiquidationPrice = 0
	d = Evaluate(s, obs, Thresholds{LiquidationMarginPct: 20})
	if len(d.Alerts) != 0 {
		t.Fatalf("alerts = %+v, want none without a liquidation price", d.Alerts)
	}
}

func TestEvaluateMissingLeg(t *testing.T) {
	s := activeStrategy(0.5)

	obs := observationFor(s, 0.02)
	obs.Short = nil
	d := Evaluate(s, obs, Thresholds{})
	if d.Close {
		t.Fatal("one missing leg must not auto-close, the hedge decision is the operator's")
	}
	if len(d.Alerts) != 1 || d.Alerts[0].Type != domain.EventStrategyError {
		t.Fatalf("alerts = %+v, want one strategy_error alert", d.Alerts)
	}

	obs.Long = nil
	d = Evaluate(s, obs, Thresholds{})
	if !d.Close {
		t.Fatal("both legs gone: close so the strategy reaches its terminal record")
	}
}

func TestEvaluateIgnoresNonActiveStates(t *testing.T) {
	for _, state := range []domain.StrategyState{
		domain.StrategyClosing, domain.StrategyClosed, domain.StrategyError,
	} {
		s := activeStrategy(100)
		s.State = state
		s.TakeProfitPct = ptr(5.0)

		d := Evaluate(s, observationFor(s, -1), Thresholds{})
		if d.Close || len(d.Alerts) != 0 {
			t.Errorf("state %s: decision = %+v, want empty", state, d)
		}
	}
}
