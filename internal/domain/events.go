package domain

import "time"

// EventType enumerates strategy lifecycle and risk events surfaced to
// consumers outside the core.
type EventType string

const (
	EventStrategyCreated  EventType = "strategy_created"
	EventStrategyClosing  EventType = "strategy_closing"
	EventStrategyClosed   EventType = "strategy_closed"
	EventStrategyError    EventType = "strategy_error"
	EventLiquidationRisk  EventType = "liquidation_risk"
	EventScanWarning      EventType = "scan_warning"
)

// StrategyEvent describes one lifecycle transition or alert.
type StrategyEvent struct {
	Type       EventType     `json:"type"`
	StrategyID string        `json:"strategy_id"`
	Symbol     string        `json:"symbol"`
	State      StrategyState `json:"state,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	PnLUSD     float64       `json:"pnl_usd,omitempty"`
	PnLPct     float64       `json:"pnl_pct,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	At         time.Time     `json:"at"`
}

// EventSink receives strategy events. Implementations must not block the
// supervisor's evaluation path; slow delivery belongs in the implementation.
type EventSink interface {
	Publish(event StrategyEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(StrategyEvent)

func (f EventSinkFunc) Publish(ev StrategyEvent) { f(ev) }

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(ev StrategyEvent) {
	for _, s := range m {
		s.Publish(ev)
	}
}
