// Package supervisor owns the registry of live delta-neutral strategies and
// drives each one through its monitoring state machine on a fixed cycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
	"github.com/alanyoungcy/fundingbot/internal/executor"
)

// Config holds monitoring parameters.
type Config struct {
	// Interval between evaluation cycles.
	Interval time.Duration
	// CloseRetries bounds retries of a failing leg close before the strategy
	// moves to ERROR.
	CloseRetries int
	// LiquidationMarginPct triggers the informational liquidation alert.
	LiquidationMarginPct float64
	// Retry is the backoff policy for transient gateway failures during
	// monitoring reads.
	Retry executor.RetryPolicy
}

// managed wraps one registered strategy. The mutex enforces the
// single-writer-per-strategy discipline: no two evaluations of the same
// strategy ever overlap, while different strategies evaluate concurrently.
type managed struct {
	mu       sync.Mutex
	strategy *domain.Strategy
	manual   atomic.Bool // close requested from outside the cycle

	// legRealized records each leg's realized PnL once its close succeeds, so
	// a retry after a partial close failure keeps the figure from the earlier
	// attempt instead of losing it to an already-closed read.
	legRealized map[domain.Side]float64
}

// Supervisor runs the periodic evaluation cycle over every registered
// strategy. It is the only component that mutates a live Strategy after the
// executor hands it over.
type Supervisor struct {
	venues map[string]domain.VenueGateway
	cfg    Config
	store  domain.StrategyStore // optional terminal record store
	events domain.EventSink     // optional
	logger *slog.Logger

	mu       sync.RWMutex
	registry map[string]*managed
}

// New creates a Supervisor over the given venue gateways. store and events
// may be nil.
func New(venues map[string]domain.VenueGateway, cfg Config, store domain.StrategyStore, events domain.EventSink, logger *slog.Logger) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry = executor.DefaultRetryPolicy()
	}
	return &Supervisor{
		venues:   venues,
		cfg:      cfg,
		store:    store,
		events:   events,
		logger:   logger.With(slog.String("component", "supervisor")),
		registry: make(map[string]*managed),
	}
}

// Register takes ownership of a freshly opened strategy. Called by the
// executor the moment both legs are confirmed.
func (s *Supervisor) Register(ctx context.Context, strat *domain.Strategy) error {
	if strat == nil || strat.ID == "" {
		return fmt.Errorf("register: strategy has no id")
	}
	if strat.State != domain.StrategyActive {
		return fmt.Errorf("register %s: state %s, want %s", strat.ID, strat.State, domain.StrategyActive)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registry[strat.ID]; exists {
		return fmt.Errorf("register: strategy %s already registered", strat.ID)
	}
	s.registry[strat.ID] = &managed{strategy: strat}
	s.logger.Info("strategy registered",
		slog.String("strategy_id", strat.ID),
		slog.String("symbol", strat.Symbol),
	)
	return nil
}

// Active returns copies of all currently registered strategies.
func (s *Supervisor) Active() []domain.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Strategy, 0, len(s.registry))
	for _, m := range s.registry {
		m.mu.Lock()
		out = append(out, *m.strategy)
		m.mu.Unlock()
	}
	return out
}

// Get returns a copy of the registered strategy with the given id.
func (s *Supervisor) Get(id string) (domain.Strategy, error) {
	s.mu.RLock()
	m, ok := s.registry[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Strategy{}, fmt.Errorf("get %s: %w", id, domain.ErrStrategyNotFound)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.strategy, nil
}

// RequestClose marks the strategy for closing and forces an immediate
// evaluation instead of waiting for the next scheduled cycle. An evaluation
// already in flight is allowed to finish; its remote calls are honoured and
// the manual request is picked up right after.
func (s *Supervisor) RequestClose(ctx context.Context, id string) error {
	s.mu.RLock()
	m, ok := s.registry[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("close %s: %w", id, domain.ErrStrategyNotFound)
	}
	m.manual.Store(true)
	go s.evaluateOne(ctx, m)
	return nil
}

// Run drives the evaluation cycle until the context is cancelled. Each
// registered strategy is evaluated in its own goroutine so a slow venue for
// one strategy never delays the others.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", slog.Duration("interval", s.cfg.Interval))
	defer s.logger.Info("supervisor stopped")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.RLock()
			entries := make([]*managed, 0, len(s.registry))
			for _, m := range s.registry {
				entries = append(entries, m)
			}
			s.mu.RUnlock()

			for _, m := range entries {
				go s.evaluateOne(ctx, m)
			}
		}
	}
}

// evaluateOne runs one evaluation for one strategy. TryLock skips the cycle
// when a previous evaluation of the same strategy is still in flight.
func (s *Supervisor) evaluateOne(ctx context.Context, m *managed) {
	if !m.mu.TryLock() {
		return
	}
	defer m.mu.Unlock()

	st := m.strategy
	log := s.logger.With(
		slog.String("strategy_id", st.ID),
		slog.String("symbol", st.Symbol),
	)

	switch st.State {
	case domain.StrategyClosing:
		s.closeLegs(ctx, m, log)
		return
	case domain.StrategyError:
		// Terminal for the scheduler, but a manual request retries the close.
		if m.manual.CompareAndSwap(true, false) {
			st.State = domain.StrategyClosing
			s.closeLegs(ctx, m, log)
		}
		return
	case domain.StrategyClosed:
		return
	}

	obs, err := s.observe(ctx, st)
	if err != nil {
		if domain.IsRetryable(err) || errors.Is(err, context.Canceled) {
			log.Warn("monitoring read failed, skipping cycle", slog.String("error", err.Error()))
			return
		}
		// Authorization or similar: operator attention required, positions
		// stay open on the venues.
		st.State = domain.StrategyError
		log.Error("monitoring failed, strategy moved to error", slog.String("error", err.Error()))
		s.publish(domain.StrategyEvent{
			Type:       domain.EventStrategyError,
			StrategyID: st.ID,
			Symbol:     st.Symbol,
			State:      st.State,
			Detail:     err.Error(),
			At:         time.Now().UTC(),
		})
		return
	}

	d := Evaluate(st, obs, Thresholds{LiquidationMarginPct: s.cfg.LiquidationMarginPct})
	for _, a := range d.Alerts {
		s.publish(domain.StrategyEvent{
			Type:       a.Type,
			StrategyID: st.ID,
			Symbol:     st.Symbol,
			State:      st.State,
			Detail:     a.Detail,
			At:         obs.Now,
		})
	}

	if m.manual.CompareAndSwap(true, false) {
		d.Close = true
		d.Reason = domain.CloseReasonManual
	}
	if !d.Close {
		return
	}

	st.State = domain.StrategyClosing
	st.CloseReason = d.Reason
	log.Info("strategy closing",
		slog.String("reason", string(d.Reason)),
		slog.Float64("pnl_pct", st.CombinedPnLPct()),
	)
	s.publish(domain.StrategyEvent{
		Type:       domain.EventStrategyClosing,
		StrategyID: st.ID,
		Symbol:     st.Symbol,
		State:      st.State,
		Reason:     string(d.Reason),
		PnLUSD:     st.CombinedPnLUSD(),
		PnLPct:     st.CombinedPnLPct(),
		At:         obs.Now,
	})
	s.closeLegs(ctx, m, log)
}

// observe refreshes both legs and the funding differential from the venues.
// Position state is always re-queried, never recomputed locally.
func (s *Supervisor) observe(ctx context.Context, st *domain.Strategy) (Observation, error) {
	obs := Observation{Now: time.Now().UTC()}

	longGW, ok := s.venues[st.LongPosition.Venue]
	if !ok {
		return obs, fmt.Errorf("venue %s not configured", st.LongPosition.Venue)
	}
	shortGW, ok := s.venues[st.ShortPosition.Venue]
	if !ok {
		return obs, fmt.Errorf("venue %s not configured", st.ShortPosition.Venue)
	}

	err := executor.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		obs.Long, err = longGW.GetPosition(ctx, st.Symbol)
		return err
	})
	if err != nil {
		return obs, fmt.Errorf("long leg read: %w", err)
	}
	err = executor.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		var err error
		obs.Short, err = shortGW.GetPosition(ctx, st.Symbol)
		return err
	})
	if err != nil {
		return obs, fmt.Errorf("short leg read: %w", err)
	}

	if obs.Long != nil {
		st.LongPosition = *obs.Long
	}
	if obs.Short != nil {
		st.ShortPosition = *obs.Short
	}

	// Fresh funding differential for reversal detection. A failed quote only
	// disables the reversal check for this cycle.
	longSnap, lerr := longGW.GetFundingSnapshot(ctx, st.Symbol)
	shortSnap, serr := shortGW.GetFundingSnapshot(ctx, st.Symbol)
	if lerr == nil && serr == nil {
		obs.CurrentSpreadPct = shortSnap.Rate1hPct - longSnap.Rate1hPct
		obs.SpreadKnown = true
	}

	return obs, nil
}

// closeLegs attempts to close both legs. Both are always attempted; a leg the
// venue no longer reports counts as closed. Both succeeding moves the
// strategy to CLOSED and writes its terminal record; either failing after the
// configured retries moves it to ERROR and keeps it registered for manual
// resolution.
func (s *Supervisor) closeLegs(ctx context.Context, m *managed, log *slog.Logger) {
	st := m.strategy
	policy := s.cfg.Retry
	policy.MaxRetries = s.cfg.CloseRetries

	if m.legRealized == nil {
		m.legRealized = make(map[domain.Side]float64, 2)
	}

	var closeErrs []string
	for _, leg := range []*domain.Position{&st.LongPosition, &st.ShortPosition} {
		if _, done := m.legRealized[leg.Side]; done {
			// Closed on an earlier attempt; its PnL is already recorded.
			continue
		}
		gw, ok := s.venues[leg.Venue]
		if !ok {
			closeErrs = append(closeErrs, fmt.Sprintf("%s leg: venue %s not configured", leg.Side, leg.Venue))
			continue
		}
		var closed domain.ClosedPosition
		alreadyClosed := false
		err := executor.Retry(ctx, policy, func(ctx context.Context) error {
			var err error
			closed, err = gw.ClosePosition(ctx, st.Symbol)
			if errors.Is(err, domain.ErrPositionNotFound) {
				alreadyClosed = true
				return nil
			}
			return err
		})
		if err != nil {
			closeErrs = append(closeErrs, fmt.Sprintf("%s leg on %s: %v", leg.Side, leg.Venue, err))
			continue
		}
		if alreadyClosed {
			// The venue no longer reports the leg and no attempt of ours
			// closed it; the last reconciled reading is the best figure left.
			m.legRealized[leg.Side] = leg.UnrealizedPnLUSD + leg.FundingAccruedUSD
		} else {
			m.legRealized[leg.Side] = closed.RealizedPnLUSD
		}
	}

	if len(closeErrs) > 0 {
		st.State = domain.StrategyError
		detail := fmt.Sprintf("close failed after %d retries: %s", s.cfg.CloseRetries, closeErrs)
		log.Error("strategy close failed, manual resolution required",
			slog.Any("errors", closeErrs),
		)
		s.publish(domain.StrategyEvent{
			Type:       domain.EventStrategyError,
			StrategyID: st.ID,
			Symbol:     st.Symbol,
			State:      st.State,
			Reason:     string(st.CloseReason),
			Detail:     detail,
			At:         time.Now().UTC(),
		})
		return
	}

	now := time.Now().UTC()
	st.State = domain.StrategyClosed
	st.ClosedAt = &now
	var realized float64
	for _, v := range m.legRealized {
		realized += v
	}
	st.RealizedPnLUSD = realized

	log.Info("strategy closed",
		slog.String("reason", string(st.CloseReason)),
		slog.Float64("realized_pnl_usd", st.RealizedPnLUSD),
	)
	s.publish(domain.StrategyEvent{
		Type:       domain.EventStrategyClosed,
		StrategyID: st.ID,
		Symbol:     st.Symbol,
		State:      st.State,
		Reason:     string(st.CloseReason),
		PnLUSD:     st.RealizedPnLUSD,
		At:         now,
	})

	if s.store != nil {
		if err := s.store.Create(ctx, *st); err != nil {
			log.Error("terminal record write failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	delete(s.registry, st.ID)
	s.mu.Unlock()
}

func (s *Supervisor) publish(ev domain.StrategyEvent) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
