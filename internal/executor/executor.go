// Package executor opens the two legs of a delta-neutral strategy as a
// single logical transaction with a compensating rollback on partial failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// Registrar takes ownership of a freshly opened strategy. It is implemented
// by the supervisor; the executor keeps no state of its own across calls.
type Registrar interface {
	Register(ctx context.Context, s *domain.Strategy) error
}

// Params are the operator-chosen execution parameters. Threshold pointers are
// nil when the corresponding auto-close check is disabled.
type Params struct {
	StakeSizeUSD  float64
	Leverage      float64
	TakeProfitPct *float64
	StopLossPct   *float64
	MaxHold       *time.Duration
}

// Executor opens both legs of an opportunity. The two placements for one
// strategy are strictly sequential (long first, then short) so the rollback
// direction is unambiguous; executions of different strategies may run in
// parallel.
type Executor struct {
	venues    map[string]domain.VenueGateway
	registrar Registrar
	events    domain.EventSink
	retry     RetryPolicy
	logger    *slog.Logger
}

// New creates an Executor over the given venue gateways. The registrar
// receives every successfully opened strategy; events receives lifecycle
// notifications. Both may be nil in tests.
func New(venues map[string]domain.VenueGateway, registrar Registrar, events domain.EventSink, retry RetryPolicy, logger *slog.Logger) *Executor {
	return &Executor{
		venues:    venues,
		registrar: registrar,
		events:    events,
		retry:     retry,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// Execute validates params, opens the long leg then the short leg, and hands
// the resulting ACTIVE strategy to the registrar. On a short-leg failure it
// closes the already-open long leg; if that compensating close also fails the
// returned *domain.ExecutionError names the surviving leg so an operator can
// intervene.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, p Params) (*domain.Strategy, error) {
	if err := e.validate(ctx, opp, p); err != nil {
		return nil, err
	}

	log := e.logger.With(
		slog.String("symbol", opp.Symbol),
		slog.String("long_venue", opp.LongVenue),
		slog.String("short_venue", opp.ShortVenue),
	)
	longGW := e.venues[opp.LongVenue]
	shortGW := e.venues[opp.ShortVenue]

	// Leg 1: long. A failure here leaves no state behind.
	log.Info("opening long leg",
		slog.Float64("stake_usd", p.StakeSizeUSD),
		slog.Float64("leverage", p.Leverage),
	)
	var longPos domain.Position
	err := Retry(ctx, e.retry, func(ctx context.Context) error {
		var err error
		longPos, err = longGW.PlaceMarketOrder(ctx, opp.Symbol, domain.SideLong, p.StakeSizeUSD, p.Leverage)
		return err
	})
	if err != nil {
		log.Error("long leg failed, nothing to roll back", slog.String("error", err.Error()))
		return nil, &domain.ExecutionError{
			Outcome:     domain.OutcomeAborted,
			Symbol:      opp.Symbol,
			FailedLeg:   domain.SideLong,
			FailedVenue: opp.LongVenue,
			Err:         err,
		}
	}
	log.Info("long leg filled", slog.Float64("entry_price", longPos.EntryPrice))

	// Leg 2: short. A failure here triggers the compensating close.
	log.Info("opening short leg")
	var shortPos domain.Position
	err = Retry(ctx, e.retry, func(ctx context.Context) error {
		var err error
		shortPos, err = shortGW.PlaceMarketOrder(ctx, opp.Symbol, domain.SideShort, p.StakeSizeUSD, p.Leverage)
		return err
	})
	if err != nil {
		return nil, e.rollback(ctx, opp, longPos, err)
	}
	log.Info("short leg filled", slog.Float64("entry_price", shortPos.EntryPrice))

	strat := &domain.Strategy{
		ID:             uuid.New().String(),
		Symbol:         opp.Symbol,
		LongPosition:   longPos,
		ShortPosition:  shortPos,
		StakeSizeUSD:   p.StakeSizeUSD,
		Leverage:       p.Leverage,
		EntrySpreadPct: opp.GrossSpreadPct,
		TakeProfitPct:  p.TakeProfitPct,
		StopLossPct:    p.StopLossPct,
		MaxHoldDuration: p.MaxHold,
		State:          domain.StrategyActive,
		CreatedAt:      time.Now().UTC(),
	}

	if e.registrar != nil {
		if err := e.registrar.Register(ctx, strat); err != nil {
			// Both legs are open; the strategy exists even if registration
			// failed. Escalate rather than silently dropping supervision.
			log.Error("strategy registration failed, legs remain open",
				slog.String("strategy_id", strat.ID),
				slog.String("error", err.Error()),
			)
			return strat, fmt.Errorf("register strategy %s: %w", strat.ID, err)
		}
	}

	if e.events != nil {
		e.events.Publish(domain.StrategyEvent{
			Type:       domain.EventStrategyCreated,
			StrategyID: strat.ID,
			Symbol:     strat.Symbol,
			State:      strat.State,
			Detail: fmt.Sprintf("long %s / short %s, %.2f USD @ %.0fx",
				opp.LongVenue, opp.ShortVenue, p.StakeSizeUSD, p.Leverage),
			At: strat.CreatedAt,
		})
	}
	log.Info("strategy opened", slog.String("strategy_id", strat.ID))
	return strat, nil
}

// validate checks stake and leverage against the opportunity and both
// venues' freshly queried limits.
func (e *Executor) validate(ctx context.Context, opp domain.Opportunity, p Params) error {
	if p.StakeSizeUSD <= 0 {
		return &domain.ValidationError{Field: "stake_size", Reason: "must be > 0"}
	}
	if p.Leverage < 1 {
		return &domain.ValidationError{Field: "leverage", Reason: "must be >= 1"}
	}
	if opp.MinRequiredLeverage > 0 && p.Leverage > opp.MinRequiredLeverage {
		return &domain.ValidationError{
			Field:  "leverage",
			Reason: fmt.Sprintf("%.0fx exceeds opportunity maximum %.0fx", p.Leverage, opp.MinRequiredLeverage),
		}
	}

	for _, venue := range []string{opp.LongVenue, opp.ShortVenue} {
		gw, ok := e.venues[venue]
		if !ok {
			return &domain.ValidationError{Field: "venue", Reason: fmt.Sprintf("%s is not configured", venue)}
		}
		var market domain.Market
		err := Retry(ctx, e.retry, func(ctx context.Context) error {
			var err error
			market, err = gw.GetMarket(ctx, opp.Symbol)
			return err
		})
		if err != nil {
			return fmt.Errorf("query %s limits for %s: %w", venue, opp.Symbol, err)
		}
		if market.MaxLeverage > 0 && p.Leverage > market.MaxLeverage {
			return &domain.ValidationError{
				Field:  "leverage",
				Reason: fmt.Sprintf("%.0fx exceeds %s maximum %.0fx for %s", p.Leverage, venue, market.MaxLeverage, opp.Symbol),
			}
		}
		if market.MinOrderSizeUSD > 0 && p.StakeSizeUSD < market.MinOrderSizeUSD {
			return &domain.ValidationError{
				Field:  "stake_size",
				Reason: fmt.Sprintf("%.2f USD below %s minimum %.2f USD", p.StakeSizeUSD, venue, market.MinOrderSizeUSD),
			}
		}
	}
	return nil
}

// rollback closes the already-open long leg after a short-leg failure. A
// position the venue no longer knows about counts as closed.
func (e *Executor) rollback(ctx context.Context, opp domain.Opportunity, longPos domain.Position, cause error) error {
	log := e.logger.With(
		slog.String("symbol", opp.Symbol),
		slog.String("long_venue", opp.LongVenue),
	)
	log.Warn("short leg failed, rolling back long leg", slog.String("error", cause.Error()))

	longGW := e.venues[opp.LongVenue]
	err := Retry(ctx, e.retry, func(ctx context.Context) error {
		_, err := longGW.ClosePosition(ctx, opp.Symbol)
		if errors.Is(err, domain.ErrPositionNotFound) {
			// Already flat: the compensating action has nothing to undo.
			return nil
		}
		return err
	})
	if err != nil {
		log.Error("rollback failed, surviving long leg requires manual intervention",
			slog.Float64("size_usd", longPos.SizeUSD),
			slog.String("error", err.Error()),
		)
		return &domain.ExecutionError{
			Outcome:     domain.OutcomePartial,
			Symbol:      opp.Symbol,
			FailedLeg:   domain.SideShort,
			FailedVenue: opp.ShortVenue,
			Surviving: &domain.LegRef{
				Venue:   opp.LongVenue,
				Symbol:  opp.Symbol,
				Side:    domain.SideLong,
				SizeUSD: longPos.SizeUSD,
			},
			Err: fmt.Errorf("short leg: %w; rollback close: %v", cause, err),
		}
	}

	log.Info("rollback complete, long leg closed")
	return &domain.ExecutionError{
		Outcome:     domain.OutcomeRolledBack,
		Symbol:      opp.Symbol,
		FailedLeg:   domain.SideShort,
		FailedVenue: opp.ShortVenue,
		Err:         cause,
	}
}
