package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fundingbot/internal/domain"
	"github.com/alanyoungcy/fundingbot/internal/executor"
	"github.com/alanyoungcy/fundingbot/internal/scanner"
	"github.com/alanyoungcy/fundingbot/internal/supervisor"
)

// dedupTTL suppresses re-execution of the same venue pair and symbol while a
// previous attempt is still fresh.
const dedupTTL = 30 * time.Minute

// balancePollInterval is how often monitor and full modes log venue balances.
const balancePollInterval = time.Minute

// ScanMode runs the opportunity scanner on a fixed interval and logs the
// ranked candidates. No orders are placed.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies, venues map[string]domain.VenueGateway) error {
	a.logger.InfoContext(ctx, "starting scan mode",
		slog.Duration("interval", a.cfg.Scanner.Interval.Duration),
	)

	sc := a.newScanner(deps, venues)
	return a.scanLoop(ctx, sc, deps, nil)
}

// TradeMode runs the full pipeline: scan, execute the top candidate when
// auto-execution is enabled, and supervise every open strategy until it
// reaches a terminal state.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, venues map[string]domain.VenueGateway) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Bool("auto_execute", a.cfg.Executor.AutoExecute),
	)
	a.logBalances(ctx, venues)

	g, ctx := errgroup.WithContext(ctx)

	sup := a.newSupervisor(deps, venues)
	g.Go(func() error {
		return sup.Run(ctx)
	})

	sc := a.newScanner(deps, venues)
	exec := executor.New(venues, sup, deps.Events, a.retryPolicy(), a.logger)
	dedup := executor.NewDedup(dedupTTL)

	onResult := func(res scanner.Result) {
		if len(res.Opportunities) == 0 {
			return
		}
		if !a.cfg.Executor.AutoExecute {
			return
		}
		a.executeTop(ctx, res.Opportunities, exec, dedup, sup)
	}
	g.Go(func() error {
		return a.scanLoop(ctx, sc, deps, onResult)
	})

	return g.Wait()
}

// MonitorMode is read-only: it scans for opportunities and polls venue
// balances, but never places or closes orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies, venues map[string]domain.VenueGateway) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	sc := a.newScanner(deps, venues)
	g.Go(func() error {
		return a.scanLoop(ctx, sc, deps, nil)
	})
	g.Go(func() error {
		return a.balanceLoop(ctx, venues)
	})

	return g.Wait()
}

// PaperMode runs the trade pipeline against the simulated venues built by
// buildGateways, so every subsystem is exercised without real funds.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies, venues map[string]domain.VenueGateway) error {
	a.logger.InfoContext(ctx, "starting paper mode")
	return a.TradeMode(ctx, deps, venues)
}

// FullMode runs trading plus the periodic balance poll.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, venues map[string]domain.VenueGateway) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.TradeMode(ctx, deps, venues)
	})
	g.Go(func() error {
		return a.balanceLoop(ctx, venues)
	})
	return g.Wait()
}

func (a *App) newScanner(deps *Dependencies, venues map[string]domain.VenueGateway) *scanner.Scanner {
	cacheTTL := a.cfg.Scanner.Interval.Duration
	sc := scanner.New(venues, a.cfg.FeeModels(), scanner.Config{
		MinSpreadPct: a.cfg.Scanner.MinSpreadPct,
		MinLeverage:  a.cfg.Scanner.MinLeverage,
		TopN:         a.cfg.Scanner.TopN,
		Symbols:      a.cfg.Scanner.Symbols,
		CacheTTL:     cacheTTL,
	}, a.logger)
	if deps.SnapshotCache != nil {
		sc.SetCache(deps.SnapshotCache)
	}
	return sc
}

func (a *App) newSupervisor(deps *Dependencies, venues map[string]domain.VenueGateway) *supervisor.Supervisor {
	return supervisor.New(venues, supervisor.Config{
		Interval:             a.cfg.Supervisor.Interval.Duration,
		CloseRetries:         a.cfg.Supervisor.CloseRetries,
		LiquidationMarginPct: a.cfg.Supervisor.LiquidationMarginPct,
		Retry:                a.retryPolicy(),
	}, deps.StrategyStore, deps.Events, a.logger)
}

func (a *App) retryPolicy() executor.RetryPolicy {
	p := executor.DefaultRetryPolicy()
	if a.cfg.Executor.MaxRetries > 0 {
		p.MaxRetries = a.cfg.Executor.MaxRetries
	}
	if a.cfg.Executor.RetryBaseDelay.Duration > 0 {
		p.BaseDelay = a.cfg.Executor.RetryBaseDelay.Duration
	}
	if a.cfg.Executor.RetryMaxDelay.Duration > 0 {
		p.MaxDelay = a.cfg.Executor.RetryMaxDelay.Duration
	}
	return p
}

// executorParams converts configured thresholds into execution params; a zero
// threshold disables the corresponding auto-close check.
func (a *App) executorParams() executor.Params {
	p := executor.Params{
		StakeSizeUSD: a.cfg.Executor.StakeSizeUSD,
		Leverage:     a.cfg.Executor.Leverage,
	}
	if v := a.cfg.Executor.TakeProfitPct; v > 0 {
		p.TakeProfitPct = &v
	}
	if v := a.cfg.Executor.StopLossPct; v > 0 {
		p.StopLossPct = &v
	}
	if v := a.cfg.Executor.MaxHold.Duration; v > 0 {
		p.MaxHold = &v
	}
	return p
}

// scanLoop runs one scan immediately, then on every tick. Venue failures are
// surfaced as scan warning events; the loop only stops on context
// cancellation or an all-venues failure.
func (a *App) scanLoop(ctx context.Context, sc *scanner.Scanner, deps *Dependencies, onResult func(scanner.Result)) error {
	interval := a.cfg.Scanner.Interval.Duration

	runOnce := func() error {
		res, err := sc.Scan(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrAllVenuesFailed) {
				return err
			}
			a.logger.WarnContext(ctx, "scan failed", slog.String("error", err.Error()))
			return nil
		}
		for venueName, venueErr := range res.VenueErrors {
			deps.Events.Publish(domain.StrategyEvent{
				Type:   domain.EventScanWarning,
				Detail: fmt.Sprintf("venue %s excluded from cycle: %v", venueName, venueErr),
				At:     res.FetchedAt,
			})
		}
		a.logTopOpportunities(ctx, res.Opportunities)
		if onResult != nil {
			onResult(res)
		}
		return nil
	}

	if err := runOnce(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := runOnce(); err != nil {
				return err
			}
		}
	}
}

// executeTop opens the best-ranked opportunity that is not a recent duplicate
// and whose symbol has no live strategy yet.
func (a *App) executeTop(ctx context.Context, opps []domain.Opportunity, exec *executor.Executor, dedup *executor.Dedup, sup *supervisor.Supervisor) {
	live := make(map[string]bool)
	for _, s := range sup.Active() {
		live[s.Symbol] = true
	}

	for _, opp := range opps {
		if live[opp.Symbol] {
			continue
		}
		key := opp.Symbol + "|" + opp.LongVenue + "|" + opp.ShortVenue
		if dedup.IsDuplicate(key) {
			continue
		}

		strat, err := exec.Execute(ctx, opp, a.executorParams())
		if err != nil {
			var execErr *domain.ExecutionError
			if errors.As(err, &execErr) && execErr.Outcome == domain.OutcomePartial {
				// Executor already reported the surviving leg; stop trading
				// this cycle so the operator can intervene.
				a.logger.ErrorContext(ctx, "execution left a partial position",
					slog.String("error", err.Error()),
				)
				return
			}
			a.logger.WarnContext(ctx, "execution failed",
				slog.String("symbol", opp.Symbol),
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "opportunity executed",
			slog.String("strategy_id", strat.ID),
			slog.String("symbol", strat.Symbol),
			slog.Float64("net_spread_pct", opp.NetSpreadPct),
		)
		return
	}
}

func (a *App) logTopOpportunities(ctx context.Context, opps []domain.Opportunity) {
	if len(opps) == 0 {
		a.logger.InfoContext(ctx, "no opportunities this cycle")
		return
	}
	n := len(opps)
	if n > 5 {
		n = 5
	}
	for i, opp := range opps[:n] {
		a.logger.InfoContext(ctx, "opportunity",
			slog.Int("rank", i+1),
			slog.String("symbol", opp.Symbol),
			slog.String("long_venue", opp.LongVenue),
			slog.String("short_venue", opp.ShortVenue),
			slog.Float64("gross_spread_pct", opp.GrossSpreadPct),
			slog.Float64("net_spread_pct", opp.NetSpreadPct),
			slog.Float64("score", opp.Score),
		)
	}
}

// logBalances is the trade-mode preflight: one balance read per venue so the
// operator sees available margin before any order is placed.
func (a *App) logBalances(ctx context.Context, venues map[string]domain.VenueGateway) {
	for name, gw := range venues {
		bal, err := gw.GetBalance(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "balance read failed",
				slog.String("venue", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "venue balance",
			slog.String("venue", name),
			slog.Float64("equity_usd", bal.TotalEquityUSD),
			slog.Float64("available_usd", bal.AvailableUSD),
		)
	}
}

func (a *App) balanceLoop(ctx context.Context, venues map[string]domain.VenueGateway) error {
	ticker := time.NewTicker(balancePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.logBalances(ctx, venues)
		}
	}
}
