// Package scanner finds delta-neutral funding arbitrage candidates across
// venues, accounting for trading fees and slippage.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// amortizationHours spreads the round-trip entry/exit cost over the expected
// hold window when converting gross to net spread.
const amortizationHours = 24

// defaultFeeModel is the conservative cost model applied to venues with no
// configured fee table (0.2% round trip per leg).
var defaultFeeModel = domain.FeeModel{
	TakerEntryFeePct: 0.05,
	TakerExitFeePct:  0.05,
	EstimatedSlipPct: 0.10,
}

// Config holds scan filters.
type Config struct {
	MinSpreadPct float64  // minimum gross hourly spread, percent
	MinLeverage  float64  // minimum required leverage across both venues
	TopN         int      // ranking truncation, 0 = 25
	Symbols      []string // allow-list of normalized symbols, empty = all
	CacheTTL     time.Duration
}

// Result is one completed scan cycle. VenueErrors lists venues that failed to
// report and were excluded from this cycle's symbol universe.
type Result struct {
	Opportunities []domain.Opportunity
	VenueErrors   map[string]error
	FetchedAt     time.Time
}

// Scanner produces a ranked list of opportunities from fresh funding
// snapshots. It holds no state between scans; every Scan restarts from live
// venue reads.
type Scanner struct {
	venues map[string]domain.VenueGateway
	fees   map[string]domain.FeeModel
	cache  domain.SnapshotCache // optional
	cfg    Config
	logger *slog.Logger
}

// New creates a Scanner over the given venue gateways and fee models.
func New(venues map[string]domain.VenueGateway, fees map[string]domain.FeeModel, cfg Config, logger *slog.Logger) *Scanner {
	if cfg.TopN <= 0 {
		cfg.TopN = 25
	}
	if cfg.MinLeverage < 1 {
		cfg.MinLeverage = 1
	}
	return &Scanner{
		venues: venues,
		fees:   fees,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scanner")),
	}
}

// SetCache enables write-through of each cycle's snapshots for external
// consumers. Entries expire after cfg.CacheTTL.
func (s *Scanner) SetCache(cache domain.SnapshotCache) {
	s.cache = cache
}

// Scan fetches funding snapshots from every venue concurrently, then ranks
// fee-adjusted opportunities. Venues that fail to report are skipped with a
// warning; the scan only fails when no venue succeeds.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	res := Result{
		VenueErrors: make(map[string]error),
		FetchedAt:   time.Now().UTC(),
	}
	if len(s.venues) == 0 {
		return res, fmt.Errorf("scan: no venues configured")
	}

	var (
		mu    sync.Mutex
		snaps []domain.FundingSnapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, gw := range s.venues {
		name, gw := name, gw
		g.Go(func() error {
			vs, err := gw.ListFundingSnapshots(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Non-fatal: exclude the venue from this cycle.
				res.VenueErrors[name] = err
				s.logger.Warn("venue snapshot fetch failed, skipping venue",
					slog.String("venue", name),
					slog.String("error", err.Error()),
				)
				return nil
			}
			snaps = append(snaps, vs...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if len(res.VenueErrors) == len(s.venues) {
		return res, fmt.Errorf("scan: %w: %d venue(s)", domain.ErrAllVenuesFailed, len(s.venues))
	}

	if s.cache != nil && len(snaps) > 0 {
		if err := s.cache.SetCycle(ctx, snaps, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("snapshot cache write failed", slog.String("error", err.Error()))
		}
	}

	res.Opportunities = s.rank(snaps, res.FetchedAt)
	s.logger.Info("scan complete",
		slog.Int("snapshots", len(snaps)),
		slog.Int("opportunities", len(res.Opportunities)),
		slog.Int("venues_failed", len(res.VenueErrors)),
	)
	return res, nil
}

// rank builds every positive-spread venue-pair assignment per eligible symbol
// and returns the top N by score.
func (s *Scanner) rank(snaps []domain.FundingSnapshot, now time.Time) []domain.Opportunity {
	allowed := make(map[string]bool, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		allowed[NormalizeSymbol(sym)] = true
	}

	// symbol -> venue -> snapshot; first snapshot per (symbol, venue) wins.
	bySymbol := make(map[string]map[string]domain.FundingSnapshot)
	for _, snap := range snaps {
		sym := NormalizeSymbol(snap.Symbol)
		if sym == "" {
			continue
		}
		if len(allowed) > 0 && !allowed[sym] {
			continue
		}
		venues, ok := bySymbol[sym]
		if !ok {
			venues = make(map[string]domain.FundingSnapshot)
			bySymbol[sym] = venues
		}
		if _, dup := venues[snap.Venue]; !dup {
			venues[snap.Venue] = snap
		}
	}

	var opps []domain.Opportunity
	for sym, venues := range bySymbol {
		if len(venues) < 2 {
			// A spread needs two legs.
			continue
		}

		names := make([]string, 0, len(venues))
		for v := range venues {
			names = append(names, v)
		}
		sort.Strings(names)

		// Every unordered venue pair, both leg directions: keep the one with
		// positive gross spread (long the lower rate, short the higher).
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				a, b := venues[names[i]], venues[names[j]]
				long, short := a, b
				if long.Rate1hPct > short.Rate1hPct {
					long, short = short, long
				}
				gross := short.Rate1hPct - long.Rate1hPct
				if gross <= 0 || gross < s.cfg.MinSpreadPct {
					continue
				}

				minLev := long.MaxLeverage
				if short.MaxLeverage < minLev {
					minLev = short.MaxLeverage
				}
				if minLev < 1 {
					minLev = 1
				}
				if minLev < s.cfg.MinLeverage {
					continue
				}

				net := gross - s.entryCostPct(long.Venue, short.Venue)/amortizationHours

				opps = append(opps, domain.Opportunity{
					ID:                  uuid.New().String(),
					Symbol:              sym,
					LongVenue:           long.Venue,
					ShortVenue:          short.Venue,
					LongRate1hPct:       long.Rate1hPct,
					ShortRate1hPct:      short.Rate1hPct,
					GrossSpreadPct:      gross,
					NetSpreadPct:        net,
					MinRequiredLeverage: minLev,
					Score:               net * minLev * 100,
					DetectedAt:          now,
				})
			}
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Score != opps[j].Score {
			return opps[i].Score > opps[j].Score
		}
		if opps[i].NetSpreadPct != opps[j].NetSpreadPct {
			return opps[i].NetSpreadPct > opps[j].NetSpreadPct
		}
		// Deterministic order for equal candidates.
		if opps[i].Symbol != opps[j].Symbol {
			return opps[i].Symbol < opps[j].Symbol
		}
		return opps[i].LongVenue < opps[j].LongVenue
	})

	if len(opps) > s.cfg.TopN {
		opps = opps[:s.cfg.TopN]
	}
	return opps
}

// entryCostPct is the summed round-trip cost (entry fee, exit fee, slippage)
// of both legs, in percent.
func (s *Scanner) entryCostPct(longVenue, shortVenue string) float64 {
	return s.feeModel(longVenue).RoundTripCostPct() + s.feeModel(shortVenue).RoundTripCostPct()
}

func (s *Scanner) feeModel(venue string) domain.FeeModel {
	if m, ok := s.fees[venue]; ok {
		return m
	}
	return defaultFeeModel
}

// NormalizeSymbol strips venue-specific suffixes so the same asset matches
// across venues ("BTC-USD-PERP", "BTC_USDC" and "BTC" all become "BTC").
func NormalizeSymbol(symbol string) string {
	sym := strings.ToUpper(symbol)
	for _, suffix := range []string{"-USD-PERP", "-PERP", "_USDC_PER_9", "_USDC", "USDC", "USD"} {
		sym = strings.ReplaceAll(sym, suffix, "")
	}
	sym = strings.ReplaceAll(sym, "-", "")
	sym = strings.ReplaceAll(sym, "_", "")
	return strings.TrimSpace(sym)
}
