package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL. Only
// terminal strategies land here; the live registry never touches the store.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a StrategyStore backed by the given connection pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

const strategySelectCols = `id, symbol, state, close_reason,
	long_venue, long_entry_price, long_funding_usd,
	short_venue, short_entry_price, short_funding_usd,
	stake_size_usd, leverage, entry_spread_pct, realized_pnl_usd,
	created_at, closed_at`

func scanStrategy(row pgx.Row) (domain.Strategy, error) {
	var (
		s           domain.Strategy
		closeReason *string
	)
	err := row.Scan(
		&s.ID, &s.Symbol, &s.State, &closeReason,
		&s.LongPosition.Venue, &s.LongPosition.EntryPrice, &s.LongPosition.FundingAccruedUSD,
		&s.ShortPosition.Venue, &s.ShortPosition.EntryPrice, &s.ShortPosition.FundingAccruedUSD,
		&s.StakeSizeUSD, &s.Leverage, &s.EntrySpreadPct, &s.RealizedPnLUSD,
		&s.CreatedAt, &s.ClosedAt,
	)
	if err != nil {
		return domain.Strategy{}, err
	}
	if closeReason != nil {
		s.CloseReason = domain.CloseReason(*closeReason)
	}
	s.LongPosition.Symbol = s.Symbol
	s.LongPosition.Side = domain.SideLong
	s.ShortPosition.Symbol = s.Symbol
	s.ShortPosition.Side = domain.SideShort
	return s, nil
}

// Create writes a terminal strategy record. Re-inserting the same id is
// rejected by the primary key; a terminal record is written exactly once.
func (s *StrategyStore) Create(ctx context.Context, strat domain.Strategy) error {
	if !strat.State.Terminal() {
		return fmt.Errorf("postgres: create strategy %s: state %s is not terminal", strat.ID, strat.State)
	}

	var closeReason *string
	if strat.CloseReason != "" {
		r := string(strat.CloseReason)
		closeReason = &r
	}

	const query = `
		INSERT INTO strategies (
			id, symbol, state, close_reason,
			long_venue, long_entry_price, long_funding_usd,
			short_venue, short_entry_price, short_funding_usd,
			stake_size_usd, leverage, entry_spread_pct, realized_pnl_usd,
			created_at, closed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13, $14,
			$15, $16
		)`
	_, err := s.pool.Exec(ctx, query,
		strat.ID, strat.Symbol, strat.State, closeReason,
		strat.LongPosition.Venue, strat.LongPosition.EntryPrice, strat.LongPosition.FundingAccruedUSD,
		strat.ShortPosition.Venue, strat.ShortPosition.EntryPrice, strat.ShortPosition.FundingAccruedUSD,
		strat.StakeSizeUSD, strat.Leverage, strat.EntrySpreadPct, strat.RealizedPnLUSD,
		strat.CreatedAt, strat.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create strategy %s: %w", strat.ID, err)
	}
	return nil
}

// GetByID returns the terminal record with the given id. It returns
// domain.ErrStrategyNotFound when no record exists.
func (s *StrategyStore) GetByID(ctx context.Context, id string) (domain.Strategy, error) {
	query := `SELECT ` + strategySelectCols + ` FROM strategies WHERE id = $1`
	strat, err := scanStrategy(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Strategy{}, fmt.Errorf("postgres: get strategy %s: %w", id, domain.ErrStrategyNotFound)
		}
		return domain.Strategy{}, fmt.Errorf("postgres: get strategy %s: %w", id, err)
	}
	return strat, nil
}

// ListRecent returns terminal records ordered by creation time descending,
// with pagination and optional time filtering.
func (s *StrategyStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Strategy, error) {
	query := `SELECT ` + strategySelectCols + ` FROM strategies`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		strat, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		out = append(out, strat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list strategies: %w", err)
	}
	return out, nil
}

// SumRealizedPnL returns the total realized PnL of closed strategies created
// at or after the given time.
func (s *StrategyStore) SumRealizedPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum *float64
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(realized_pnl_usd) FROM strategies WHERE state = $1 AND created_at >= $2`,
		domain.StrategyClosed, since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum realized pnl: %w", err)
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}

// Compile-time interface check.
var _ domain.StrategyStore = (*StrategyStore)(nil)
