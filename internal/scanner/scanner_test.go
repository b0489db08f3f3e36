package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/domain"
)

type fakeVenue struct {
	name  string
	snaps []domain.FundingSnapshot
	err   error
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) ListFundingSnapshots(ctx context.Context) ([]domain.FundingSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps, nil
}

func (f *fakeVenue) GetFundingSnapshot(ctx context.Context, symbol string) (domain.FundingSnapshot, error) {
	for _, s := range f.snaps {
		if s.Symbol == symbol {
			return s, nil
		}
	}
	return domain.FundingSnapshot{}, domain.ErrPositionNotFound
}

func (f *fakeVenue) GetBalance(ctx context.Context) (domain.Balance, error) {
	return domain.Balance{Venue: f.name}, nil
}

func (f *fakeVenue) GetMarket(ctx context.Context, symbol string) (domain.Market, error) {
	return domain.Market{Venue: f.name, Symbol: symbol}, nil
}

func (f *fakeVenue) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, sizeUSD, leverage float64) (domain.Position, error) {
	return domain.Position{}, errors.New("not implemented")
}

func (f *fakeVenue) ClosePosition(ctx context.Context, symbol string) (domain.ClosedPosition, error) {
	return domain.ClosedPosition{}, errors.New("not implemented")
}

func (f *fakeVenue) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	return nil, nil
}

func snap(venue, symbol string, rate, maxLev float64) domain.FundingSnapshot {
	return domain.FundingSnapshot{
		Venue:       venue,
		Symbol:      symbol,
		Rate1hPct:   rate,
		MaxLeverage: maxLev,
		ObservedAt:  time.Now().UTC(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zeroFees(venues ...string) map[string]domain.FeeModel {
	fees := make(map[string]domain.FeeModel, len(venues))
	for _, v := range venues {
		fees[v] = domain.FeeModel{}
	}
	return fees
}

func TestScanRanksLongLowShortHigh(t *testing.T) {
	venues := map[string]domain.VenueGateway{
		"alpha": &fakeVenue{name: "alpha", snaps: []domain.FundingSnapshot{snap("alpha", "BTC", 0.01, 20)}},
		"beta":  &fakeVenue{name: "beta", snaps: []domain.FundingSnapshot{snap("beta", "BTC", -0.02, 25)}},
	}
	s := New(venues, zeroFees("alpha", "beta"), Config{}, testLogger())

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(res.Opportunities))
	}

	opp := res.Opportunities[0]
	if opp.LongVenue != "beta" || opp.ShortVenue != "alpha" {
		t.Errorf("long=%s short=%s, want long=beta short=alpha", opp.LongVenue, opp.ShortVenue)
	}
	if got, want := opp.GrossSpreadPct, 0.03; !near(got, want) {
		t.Errorf("gross spread = %v, want %v", got, want)
	}
	// min(20, 25) leverage, zero fees so net == gross.
	if got, want := opp.MinRequiredLeverage, 20.0; got != want {
		t.Errorf("min leverage = %v, want %v", got, want)
	}
	if got, want := opp.Score, 0.03*20*100; !near(got, want) {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestScanAmortizesRoundTripCosts(t *testing.T) {
	venues := map[string]domain.VenueGateway{
		"alpha": &fakeVenue{name: "alpha", snaps: []domain.FundingSnapshot{snap("alpha", "BTC", 0.05, 10)}},
		"beta":  &fakeVenue{name: "beta", snaps: []domain.FundingSnapshot{snap("beta", "BTC", -0.05, 10)}},
	}
	fees := map[string]domain.FeeModel{
		"alpha": {TakerEntryFeePct: 0.05, TakerExitFeePct: 0.05, EstimatedSlipPct: 0.10},
		"beta":  {TakerEntryFeePct: 0.05, TakerExitFeePct: 0.05, EstimatedSlipPct: 0.10},
	}
	s := New(venues, fees, Config{}, testLogger())

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1", len(res.Opportunities))
	}

	// gross 0.10, round trip 0.2% per leg, 0.4% total amortized over 24h.
	want := 0.10 - 0.4/24
	if got := res.Opportunities[0].NetSpreadPct; !near(got, want) {
		t.Errorf("net spread = %v, want %v", got, want)
	}
}

func TestScanSkipsFailedVenue(t *testing.T) {
	venues := map[string]domain.VenueGateway{
		"alpha": &fakeVenue{name: "alpha", snaps: []domain.FundingSnapshot{snap("alpha", "BTC", 0.01, 20)}},
		"beta":  &fakeVenue{name: "beta", snaps: []domain.FundingSnapshot{snap("beta", "BTC", -0.02, 25)}},
		"gamma": &fakeVenue{name: "gamma", err: errors.New("connection refused")},
	}
	s := New(venues, zeroFees("alpha", "beta", "gamma"), Config{}, testLogger())

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.VenueErrors) != 1 {
		t.Fatalf("venue errors = %d, want 1", len(res.VenueErrors))
	}
	if _, ok := res.VenueErrors["gamma"]; !ok {
		t.Errorf("expected gamma in venue errors, got %v", res.VenueErrors)
	}
	if len(res.Opportunities) != 1 {
		t.Errorf("opportunities = %d, want 1 from the two healthy venues", len(res.Opportunities))
	}
}

func TestScanAllVenuesFailed(t *testing.T) {
	venues := map[string]domain.VenueGateway{
		"alpha": &fakeVenue{name: "alpha", err: errors.New("down")},
		"beta":  &fakeVenue{name: "beta", err: errors.New("down")},
	}
	s := New(venues, zeroFees("alpha", "beta"), Config{}, testLogger())

	_, err := s.Scan(context.Background())
	if !errors.Is(err, domain.ErrAllVenuesFailed) {
		t.Fatalf("err = %v, want ErrAllVenuesFailed", err)
	}
}

func TestScanSingleVenueSymbolSkipped(t *testing.T) {
	venues := map[string]domain.VenueGateway{
		"alpha": &fakeVenue{name: "alpha", snaps: []domain.FundingSnapshot{
			snap("alpha", "BTC", 0.01, 20),
			snap("alpha", "DOGE", 0.09, 20),
		}},
		"beta": &fakeVenue{name: "beta", snaps: []domain.FundingSnapshot{snap("beta", "BTC", -0.02, 25)}},
	}
	s := New(venues, zeroFees("alpha", "beta"), Config{}, testLogger())

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, opp := range res.Opportunities {
		if opp.Symbol == "DOGE" {
			t.Errorf("DOGE only trades on one venue, must not produce an opportunity")
		}
	}
}

func TestScanRankingDeterministic(t *testing.T) {
	mk := func() map[string]domain.VenueGateway {
		return map[string]domain.VenueGateway{
			"alpha": &fakeVenue{name: "alpha", snaps: []domain.FundingSnapshot{
				snap("alpha", "BTC", 0.02, 10),
				snap("alpha", "ETH", 0.02, 10),
				snap("alpha", "SOL", 0.05, 10),
			}},
			"beta": &fakeVenue{name: "beta", snaps: []domain.FundingSnapshot{
				snap("beta", "BTC", -0.01, 10),
				snap("beta", "ETH", -0.01, 10),
				snap("beta", "SOL", -0.01, 10),
			}},
		}
	}

	s := New(mk(), zeroFees("alpha", "beta"), Config{}, testLogger())
	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(first.Opportunities) != 3 {
		t.Fatalf("opportunities = %d, want 3", len(first.Opportunities))
	}
	if first.Opportunities[0].Symbol != "SOL" {
		t.Errorf("top symbol = %s, want SOL (widest spread)", first.Opportunities[0].Symbol)
	}
	// BTC and ETH tie on every ranking key except symbol.
	if first.Opportunities[1].Symbol != "BTC" || first.Opportunities[2].Symbol != "ETH" {
		t.Errorf("tie order = %s, %s, want BTC, ETH",
			first.Opportunities[1].Symbol, first.Opportunities[2].Symbol)
	}

	for i := 0; i < 5; i++ {
		again, err := New(mk(), zeroFees("alpha", "beta"), Config{}, testLogger()).Scan(context.Background())
		if err != nil {
			t.Fatalf("Scan: %v", err)
		}
		for j := range again.Opportunities {
			if again.Opportunities[j].Symbol != first.Opportunities[j].Symbol {
				t.Fatalf("run %d: rank %d symbol = %s, want %s",
					i, j, again.Opportunities[j].Symbol, first.Opportunities[j].Symbol)
			}
		}
	}
}

func TestScanFilters(t *testing.T) {
	venues := map[string]domain.VenueGateway{
		"alpha": &fakeVenue{name: "alpha", snaps: []domain.FundingSnapshot{
			snap("alpha", "BTC", 0.03, 20),
			snap("alpha", "ETH", 0.001, 20),
			snap("alpha", "SOL", 0.03, 2),
		}},
		"beta": &fakeVenue{name: "beta", snaps: []domain.FundingSnapshot{
			snap("beta", "BTC", -0.01, 20),
			snap("beta", "ETH", -0.001, 20),
			snap("beta", "SOL", -0.01, 2),
		}},
	}
	s := New(venues, zeroFees("alpha", "beta"), Config{
		MinSpreadPct: 0.01,
		MinLeverage:  5,
	}, testLogger())

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Opportunities) != 1 || res.Opportunities[0].Symbol != "BTC" {
		t.Fatalf("opportunities = %+v, want only BTC (ETH below min spread, SOL below min leverage)", res.Opportunities)
	}
}

func TestScanTopNTruncation(t *testing.T) {
	alpha := &fakeVenue{name: "alpha"}
	beta := &fakeVenue{name: "beta"}
	for _, sym := range []string{"AAA", "BBB", "CCC", "DDD"} {
		alpha.snaps = append(alpha.snaps, snap("alpha", sym, 0.02, 10))
		beta.snaps = append(beta.snaps, snap("beta", sym, -0.02, 10))
	}
	venues := map[string]domain.VenueGateway{"alpha": alpha, "beta": beta}
	s := New(venues, zeroFees("alpha", "beta"), Config{TopN: 2}, testLogger())

	res, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Opportunities) != 2 {
		t.Fatalf("opportunities = %d, want 2 after truncation", len(res.Opportunities))
	}
}

func TestNormalizeSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTC", "BTC"},
		{"btc", "BTC"},
		{"BTC-USD-PERP", "BTC"},
		{"BTC-PERP", "BTC"},
		{"BTC_USDC", "BTC"},
		{"ETHUSD", "ETH"},
		{"SOL_USDC_PER_9", "SOL"},
	}
	for _, c := range cases {
		if got := NormalizeSymbol(c.in); got != c.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func near(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
