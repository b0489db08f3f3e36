package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/fundingbot/internal/cache/redis"
	"github.com/alanyoungcy/fundingbot/internal/config"
	"github.com/alanyoungcy/fundingbot/internal/domain"
	"github.com/alanyoungcy/fundingbot/internal/notify"
	"github.com/alanyoungcy/fundingbot/internal/store/postgres"
	"github.com/alanyoungcy/fundingbot/internal/venue"
	"github.com/alanyoungcy/fundingbot/internal/venue/paper"
)

// eventsChannel is the Redis Pub/Sub channel carrying serialized strategy
// events for out-of-process consumers.
const eventsChannel = "strategy.events"

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	StrategyStore domain.StrategyStore // nil unless postgres is enabled
	SnapshotCache domain.SnapshotCache // nil unless redis is enabled
	RateLimiter   domain.RateLimiter   // nil unless redis is enabled
	EventBus      domain.EventBus      // nil unless redis is enabled

	Notifier *notify.Notifier
	// Events fans strategy events out to the notifier and, when Redis is
	// wired, the event bus.
	Events domain.EventSink
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL: terminal strategy records ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.StrategyStore = postgres.NewStrategyStore(pgClient.Pool())
	}

	// --- Redis: snapshot cache, rate limiting, event bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	sinks := domain.MultiSink{deps.Notifier}
	if deps.EventBus != nil {
		sinks = append(sinks, busSink(deps.EventBus, logger))
	}
	deps.Events = sinks

	return deps, cleanup, nil
}

// busSink adapts the event bus to the EventSink interface. Delivery is
// asynchronous so Redis latency never touches the supervisor cycle.
func busSink(bus domain.EventBus, logger *slog.Logger) domain.EventSink {
	return domain.EventSinkFunc(func(ev domain.StrategyEvent) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error("event marshal failed", slog.String("error", err.Error()))
				return
			}
			if err := bus.Publish(ctx, eventsChannel, payload); err != nil {
				logger.Warn("event bus publish failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}()
	})
}

// buildGateways resolves the venue gateway set for the selected mode. Paper
// mode constructs simulated venues; every other mode uses the gateways
// supplied via WithGateways, filtered to enabled venues and wrapped with the
// shared rate limiter when Redis is wired.
func (a *App) buildGateways(mode string, deps *Dependencies) (map[string]domain.VenueGateway, error) {
	if mode == "paper" {
		return paperGateways(), nil
	}

	out := make(map[string]domain.VenueGateway)
	for name, vcfg := range a.cfg.Venues {
		if !vcfg.Enabled {
			continue
		}
		gw, ok := a.gateways[name]
		if !ok {
			return nil, fmt.Errorf("venue %s is enabled but no gateway was supplied", name)
		}
		if deps.RateLimiter != nil && vcfg.RateLimit > 0 {
			gw = venue.NewRateLimited(gw, deps.RateLimiter, vcfg.RateLimit)
		}
		out[name] = gw
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("mode %s requires at least two enabled venues with gateways, got %d", mode, len(out))
	}
	return out, nil
}

// paperGateways seeds two simulated venues with a small symbol universe whose
// funding rates disagree, so the full scan/execute/monitor loop runs without
// touching any real venue.
func paperGateways() map[string]domain.VenueGateway {
	alpha := paper.New("paper_alpha", 10_000, []paper.Quote{
		{Symbol: "BTC", Rate1hPct: 0.0125, MarkPrice: 64_000, MaxLeverage: 20},
		{Symbol: "ETH", Rate1hPct: 0.0080, MarkPrice: 3_200, MaxLeverage: 20},
		{Symbol: "SOL", Rate1hPct: -0.0040, MarkPrice: 150, MaxLeverage: 10},
	})
	beta := paper.New("paper_beta", 10_000, []paper.Quote{
		{Symbol: "BTC", Rate1hPct: -0.0210, MarkPrice: 64_010, MaxLeverage: 25},
		{Symbol: "ETH", Rate1hPct: 0.0015, MarkPrice: 3_201, MaxLeverage: 15},
		{Symbol: "SOL", Rate1hPct: 0.0060, MarkPrice: 150.1, MaxLeverage: 10},
	})
	return map[string]domain.VenueGateway{
		alpha.Name(): alpha,
		beta.Name():  beta,
	}
}
