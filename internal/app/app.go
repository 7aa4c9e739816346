package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lp-pool-watcher/internal/alerting"
	"lp-pool-watcher/internal/chain"
	"lp-pool-watcher/internal/config"
	"lp-pool-watcher/internal/history"
	"lp-pool-watcher/internal/pricing"
	"lp-pool-watcher/internal/sampler"
	"lp-pool-watcher/internal/scheduler"
	"lp-pool-watcher/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newResolver() *pricing.Resolver {
	primary := pricing.NewDexScreener(pricing.DexScreenerOptions{
		BaseURL:    a.Config.Pricing.DexScreenerURL,
		Timeout:    a.Config.Pricing.RequestTimeout,
		MaxRetries: a.Config.Pricing.MaxRetries,
		UserAgent:  a.Config.Pricing.UserAgent,
	}, a.Logger)

	secondary := pricing.NewCoinGecko(pricing.CoinGeckoOptions{
		BaseURL:    a.Config.Pricing.CoinGeckoURL,
		Timeout:    a.Config.Pricing.RequestTimeout,
		MaxRetries: a.Config.Pricing.MaxRetries,
		UserAgent:  a.Config.Pricing.UserAgent,
	}, a.Logger)

	return pricing.NewResolver(primary, secondary, pricing.ResolverOptions{
		TTL:         a.Config.PriceCache.TTL,
		IDForSymbol: a.Config.CoinGeckoID,
	}, a.Logger)
}

func (a *App) newSampler(resolver sampler.PriceResolver) (*sampler.Sampler, func()) {
	client := chain.NewClient(chain.Options{
		RPCURL:  a.Config.Network.RPCURL,
		Timeout: a.Config.Network.RequestTimeout,
	})
	reader := chain.NewReader(client, a.Logger)
	return sampler.New(reader, resolver, a.Logger), client.Close
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	var notifiers []alerting.Notifier

	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.RequestTimeout, a.Logger))
	}
	if a.Config.Alerting.Webhook.Enabled {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(a.Config.Alerting.Webhook.URL, a.Config.Alerting.RequestTimeout, a.Logger))
	}
	if len(notifiers) == 0 {
		return nil
	}

	return alerting.NewDispatcher(notifiers, alerting.DispatcherOptions{
		MaxMessageLen:   a.Config.Alerting.MaxMessageLen,
		MinSendInterval: a.Config.Alerting.MinSendInterval,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*history.Store, func(), error) {
	if a.Config.History.DSN == "" {
		return nil, nil, nil
	}

	pool, err := history.NewPool(ctx, a.Config.History)
	if err != nil {
		return nil, nil, err
	}

	store := history.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var recorders []history.Recorder
	var alertStore history.AlertStore
	if a.Config.History.Enabled && a.Config.History.Directory != "" {
		recorders = append(recorders, history.NewFileRecorder(a.Config.History.Directory))
	}
	if store != nil {
		recorders = append(recorders, store)
		alertStore = store
	}
	if len(recorders) == 0 {
		a.Logger.Warn().Msg("history disabled; snapshots will not be persisted")
	}

	sched := scheduler.New(scheduler.Options{
		Interval:       a.Config.Monitoring.Interval,
		AlignToStart:   a.Config.Monitoring.AlignToInterval,
		RunImmediately: true,
		StartupDelay:   a.Config.Monitoring.StartupDelay,
	}, a.Logger)

	resolver := a.newResolver()
	poolSampler, closeClient := a.newSampler(resolver)
	defer closeClient()

	dispatcher := a.newDispatcher()
	if a.Config.Alerting.Enabled && dispatcher == nil {
		a.Logger.Warn().Msg("alerting enabled but no channel configured")
	}

	var eventDispatcher service.EventDispatcher
	if dispatcher != nil {
		eventDispatcher = dispatcher
	}

	svc := service.New(a.Config, sched, poolSampler, resolver, eventDispatcher, recorders, alertStore, a.Logger)

	a.Logger.Info().
		Int("pools", len(a.Config.EnabledPools())).
		Dur("interval", a.Config.Monitoring.Interval).
		Msg("starting pool monitor")

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("pool monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical snapshots.
type ExportOptions struct {
	Pool      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
