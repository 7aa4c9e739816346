package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"lp-pool-watcher/internal/config"
	"lp-pool-watcher/internal/detector"
	"lp-pool-watcher/internal/history"
	"lp-pool-watcher/internal/model"
	"lp-pool-watcher/internal/pricing"
	"lp-pool-watcher/internal/scheduler"
)

// PoolSampler produces one snapshot per pool per cycle.
type PoolSampler interface {
	Sample(ctx context.Context, pool config.Pool) (model.PoolSnapshot, error)
}

// EventDispatcher delivers qualifying change events.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []model.ChangeEvent, snapshot model.PoolSnapshot)
}

// SymbolPreloader warms the price cache for a set of symbols.
type SymbolPreloader interface {
	ResolveAll(ctx context.Context, symbols []string) map[string]pricing.TokenPrice
}

// Service orchestrates sampling, change detection, alerting, and history.
type Service struct {
	scheduler  *scheduler.Scheduler
	sampler    PoolSampler
	preloader  SymbolPreloader
	dispatcher EventDispatcher
	recorders  []history.Recorder
	alertStore history.AlertStore
	logger     zerolog.Logger

	pools      []config.Pool
	thresholds detector.Thresholds
	alertsOn   bool

	// previous snapshots keyed by lowercase pool address. Only replaced
	// after a pool's cycle fully succeeds, so a failed read compares
	// against the last good state next time.
	previous map[string]*model.PoolSnapshot
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, poolSampler PoolSampler, preloader SymbolPreloader, dispatcher EventDispatcher, recorders []history.Recorder, alertStore history.AlertStore, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:  sched,
		sampler:    poolSampler,
		preloader:  preloader,
		dispatcher: dispatcher,
		recorders:  recorders,
		alertStore: alertStore,
		logger:     logger.With().Str("component", "service").Logger(),
		pools:      cfg.EnabledPools(),
		thresholds: detector.NewThresholds(cfg.Monitoring.ThresholdPct, cfg.Monitoring.WarningMultiplier, cfg.Monitoring.CriticalMultiplier),
		alertsOn:   cfg.Alerting.Enabled,
		previous:   make(map[string]*model.PoolSnapshot),
	}
}

// Run begins the periodic monitoring loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

type sampleResult struct {
	pool     config.Pool
	snapshot model.PoolSnapshot
	err      error
}

// ProcessCycle samples every enabled pool concurrently and processes the
// results one at a time. A pool that fails is logged and skipped; its
// previous snapshot stays untouched so the next successful sample is
// compared against the last good state.
func (s *Service) ProcessCycle(ctx context.Context, cycle time.Time) error {
	if len(s.pools) == 0 {
		s.logger.Debug().Msg("no enabled pools configured")
		return nil
	}

	s.preloadPrices(ctx)

	results := make(chan sampleResult, len(s.pools))
	var wg sync.WaitGroup
	for _, pool := range s.pools {
		wg.Add(1)
		go func(pool config.Pool) {
			defer wg.Done()
			snapshot, err := s.sampler.Sample(ctx, pool)
			results <- sampleResult{pool: pool, snapshot: snapshot, err: err}
		}(pool)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var sampled, failed int
	for result := range results {
		if result.err != nil {
			failed++
			s.logger.Error().Err(result.err).
				Str("pool", result.pool.Name).
				Str("address", result.pool.Address).
				Msg("pool sampling failed, keeping previous state")
			continue
		}
		sampled++
		s.handleSnapshot(ctx, result.pool, result.snapshot)
	}

	s.logger.Info().Time("cycle", cycle).
		Int("sampled", sampled).
		Int("failed", failed).
		Msg("cycle complete")

	return nil
}

// handleSnapshot runs detection, alerting, and persistence for one pool.
// Runs on the single consumer goroutine, which is the only writer of the
// previous-snapshot map.
func (s *Service) handleSnapshot(ctx context.Context, pool config.Pool, snapshot model.PoolSnapshot) {
	key := strings.ToLower(pool.Address)
	events := detector.Detect(s.previous[key], snapshot, s.thresholds)

	if len(events) > 0 {
		s.logger.Info().
			Str("pool", pool.Name).
			Int("events", len(events)).
			Msg("significant change detected")

		s.recordAlerts(ctx, events)
		if s.alertsOn && s.dispatcher != nil {
			s.dispatcher.Dispatch(ctx, events, snapshot)
		}
	}

	for _, recorder := range s.recorders {
		if err := recorder.Append(ctx, snapshot); err != nil {
			s.logger.Error().Err(err).
				Str("pool", pool.Name).
				Msg("failed to persist snapshot")
		}
	}

	current := snapshot
	s.previous[key] = &current
}

func (s *Service) recordAlerts(ctx context.Context, events []model.ChangeEvent) {
	if s.alertStore == nil {
		return
	}
	for _, event := range events {
		if err := s.alertStore.InsertAlert(ctx, event); err != nil {
			s.logger.Error().Err(err).
				Str("pool", event.PoolName).
				Str("kind", string(event.Kind)).
				Msg("failed to persist alert record")
		}
	}
}

// preloadPrices warms the cache with every symbol the cycle is likely to
// need: configured target tokens plus both sides of previously observed
// pairs. Pools observed for the first time resolve their counterpart
// symbol lazily inside the sampler.
func (s *Service) preloadPrices(ctx context.Context) {
	if s.preloader == nil {
		return
	}

	symbols := make([]string, 0, len(s.pools)+2*len(s.previous))
	for _, pool := range s.pools {
		symbols = append(symbols, pool.TargetToken)
	}
	for _, snapshot := range s.previous {
		symbols = append(symbols, snapshot.Token0.Symbol, snapshot.Token1.Symbol)
	}

	symbols = lo.Uniq(lo.Map(symbols, func(symbol string, _ int) string {
		return strings.ToUpper(symbol)
	}))

	s.preloader.ResolveAll(ctx, symbols)
}
