package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/model"
)

// DispatcherOptions tune message formatting and send pacing.
type DispatcherOptions struct {
	MaxMessageLen   int
	MinSendInterval time.Duration
}

// Dispatcher formats change events into alert messages and delivers them.
// Sends are serialized process-wide with a minimum inter-send delay so the
// notification channels stay under their rate limits.
type Dispatcher struct {
	notifiers []Notifier
	opts      DispatcherOptions
	logger    zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	lastSend time.Time
}

// NewDispatcher constructs a Dispatcher over the given channels.
func NewDispatcher(notifiers []Notifier, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.MaxMessageLen <= 0 {
		opts.MaxMessageLen = 4096
	}
	return &Dispatcher{
		notifiers: notifiers,
		opts:      opts,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		sleep:     sleepCtx,
	}
}

// Dispatch formats and delivers one message per pool per cycle. Delivery
// failures are logged, never returned: a broken channel must not stall the
// monitoring loop or other pools' alerts.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.ChangeEvent, snapshot model.PoolSnapshot) {
	if len(events) == 0 || len(d.notifiers) == 0 {
		return
	}

	message := renderMessage(events, snapshot)
	segments := splitMessage(message, d.opts.MaxMessageLen)

	for _, notifier := range d.notifiers {
		for i, segment := range segments {
			if err := d.send(ctx, notifier, segment); err != nil {
				d.logger.Error().Err(err).
					Str("channel", notifier.Name()).
					Str("pool", snapshot.PoolName).
					Int("segment", i+1).
					Int("segments", len(segments)).
					Msg("alert delivery failed")
				continue
			}
			d.logger.Info().
				Str("channel", notifier.Name()).
				Str("pool", snapshot.PoolName).
				Int("segment", i+1).
				Int("segments", len(segments)).
				Msg("alert delivered")
		}
	}
}

// send holds the dispatcher lock for the whole attempt: pacing and
// delivery are a single critical section so sends never interleave.
func (d *Dispatcher) send(ctx context.Context, notifier Notifier, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if wait := d.opts.MinSendInterval - time.Since(d.lastSend); wait > 0 {
		if err := d.sleep(ctx, wait); err != nil {
			return err
		}
	}
	d.lastSend = time.Now()

	return notifier.SendMessage(ctx, text)
}

func sleepCtx(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// renderMessage builds the per-pool alert text: the qualifying events
// first, then the full snapshot breakdown.
func renderMessage(events []model.ChangeEvent, snapshot model.PoolSnapshot) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[LP Alert] %s\n", snapshot.PoolName))
	builder.WriteString(fmt.Sprintf("Pool: %s\n", snapshot.PoolAddress))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", snapshot.SampledAt.UTC().Format(time.RFC3339)))

	for _, event := range events {
		builder.WriteString(renderEvent(event))
	}

	builder.WriteString(fmt.Sprintf("Pair: %s/%s\n", snapshot.Token0.Symbol, snapshot.Token1.Symbol))
	for _, position := range snapshot.Positions() {
		builder.WriteString(fmt.Sprintf("%s: %s @ $%s = $%s (%s%%)\n",
			position.Symbol,
			position.Amount.StringFixed(2),
			position.PriceUSD.StringFixed(4),
			position.ValueUSD.StringFixed(2),
			position.Share.Mul(decimal.NewFromInt(100)).StringFixed(1),
		))
	}
	builder.WriteString(fmt.Sprintf("TVL: $%s\n", snapshot.TVLUSD.StringFixed(2)))

	return builder.String()
}

func renderEvent(event model.ChangeEvent) string {
	label := "TVL"
	if event.Kind == model.ChangeTokenAmount {
		label = event.Symbol + " amount"
	}
	sign := ""
	if event.DeltaPct.Sign() > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s %s: %s%s%% (%s -> %s)\n",
		event.Severity,
		label,
		sign,
		event.DeltaPct.StringFixed(2),
		event.Previous.StringFixed(2),
		event.Current.StringFixed(2),
	)
}

// splitMessage cuts a message into segments no longer than maxLen, always
// at line boundaries. A single line longer than maxLen is kept whole: a
// token's line is never split across segments.
func splitMessage(message string, maxLen int) []string {
	if len(message) <= maxLen {
		return []string{message}
	}

	lines := strings.Split(strings.TrimRight(message, "\n"), "\n")
	var segments []string
	var current strings.Builder

	for _, line := range lines {
		needed := len(line) + 1
		if current.Len() > 0 && current.Len()+needed > maxLen {
			segments = append(segments, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}

	return segments
}
