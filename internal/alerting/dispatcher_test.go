package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/model"
)

type recordingNotifier struct {
	name string
	sent []string
	err  error
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) SendMessage(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

func testSnapshot() model.PoolSnapshot {
	amount0 := decimal.NewFromInt(25_000_000)
	price0 := decimal.NewFromFloat(2.5)
	amount1 := decimal.NewFromInt(100_000)
	price1 := decimal.NewFromInt(500)

	token0 := model.TokenPosition{Symbol: "CAKE", Amount: amount0, PriceUSD: price0, ValueUSD: amount0.Mul(price0)}
	token1 := model.TokenPosition{Symbol: "WBNB", Amount: amount1, PriceUSD: price1, ValueUSD: amount1.Mul(price1)}
	tvl := token0.ValueUSD.Add(token1.ValueUSD)
	token0.Share = token0.ValueUSD.Div(tvl)
	token1.Share = token1.ValueUSD.Div(tvl)

	return model.PoolSnapshot{
		PoolAddress: "0xabc",
		PoolName:    "cake-wbnb",
		Token0:      token0,
		Token1:      token1,
		TVLUSD:      tvl,
		TargetToken: "CAKE",
		SampledAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testEvents() []model.ChangeEvent {
	return []model.ChangeEvent{
		{
			PoolAddress: "0xabc",
			PoolName:    "cake-wbnb",
			Kind:        model.ChangeTVL,
			Previous:    decimal.NewFromInt(100_000_000),
			Current:     decimal.NewFromInt(112_500_000),
			DeltaPct:    decimal.NewFromFloat(12.5),
			Severity:    model.SeverityWarning,
		},
	}
}

func TestDispatchDeliversToAllChannels(t *testing.T) {
	first := &recordingNotifier{name: "telegram"}
	second := &recordingNotifier{name: "webhook"}
	dispatcher := NewDispatcher([]Notifier{first, second}, DispatcherOptions{}, testLogger())

	dispatcher.Dispatch(context.Background(), testEvents(), testSnapshot())

	if len(first.sent) != 1 || len(second.sent) != 1 {
		t.Fatalf("expected one message per channel, got %d and %d", len(first.sent), len(second.sent))
	}
	if !strings.Contains(first.sent[0], "WARNING") {
		t.Fatalf("message should carry severity: %q", first.sent[0])
	}
	if !strings.Contains(first.sent[0], "+12.50%") {
		t.Fatalf("message should carry signed delta: %q", first.sent[0])
	}
	if !strings.Contains(first.sent[0], "TVL") {
		t.Fatalf("message should name the metric: %q", first.sent[0])
	}
}

func TestDispatchNoEventsSendsNothing(t *testing.T) {
	notifier := &recordingNotifier{name: "telegram"}
	dispatcher := NewDispatcher([]Notifier{notifier}, DispatcherOptions{}, testLogger())

	dispatcher.Dispatch(context.Background(), nil, testSnapshot())

	if len(notifier.sent) != 0 {
		t.Fatalf("no events should produce no sends, got %d", len(notifier.sent))
	}
}

func TestDispatchFailureDoesNotBlockOtherChannels(t *testing.T) {
	broken := &recordingNotifier{name: "telegram", err: errors.New("bot revoked")}
	healthy := &recordingNotifier{name: "webhook"}
	dispatcher := NewDispatcher([]Notifier{broken, healthy}, DispatcherOptions{}, testLogger())

	dispatcher.Dispatch(context.Background(), testEvents(), testSnapshot())

	if len(healthy.sent) != 1 {
		t.Fatalf("healthy channel should still receive the alert, got %d", len(healthy.sent))
	}
}

func TestDispatchPacesConsecutiveSends(t *testing.T) {
	notifier := &recordingNotifier{name: "telegram"}
	dispatcher := NewDispatcher([]Notifier{notifier}, DispatcherOptions{MinSendInterval: time.Second}, testLogger())

	var waits []time.Duration
	dispatcher.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	dispatcher.Dispatch(context.Background(), testEvents(), testSnapshot())
	dispatcher.Dispatch(context.Background(), testEvents(), testSnapshot())

	if len(notifier.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(notifier.sent))
	}
	if len(waits) != 1 {
		t.Fatalf("second send should have waited exactly once, got %d waits", len(waits))
	}
	if waits[0] <= 0 || waits[0] > time.Second {
		t.Fatalf("wait should be within the configured interval, got %v", waits[0])
	}
}

func TestSplitMessageShortPassthrough(t *testing.T) {
	segments := splitMessage("one line\n", 100)
	if len(segments) != 1 {
		t.Fatalf("short message should stay whole, got %d segments", len(segments))
	}
}

func TestSplitMessageCutsAtLineBoundaries(t *testing.T) {
	var builder strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&builder, "line number %02d with some padding text\n", i)
	}
	message := builder.String()

	segments := splitMessage(message, 200)
	if len(segments) < 2 {
		t.Fatalf("long message should split, got %d segments", len(segments))
	}

	for i, segment := range segments {
		if len(segment) > 200 {
			t.Fatalf("segment %d exceeds limit: %d chars", i, len(segment))
		}
		if !strings.HasSuffix(segment, "\n") {
			t.Fatalf("segment %d does not end at a line boundary", i)
		}
	}

	joined := strings.Join(segments, "")
	if joined != message {
		t.Fatal("segments should reassemble into the original message")
	}
}

func TestSplitMessageKeepsOversizedLineWhole(t *testing.T) {
	long := strings.Repeat("x", 500)
	message := "short\n" + long + "\nshort again\n"

	segments := splitMessage(message, 100)
	found := false
	for _, segment := range segments {
		if strings.Contains(segment, long) {
			found = true
		}
		if strings.Contains(segment, "x") && strings.Count(segment, "x") != 500 {
			t.Fatal("oversized line must never be split across segments")
		}
	}
	if !found {
		t.Fatal("oversized line missing from output")
	}
}
