package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/model"
)

func testSnapshot(sampledAt time.Time) model.PoolSnapshot {
	return model.PoolSnapshot{
		PoolAddress: "0xabc",
		PoolName:    "cake-wbnb",
		Token0:      model.TokenPosition{Symbol: "CAKE", Amount: decimal.NewFromInt(25_000_000), PriceUSD: decimal.NewFromFloat(2.5)},
		Token1:      model.TokenPosition{Symbol: "WBNB", Amount: decimal.NewFromInt(100_000), PriceUSD: decimal.NewFromInt(500)},
		TVLUSD:      decimal.NewFromInt(112_500_000),
		TargetToken: "CAKE",
		SampledAt:   sampledAt,
	}
}

func TestFileRecorderAppendsDailyFiles(t *testing.T) {
	dir := t.TempDir()
	recorder := NewFileRecorder(dir)

	day1 := time.Date(2024, 5, 1, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2024, 5, 2, 0, 10, 0, 0, time.UTC)

	if err := recorder.Append(context.Background(), testSnapshot(day1)); err != nil {
		t.Fatalf("append day1: %v", err)
	}
	if err := recorder.Append(context.Background(), testSnapshot(day1.Add(time.Minute))); err != nil {
		t.Fatalf("append day1 again: %v", err)
	}
	if err := recorder.Append(context.Background(), testSnapshot(day2)); err != nil {
		t.Fatalf("append day2: %v", err)
	}

	first := filepath.Join(dir, "snapshots_20240501.jsonl")
	second := filepath.Join(dir, "snapshots_20240502.jsonl")

	if got := countLines(t, first); got != 2 {
		t.Fatalf("expected 2 lines in %s, got %d", first, got)
	}
	if got := countLines(t, second); got != 1 {
		t.Fatalf("expected 1 line in %s, got %d", second, got)
	}
}

func TestFileRecorderWritesDecodableJSON(t *testing.T) {
	dir := t.TempDir()
	recorder := NewFileRecorder(dir)

	sampledAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := recorder.Append(context.Background(), testSnapshot(sampledAt)); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "snapshots_20240501.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	var decoded model.PoolSnapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("line should decode back into a snapshot: %v", err)
	}
	if decoded.PoolAddress != "0xabc" {
		t.Fatalf("pool address wrong: %s", decoded.PoolAddress)
	}
	if !decoded.TVLUSD.Equal(decimal.NewFromInt(112_500_000)) {
		t.Fatalf("tvl wrong: %s", decoded.TVLUSD)
	}
}

func TestFileRecorderCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	recorder := NewFileRecorder(dir)

	if err := recorder.Append(context.Background(), testSnapshot(time.Now().UTC())); err != nil {
		t.Fatalf("append should create the directory: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("directory missing: %v", err)
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var lines int
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan %s: %v", path, err)
	}
	return lines
}
