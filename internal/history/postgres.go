package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"lp-pool-watcher/internal/config"
	"lp-pool-watcher/internal/model"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("history: pool not configured")

const (
	insertSnapshotSQL = `INSERT INTO pool_snapshots (
        pool_address,
        pool_name,
        sampled_at,
        token0_symbol,
        token0_amount,
        token0_price_usd,
        token1_symbol,
        token1_amount,
        token1_price_usd,
        tvl_usd,
        target_token
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    );`

	listRecentSnapshotsSQL = `SELECT
        pool_address,
        pool_name,
        sampled_at,
        token0_symbol,
        token0_amount,
        token0_price_usd,
        token1_symbol,
        token1_amount,
        token1_price_usd,
        tvl_usd,
        target_token
    FROM pool_snapshots
    ORDER BY sampled_at DESC
    LIMIT $1;`

	listSnapshotsBetweenSQL = `SELECT
        pool_address,
        pool_name,
        sampled_at,
        token0_symbol,
        token0_amount,
        token0_price_usd,
        token1_symbol,
        token1_amount,
        token1_price_usd,
        tvl_usd,
        target_token
    FROM pool_snapshots
    WHERE pool_address = $1
      AND sampled_at >= $2
      AND sampled_at < $3
    ORDER BY sampled_at;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM pool_snapshots;`

	schemaSQL = `CREATE TABLE IF NOT EXISTS pool_snapshots (
        id               BIGSERIAL PRIMARY KEY,
        pool_address     TEXT        NOT NULL,
        pool_name        TEXT        NOT NULL,
        sampled_at       TIMESTAMPTZ NOT NULL,
        token0_symbol    TEXT        NOT NULL,
        token0_amount    NUMERIC     NOT NULL,
        token0_price_usd NUMERIC     NOT NULL,
        token1_symbol    TEXT        NOT NULL,
        token1_amount    NUMERIC     NOT NULL,
        token1_price_usd NUMERIC     NOT NULL,
        tvl_usd          NUMERIC     NOT NULL,
        target_token     TEXT        NOT NULL
    );
    CREATE INDEX IF NOT EXISTS pool_snapshots_pool_time_idx
        ON pool_snapshots (pool_address, sampled_at);
    CREATE TABLE IF NOT EXISTS alerts (
        id             BIGSERIAL PRIMARY KEY,
        pool_address   TEXT        NOT NULL,
        pool_name      TEXT        NOT NULL,
        kind           TEXT        NOT NULL,
        symbol         TEXT        NOT NULL,
        previous_value NUMERIC     NOT NULL,
        current_value  NUMERIC     NOT NULL,
        delta_pct      NUMERIC     NOT NULL,
        severity       TEXT        NOT NULL,
        observed_at    TIMESTAMPTZ NOT NULL
    );`

	insertAlertSQL = `INSERT INTO alerts (
        pool_address,
        pool_name,
        kind,
        symbol,
        previous_value,
        current_value,
        delta_pct,
        severity,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`
)

// SnapshotStore extends the append-only recorder with the reads the show
// and export commands need.
type SnapshotStore interface {
	Recorder
	ListRecentSnapshots(ctx context.Context, limit int) ([]model.PoolSnapshot, error)
	ListSnapshotsBetween(ctx context.Context, poolAddress string, from, to time.Time) ([]model.PoolSnapshot, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// AlertStore records emitted change events for auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, event model.ChangeEvent) error
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.HistoryConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse history dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Store persists snapshots and alerts in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the snapshot and alert tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, schemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// Append persists one snapshot.
func (s *Store) Append(ctx context.Context, snapshot model.PoolSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertSnapshotSQL,
		snapshot.PoolAddress,
		snapshot.PoolName,
		snapshot.SampledAt,
		snapshot.Token0.Symbol,
		snapshot.Token0.Amount.String(),
		snapshot.Token0.PriceUSD.String(),
		snapshot.Token1.Symbol,
		snapshot.Token1.Amount.String(),
		snapshot.Token1.PriceUSD.String(),
		snapshot.TVLUSD.String(),
		snapshot.TargetToken,
	)
	if execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	return nil
}

// ListRecentSnapshots lists the most recent snapshots across all pools.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]model.PoolSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, limit)
}

// ListSnapshotsBetween lists one pool's snapshots within a time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, poolAddress string, from, to time.Time) ([]model.PoolSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, poolAddress, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows, 0)
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists one emitted change event.
func (s *Store) InsertAlert(ctx context.Context, event model.ChangeEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, insertAlertSQL,
		event.PoolAddress,
		event.PoolName,
		string(event.Kind),
		event.Symbol,
		event.Previous.String(),
		event.Current.String(),
		event.DeltaPct.String(),
		string(event.Severity),
		event.At,
	)
	if execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

func collectSnapshots(rows pgx.Rows, sizeHint int) ([]model.PoolSnapshot, error) {
	snapshots := make([]model.PoolSnapshot, 0, sizeHint)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanSnapshot(rows pgx.Rows) (model.PoolSnapshot, error) {
	var (
		snapshot                                     model.PoolSnapshot
		amount0Str, price0Str, amount1Str, price1Str string
		tvlStr                                       string
	)

	if err := rows.Scan(
		&snapshot.PoolAddress,
		&snapshot.PoolName,
		&snapshot.SampledAt,
		&snapshot.Token0.Symbol,
		&amount0Str,
		&price0Str,
		&snapshot.Token1.Symbol,
		&amount1Str,
		&price1Str,
		&tvlStr,
		&snapshot.TargetToken,
	); err != nil {
		return model.PoolSnapshot{}, err
	}

	var err error
	if snapshot.Token0.Amount, err = decimal.NewFromString(amount0Str); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse token0 amount: %w", err)
	}
	if snapshot.Token0.PriceUSD, err = decimal.NewFromString(price0Str); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse token0 price: %w", err)
	}
	if snapshot.Token1.Amount, err = decimal.NewFromString(amount1Str); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse token1 amount: %w", err)
	}
	if snapshot.Token1.PriceUSD, err = decimal.NewFromString(price1Str); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse token1 price: %w", err)
	}
	if snapshot.TVLUSD, err = decimal.NewFromString(tvlStr); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse tvl: %w", err)
	}

	snapshot.Token0.ValueUSD = snapshot.Token0.Amount.Mul(snapshot.Token0.PriceUSD)
	snapshot.Token1.ValueUSD = snapshot.Token1.Amount.Mul(snapshot.Token1.PriceUSD)
	if !snapshot.TVLUSD.IsZero() {
		snapshot.Token0.Share = snapshot.Token0.ValueUSD.Div(snapshot.TVLUSD)
		snapshot.Token1.Share = snapshot.Token1.ValueUSD.Div(snapshot.TVLUSD)
	}

	return snapshot, nil
}

var (
	_ SnapshotStore = (*Store)(nil)
	_ AlertStore    = (*Store)(nil)
)
