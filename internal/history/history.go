package history

import (
	"context"

	"lp-pool-watcher/internal/model"
)

// Recorder is an append-only sink for pool snapshots. Failures are
// reported to the caller but never fatal to a monitoring cycle.
type Recorder interface {
	Append(ctx context.Context, snapshot model.PoolSnapshot) error
}
