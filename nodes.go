package factoryflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/factoryflow/flow"
)

// NodeFunc is the step signature every pipeline node implements. It is
// flow.NodeFunc specialized to the pipeline's state and update types.
type NodeFunc = flow.NodeFunc[State, Update]

// =============================================================================
// Node Wrappers
// =============================================================================

// WithRetry wraps a node with retry logic for transient failures. Modeled
// failures land in the state, not the error, so only defects are retried.
func WithRetry(node NodeFunc, maxRetries int) NodeFunc {
	return func(ctx context.Context, s State) (Update, error) {
		var lastErr error
		for i := 0; i < maxRetries; i++ {
			u, err := node(ctx, s)
			if err == nil {
				return u, nil
			}
			if ctx.Err() != nil {
				return Update{}, err
			}
			lastErr = err
		}
		return Update{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
	}
}

// WithTiming wraps a node with duration logging.
func WithTiming(name string, node NodeFunc) NodeFunc {
	return func(ctx context.Context, s State) (Update, error) {
		start := time.Now()
		u, err := node(ctx, s)
		slog.Debug("node execution completed",
			"node", name, "runId", s.RunID, "duration", time.Since(start), "error", err)
		return u, err
	}
}
