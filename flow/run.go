package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxSteps bounds a single Run. Pipelines terminate through state
// counters well before this; the limit only catches authoring mistakes.
const DefaultMaxSteps = 1000

// Compiled is a validated graph ready to execute.
type Compiled[S, U any] struct {
	graph    *Graph[S, U]
	maxSteps int
}

// WithMaxSteps overrides the executor's step safety valve.
func (c *Compiled[S, U]) WithMaxSteps(n int) *Compiled[S, U] {
	if n > 0 {
		c.maxSteps = n
	}
	return c
}

// Run executes the graph from its entry point until routing reaches End.
//
// Each iteration invokes the current step, merges its partial update into
// the state, then routes on the merged state. A step error stops execution
// immediately and is returned alongside the last merged state; the engine
// never retries a step.
func (c *Compiled[S, U]) Run(ctx context.Context, initial S) (S, error) {
	state := initial
	current := c.graph.entry

	for steps := 0; ; steps++ {
		if steps >= c.maxSteps {
			return state, fmt.Errorf("%w: %d steps from entry %q", ErrStepLimit, c.maxSteps, c.graph.entry)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node := c.graph.nodes[current]
		start := time.Now()
		update, err := node(ctx, state)
		if err != nil {
			return state, fmt.Errorf("step %q: %w", current, err)
		}
		state = c.graph.merge(state, update)
		slog.Debug("step completed", "step", current, "duration", time.Since(start))

		next, err := c.next(current, state)
		if err != nil {
			return state, err
		}
		if next == End {
			return state, nil
		}
		current = next
	}
}

// next resolves the transition out of a step against the post-merge state.
func (c *Compiled[S, U]) next(current string, state S) (string, error) {
	if to, ok := c.graph.edges[current]; ok {
		return to, nil
	}
	re := c.graph.routers[current]
	value := re.router.Route(state)
	to, ok := re.edges[value]
	if !ok {
		return "", fmt.Errorf("%w: router %q on step %q returned %q", ErrRouteOutsideDomain, re.router.Name, current, value)
	}
	slog.Debug("routed", "step", current, "router", re.router.Name, "value", value, "next", to)
	return to, nil
}
