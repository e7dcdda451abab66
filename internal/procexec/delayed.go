package procexec

import (
	"context"
	"time"

	"dynexec/internal/dynamic"
	"dynexec/internal/spawn"
)

// Delayed wraps a strategy with a fixed startup latency. The driver binary
// registers it as the remote side of the race, standing in for a real remote
// executor's round-trip time.
type Delayed struct {
	Inner   dynamic.Strategy
	Latency time.Duration
	Runner  string
}

// NewDelayed wraps inner with the given latency.
func NewDelayed(inner dynamic.Strategy, latency time.Duration) *Delayed {
	return &Delayed{Inner: inner, Latency: latency, Runner: "simulated-remote"}
}

// CanExec defers to the wrapped strategy.
func (d *Delayed) CanExec(sp *spawn.Spawn) bool {
	return d.Inner.CanExec(sp)
}

// Exec sleeps for the configured latency, honoring cancellation, then runs
// the wrapped strategy.
func (d *Delayed) Exec(ctx context.Context, sp *spawn.Spawn, ec *dynamic.ExecContext, stop dynamic.StopConcurrentSpawns) ([]*spawn.Result, error) {
	if d.Latency > 0 {
		select {
		case <-time.After(d.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	results, err := d.Inner.Exec(ctx, sp, ec, stop)
	if err != nil {
		return nil, err
	}
	relabeled := make([]*spawn.Result, 0, len(results))
	for _, r := range results {
		cp := *r
		cp.Runner = d.Runner
		relabeled = append(relabeled, &cp)
	}
	return relabeled, nil
}
