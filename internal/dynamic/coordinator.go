package dynamic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dynexec/internal/spawn"
)

// Coordinator races spawns across local and remote strategies.
//
// It speeds up incremental builds without slowing down full builds: full
// builds get the throughput of remote execution, incremental builds get the
// latency of local execution, and for every spawn the first strategy to
// finish wins. Running everything locally and spilling over to remote when
// local resources run out would not work as well, because moving inputs and
// outputs over the network costs far more than the seconds saved by a local
// run.
type Coordinator struct {
	registry *Registry
	pool     *Pool
	delay    *DelayIndicator
	opts     Options
}

// NewCoordinator creates a coordinator using the given strategy registry,
// worker pool and process-wide delay indicator.
func NewCoordinator(registry *Registry, pool *Pool, delay *DelayIndicator, opts Options) (*Coordinator, error) {
	if registry == nil {
		return nil, fmt.Errorf("nil registry")
	}
	if pool == nil {
		return nil, fmt.Errorf("nil pool")
	}
	if delay == nil {
		return nil, fmt.Errorf("nil delay indicator")
	}
	return &Coordinator{registry: registry, pool: pool, delay: delay, opts: opts}, nil
}

// CanExec reports whether at least one strategy, local or remote, claims it
// can run the spawn.
func (c *Coordinator) CanExec(s *spawn.Spawn) bool {
	return c.registry.CanExec(s)
}

// Exec runs the spawn and returns the results of the single authoritative
// execution.
//
// Spawns restricted to one mode run directly on that mode's strategy, with
// no race and no arbiter. Dynamic spawns race both strategies; exactly one
// branch's results or execution error crosses this boundary, and the other
// branch is cancelled and fully torn down before Exec returns.
func (c *Coordinator) Exec(ctx context.Context, s *spawn.Spawn, ec *ExecContext) ([]*spawn.Result, error) {
	if err := verifyExecutionRequirements(c.opts, s); err != nil {
		return nil, err
	}

	policy := spawn.Classify(s)
	switch {
	case policy.CanRunLocallyOnly():
		return c.runLocally(ctx, s, ec, nil)
	case policy.CanRunRemotelyOnly():
		return c.runRemotely(ctx, s, ec, nil)
	}
	return c.execDynamic(ctx, s, ec)
}

func (c *Coordinator) execDynamic(ctx context.Context, s *spawn.Spawn, ec *ExecContext) ([]*spawn.Result, error) {
	log := ec.Log.With("race", uuid.NewString(), "mnemonic", s.Mnemonic)
	rec := ec.withLogger(log)

	arb := &arbiter{}
	local := newBranch(ctx, ModeLocal)
	remote := newBranch(ctx, ModeRemote)

	c.pool.Submit(func() {
		local.run(func(bctx context.Context) ([]*spawn.Result, error) {
			return c.runWrapped(bctx, local, rec, func(bctx context.Context, bec *ExecContext) ([]*spawn.Result, error) {
				if c.delay.ShouldDelayLocal() {
					c.opts.Metrics.observeDelayedLocalStart()
					select {
					case <-time.After(c.opts.LocalExecutionDelay):
					case <-bctx.Done():
						return nil, bctx.Err()
					}
				}
				return c.runLocally(bctx, s, bec, func() error {
					return stopBranch(remote, local, arb, rec, s, &c.opts)
				})
			})
		})
	})
	go watchSettled(local, remote)

	c.pool.Submit(func() {
		remote.run(func(bctx context.Context) ([]*spawn.Result, error) {
			return c.runWrapped(bctx, remote, rec, func(bctx context.Context, bec *ExecContext) ([]*spawn.Result, error) {
				results, err := c.runRemotely(bctx, s, bec, func() error {
					return stopBranch(local, remote, arb, rec, s, &c.opts)
				})
				if err != nil {
					return nil, err
				}
				c.delay.MarkRemoteDone()
				return results, nil
			})
		})
	})
	go watchSettled(remote, local)

	return c.waitBranches(ctx, local, remote, s, log)
}

// watchSettled is the aggregator-side completion listener for one branch:
// once the branch settles for any reason other than its own cancellation, it
// requests cancellation of the sibling. This is a secondary, best-effort
// teardown path; the arbiter dedupes it against the stops issued by the
// branches themselves.
func watchSettled(b, sibling *branch) {
	<-b.settled
	if b.currentState() != branchCancelled {
		sibling.requestCancel()
	}
}

// runWrapped executes body with branch-scoped stdout/stderr capture.
//
// The branch writes to files named after the canonical pair with the mode as
// suffix; on every exit path (result, execution error or cancellation
// unwinding) the files are closed and their content merged back onto the
// canonical pair. Merge failures are logged, never propagated. No branch
// output reaches the canonical files before the branch's own execution has
// completed.
func (c *Coordinator) runWrapped(bctx context.Context, b *branch, ec *ExecContext, body func(context.Context, *ExecContext) ([]*spawn.Result, error)) ([]*spawn.Result, error) {
	branchOutErr := ec.OutErr.WithSuffix("." + string(b.mode))
	defer func() {
		if cerr := branchOutErr.Close(); cerr != nil {
			ec.Log.Warn("could not close branch execution logs", "mode", b.mode, "err", cerr)
		}
		branchOutErr.MoveOnto(ec.OutErr, ec.Log)
	}()

	return body(bctx, ec.WithOutErr(branchOutErr))
}

// waitBranch blocks until the branch settles and returns its results, or nil
// if it was cancelled, or its execution error.
//
// A caller-level cancellation of ctx cancels the branch and propagates. A
// branch that failed with a race interrupt is reported as cancelled: if the
// interrupt had come from the caller, our own wait would have been cancelled
// too, so it can only be the sibling's stop request.
func (c *Coordinator) waitBranch(ctx context.Context, b *branch, s *spawn.Spawn, log *slog.Logger) ([]*spawn.Result, error) {
	select {
	case <-b.settled:
	case <-ctx.Done():
		b.requestCancel()
		return nil, ctx.Err()
	}

	if b.currentState() == branchCancelled {
		c.opts.Metrics.observeInterrupted(b.mode)
		log.Debug("branch lost the race", "mode", b.mode, "owner", s.Owner)
		return nil, nil
	}
	if b.err != nil {
		if isRaceInterrupt(b.err) {
			c.opts.Metrics.observeInterrupted(b.mode)
			log.Debug("branch interrupted by race", "mode", b.mode, "owner", s.Owner, "err", b.err)
			return nil, nil
		}
		return nil, b.err
	}
	return b.results, nil
}

// waitBranches waits for both branches to settle and returns the unique
// winner's results.
//
// Exactly one branch must yield results; the other must have been cancelled.
// Both branches completing, or neither while the caller's context is still
// live, means the strategies or the coordinator broke the protocol, and
// there is nothing sensible to return; these cases abort with a diagnostic
// rather than being swallowed.
func (c *Coordinator) waitBranches(ctx context.Context, local, remote *branch, s *spawn.Spawn, log *slog.Logger) ([]*spawn.Result, error) {
	localResults, err := c.waitBranch(ctx, local, s, log)
	if err != nil {
		remote.requestCancel()
		return nil, err
	}

	remoteResults, err := c.waitBranch(ctx, remote, s, log)
	if err != nil {
		return nil, err
	}

	switch {
	case localResults != nil && remoteResults != nil:
		panic(fmt.Sprintf("neither branch of %s cancelled the other one", s.Owner))
	case remoteResults != nil:
		c.opts.Metrics.observeWin(ModeRemote)
		return remoteResults, nil
	case localResults != nil:
		c.opts.Metrics.observeWin(ModeLocal)
		return localResults, nil
	default:
		// Caller interruption can settle both branches as cancelled before
		// either wait observes ctx, since the branch contexts are children
		// of the caller's. That is interruption, not a protocol violation.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		panic(fmt.Sprintf("neither branch of %s completed: local was %s, remote was %s",
			s.Owner, local.currentState(), remote.currentState()))
	}
}

// runLocally executes the spawn on the first willing local strategy and, if
// every result succeeded, runs the optional post-processing spawn. The extra
// spawn never races: when it starts, any remote branch has already been
// stopped.
func (c *Coordinator) runLocally(ctx context.Context, s *spawn.Spawn, ec *ExecContext, stop StopConcurrentSpawns) ([]*spawn.Result, error) {
	strategy, err := c.registry.resolve(ModeLocal, s)
	if err != nil {
		return nil, err
	}
	results, err := strategy.Exec(ctx, s, ec, stop)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.Success() {
			return results, nil
		}
	}
	if c.opts.PostProcessing == nil {
		return results, nil
	}
	extra, ok := c.opts.PostProcessing(s)
	if !ok {
		return results, nil
	}

	extraStrategy, err := c.registry.resolve(ModeLocal, extra)
	if err != nil {
		return nil, err
	}
	extraResults, err := extraStrategy.Exec(ctx, extra, ec, nil)
	if err != nil {
		return nil, err
	}

	combined := make([]*spawn.Result, 0, len(results)+len(extraResults))
	combined = append(combined, results...)
	return append(combined, extraResults...), nil
}

// runRemotely executes the spawn on the first willing remote strategy.
func (c *Coordinator) runRemotely(ctx context.Context, s *spawn.Spawn, ec *ExecContext, stop StopConcurrentSpawns) ([]*spawn.Result, error) {
	strategy, err := c.registry.resolve(ModeRemote, s)
	if err != nil {
		return nil, err
	}
	results, err := strategy.Exec(ctx, s, ec, stop)
	if err != nil {
		return nil, err
	}
	if results == nil {
		ec.Log.Warn("remote strategy returned no results", "mnemonic", s.Mnemonic, "owner", s.Owner)
		results = []*spawn.Result{}
	}
	return results, nil
}

// verifyExecutionRequirements rejects spawns whose execution requirements
// declare a platform constraint that was never validated. This catches
// spawns that would be scheduled onto an execution platform unable to run
// them, which surfaces as confusing downstream build failures.
func verifyExecutionRequirements(opts Options, s *spawn.Spawn) error {
	if !opts.RequireExecInfoValidation {
		return nil
	}
	for _, m := range opts.ExecInfoExemptMnemonics {
		if m == s.Mnemonic {
			return nil
		}
	}
	if s.HasExecRequirement(spawn.RequirementRequiresPlatform) && !s.HasExecRequirement(spawn.RequirementPlatformChecked) {
		return fmt.Errorf("spawn %s (mnemonic %s) declares %s but its platform constraint was never checked",
			s.Owner, s.Mnemonic, spawn.RequirementRequiresPlatform)
	}
	return nil
}
