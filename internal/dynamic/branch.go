package dynamic

import (
	"context"
	"sync"
	"sync/atomic"

	"dynexec/internal/spawn"
)

// branchState is the lifecycle state of one racing branch.
//
// Valid transitions:
//
//	NOT_STARTED -> RUNNING -> {SUCCEEDED, FAILED, CANCELLED}
//	NOT_STARTED -> CANCELLED
//
// No transition leaves a terminal state.
type branchState int32

const (
	branchNotStarted branchState = iota
	branchRunning
	branchSucceeded
	branchFailed
	branchCancelled
)

func (s branchState) String() string {
	switch s {
	case branchNotStarted:
		return "NOT_STARTED"
	case branchRunning:
		return "RUNNING"
	case branchSucceeded:
		return "SUCCEEDED"
	case branchFailed:
		return "FAILED"
	case branchCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s branchState) terminal() bool {
	return s == branchSucceeded || s == branchFailed || s == branchCancelled
}

// branch is one side of a dynamic execution race. It is owned exclusively by
// the coordinator for the lifetime of a single spawn execution.
//
// A branch exposes two distinct completion signals, and keeping them apart
// is what makes the race sound:
//
//   - done is the teardown acknowledgement: it is released only once the
//     branch body has fully unwound, including output merge, or once the
//     branch has been cancelled before it ever started. The sibling's stop
//     protocol blocks on done to turn "cancellation requested" into
//     "teardown confirmed".
//   - settled is the result signal: it is closed once the branch's results
//     and error are recorded and its state is terminal. The aggregator
//     blocks on settled.
type branch struct {
	mode   Mode
	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	doneOnce sync.Once
	done     chan struct{}

	settleOnce sync.Once
	settled    chan struct{}

	// results and err are written once, before settled closes, and read
	// only after settled closes.
	results []*spawn.Result
	err     error
}

func newBranch(parent context.Context, mode Mode) *branch {
	ctx, cancel := context.WithCancel(parent)
	return &branch{
		mode:    mode,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		settled: make(chan struct{}),
	}
}

func (b *branch) currentState() branchState {
	return branchState(b.state.Load())
}

func (b *branch) tryTransition(from, to branchState) bool {
	return b.state.CompareAndSwap(int32(from), int32(to))
}

// releaseDone acknowledges teardown. Safe to call more than once; only the
// first call has an effect.
func (b *branch) releaseDone() {
	b.doneOnce.Do(func() { close(b.done) })
}

func (b *branch) settleResult(results []*spawn.Result, err error) {
	b.settleOnce.Do(func() {
		b.results = results
		b.err = err
		close(b.settled)
	})
}

// requestCancel asks the branch to stop. It cancels the branch context and,
// if the branch body has not begun, settles the branch as cancelled on its
// behalf so that waiters are not stuck behind a body that may never run on a
// saturated pool.
//
// It reports false when the branch had already finished in a state other
// than cancelled, meaning the cancellation could not take effect.
func (b *branch) requestCancel() bool {
	b.cancel()
	if b.tryTransition(branchNotStarted, branchCancelled) {
		// The body never ran, so its own teardown release will never
		// happen. Release on its behalf.
		b.releaseDone()
		b.settleResult(nil, interruptedf(b.mode, "%s strategy cancelled before starting", b.mode))
	}
	st := b.currentState()
	return st == branchRunning || st == branchCancelled
}

// run executes the branch body on the calling goroutine, driving the state
// machine and releasing both completion signals on every exit path.
//
// The body receives the branch context and must return either the spawn
// results or the error that terminated it. A race-interrupt error settles
// the branch as cancelled rather than failed.
func (b *branch) run(body func(ctx context.Context) ([]*spawn.Result, error)) {
	if !b.tryTransition(branchNotStarted, branchRunning) {
		// Cancelled before starting; requestCancel already settled us.
		return
	}

	var (
		results []*spawn.Result
		err     error
	)
	defer func() {
		switch {
		case err == nil:
			b.tryTransition(branchRunning, branchSucceeded)
		case isRaceInterrupt(err):
			b.tryTransition(branchRunning, branchCancelled)
		default:
			b.tryTransition(branchRunning, branchFailed)
		}
		// Teardown is acknowledged before the result is published so the
		// winning sibling, blocked in stopBranch, can only resume once
		// this branch has fully unwound.
		b.releaseDone()
		b.settleResult(results, err)
	}()

	results, err = body(b.ctx)
}
