package dynamic

import (
	"fmt"

	"dynexec/internal/spawn"
)

// stopBranch cancels the sibling branch and waits for it to terminate.
//
// This is the body of the StopConcurrentSpawns callback passed to racing
// strategies. Each mode may call it at most once per race; a second call
// from the same mode is a coordinator defect and panics.
//
// The steps, in order:
//
//  1. If the calling branch has itself been cancelled already, it lost a
//     race it should not still be running in; raise an interrupted error so
//     it unwinds without emitting a result. This can be observed even
//     though the caller was never interrupted mid-call, so it is kept as a
//     defensive check rather than assumed impossible.
//  2. Claim the arbiter. Losing the claim means the sibling finished first;
//     raise an interrupted error.
//  3. Request cancellation of the sibling. If the request cannot take
//     effect and the sibling is not already cancelled, it must have
//     produced a result through another path (e.g. an uninterruptible
//     execution mode); raise an interrupted error.
//  4. Block until the sibling's teardown is acknowledged. Only then may the
//     caller finalize its own success: this converts "cancellation
//     requested" into "teardown confirmed". The wait is bounded because a
//     branch releases its teardown signal on every exit path, including
//     cancellation before start.
func stopBranch(toCancel, self *branch, arb *arbiter, ec *ExecContext, s *spawn.Spawn, opts *Options) error {
	if self.ctx.Err() != nil || self.currentState() == branchCancelled {
		return interruptedf(self.mode,
			"execution of %s strategy stopped because it was cancelled but not interrupted", self.mode)
	}

	// For a given mode this function is never called concurrently, so the
	// unsynchronized read before the compare-and-set is sound.
	if winner, ok := arb.winnerMode(); ok && winner == self.mode {
		panic(fmt.Sprintf("stopBranch called more than once by %s strategy for %s", self.mode, s.Owner))
	}

	if !arb.tryWin(self.mode) {
		winner, _ := arb.winnerMode()
		return interruptedf(self.mode,
			"execution of %s strategy stopped because %s strategy finished first", self.mode, winner)
	}

	if opts.DebugSpawnScheduler {
		ec.Log.Info("action finished", "mnemonic", s.Mnemonic, "strategy", self.mode)
	}

	if !toCancel.requestCancel() {
		if toCancel.currentState() != branchCancelled {
			return interruptedf(self.mode,
				"execution of %s strategy stopped because %s strategy could not be cancelled",
				self.mode, self.mode.Other())
		}
	}

	<-toCancel.done
	return nil
}
