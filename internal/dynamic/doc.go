// Package dynamic implements the racing execution coordinator.
//
// A spawn classified as dynamic is submitted to a local and a remote
// execution strategy at the same time, each running as an independent branch
// on a shared worker pool. The first branch to finish stops its sibling and
// must wait until the sibling's teardown has actually completed before its
// own result is returned. Exactly one branch contributes a result; a race in
// which both branches complete, or neither does, is a coordinator defect and
// aborts the build.
//
// The single-winner guarantee rests on a one-slot atomic arbiter: the first
// branch to compare-and-set its own mode into the cell gains the exclusive
// right to cancel the other. No locks are involved; every piece of state
// shared across branches is a single atomically updatable cell.
package dynamic
