package dynamic

import "sync/atomic"

// DelayIndicator records whether any remote execution has completed
// successfully during the life of this process.
//
// Until that happens, local branches start immediately; afterwards every
// newly launched local branch sleeps for the configured delay first, on the
// assumption that spawns are now likely to be remote cache hits and the
// local process spin-up would be wasted. The flag is monotonic: once set it
// is never reset, and it is shared across all concurrent races.
//
// This is a throughput heuristic, not a correctness mechanism; execution is
// correct with or without the delay.
type DelayIndicator struct {
	remoteCompleted atomic.Bool
}

// NewDelayIndicator returns an indicator in its initial (no delay) state.
// Construct one per process and share it across all coordinators.
func NewDelayIndicator() *DelayIndicator {
	return &DelayIndicator{}
}

// ShouldDelayLocal reports whether newly started local branches should sleep
// before doing real work.
func (d *DelayIndicator) ShouldDelayLocal() bool {
	return d.remoteCompleted.Load()
}

// MarkRemoteDone records that a remote execution completed successfully.
func (d *DelayIndicator) MarkRemoteDone() {
	d.remoteCompleted.Store(true)
}
