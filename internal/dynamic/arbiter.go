package dynamic

import "sync/atomic"

// arbiter is the single-slot cell deciding which branch may cancel its
// sibling. It is written exactly once, via compare-and-set; once a mode has
// won it is never overwritten. Atomicity alone provides the total ordering
// over "who may cancel". No lock is involved, so two branches trying to
// cancel each other can never deadlock.
type arbiter struct {
	winner atomic.Int32
}

const (
	arbiterUnset int32 = iota
	arbiterLocal
	arbiterRemote
)

func arbiterCell(m Mode) int32 {
	if m == ModeLocal {
		return arbiterLocal
	}
	return arbiterRemote
}

// tryWin attempts to claim the exclusive right to cancel the sibling branch.
// It succeeds for exactly one mode per race.
func (a *arbiter) tryWin(m Mode) bool {
	return a.winner.CompareAndSwap(arbiterUnset, arbiterCell(m))
}

// winnerMode returns the mode that won the cancellation race, if any.
func (a *arbiter) winnerMode() (Mode, bool) {
	switch a.winner.Load() {
	case arbiterLocal:
		return ModeLocal, true
	case arbiterRemote:
		return ModeRemote, true
	default:
		return "", false
	}
}
