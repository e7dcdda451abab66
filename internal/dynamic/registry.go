package dynamic

import (
	"context"
	"fmt"

	"dynexec/internal/spawn"
)

// StopConcurrentSpawns is the callback a racing strategy must invoke once
// its execution has completed, before it finalizes its result. It stops the
// sibling branch and waits for its teardown. A nil callback means the
// strategy is not racing. A non-nil error from the callback is fatal to the
// invoking strategy: it lost the race and must return the error unchanged,
// without emitting a result.
type StopConcurrentSpawns func() error

// Strategy is an execution backend capable of running spawns.
//
// Exec must honor context cancellation promptly: a cancelled strategy has to
// tear down whatever process or request it started and return. A strategy
// that cannot be interrupted must still eventually reach a terminal state,
// or it stalls the whole race.
type Strategy interface {
	// CanExec reports whether this strategy is able to run the spawn.
	CanExec(s *spawn.Spawn) bool

	// Exec runs the spawn, writing its output through ec.OutErr.
	Exec(ctx context.Context, s *spawn.Spawn, ec *ExecContext, stop StopConcurrentSpawns) ([]*spawn.Result, error)
}

// Registry holds the strategies registered for each dynamic mode, in
// registration order.
type Registry struct {
	strategies map[Mode][]Strategy
}

// NewRegistry returns an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[Mode][]Strategy)}
}

// Register appends strategies to the list for the given mode.
func (r *Registry) Register(mode Mode, strategies ...Strategy) {
	r.strategies[mode] = append(r.strategies[mode], strategies...)
}

// resolve returns the first registered strategy for mode willing to run s.
func (r *Registry) resolve(mode Mode, s *spawn.Spawn) (Strategy, error) {
	for _, st := range r.strategies[mode] {
		if st.CanExec(s) {
			return st, nil
		}
	}
	return nil, fmt.Errorf("no %s strategy registered that can execute %s", mode, s.Mnemonic)
}

// CanExec reports whether at least one registered strategy, on either mode,
// claims it can run the spawn.
func (r *Registry) CanExec(s *spawn.Spawn) bool {
	for _, mode := range []Mode{ModeLocal, ModeRemote} {
		for _, st := range r.strategies[mode] {
			if st.CanExec(s) {
				return true
			}
		}
	}
	return false
}
