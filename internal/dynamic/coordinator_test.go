package dynamic

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dynexec/internal/spawn"
)

// fakeStrategy is a scriptable strategy recording how it was driven.
type fakeStrategy struct {
	// delay before the strategy "completes".
	delay time.Duration
	// results/err returned on completion.
	results []*spawn.Result
	err     error
	// skipStop completes without invoking the stop callback, simulating a
	// strategy that breaks the racing contract.
	skipStop bool
	// gate, when non-nil, blocks completion until the channel is closed.
	gate chan struct{}

	calls     atomic.Int32
	cancelled atomic.Int32
	stopLost  atomic.Int32
}

func (f *fakeStrategy) CanExec(*spawn.Spawn) bool { return true }

func (f *fakeStrategy) Exec(ctx context.Context, s *spawn.Spawn, ec *ExecContext, stop StopConcurrentSpawns) ([]*spawn.Result, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.cancelled.Add(1)
			return nil, ctx.Err()
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	if stop != nil && !f.skipStop {
		if err := stop(); err != nil {
			f.stopLost.Add(1)
			return nil, err
		}
	}
	return f.results, nil
}

func successResults(runner string) []*spawn.Result {
	return []*spawn.Result{{Status: spawn.StatusSuccess, Runner: runner}}
}

type raceFixture struct {
	coord  *Coordinator
	delay  *DelayIndicator
	local  *fakeStrategy
	remote *fakeStrategy
}

func newRaceFixture(t *testing.T, local, remote *fakeStrategy, opts Options) *raceFixture {
	t.Helper()
	pool, err := NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	registry := NewRegistry()
	registry.Register(ModeLocal, local)
	registry.Register(ModeRemote, remote)

	delay := NewDelayIndicator()
	coord, err := NewCoordinator(registry, pool, delay, opts)
	require.NoError(t, err)
	return &raceFixture{coord: coord, delay: delay, local: local, remote: remote}
}

func dynamicSpawn() *spawn.Spawn {
	return spawn.New("Compile", []string{"cc", "in.c"}, nil, []string{"in.c"}, []string{"out.o"}, nil, "//pkg:out.o")
}

func TestExec_Dynamic_RemoteWins(t *testing.T) {
	local := &fakeStrategy{delay: 500 * time.Millisecond, results: successResults("local")}
	remote := &fakeStrategy{delay: 10 * time.Millisecond, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	results, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "remote", results[0].Runner)

	assert.EqualValues(t, 1, local.calls.Load())
	assert.EqualValues(t, 1, local.cancelled.Load(), "local strategy must observe the cancellation")
	assert.EqualValues(t, 0, remote.cancelled.Load())
}

func TestExec_Dynamic_LocalWins(t *testing.T) {
	local := &fakeStrategy{delay: 10 * time.Millisecond, results: successResults("local")}
	remote := &fakeStrategy{delay: 500 * time.Millisecond, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	results, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "local", results[0].Runner)

	assert.EqualValues(t, 1, remote.cancelled.Load())
	assert.False(t, fx.delay.ShouldDelayLocal(), "a local win must not set the delay indicator")
}

func TestExec_Dynamic_RemoteWinSetsDelayIndicator(t *testing.T) {
	local := &fakeStrategy{delay: 500 * time.Millisecond, results: successResults("local")}
	remote := &fakeStrategy{results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	_, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.NoError(t, err)
	assert.True(t, fx.delay.ShouldDelayLocal())
}

func TestExec_Dynamic_LocalFailureCancelsRemoteAndPropagates(t *testing.T) {
	boom := errors.New("compiler exploded")
	local := &fakeStrategy{err: boom}
	remote := &fakeStrategy{delay: 500 * time.Millisecond, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	_, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.ErrorIs(t, err, boom)

	assert.Eventually(t, func() bool {
		return remote.cancelled.Load() == 1
	}, 5*time.Second, 10*time.Millisecond, "remote must be cancelled before its success path completes")
}

func TestExec_Dynamic_BothFinishers_SecondLosesArbiter(t *testing.T) {
	// Both strategies complete at nearly the same time; whichever claims
	// the arbiter second must unwind without a result.
	local := &fakeStrategy{delay: 20 * time.Millisecond, results: successResults("local")}
	remote := &fakeStrategy{delay: 20 * time.Millisecond, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	results, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, []string{"local", "remote"}, results[0].Runner)
}

func TestExec_LocalOnly_NeverLaunchesRemote(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil,
		map[string]string{spawn.RequirementNoRemote: ""}, "//pkg:o")
	results, err := fx.coord.Exec(context.Background(), s, testExecContext(t))
	require.NoError(t, err)
	assert.Equal(t, "local", results[0].Runner)
	assert.EqualValues(t, 0, remote.calls.Load())
}

func TestExec_RemoteOnly_NeverLaunchesLocal(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil,
		map[string]string{spawn.RequirementNoLocal: ""}, "//pkg:o")
	results, err := fx.coord.Exec(context.Background(), s, testExecContext(t))
	require.NoError(t, err)
	assert.Equal(t, "remote", results[0].Runner)
	assert.EqualValues(t, 0, local.calls.Load())
}

func TestExec_DelayedLocalStart_CancelledBeforeBackendRuns(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{delay: 10 * time.Millisecond, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{LocalExecutionDelay: 2 * time.Second})

	// A remote execution has already completed earlier in the process.
	fx.delay.MarkRemoteDone()

	results, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.NoError(t, err)
	assert.Equal(t, "remote", results[0].Runner)
	assert.EqualValues(t, 0, local.calls.Load(),
		"the local backend must never run when cancelled during the delay sleep")
}

func TestExec_PostProcessing_RunsAfterLocalSuccess(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{
		PostProcessing: func(s *spawn.Spawn) (*spawn.Spawn, bool) {
			extra := spawn.New("PostProcess", []string{"strip"}, nil, nil, nil, nil, s.Owner)
			return extra, true
		},
	})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil,
		map[string]string{spawn.RequirementNoRemote: ""}, "//pkg:o")
	results, err := fx.coord.Exec(context.Background(), s, testExecContext(t))
	require.NoError(t, err)
	assert.Len(t, results, 2, "post-processing results are appended")
	assert.EqualValues(t, 2, local.calls.Load())
}

func TestExec_PostProcessing_SkippedWhenExecutionFailed(t *testing.T) {
	local := &fakeStrategy{results: []*spawn.Result{{Status: spawn.StatusNonZeroExit, ExitCode: 1, Runner: "local"}}}
	remote := &fakeStrategy{results: successResults("remote")}
	called := false
	fx := newRaceFixture(t, local, remote, Options{
		PostProcessing: func(s *spawn.Spawn) (*spawn.Spawn, bool) {
			called = true
			return nil, false
		},
	})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil,
		map[string]string{spawn.RequirementNoRemote: ""}, "//pkg:o")
	results, err := fx.coord.Exec(context.Background(), s, testExecContext(t))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.False(t, called, "failed executions are returned as-is")
}

func TestExec_RequirementVerification_FailsBeforeAnyBranch(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{RequireExecInfoValidation: true})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil,
		map[string]string{spawn.RequirementRequiresPlatform: "darwin"}, "//pkg:o")
	_, err := fx.coord.Exec(context.Background(), s, testExecContext(t))
	require.Error(t, err)
	assert.EqualValues(t, 0, local.calls.Load())
	assert.EqualValues(t, 0, remote.calls.Load())
}

func TestExec_RequirementVerification_ExemptMnemonicPasses(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{delay: time.Second, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{
		RequireExecInfoValidation: true,
		ExecInfoExemptMnemonics:   []string{"Compile"},
	})

	s := spawn.New("Compile", []string{"cc"}, nil, nil, nil,
		map[string]string{spawn.RequirementRequiresPlatform: "darwin"}, "//pkg:o")
	results, err := fx.coord.Exec(context.Background(), s, testExecContext(t))
	require.NoError(t, err)
	assert.Equal(t, "local", results[0].Runner)
}

func TestExec_CallerCancellation_Propagates(t *testing.T) {
	local := &fakeStrategy{delay: 5 * time.Second, results: successResults("local")}
	remote := &fakeStrategy{delay: 5 * time.Second, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := fx.coord.Exec(ctx, dynamicSpawn(), testExecContext(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestCanExec_DelegatesToRegistry(t *testing.T) {
	local := &fakeStrategy{results: successResults("local")}
	remote := &fakeStrategy{results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})

	assert.True(t, fx.coord.CanExec(dynamicSpawn()))
}

func settledBranch(t *testing.T, mode Mode, results []*spawn.Result) *branch {
	t.Helper()
	b := newBranch(context.Background(), mode)
	b.run(func(ctx context.Context) ([]*spawn.Result, error) {
		return results, nil
	})
	return b
}

func TestWaitBranches_BothCompleted_PanicsOnProtocolViolation(t *testing.T) {
	local := &fakeStrategy{}
	remote := &fakeStrategy{}
	fx := newRaceFixture(t, local, remote, Options{})

	lb := settledBranch(t, ModeLocal, successResults("local"))
	rb := settledBranch(t, ModeRemote, successResults("remote"))

	require.Panics(t, func() {
		_, _ = fx.coord.waitBranches(context.Background(), lb, rb, dynamicSpawn(), discardLogger())
	})
}

func TestWaitBranches_NeitherCompleted_PanicsOnProtocolViolation(t *testing.T) {
	local := &fakeStrategy{}
	remote := &fakeStrategy{}
	fx := newRaceFixture(t, local, remote, Options{})

	lb := newBranch(context.Background(), ModeLocal)
	rb := newBranch(context.Background(), ModeRemote)
	require.True(t, lb.requestCancel())
	require.True(t, rb.requestCancel())

	require.Panics(t, func() {
		_, _ = fx.coord.waitBranches(context.Background(), lb, rb, dynamicSpawn(), discardLogger())
	})
}

func TestWaitBranches_CallerCancelled_PropagatesInsteadOfPanicking(t *testing.T) {
	local := &fakeStrategy{}
	remote := &fakeStrategy{}
	fx := newRaceFixture(t, local, remote, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Both branches already settled as cancelled while the caller's context
	// is cancelled too: the waits must report the interruption, never the
	// neither-completed protocol violation. Repeated because the wait's
	// select can land on either signal.
	for i := 0; i < 200; i++ {
		lb := newBranch(context.Background(), ModeLocal)
		rb := newBranch(context.Background(), ModeRemote)
		require.True(t, lb.requestCancel())
		require.True(t, rb.requestCancel())

		_, err := fx.coord.waitBranches(ctx, lb, rb, dynamicSpawn(), discardLogger())
		require.ErrorIs(t, err, context.Canceled)
	}
}

// openGateWhenBothStarted closes gate once both strategies have entered
// their Exec bodies, so neither branch can be cancelled before it starts.
func openGateWhenBothStarted(local, remote *fakeStrategy, gate chan struct{}) {
	go func() {
		for local.calls.Load() == 0 || remote.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(gate)
	}()
}

func TestExec_Dynamic_SimultaneousFinishers_ExactlyOneStopWins(t *testing.T) {
	gate := make(chan struct{})
	local := &fakeStrategy{gate: gate, results: successResults("local")}
	remote := &fakeStrategy{gate: gate, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})
	openGateWhenBothStarted(local, remote, gate)

	results, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 1, local.stopLost.Load()+remote.stopLost.Load(),
		"exactly one finisher must lose the stop race and unwind without a result")
}

func TestExec_Dynamic_StrategiesThatNeverStop_Panics(t *testing.T) {
	// Both strategies complete without ever invoking the stop callback, so
	// both branches contribute results and the single-winner assertion
	// fires.
	gate := make(chan struct{})
	local := &fakeStrategy{gate: gate, skipStop: true, results: successResults("local")}
	remote := &fakeStrategy{gate: gate, skipStop: true, results: successResults("remote")}
	fx := newRaceFixture(t, local, remote, Options{})
	openGateWhenBothStarted(local, remote, gate)

	require.Panics(t, func() {
		_, _ = fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
	})
}

func TestExec_Dynamic_RandomInterleavings_SingleWinner(t *testing.T) {
	if testing.Short() {
		t.Skip("interleaving sweep")
	}
	for _, delays := range []struct{ local, remote time.Duration }{
		{0, 0},
		{time.Millisecond, 0},
		{0, time.Millisecond},
		{5 * time.Millisecond, 5 * time.Millisecond},
		{time.Millisecond, 50 * time.Millisecond},
		{50 * time.Millisecond, time.Millisecond},
	} {
		local := &fakeStrategy{delay: delays.local, results: successResults("local")}
		remote := &fakeStrategy{delay: delays.remote, results: successResults("remote")}
		fx := newRaceFixture(t, local, remote, Options{})

		results, err := fx.coord.Exec(context.Background(), dynamicSpawn(), testExecContext(t))
		require.NoError(t, err)
		require.Len(t, results, 1, "exactly one branch may contribute results")
	}
}
