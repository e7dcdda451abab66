// Package spawn defines the unit-of-work model shared by every execution
// strategy: the immutable Spawn description, the Result of running one, and
// the policy that decides which strategies may run it.
package spawn

import "time"

// Spawn is a single unit of build work: a command plus its declared inputs,
// outputs and environment.
//
// A Spawn is immutable once constructed. During dynamic execution the same
// Spawn is shared by reference across both racing branches, so callers must
// never mutate its fields; New copies every map and slice it is given to
// keep later mutations of the caller's data from leaking in.
type Spawn struct {
	// Args is the argument vector, including the executable as Args[0].
	Args []string

	// Env is the environment explicitly declared for the command.
	// Only variables listed here are visible to the process.
	Env map[string]string

	// Inputs is the list of declared input paths.
	Inputs []string

	// Outputs is the list of declared output paths.
	Outputs []string

	// Mnemonic is a short kind tag for the spawn (e.g. "Compile").
	Mnemonic string

	// ExecInfo maps execution-requirement keys to values. Keys recognized
	// by the classifier are defined in policy.go; strategies may consult
	// additional keys of their own.
	ExecInfo map[string]string

	// Owner is a diagnostic label for the action that produced this spawn,
	// typically its primary output path. Used only in log and error text.
	Owner string
}

// New constructs an immutable Spawn, deep-copying all slices and maps.
func New(mnemonic string, args []string, env map[string]string, inputs, outputs []string, execInfo map[string]string, owner string) *Spawn {
	return &Spawn{
		Args:     append([]string(nil), args...),
		Env:      copyMap(env),
		Inputs:   append([]string(nil), inputs...),
		Outputs:  append([]string(nil), outputs...),
		Mnemonic: mnemonic,
		ExecInfo: copyMap(execInfo),
		Owner:    owner,
	}
}

// HasExecRequirement reports whether the spawn declares the given
// execution-requirement key, regardless of its value.
func (s *Spawn) HasExecRequirement(key string) bool {
	_, ok := s.ExecInfo[key]
	return ok
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Status classifies the outcome of one spawn execution.
type Status string

const (
	// StatusSuccess means the command ran and exited zero.
	StatusSuccess Status = "SUCCESS"

	// StatusNonZeroExit means the command ran to completion but failed.
	StatusNonZeroExit Status = "NON_ZERO_EXIT"

	// StatusTimeout means the executing strategy killed the command after
	// its deadline. Timeouts are imposed by strategies, never by the
	// coordinator.
	StatusTimeout Status = "TIMEOUT"

	// StatusExecutionFailed means the command could not be run at all
	// (e.g. the executable was missing or the environment was broken).
	StatusExecutionFailed Status = "EXECUTION_FAILED"
)

// Result is the immutable outcome of executing a Spawn on one strategy.
type Result struct {
	// Status is the outcome classification.
	Status Status

	// ExitCode is the process exit code, when one exists.
	ExitCode int

	// WallTime is the observed wall-clock duration of the execution.
	WallTime time.Duration

	// Runner names the strategy that produced this result.
	Runner string
}

// Success reports whether the execution completed with a zero exit.
func (r *Result) Success() bool {
	return r.Status == StatusSuccess && r.ExitCode == 0
}
