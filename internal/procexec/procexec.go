// Package procexec provides a minimal process-based execution strategy.
//
// It exists so the driver binary and integration tests have a real strategy
// to register; the coordinator itself never depends on it. Processes run
// with an allowlist environment: only variables declared on the spawn are
// visible, nothing from the host leaks through.
package procexec

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"dynexec/internal/dynamic"
	"dynexec/internal/spawn"
)

// Strategy executes spawns as local OS processes.
type Strategy struct {
	// WorkingDir is the directory processes run in.
	WorkingDir string

	// Runner labels the results this strategy produces.
	Runner string
}

// New returns a process strategy rooted at workingDir.
func New(workingDir string) *Strategy {
	return &Strategy{WorkingDir: workingDir, Runner: "local-process"}
}

// CanExec reports whether the spawn carries a command to run.
func (s *Strategy) CanExec(sp *spawn.Spawn) bool {
	return len(sp.Args) > 0
}

// Exec runs the spawn's argument vector as a process, streaming stdout and
// stderr into the context's capture files.
//
// A completed process, zero or non-zero exit alike, is an authoritative
// execution: before returning its result, Exec invokes the stop callback so
// any concurrent sibling is torn down first. Failure to even run the command
// is returned as an error without stopping the sibling, leaving the race to
// the other branch.
func (s *Strategy) Exec(ctx context.Context, sp *spawn.Spawn, ec *dynamic.ExecContext, stop dynamic.StopConcurrentSpawns) ([]*spawn.Result, error) {
	if len(sp.Args) == 0 {
		return nil, fmt.Errorf("spawn %s has no argument vector", sp.Owner)
	}

	cmd := exec.Command(sp.Args[0], sp.Args[1:]...)
	cmd.Dir = s.WorkingDir
	cmd.Env = allowlistEnv(sp.Env)
	// Own process group so cancellation can kill the whole process tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := ec.OutErr.Stdout()
	if err != nil {
		return nil, fmt.Errorf("opening stdout capture: %w", err)
	}
	stderr, err := ec.OutErr.Stderr()
	if err != nil {
		return nil, fmt.Errorf("opening stderr capture: %w", err)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", sp.Args[0], err)
	}

	waited := make(chan error, 1)
	go func() { waited <- cmd.Wait() }()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-waited // the process must actually be gone before we unwind
		return nil, ctx.Err()
	case waitErr = <-waited:
	}
	wallTime := time.Since(start)

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("executing %s: %w", sp.Args[0], waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	// The process ran to completion, so this branch's result is the
	// authoritative one even if the exit code is non-zero. Stop the
	// sibling before finalizing; losing the stop race means unwinding
	// without a result.
	if stop != nil {
		if err := stop(); err != nil {
			return nil, err
		}
	}

	status := spawn.StatusSuccess
	if exitCode != 0 {
		status = spawn.StatusNonZeroExit
	}
	return []*spawn.Result{{
		Status:   status,
		ExitCode: exitCode,
		WallTime: wallTime,
		Runner:   s.Runner,
	}}, nil
}

// allowlistEnv builds the process environment from the declared variables
// only. The environment starts empty; host variables never pass through.
func allowlistEnv(env map[string]string) []string {
	if len(env) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return result
}
