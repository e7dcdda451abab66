package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"dynexec/internal/dynamic"
	"dynexec/internal/procexec"
	"dynexec/internal/spawn"
)

// Exit codes of the driver binary.
const (
	ExitSuccess           = 0
	ExitSpawnFailure      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// Invocation is the canonical description of one driver run.
type Invocation struct {
	// SpawnFile is the YAML spawn file to execute. Required.
	SpawnFile string

	// WorkDir is the directory spawns run in. Defaults to the process
	// working directory.
	WorkDir string

	// OutputDir receives the per-spawn stdout/stderr capture files.
	// Defaults to WorkDir.
	OutputDir string

	// Workers is the size of the shared branch worker pool.
	Workers int

	// LocalDelay is the coordinator's local-start delay once a remote
	// execution has completed.
	LocalDelay time.Duration

	// RemoteLatency is the artificial startup latency of the simulated
	// remote strategy.
	RemoteLatency time.Duration

	// DebugScheduler enables per-race scheduling diagnostics.
	DebugScheduler bool

	// JSONLogs switches log output to JSON.
	JSONLogs bool
}

// InvocationError carries the exit code an invalid invocation maps to.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

func (inv *Invocation) normalize() error {
	if inv.SpawnFile == "" {
		return invalidInvocationf("a spawn file is required (-file)")
	}
	if inv.Workers <= 0 {
		inv.Workers = 4
	}
	if inv.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		inv.WorkDir = wd
	}
	if inv.OutputDir == "" {
		inv.OutputDir = inv.WorkDir
	}
	return nil
}

// Result summarizes a driver run.
type Result struct {
	ExitCode int

	// Failed lists the spawns whose authoritative execution did not
	// succeed.
	Failed []string
}

// Execute runs every spawn in the invocation's spawn file through the racing
// coordinator, with a process strategy as the local side and a latency-
// wrapped process strategy standing in for the remote side.
func Execute(ctx context.Context, inv Invocation) (Result, error) {
	if err := inv.normalize(); err != nil {
		return Result{ExitCode: ExitCode(err)}, err
	}

	file, err := LoadSpawnFile(inv.SpawnFile)
	if err != nil {
		return Result{ExitCode: ExitConfigError}, err
	}
	if err := os.MkdirAll(inv.OutputDir, 0o755); err != nil {
		return Result{ExitCode: ExitInternalError}, fmt.Errorf("creating output dir: %w", err)
	}

	log := NewLogger(inv.JSONLogs, inv.DebugScheduler)

	pool, err := dynamic.NewPool(inv.Workers)
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}
	defer pool.Close()

	registry := dynamic.NewRegistry()
	registry.Register(dynamic.ModeLocal, procexec.New(inv.WorkDir))
	registry.Register(dynamic.ModeRemote, procexec.NewDelayed(procexec.New(inv.WorkDir), inv.RemoteLatency))

	coord, err := dynamic.NewCoordinator(registry, pool, dynamic.NewDelayIndicator(), dynamic.Options{
		LocalExecutionDelay: inv.LocalDelay,
		DebugSpawnScheduler: inv.DebugScheduler,
		Metrics:             driverMetrics(),
	})
	if err != nil {
		return Result{ExitCode: ExitInternalError}, err
	}

	var merr *multierror.Error
	var failed []string
	for _, spec := range file.Spawns {
		sp := spec.ToSpawn()
		outErr := dynamic.NewOutErr(
			filepath.Join(inv.OutputDir, spec.Name+".out"),
			filepath.Join(inv.OutputDir, spec.Name+".err"),
		)
		ec := dynamic.NewExecContext(outErr, log.With("spawn", spec.Name))

		results, err := coord.Exec(ctx, sp, ec)
		if cerr := outErr.Close(); cerr != nil {
			log.Warn("could not close capture files", "spawn", spec.Name, "err", cerr)
		}
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("spawn %s: %w", spec.Name, err))
			failed = append(failed, spec.Name)
			continue
		}
		if !allSucceeded(results) {
			failed = append(failed, spec.Name)
		}
		logResults(log, spec.Name, results)
	}

	if err := merr.ErrorOrNil(); err != nil {
		return Result{ExitCode: ExitSpawnFailure, Failed: failed}, err
	}
	if len(failed) > 0 {
		return Result{ExitCode: ExitSpawnFailure, Failed: failed}, nil
	}
	return Result{ExitCode: ExitSuccess}, nil
}

// ExitCode maps an error to the driver exit code it should produce.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if invErr, ok := err.(*InvocationError); ok {
		return invErr.ExitCode
	}
	return ExitInternalError
}

func allSucceeded(results []*spawn.Result) bool {
	for _, r := range results {
		if !r.Success() {
			return false
		}
	}
	return true
}

func logResults(log *slog.Logger, name string, results []*spawn.Result) {
	for _, r := range results {
		log.Info("spawn finished",
			"spawn", name,
			"status", string(r.Status),
			"exit_code", r.ExitCode,
			"runner", r.Runner,
			"wall_time", r.WallTime,
		)
	}
}
