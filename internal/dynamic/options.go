package dynamic

import (
	"time"

	"dynexec/internal/spawn"
)

// Options configures a Coordinator.
type Options struct {
	// LocalExecutionDelay is how long a local branch sleeps before doing
	// real work once any remote execution has completed successfully.
	// See DelayIndicator.
	LocalExecutionDelay time.Duration

	// DebugSpawnScheduler enables informational logging about which
	// strategy finished first for each racing spawn.
	DebugSpawnScheduler bool

	// RequireExecInfoValidation rejects spawns that declare a platform
	// constraint without recording that it was checked, before any branch
	// is launched.
	RequireExecInfoValidation bool

	// ExecInfoExemptMnemonics lists mnemonics exempt from the validation
	// above.
	ExecInfoExemptMnemonics []string

	// PostProcessing optionally derives an extra spawn to run locally
	// after a successful local execution. The extra spawn runs outside the
	// race: by the time it starts, the remote branch is already stopped.
	PostProcessing func(s *spawn.Spawn) (*spawn.Spawn, bool)

	// Metrics optionally records race outcomes. Nil disables recording.
	Metrics *Metrics
}
