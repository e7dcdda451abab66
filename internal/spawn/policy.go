package spawn

// Execution-requirement keys recognized by the policy classifier. Values are
// ignored; presence of the key is what matters.
const (
	// RequirementNoLocal forbids local execution.
	RequirementNoLocal = "no-local"

	// RequirementNoRemote forbids remote execution.
	RequirementNoRemote = "no-remote"

	// RequirementLocal forces local execution.
	RequirementLocal = "local"

	// RequirementRemote forces remote execution.
	RequirementRemote = "remote"

	// RequirementRequiresWorker marks spawns that need a persistent local
	// worker process. Worker spawns never race.
	RequirementRequiresWorker = "requires-worker"

	// RequirementRequiresPlatform marks spawns that only succeed on a
	// specific execution platform.
	RequirementRequiresPlatform = "requires-platform"

	// RequirementPlatformChecked records that a platform constraint was
	// validated when the spawn was constructed.
	RequirementPlatformChecked = "platform-checked"
)

// Policy classifies where a spawn may run. Exactly one of the three
// predicates holds for any value.
type Policy int

const (
	// PolicyDynamic allows the spawn to race on both backends.
	PolicyDynamic Policy = iota

	// PolicyLocalOnly restricts the spawn to local execution.
	PolicyLocalOnly

	// PolicyRemoteOnly restricts the spawn to remote execution.
	PolicyRemoteOnly
)

func (p Policy) String() string {
	switch p {
	case PolicyLocalOnly:
		return "local-only"
	case PolicyRemoteOnly:
		return "remote-only"
	default:
		return "dynamic"
	}
}

// CanRunLocallyOnly reports whether the spawn must run locally.
func (p Policy) CanRunLocallyOnly() bool { return p == PolicyLocalOnly }

// CanRunRemotelyOnly reports whether the spawn must run remotely.
func (p Policy) CanRunRemotelyOnly() bool { return p == PolicyRemoteOnly }

// CanRunDynamically reports whether the spawn may race on both backends.
func (p Policy) CanRunDynamically() bool { return p == PolicyDynamic }

// Classify derives the execution policy for a spawn from its declared
// execution requirements. It is a pure function and must be consulted before
// any branch is launched, since it decides whether a race happens at all.
//
// Local restrictions take precedence: a spawn that declares both no-local
// and no-remote is classified local-only and left for the local strategy to
// reject.
func Classify(s *Spawn) Policy {
	switch {
	case s.HasExecRequirement(RequirementNoRemote),
		s.HasExecRequirement(RequirementLocal),
		s.HasExecRequirement(RequirementRequiresWorker):
		return PolicyLocalOnly
	case s.HasExecRequirement(RequirementNoLocal),
		s.HasExecRequirement(RequirementRemote):
		return PolicyRemoteOnly
	default:
		return PolicyDynamic
	}
}
