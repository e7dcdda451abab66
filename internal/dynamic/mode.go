package dynamic

// Mode identifies one side of a dynamic execution race.
type Mode string

const (
	// ModeLocal is the branch executing on the local machine.
	ModeLocal Mode = "local"

	// ModeRemote is the branch executing on a remote service.
	ModeRemote Mode = "remote"
)

// Other returns the opposite mode.
func (m Mode) Other() Mode {
	if m == ModeLocal {
		return ModeRemote
	}
	return ModeLocal
}
