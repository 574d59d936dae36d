package mpd

// IdleCommand waits for changes in the subsystems the state cache tracks.
const IdleCommand = "idle stored_playlist playlist player mixer options"

// Subsystem is a value of a "changed" field returned by idle.
type Subsystem int

const (
	SubsystemUnknown Subsystem = iota
	SubsystemStoredPlaylist
	SubsystemPlaylist
	SubsystemPlayer
	SubsystemMixer
	SubsystemOptions
)

// ParseSubsystem maps a subsystem name; unrecognized names yield SubsystemUnknown.
func ParseSubsystem(name string) Subsystem {
	switch name {
	case "stored_playlist":
		return SubsystemStoredPlaylist
	case "playlist":
		return SubsystemPlaylist
	case "player":
		return SubsystemPlayer
	case "mixer":
		return SubsystemMixer
	case "options":
		return SubsystemOptions
	default:
		return SubsystemUnknown
	}
}

func (s Subsystem) String() string {
	switch s {
	case SubsystemStoredPlaylist:
		return "stored_playlist"
	case SubsystemPlaylist:
		return "playlist"
	case SubsystemPlayer:
		return "player"
	case SubsystemMixer:
		return "mixer"
	case SubsystemOptions:
		return "options"
	default:
		return "unknown"
	}
}
