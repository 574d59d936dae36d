package player

// LoopMode combines MPD's repeat and single flags.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopTrack
	LoopPlaylist
)

// LoopModeFrom derives the loop mode from the repeat and single flags.
func LoopModeFrom(repeat, single bool) LoopMode {
	switch {
	case repeat && single:
		return LoopTrack
	case repeat:
		return LoopPlaylist
	default:
		return LoopNone
	}
}

// ParseLoopMode is the inverse of String. Unknown names map to LoopNone.
func ParseLoopMode(s string) LoopMode {
	switch s {
	case "Track":
		return LoopTrack
	case "Playlist":
		return LoopPlaylist
	default:
		return LoopNone
	}
}

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "Track"
	case LoopPlaylist:
		return "Playlist"
	default:
		return "None"
	}
}

// Next cycles None -> Playlist -> Track -> None.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopNone:
		return LoopPlaylist
	case LoopPlaylist:
		return LoopTrack
	default:
		return LoopNone
	}
}

// Commands returns the repeat/single commands that select m.
func (m LoopMode) Commands() []string {
	switch m {
	case LoopTrack:
		return []string{"repeat 1", "single 1"}
	case LoopPlaylist:
		return []string{"repeat 1", "single 0"}
	default:
		return []string{"repeat 0", "single 0"}
	}
}
