package player

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoMixer is returned when a volume change is requested from a server
// without a mixer.
var ErrNoMixer = errors.New("player: no mixer available")

// restartThreshold is how far into a track "previous" restarts it instead.
const restartThreshold = 3 * time.Second

// VolumeCommand returns the command setting the volume to percent, clamped to
// 0-100.
func VolumeCommand(s *Status, percent int) (string, error) {
	if !s.HasMixer() {
		return "", ErrNoMixer
	}
	percent = min(max(percent, 0), 100)
	return fmt.Sprintf("setvol %d", percent), nil
}

// ShuffleCommand toggles random playback.
func ShuffleCommand(on bool) string {
	if on {
		return "random 1"
	}
	return "random 0"
}

// PauseCommand toggles pause.
func PauseCommand(s *Status) string {
	switch s.Playback.State {
	case Playing:
		return "pause 1"
	case Paused:
		return "pause 0"
	default:
		return "play"
	}
}

// PreviousCommand restarts the current track when it has been playing for a
// while and goes to the previous track otherwise.
func PreviousCommand(s *Status) string {
	if s.Playback.State == Playing && s.Playback.Elapsed > restartThreshold {
		return "seekcur 0"
	}
	return "previous"
}

// SeekCommand seeks relative to the current position.
func SeekCommand(delta time.Duration) string {
	sign := '+'
	if delta < 0 {
		sign = '-'
		delta = -delta
	}
	return fmt.Sprintf("seekcur %c%d", sign, int64(delta/time.Second))
}
