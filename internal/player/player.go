// Package player models the playback state reported by MPD.
package player

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tunez/mpdbridge/internal/protocol"
)

// NoMixer is the Volume of a server without a usable mixer.
const NoMixer = -1

var ErrMissingField = errors.New("player: missing status field")

// MissingFieldError lists the mandatory fields absent from a status response.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "player: missing status fields: " + strings.Join(e.Fields, ", ")
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// State is the kind of playback, without timing.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Playback is the playback state with timing. Elapsed and Duration are only
// meaningful while Playing or Paused.
type Playback struct {
	State    State
	Elapsed  time.Duration
	Duration time.Duration
}

// SongRef identifies a queue entry by position and song id.
type SongRef struct {
	Pos   uint64
	ID    uint64
	Valid bool
}

// Status is an immutable snapshot of the player. A new value is built on each
// refresh; callers must not modify Metadata.
type Status struct {
	Playback       Playback
	Loop           LoopMode
	Random         bool
	Volume         int
	Song           SongRef
	NextSong       SongRef
	PlaylistLength uint64
	// Metadata maps tag names to their values in the order MPD reported them.
	Metadata map[string][]string
	// AlbumArt is the path of the cached cover image, empty when there is none.
	AlbumArt string
}

// Empty returns the status of a stopped player with an empty queue.
func Empty() *Status {
	return &Status{Volume: NoMixer}
}

// HasMixer reports whether the server exposes a volume.
func (s *Status) HasMixer() bool { return s.Volume != NoMixer }

// Tag returns the first value of a metadata tag.
func (s *Status) Tag(name string) string {
	if v := s.Metadata[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Tags returns every value of a metadata tag.
func (s *Status) Tags(name string) []string {
	return s.Metadata[name]
}

// ParseStatus builds a Status from a "status" response and, when a song is
// active, the matching "currentsong" response (which may be nil).
func ParseStatus(status, song *protocol.Response) (*Status, error) {
	required := []string{"state", "repeat", "single", "random"}
	state, _ := status.Get("state")
	active := state == "play" || state == "pause"
	if active {
		required = append(required, "volume", "elapsed", "duration")
	}
	if missing := lo.Filter(required, func(name string, _ int) bool { return !status.Has(name) }); len(missing) > 0 {
		return nil, &MissingFieldError{Fields: missing}
	}

	st := &Status{Volume: NoMixer}
	var err error
	if st.Playback, err = parsePlayback(status, state); err != nil {
		return nil, err
	}
	repeat, err := flag(status, "repeat")
	if err != nil {
		return nil, err
	}
	single, err := flag(status, "single")
	if err != nil {
		return nil, err
	}
	st.Loop = LoopModeFrom(repeat, single)
	if st.Random, err = flag(status, "random"); err != nil {
		return nil, err
	}
	if v, ok := status.Get("volume"); ok {
		if st.Volume, err = parseVolume(v); err != nil {
			return nil, err
		}
	}
	if st.Song, err = songRef(status, "song", "songid"); err != nil {
		return nil, err
	}
	if st.NextSong, err = songRef(status, "nextsong", "nextsongid"); err != nil {
		return nil, err
	}
	if v, ok := status.Get("playlistlength"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			st.PlaylistLength = n
		}
	}
	if song != nil {
		st.Metadata = song.Map()
	}
	return st, nil
}

func parsePlayback(status *protocol.Response, state string) (Playback, error) {
	var kind State
	switch state {
	case "play":
		kind = Playing
	case "pause":
		kind = Paused
	case "stop":
		return Playback{State: Stopped}, nil
	default:
		return Playback{}, fmt.Errorf("player: invalid field state=%q", state)
	}
	elapsed, err := seconds(status, "elapsed")
	if err != nil {
		return Playback{}, err
	}
	duration, err := seconds(status, "duration")
	if err != nil {
		return Playback{}, err
	}
	return Playback{State: kind, Elapsed: elapsed, Duration: duration}, nil
}

func seconds(r *protocol.Response, name string) (time.Duration, error) {
	v, _ := r.Get(name)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("player: invalid field %s=%q", name, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func flag(r *protocol.Response, name string) (bool, error) {
	v, _ := r.Get(name)
	switch v {
	case "0":
		return false, nil
	case "1":
		return true, nil
	case "oneshot":
		// single/consume can be "oneshot" since MPD 0.21.
		return true, nil
	default:
		return false, fmt.Errorf("player: invalid field %s: expect 0/1, got %q", name, v)
	}
}

func parseVolume(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < NoMixer || n > 100 {
		return 0, fmt.Errorf("player: invalid field volume=%q", v)
	}
	return n, nil
}

// songRef is valid only when both fields are present.
func songRef(r *protocol.Response, posField, idField string) (SongRef, error) {
	pos, okPos := r.Get(posField)
	id, okID := r.Get(idField)
	if !okPos || !okID {
		return SongRef{}, nil
	}
	p, err := strconv.ParseUint(pos, 10, 64)
	if err != nil {
		return SongRef{}, fmt.Errorf("player: invalid field %s=%q", posField, pos)
	}
	i, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return SongRef{}, fmt.Errorf("player: invalid field %s=%q", idField, id)
	}
	return SongRef{Pos: p, ID: i, Valid: true}, nil
}
