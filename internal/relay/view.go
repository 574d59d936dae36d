package relay

import (
	"github.com/samber/lo"

	"github.com/tunez/mpdbridge/internal/player"
	"github.com/tunez/mpdbridge/internal/protocol"
)

// StatusView is the JSON form of a player snapshot.
type StatusView struct {
	State          string              `json:"state"`
	ElapsedMS      int64               `json:"elapsed_ms"`
	DurationMS     int64               `json:"duration_ms"`
	Loop           string              `json:"loop"`
	Shuffle        bool                `json:"shuffle"`
	Volume         *int                `json:"volume,omitempty"`
	Song           *SongView           `json:"song,omitempty"`
	NextSong       *SongView           `json:"next_song,omitempty"`
	PlaylistLength uint64              `json:"playlist_length"`
	Metadata       map[string][]string `json:"metadata,omitempty"`
	HasArt         bool                `json:"has_art"`
}

type SongView struct {
	Pos uint64 `json:"pos"`
	ID  uint64 `json:"id"`
}

// EventFrame is one message on the events websocket.
type EventFrame struct {
	Session string     `json:"session"`
	Event   string     `json:"event"`
	Status  StatusView `json:"status"`
}

type FieldView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CommandResult struct {
	Fields []FieldView `json:"fields"`
	Binary int         `json:"binary_bytes,omitempty"`
}

type errorView struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Command string `json:"command,omitempty"`
}

func songView(r player.SongRef) *SongView {
	if !r.Valid {
		return nil
	}
	return &SongView{Pos: r.Pos, ID: r.ID}
}

// NewStatusView converts a snapshot. A missing mixer leaves Volume unset.
func NewStatusView(st *player.Status) StatusView {
	v := StatusView{
		State:          st.Playback.State.String(),
		ElapsedMS:      st.Playback.Elapsed.Milliseconds(),
		DurationMS:     st.Playback.Duration.Milliseconds(),
		Loop:           st.Loop.String(),
		Shuffle:        st.Random,
		Song:           songView(st.Song),
		NextSong:       songView(st.NextSong),
		PlaylistLength: st.PlaylistLength,
		Metadata:       st.Metadata,
		HasArt:         st.AlbumArt != "",
	}
	if st.HasMixer() {
		v.Volume = lo.ToPtr(st.Volume)
	}
	return v
}

func newCommandResult(resp *protocol.Response) CommandResult {
	return CommandResult{
		Fields: lo.Map(resp.Fields, func(f protocol.Field, _ int) FieldView {
			return FieldView{Name: f.Name, Value: f.Value}
		}),
		Binary: len(resp.Binary),
	}
}
