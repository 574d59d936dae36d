// Package ui renders a terminal monitor of the cached player state.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tunez/mpdbridge/internal/artwork"
	"github.com/tunez/mpdbridge/internal/events"
	"github.com/tunez/mpdbridge/internal/player"
	"github.com/tunez/mpdbridge/internal/protocol"
)

// Controller is the state feed and command sink behind the monitor.
type Controller interface {
	Status() *player.Status
	Subscribe() <-chan events.Kind
	Unsubscribe(ch <-chan events.Kind)
	Command(ctx context.Context, cmd string) (*protocol.Response, error)
}

// Options tunes the monitor layout.
type Options struct {
	ArtCols    int
	ArtRows    int
	VolumeStep int
	NoArt      bool
}

// Model is the bubbletea model of the monitor.
type Model struct {
	ctl   Controller
	ch    <-chan events.Kind
	theme Theme
	opts  Options

	st       *player.Status
	syncedAt time.Time
	now      func() time.Time
	art      string
	artPath  string
	last     string
	errorMsg string
	width    int
}

type eventMsg struct {
	kind events.Kind
	ok   bool
}

type tickMsg time.Time

type commandMsg struct {
	err error
}

type clearErrorMsg struct{}

// NewModel subscribes to ctl. The subscription is released by Run.
func NewModel(ctl Controller, theme Theme, opts Options) Model {
	if opts.VolumeStep <= 0 {
		opts.VolumeStep = 5
	}
	m := Model{
		ctl:   ctl,
		ch:    ctl.Subscribe(),
		theme: theme,
		opts:  opts,
		now:   time.Now,
	}
	return m.sync()
}

// Run shows the monitor until the user quits or ctx is cancelled, then
// releases the model's subscription.
func Run(ctx context.Context, m Model) error {
	defer m.ctl.Unsubscribe(m.ch)

	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitEventCmd(), tickCmd())
}

func (m Model) waitEventCmd() tea.Cmd {
	return func() tea.Msg {
		k, ok := <-m.ch
		return eventMsg{kind: k, ok: ok}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) commandCmd(cmds ...string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, c := range cmds {
			if _, err := m.ctl.Command(ctx, c); err != nil {
				return commandMsg{err: err}
			}
		}
		return commandMsg{}
	}
}

func (m Model) clearErrorCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg { return clearErrorMsg{} })
}

func (m Model) setError(err error) (Model, tea.Cmd) {
	m.errorMsg = err.Error()
	return m, m.clearErrorCmd()
}

// sync reloads the snapshot and re-renders art when its file changed.
func (m Model) sync() Model {
	m.st = m.ctl.Status()
	m.syncedAt = m.now()
	if m.opts.NoArt || m.st.AlbumArt == m.artPath {
		return m
	}
	m.artPath = m.st.AlbumArt
	m.art = ""
	if m.artPath != "" && m.opts.ArtCols > 0 && m.opts.ArtRows > 0 {
		if art, err := artwork.RenderFile(m.artPath, m.opts.ArtCols, m.opts.ArtRows); err == nil {
			m.art = art
		}
	}
	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		if !msg.ok {
			return m, tea.Quit
		}
		m.last = msg.kind.String()
		m = m.sync()
		return m, m.waitEventCmd()
	case tickMsg:
		return m, tickCmd()
	case commandMsg:
		if msg.err != nil {
			return m.setError(msg.err)
		}
		return m, nil
	case clearErrorMsg:
		m.errorMsg = ""
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ", "p":
		return m, m.commandCmd(player.PauseCommand(m.st))
	case "n":
		return m, m.commandCmd("next")
	case "b":
		return m, m.commandCmd(player.PreviousCommand(m.st))
	case "s":
		return m, m.commandCmd(player.ShuffleCommand(!m.st.Random))
	case "r":
		return m, m.commandCmd(m.st.Loop.Next().Commands()...)
	case "+", "=":
		return m.volume(m.opts.VolumeStep)
	case "-":
		return m.volume(-m.opts.VolumeStep)
	case "right":
		return m, m.commandCmd(player.SeekCommand(5 * time.Second))
	case "left":
		return m, m.commandCmd(player.SeekCommand(-5 * time.Second))
	}
	return m, nil
}

func (m Model) volume(delta int) (tea.Model, tea.Cmd) {
	cmd, err := player.VolumeCommand(m.st, m.st.Volume+delta)
	if err != nil {
		return m.setError(err)
	}
	return m, m.commandCmd(cmd)
}

// elapsed extrapolates the play position since the last snapshot.
func (m Model) elapsed() time.Duration {
	e := m.st.Playback.Elapsed
	if m.st.Playback.State == player.Playing {
		e += m.now().Sub(m.syncedAt)
	}
	if d := m.st.Playback.Duration; d > 0 && e > d {
		e = d
	}
	return e
}

func (m Model) View() string {
	t := m.theme
	st := m.st

	lines := []string{
		t.Title.Render("mpdbridge") + "  " + t.State(st.Playback.State == player.Playing, st.Playback.State == player.Paused).Render(st.Playback.State.String()),
		"",
	}
	if st.Song.Valid {
		title := st.Tag("Title")
		if title == "" {
			title = st.Tag("file")
		}
		lines = append(lines, t.Accent.Render(title))
		if artist := strings.Join(st.Tags("Artist"), ", "); artist != "" {
			lines = append(lines, t.Text.Render(artist))
		}
		if album := st.Tag("Album"); album != "" {
			lines = append(lines, t.Dim.Render(album))
		}
		lines = append(lines, "", m.progress(30))
	} else {
		lines = append(lines, t.Dim.Render("(nothing playing)"))
	}

	volume := "no mixer"
	if st.HasMixer() {
		volume = fmt.Sprintf("vol %d%%", st.Volume)
	}
	shuffle := "off"
	if st.Random {
		shuffle = "on"
	}
	queue := fmt.Sprintf("queue %d", st.PlaylistLength)
	if st.Song.Valid {
		queue = fmt.Sprintf("queue %d/%d", st.Song.Pos+1, st.PlaylistLength)
	}
	lines = append(lines, "",
		t.Text.Render(fmt.Sprintf("%s  loop %s  shuffle %s  %s", volume, st.Loop, shuffle, queue)))
	if m.last != "" {
		lines = append(lines, t.Dim.Render("last event: "+m.last))
	}
	if m.errorMsg != "" {
		lines = append(lines, t.Error.Render(m.errorMsg))
	}
	lines = append(lines, "", t.Dim.Render("space pause  n next  b prev  s shuffle  r loop  +/- volume  ←/→ seek  q quit"))

	body := strings.Join(lines, "\n")
	if m.art != "" {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.art, "  ", body)
	}
	return t.Border.Render(body)
}

func (m Model) progress(width int) string {
	d := m.st.Playback.Duration
	e := m.elapsed()
	filled := 0
	if d > 0 {
		filled = int(int64(width) * int64(e) / int64(d))
	}
	filled = min(max(filled, 0), width)
	bar := m.theme.Bar.Render(strings.Repeat("━", filled)) + m.theme.Dim.Render(strings.Repeat("─", width-filled))
	return fmt.Sprintf("%s %s / %s", bar, formatDuration(e), formatDuration(d))
}

func formatDuration(d time.Duration) string {
	s := int(d / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
