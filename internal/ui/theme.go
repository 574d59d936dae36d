package ui

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Name    string
	Title   lipgloss.Style
	Text    lipgloss.Style
	Dim     lipgloss.Style
	Accent  lipgloss.Style
	Playing lipgloss.Style
	Paused  lipgloss.Style
	Stopped lipgloss.Style
	Bar     lipgloss.Style
	Border  lipgloss.Style
	Error   lipgloss.Style
}

// themeRegistry maps theme names to constructors.
var themeRegistry = map[string]func() Theme{
	"default": Default,
	"nord":    Nord,
	"mono":    Monochrome,
	"nocolor": NoColor,
}

// ThemeNames returns the available theme names, sorted.
func ThemeNames() []string {
	names := make([]string, 0, len(themeRegistry))
	for n := range themeRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetTheme returns a theme by name, or Default when the name is unknown.
// noColor forces the NoColor theme.
func GetTheme(name string, noColor bool) Theme {
	if noColor {
		return NoColor()
	}
	if fn, ok := themeRegistry[name]; ok {
		return fn()
	}
	return Default()
}

// ValidTheme returns true if the theme name is known.
func ValidTheme(name string) bool {
	_, ok := themeRegistry[name]
	return ok
}

// State returns the style for a playback state label.
func (t Theme) State(playing, paused bool) lipgloss.Style {
	switch {
	case playing:
		return t.Playing
	case paused:
		return t.Paused
	default:
		return t.Stopped
	}
}

func Default() Theme {
	return Theme{
		Name:    "default",
		Title:   lipgloss.NewStyle().Foreground(lipgloss.Color("#8EEBFF")).Bold(true),
		Text:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E6E6FA")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6F93")),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6FF7")),
		Playing: lipgloss.NewStyle().Foreground(lipgloss.Color("#5CFF5C")).Bold(true),
		Paused:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD166")).Bold(true),
		Stopped: lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6F93")).Bold(true),
		Bar:     lipgloss.NewStyle().Foreground(lipgloss.Color("#7C7CFF")),
		Border:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#7C7CFF")).Padding(0, 1),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F56")).Bold(true),
	}
}

// Nord uses the arctic Nord palette.
func Nord() Theme {
	frost := lipgloss.Color("#88C0D0")
	snow := lipgloss.Color("#D8DEE9")
	polar := lipgloss.Color("#4C566A")
	return Theme{
		Name:    "nord",
		Title:   lipgloss.NewStyle().Foreground(lipgloss.Color("#81A1C1")).Bold(true),
		Text:    lipgloss.NewStyle().Foreground(snow),
		Dim:     lipgloss.NewStyle().Foreground(polar),
		Accent:  lipgloss.NewStyle().Foreground(frost).Bold(true),
		Playing: lipgloss.NewStyle().Foreground(lipgloss.Color("#A3BE8C")).Bold(true),
		Paused:  lipgloss.NewStyle().Foreground(lipgloss.Color("#EBCB8B")).Bold(true),
		Stopped: lipgloss.NewStyle().Foreground(polar).Bold(true),
		Bar:     lipgloss.NewStyle().Foreground(frost),
		Border:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(polar).Padding(0, 1),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#BF616A")).Bold(true),
	}
}

// Monochrome is a grayscale theme.
func Monochrome() Theme {
	white := lipgloss.Color("#FFFFFF")
	gray := lipgloss.Color("#888888")
	return Theme{
		Name:    "mono",
		Title:   lipgloss.NewStyle().Foreground(white).Bold(true),
		Text:    lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		Accent:  lipgloss.NewStyle().Foreground(white).Bold(true),
		Playing: lipgloss.NewStyle().Foreground(white).Bold(true),
		Paused:  lipgloss.NewStyle().Foreground(gray).Bold(true),
		Stopped: lipgloss.NewStyle().Foreground(gray),
		Bar:     lipgloss.NewStyle().Foreground(gray),
		Border:  lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(gray).Padding(0, 1),
		Error:   lipgloss.NewStyle().Foreground(white).Bold(true).Underline(true),
	}
}

// NoColor only uses bold, underline and reverse.
func NoColor() Theme {
	reset := lipgloss.NewStyle()
	return Theme{
		Name:    "nocolor",
		Title:   reset.Bold(true),
		Text:    reset,
		Dim:     reset,
		Accent:  reset.Bold(true),
		Playing: reset.Bold(true),
		Paused:  reset.Underline(true),
		Stopped: reset,
		Bar:     reset,
		Border:  reset.Border(lipgloss.NormalBorder()).Padding(0, 1),
		Error:   reset.Reverse(true),
	}
}
