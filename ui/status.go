package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/goblinnotes/goblin/internal/audio"
)

// statusBar holds what the bottom line shows.
type statusBar struct {
	backend  audio.State
	storage  bool
	octave   int
	velocity float64
	voice    bool
	message  string
	isError  bool
}

var (
	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#242424", Dark: "#B2B2B2"}).
			Background(lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"})
	statusMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	statusErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// backendIndicator returns an icon and label for the selector state.
func backendIndicator(s audio.State) (string, lipgloss.Color) {
	switch s {
	case audio.StateRunning:
		return "● low latency", lipgloss.Color("#00FF00")
	case audio.StateLocked:
		return "◌ press a key", lipgloss.Color("#FFFF00")
	case audio.StateProbing, audio.StateUninitialized:
		return "⟳ starting", lipgloss.Color("#00AAFF")
	case audio.StateUnsupported:
		return "○ fallback", lipgloss.Color("#FF8800")
	default:
		return "?", lipgloss.Color("#666666")
	}
}

// View renders the status bar to fit width.
func (s statusBar) View(width int) string {
	icon, color := backendIndicator(s.backend)
	parts := []string{lipgloss.NewStyle().Foreground(color).Render(icon)}

	if s.storage {
		parts = append(parts, "stored")
	} else {
		parts = append(parts, "streaming")
	}
	parts = append(parts, fmt.Sprintf("octave %d", s.octave), fmt.Sprintf("vel %.2f", s.velocity))
	if !s.voice {
		parts = append(parts, "goblin muted")
	}
	if s.message != "" {
		style := statusMessageStyle
		if s.isError {
			style = statusErrorStyle
		}
		parts = append(parts, style.Render(s.message))
	}

	line := " " + strings.Join(parts, " • ")
	if width <= 0 {
		return statusBarStyle.Render(line)
	}
	line = truncate.StringWithTail(line, uint(width), "…") //nolint:gosec
	return statusBarStyle.Width(width).Render(line)
}
