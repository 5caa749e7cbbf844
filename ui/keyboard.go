package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/goblinnotes/goblin/internal/assets"
)

// Octaves the keyboard can shift between. The top key of the highest octave
// is C5, the end of the sample range.
const (
	minOctave     = 2
	maxOctave     = 4
	defaultOctave = 3
)

// keyOffsets maps keys to semitones above the C of the current octave.
var keyOffsets = map[string]int{
	"a": 0, "w": 1, "s": 2, "e": 3, "d": 4, "f": 5, "t": 6,
	"g": 7, "y": 8, "h": 9, "u": 10, "j": 11, "k": 12,
}

var (
	whiteKeys = []string{"a", "s", "d", "f", "g", "h", "j", "k"}
	blackKeys = map[int]string{0: "w", 1: "e", 3: "t", 4: "y", 5: "u"}
)

// noteForKey returns the note a key plays in octave.
func noteForKey(key string, octave int) (string, bool) {
	off, ok := keyOffsets[key]
	if !ok {
		return "", false
	}
	idx := octave*12 + off
	return assets.NoteOrder[idx%12] + strconv.Itoa(idx/12), true
}

func clampOctave(o int) int {
	return max(minOctave, min(maxOctave, o))
}

const keyWidth = 5

var (
	whiteKeyStyle  = lipgloss.NewStyle().Width(keyWidth).Align(lipgloss.Center).Foreground(lipgloss.Color("#1A1A1A")).Background(lipgloss.Color("#EEEEEE"))
	blackKeyStyle  = lipgloss.NewStyle().Width(3).Align(lipgloss.Center).Foreground(lipgloss.Color("#EEEEEE")).Background(lipgloss.Color("#1A1A1A"))
	pressedStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#04B575")).Foreground(lipgloss.Color("#FFFFFF"))
	keyHintStyle   = lipgloss.NewStyle().Width(keyWidth).Align(lipgloss.Center).Foreground(lipgloss.Color("#777777"))
	blackGapFiller = strings.Repeat(" ", keyWidth-3)
)

// renderKeyboard draws one octave with the pressed note highlighted.
func renderKeyboard(octave int, pressed string) string {
	var black, white, hints strings.Builder

	black.WriteString(strings.Repeat(" ", keyWidth-1))
	for i, key := range whiteKeys {
		note, _ := noteForKey(key, octave)
		style := whiteKeyStyle
		if note == pressed {
			style = style.Background(pressedStyle.GetBackground()).Foreground(pressedStyle.GetForeground())
		}
		white.WriteString(style.Render(note))
		hints.WriteString(keyHintStyle.Render(key))

		if i == len(whiteKeys)-1 {
			break
		}
		if bk, ok := blackKeys[i]; ok {
			bn, _ := noteForKey(bk, octave)
			bs := blackKeyStyle
			if bn == pressed {
				bs = bs.Background(pressedStyle.GetBackground())
			}
			black.WriteString(bs.Render(bk))
		} else {
			black.WriteString("   ")
		}
		black.WriteString(blackGapFiller)
	}

	return lipgloss.JoinVertical(lipgloss.Left, black.String(), white.String(), hints.String())
}
