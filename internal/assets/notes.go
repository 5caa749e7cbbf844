package assets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goblinnotes/goblin/internal/failure"
)

const pianoDir = "assets/audio/piano/"

// NoteOrder lists the twelve pitch classes, sharps only.
var NoteOrder = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Enharmonic maps the flats the keyboard may emit to the sharp spelling used
// for sample file names.
var Enharmonic = map[string]string{
	"Db": "C#",
	"Eb": "D#",
	"Gb": "F#",
	"Ab": "G#",
	"Bb": "A#",
}

// KeyRange is the playable range of the virtual keyboard.
var KeyRange = struct{ Min, Max string }{Min: "C2", Max: "C5"}

var notePattern = regexp.MustCompile(`^([A-G][b#]?)(\d)$`)

// Note is a parsed note name such as "C#4".
type Note struct {
	Name   string
	Octave int
}

func (n Note) String() string {
	return n.Name + strconv.Itoa(n.Octave)
}

// ParseNote parses a note name. Flats are rewritten to their sharp
// equivalent; an unknown flat such as "Cb" is kept verbatim.
func ParseNote(s string) (Note, error) {
	m := notePattern.FindStringSubmatch(s)
	if m == nil {
		return Note{}, failure.New(failure.CodeInvalidIdentifier, fmt.Sprintf("invalid note %q", s), nil).
			WithContext("note", s)
	}
	name := m[1]
	if strings.HasSuffix(name, "b") {
		if sharp, ok := Enharmonic[name]; ok {
			name = sharp
		}
	}
	octave, _ := strconv.Atoi(m[2])
	return Note{Name: name, Octave: octave}, nil
}

// NotePath returns the manifest path of the sample for a note.
func NotePath(s string) (string, error) {
	n, err := ParseNote(s)
	if err != nil {
		return "", err
	}
	return pianoDir + fileName(n.String()), nil
}

func fileName(note string) string {
	return strings.Replace(strings.ToLower(note), "#", "%23", 1) + ".mp3"
}

// PitchIndex returns octave*12 plus the pitch class position.
func PitchIndex(s string) (int, error) {
	n, err := ParseNote(s)
	if err != nil {
		return 0, err
	}
	idx := indexOf(n.Name)
	if idx < 0 {
		return 0, failure.New(failure.CodeInvalidIdentifier, fmt.Sprintf("invalid note %q", s), nil)
	}
	return n.Octave*12 + idx, nil
}

// LinearNotes returns every chromatic note from one note to another,
// inclusive. It returns nil when to lies below from.
func LinearNotes(from, to string) ([]string, error) {
	start, err := PitchIndex(from)
	if err != nil {
		return nil, err
	}
	end, err := PitchIndex(to)
	if err != nil {
		return nil, err
	}
	var out []string
	for idx := start; idx <= end; idx++ {
		out = append(out, NoteOrder[idx%12]+strconv.Itoa(idx/12))
	}
	return out, nil
}

// KeyboardNotes returns the notes of the full keyboard.
func KeyboardNotes() []string {
	notes, _ := LinearNotes(KeyRange.Min, KeyRange.Max)
	return notes
}

func indexOf(name string) int {
	for i, n := range NoteOrder {
		if n == name {
			return i
		}
	}
	return -1
}
