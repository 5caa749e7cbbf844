// Package assets describes the media the game ships with: the asset
// manifest, note identifiers and the narrator line table.
package assets

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind is the media type of an asset.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// Group tags an asset with the part of the game that uses it.
type Group string

const (
	GroupGoblin Group = "goblin"
	GroupScore  Group = "score"
	GroupPiano  Group = "piano"
	GroupImages Group = "images"
)

// Asset is one manifest entry. Identity is the normalized path.
type Asset struct {
	Path      string
	Kind      Kind
	Group     Group
	Cacheable bool
}

// Key returns the identity of the asset.
func (a Asset) Key() string {
	return NormalizePath(a.Path)
}

// Manifest is an ordered list of assets.
type Manifest []Asset

// Paths returns the normalized path of every asset.
func (m Manifest) Paths() []string {
	out := make([]string, 0, len(m))
	for _, a := range m {
		out = append(out, a.Key())
	}
	return out
}

// Filter returns the assets matching keep.
func (m Manifest) Filter(keep func(Asset) bool) Manifest {
	var out Manifest
	for _, a := range m {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

// Lookup finds an asset by path.
func (m Manifest) Lookup(path string) (Asset, bool) {
	key := NormalizePath(path)
	for _, a := range m {
		if a.Key() == key {
			return a, true
		}
	}
	return Asset{}, false
}

// NormalizePath strips a leading "./" or "/" and applies Unicode NFC so that
// equivalent spellings address the same cache record.
func NormalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "./"):
		path = path[2:]
	case strings.HasPrefix(path, "/"):
		path = path[1:]
	}
	return norm.NFC.String(path)
}

// NetworkPath returns the path used to fetch an asset from its origin.
func NetworkPath(path string) string {
	if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "http") {
		return path
	}
	return "./" + path
}

var goblinAudio = []string{
	"assets/audio/goblin/hello.mp3",
	"assets/audio/goblin/waiting.mp3",
	"assets/audio/goblin/win.mp3",
	"assets/audio/goblin/lose.mp3",
}

// Score stingers.
const (
	StingerPreWin = "assets/audio/pre-win.mp3"
	StingerLose   = "assets/audio/lose.mp3"
	StingerWin    = "assets/audio/win.mp3"
)

// Score stingers stay out of persistent storage; they are primed only.
var scoreAudio = []string{StingerPreWin, StingerLose, StingerWin}

var imageAssets = []string{
	"assets/images/logo-black.png",
	"assets/images/logo-wheat.png",
	"assets/images/goblin/hello.png",
	"assets/images/goblin/waiting.png",
	"assets/images/goblin/win.png",
	"assets/images/goblin/lose.png",
}

var whiteNotes = []string{"a2", "a3", "a4", "b2", "b3", "b4", "c2", "c3", "c4", "c5", "d2", "d3", "d4", "e2", "e3", "e4", "f2", "f3", "f4", "g2", "g3", "g4"}
var sharpNotes = []string{"a#2", "a#3", "a#4", "c#2", "c#3", "c#4", "d#2", "d#3", "d#4", "f#2", "f#3", "f#4", "g#2", "g#3", "g#4"}

// DefaultManifest returns every asset the game uses, in preload order.
func DefaultManifest() Manifest {
	var m Manifest
	for _, p := range goblinAudio {
		m = append(m, Asset{Path: p, Kind: KindAudio, Group: GroupGoblin, Cacheable: true})
	}
	for _, p := range scoreAudio {
		m = append(m, Asset{Path: p, Kind: KindAudio, Group: GroupScore, Cacheable: false})
	}
	for _, n := range append(append([]string{}, whiteNotes...), sharpNotes...) {
		m = append(m, Asset{Path: pianoDir + fileName(n), Kind: KindAudio, Group: GroupPiano, Cacheable: false})
	}
	for _, p := range imageAssets {
		m = append(m, Asset{Path: p, Kind: KindImage, Group: GroupImages, Cacheable: true})
	}
	return m
}
