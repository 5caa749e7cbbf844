package ui

import (
	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/playback"
)

// Config contains TUI-specific configuration.
type Config struct {
	Facade   *playback.Facade
	Manifest assets.Manifest

	// Visuals delivers the narrator pictures the facade selects.
	Visuals <-chan assets.LineMeta

	// Velocity of the notes played from the keyboard.
	Velocity float64

	Width  int
	Height int
}
