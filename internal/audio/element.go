package audio

import (
	"sync"
	"time"
)

// Element is one playable instance on its own device player. Elements never
// share a reader, so overlapping plays of the same asset keep separate
// positions.
type Element struct {
	pool   *ElementPool
	key    string
	group  Group
	player Player
	peak   float64

	// guarded by pool.mu
	fading    bool
	fadeStart time.Time
	fadeFrom  float64
	cutoff    *time.Timer

	done chan struct{}
	once sync.Once
}

// Done is closed once the element stopped and its player was released.
func (e *Element) Done() <-chan struct{} { return e.done }

// Stop fades the element out over the fade window.
func (e *Element) Stop() {
	e.pool.fadeOut(e)
}

// Halt pauses and rewinds the element immediately and releases it.
func (e *Element) Halt() {
	e.pool.halt(e)
}

// Volume returns the player volume.
func (e *Element) Volume() float64 {
	return e.player.Volume()
}

// Key returns the asset the element plays.
func (e *Element) Key() string { return e.key }

func (e *Element) finish() {
	e.once.Do(func() {
		if e.cutoff != nil {
			e.cutoff.Stop()
		}
		_ = e.player.Close()
		close(e.done)
	})
}
