package audio

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// LoopPlayer plays one looping stinger shared by any number of callers.
// The loop starts with the first Play and stops when every Play has been
// matched by a Stop.
type LoopPlayer struct {
	pool *ElementPool
	key  string

	mu      sync.Mutex
	count   int
	gen     uint64 // bumped on every start and halt
	element *Element
}

// NewLoopPlayer creates a loop for key.
func NewLoopPlayer(pool *ElementPool, key string) *LoopPlayer {
	return &LoopPlayer{pool: pool, key: key}
}

// Play adds a reference, starting the loop on the first one.
func (l *LoopPlayer) Play(ctx context.Context) error {
	l.mu.Lock()
	l.count++
	if l.count > 1 {
		l.mu.Unlock()
		return nil
	}
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	e, err := l.pool.StartLoop(ctx, l.key)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen || l.count == 0 {
		// stopped, or restarted by a later Play, while loading
		if e != nil {
			e.Halt()
		}
		return err
	}
	if err != nil {
		l.count = 0
		log.Error("Loop failed to start", "key", l.key, "error", err)
		return err
	}
	l.element = e
	return nil
}

// Stop drops a reference and halts the loop on the last one.
func (l *LoopPlayer) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count > 0 {
		l.count--
	}
	if l.count == 0 {
		l.haltLocked()
	}
}

// Reset halts the loop regardless of references.
func (l *LoopPlayer) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count = 0
	l.haltLocked()
}

// Playing reports whether the loop holds references.
func (l *LoopPlayer) Playing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count > 0
}

func (l *LoopPlayer) haltLocked() {
	l.gen++
	if l.element != nil {
		l.element.Halt()
		l.element = nil
	}
}

// OneShot plays a stinger once per call; calls may overlap.
type OneShot struct {
	pool *ElementPool
	key  string
}

// NewOneShot creates a one-shot for key.
func NewOneShot(pool *ElementPool, key string) *OneShot {
	return &OneShot{pool: pool, key: key}
}

// Play starts the stinger at full volume.
func (o *OneShot) Play(ctx context.Context) (Handle, error) {
	h, err := o.pool.Play(ctx, o.key, PlayOptions{Group: GroupStinger, Volume: 1, MaxDuration: NoLimit})
	if err != nil {
		log.Error("Stinger failed", "key", o.key, "error", err)
		return nil, err
	}
	return h, nil
}
