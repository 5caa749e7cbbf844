package playback

import (
	"context"
	"sync"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/audio"
)

// Role names a score display.
type Role string

const (
	RolePotential Role = "potential"
	RoleTotal     Role = "total"
)

// Scoreboard plays the stingers that accompany score animations: a loop
// while the potential score climbs, a loop while any score drops and a win
// jingle when a pending win lands on the total.
//
// The Animation methods block until a stinger has started.
type Scoreboard struct {
	preWin *audio.LoopPlayer
	lose   *audio.LoopPlayer
	win    *audio.OneShot

	mu         sync.Mutex
	winPending bool
}

// NewScoreboard creates the stingers on pool.
func NewScoreboard(pool *audio.ElementPool) *Scoreboard {
	return &Scoreboard{
		preWin: audio.NewLoopPlayer(pool, assets.StingerPreWin),
		lose:   audio.NewLoopPlayer(pool, assets.StingerLose),
		win:    audio.NewOneShot(pool, assets.StingerWin),
	}
}

// MarkWinTransfer arms the win jingle for the next rising total.
func (s *Scoreboard) MarkWinTransfer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.winPending = true
}

// AnimationStart is called when a score starts counting in direction.
func (s *Scoreboard) AnimationStart(ctx context.Context, role Role, direction int) {
	switch {
	case direction > 0 && role == RolePotential:
		_ = s.preWin.Play(ctx)
	case direction < 0:
		_ = s.lose.Play(ctx)
	}
}

// AnimationEnd is called when a score animation finished or was cut short.
func (s *Scoreboard) AnimationEnd(ctx context.Context, role Role, direction int, completed bool) {
	if direction > 0 && role == RolePotential {
		s.preWin.Stop()
		return
	}
	if direction < 0 {
		s.lose.Stop()
	}
	if direction > 0 && role == RoleTotal {
		s.mu.Lock()
		pending := s.winPending
		s.winPending = false
		s.mu.Unlock()

		if pending && completed {
			_, _ = s.win.Play(ctx)
		}
	}
}

// Reset silences both loops and disarms the win jingle.
func (s *Scoreboard) Reset() {
	s.preWin.Reset()
	s.lose.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.winPending = false
}

// WinPending reports whether a win transfer is armed.
func (s *Scoreboard) WinPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winPending
}
