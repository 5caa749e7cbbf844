package audio

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/goblinnotes/goblin/internal/failure"
)

// State is the graph backend's availability.
type State int

const (
	StateUninitialized State = iota
	StateProbing
	StateRunning
	StateLocked
	StateUnsupported
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProbing:
		return "probing"
	case StateRunning:
		return "running"
	case StateLocked:
		return "locked"
	case StateUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Selector decides whether the graph backend may be used and runs the
// one-time unlock of the output.
type Selector struct {
	device Device
	graph  *Graph

	mu     sync.Mutex
	state  State
	output Player
}

// NewSelector creates a selector that streams graph to device once
// unlocked.
func NewSelector(device Device, graph *Graph) *Selector {
	return &Selector{device: device, graph: graph}
}

// Acquire lazily opens the graph output. A device that cannot open it makes
// the graph backend unsupported for good.
func (s *Selector) Acquire() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquireLocked()
	return s.state
}

func (s *Selector) acquireLocked() {
	if s.state != StateUninitialized {
		return
	}
	if s.device == nil || s.graph == nil {
		s.state = StateUnsupported
		return
	}

	player, err := s.device.NewPlayer(s.graph)
	if err != nil {
		log.Warn("Low-latency audio unavailable, using element playback", "error", err)
		s.state = StateUnsupported
		return
	}
	s.output = player
	s.state = StateProbing
	log.Debug("Audio graph output created")
}

// Unlock resumes the output and starts the graph stream. fromUserGesture
// marks the call as triggered by a key press; without one a policy
// rejection is expected and only logged at debug level. It reports whether
// the graph backend is running.
func (s *Selector) Unlock(ctx context.Context, fromUserGesture bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.acquireLocked()
	switch s.state {
	case StateUnsupported:
		return false
	case StateRunning:
		return true
	}

	if fromUserGesture {
		ctx = WithUserGesture(ctx)
	}
	if err := s.device.Resume(ctx); err != nil {
		s.state = StateLocked
		switch {
		case isPolicyRejection(err) && !fromUserGesture:
			log.Debug("Audio resume deferred until user gesture", "error", err)
		case fromUserGesture:
			log.Warn("Audio resume rejected", "error", err)
		default:
			log.Error("Audio resume failed", "error", err)
		}
		return false
	}

	s.output.Play()
	s.state = StateRunning
	log.Debug("Audio unlocked", "gesture", fromUserGesture)
	return true
}

func isPolicyRejection(err error) bool {
	return errors.Is(err, failure.ErrPlaybackBlocked) || strings.Contains(err.Error(), "NotAllowedError")
}

// CanUseLowLatency reports whether plays may go to the graph backend.
func (s *Selector) CanUseLowLatency() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

// ForceUnsupported pins the selector to element playback.
func (s *Selector) ForceUnsupported() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output != nil {
		_ = s.output.Close()
		s.output = nil
	}
	s.state = StateUnsupported
}

// State returns the current state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the graph output.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.output == nil {
		return nil
	}
	err := s.output.Close()
	s.output = nil
	return err
}
