package audio

import (
	"context"

	"github.com/charmbracelet/log"
)

// Handle controls a started sound.
type Handle interface {
	// Done is closed when the sound stopped and its resources were released.
	Done() <-chan struct{}
	// Stop fades the sound out.
	Stop()
}

// Backend plays assets. VoicePool and ElementPool implement it.
type Backend interface {
	ResolveSource(ctx context.Context, key string) error
	Play(ctx context.Context, key string, opts PlayOptions) (Handle, error)
	Preload(ctx context.Context, keys []string)
	Stop(group Group)
}

var (
	_ Backend = (*VoicePool)(nil)
	_ Backend = (*ElementPool)(nil)
)

// Engine owns both backends and the selector choosing between them.
type Engine struct {
	Device   Device
	Graph    *Graph
	Selector *Selector
	Voices   *VoicePool
	Elements *ElementPool
}

// NewEngine wires both backends to device. Assets are loaded through load
// and decoded with decoder.
func NewEngine(device Device, load SourceFunc, decoder Decoder, timing Timing) *Engine {
	graph := NewGraph()
	return &Engine{
		Device:   device,
		Graph:    graph,
		Selector: NewSelector(device, graph),
		Voices:   NewVoicePool(graph, load, decoder, timing),
		Elements: NewElementPool(device, load, decoder, timing),
	}
}

// Backend returns the backend to use right now.
func (e *Engine) Backend() Backend {
	if e.Selector.CanUseLowLatency() {
		return e.Voices
	}
	return e.Elements
}

// StopAll stops group on both backends, since a voice may have started on
// either one.
func (e *Engine) StopAll(group Group) {
	e.Voices.Stop(group)
	e.Elements.Stop(group)
}

// Close stops playback and releases the device.
func (e *Engine) Close() error {
	_ = e.Elements.Close()
	_ = e.Graph.Close()
	if err := e.Selector.Close(); err != nil {
		log.Debug("Closing graph output", "error", err)
	}
	return e.Device.Close()
}
