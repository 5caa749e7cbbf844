// Package playback is the public surface of the audio engine: notes,
// narrator lines, stingers and asset caching behind one Facade.
package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/cache"
	"github.com/goblinnotes/goblin/internal/failure"
)

// NarratorVolume is the fixed peak gain of narrator lines.
const NarratorVolume = 0.55

// Visual receives the narrator picture to show.
type Visual interface {
	SetVisual(meta assets.LineMeta)
}

// VisualFunc adapts a function to Visual.
type VisualFunc func(meta assets.LineMeta)

// SetVisual calls f(meta).
func (f VisualFunc) SetVisual(meta assets.LineMeta) { f(meta) }

// VoiceLineOptions controls PlayVoiceLine.
type VoiceLineOptions struct {
	WithAudio bool
}

// Facade routes play requests to whichever backend the engine selects at
// call time. Notes and narrator lines use separate voice groups, so notes
// keep playing while a line is queued.
type Facade struct {
	cache  *cache.AssetCache
	engine *audio.Engine
	visual Visual
	guard  GenerationGuard

	// visualMu orders picture changes against the generation guard.
	visualMu sync.Mutex

	mu         sync.Mutex
	pending    <-chan struct{}
	visualLine assets.LineID
	linePlayed bool
}

// New creates a facade. visual may be nil.
func New(assetCache *cache.AssetCache, engine *audio.Engine, visual Visual) *Facade {
	if visual == nil {
		visual = VisualFunc(func(assets.LineMeta) {})
	}
	return &Facade{
		cache:   assetCache,
		engine:  engine,
		visual:  visual,
		pending: settled(),
	}
}

func settled() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// PlayNote plays a piano note. A malformed note is returned as an
// InvalidIdentifier error; playback failures are logged and absorbed.
func (f *Facade) PlayNote(ctx context.Context, note string, velocity float64) error {
	path, err := assets.NotePath(note)
	if err != nil {
		return err
	}

	opts := audio.PlayOptions{Velocity: velocity, Group: audio.GroupNotes}
	if _, err := f.engine.Backend().Play(ctx, path, opts); err != nil {
		log.Error("Note playback failed", "note", note, "error", err)
	}
	return nil
}

// PreloadNotes decodes the samples of notes ahead of need. Malformed notes
// and failed loads are logged and skipped.
func (f *Facade) PreloadNotes(ctx context.Context, notes []string) {
	paths := make([]string, 0, len(notes))
	for _, note := range notes {
		path, err := assets.NotePath(note)
		if err != nil {
			log.Warn("Skipping note in preload", "error", err)
			continue
		}
		paths = append(paths, path)
	}
	f.Preload(ctx, paths)
}

// Preload resolves asset keys on the current backend, deduplicated.
func (f *Facade) Preload(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	f.engine.Backend().Preload(ctx, keys)
}

// PlayVoiceLine shows the line's picture immediately and queues its audio
// behind any line still playing. Lines never overlap. The returned channel
// is closed when this request settled, whether it played, failed or was
// skipped because a newer request superseded it. Only the newest request
// resets the picture to hello when its audio ends.
//
// Without audio, the current line is stopped and the picture goes back to
// hello at once.
func (f *Facade) PlayVoiceLine(ctx context.Context, id assets.LineID, opts VoiceLineOptions) (<-chan struct{}, error) {
	meta, ok := assets.Line(id)
	if !ok {
		return nil, failure.New(failure.CodeInvalidIdentifier, fmt.Sprintf("unknown voice line %q", id), nil).
			WithContext("line", string(id))
	}

	f.visualMu.Lock()
	token := f.guard.Next()
	f.setVisualLocked(meta)
	f.visualMu.Unlock()

	if !opts.WithAudio {
		f.mu.Lock()
		f.pending = settled()
		f.mu.Unlock()

		f.engine.StopAll(audio.GroupNarrator)
		if id != assets.LineHello {
			hello, _ := assets.Line(assets.LineHello)
			f.setVisualIfCurrent(token, hello)
		}
		return settled(), nil
	}

	done := make(chan struct{})
	f.mu.Lock()
	prev := f.pending
	f.pending = done
	f.mu.Unlock()

	go func() {
		defer close(done)
		// the previous link always settles, so waiting here keeps lines
		// strictly serial even when ctx is cancelled
		<-prev
		if !f.guard.IsCurrent(token) || ctx.Err() != nil {
			log.Debug("Voice line superseded", "line", id)
			return
		}
		f.playLine(ctx, token, meta)
	}()
	return done, nil
}

func (f *Facade) playLine(ctx context.Context, token Token, meta assets.LineMeta) {
	opts := audio.PlayOptions{Group: audio.GroupNarrator, Volume: NarratorVolume}
	h, err := f.engine.Backend().Play(ctx, meta.AudioPath(), opts)
	if err != nil {
		log.Error("Voice line failed", "line", meta.ID, "error", err)
		return
	}

	completed := true
	select {
	case <-h.Done():
	case <-ctx.Done():
		completed = false
		h.Stop()
		<-h.Done()
	}

	if completed {
		f.mu.Lock()
		f.linePlayed = true
		f.mu.Unlock()
	}

	hello, _ := assets.Line(assets.LineHello)
	f.setVisualIfCurrent(token, hello)
	log.Debug("Voice line finished", "line", meta.ID, "completed", completed)
}

// setVisualIfCurrent shows meta unless a newer request took over.
func (f *Facade) setVisualIfCurrent(token Token, meta assets.LineMeta) bool {
	f.visualMu.Lock()
	defer f.visualMu.Unlock()
	if !f.guard.IsCurrent(token) {
		return false
	}
	f.setVisualLocked(meta)
	return true
}

// setVisualLocked must be called with visualMu held. The host Visual must
// not call back into the facade.
func (f *Facade) setVisualLocked(meta assets.LineMeta) {
	f.mu.Lock()
	f.visualLine = meta.ID
	f.mu.Unlock()
	f.visual.SetVisual(meta)
}

// VisualLine returns the line whose picture is showing.
func (f *Facade) VisualLine() assets.LineID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visualLine
}

// HasLinePlayedSuccessfully reports whether any narrator line has played to
// its end.
func (f *Facade) HasLinePlayedSuccessfully() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linePlayed
}

// WaitForVoiceLine blocks until the queued narrator lines settled.
func (f *Facade) WaitForVoiceLine(ctx context.Context) error {
	f.mu.Lock()
	pending := f.pending
	f.mu.Unlock()

	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WarmUp loads a line and tries a silent unlock, so the first audible
// request does not pay for decoding or the output start.
func (f *Facade) WarmUp(ctx context.Context, id assets.LineID) error {
	meta, ok := assets.Line(id)
	if !ok {
		return failure.New(failure.CodeInvalidIdentifier, fmt.Sprintf("unknown voice line %q", id), nil)
	}
	f.Unlock(ctx, false)
	if err := f.engine.Backend().ResolveSource(ctx, meta.AudioPath()); err != nil {
		log.Warn("Warm-up failed", "line", id, "error", err)
	}
	return nil
}

// Unlock starts the low-latency output. Pass fromUserGesture when called
// from a key press.
func (f *Facade) Unlock(ctx context.Context, fromUserGesture bool) bool {
	return f.engine.Selector.Unlock(ctx, fromUserGesture)
}

// EnsureAssetCached persists a cacheable asset, or primes a non-cacheable
// one, and returns the payload when one is stored.
func (f *Facade) EnsureAssetCached(ctx context.Context, asset assets.Asset) (string, bool) {
	return f.cache.EnsureCached(ctx, asset)
}

// EnsureAssetsCached runs the manifest through the cache one asset at a time.
func (f *Facade) EnsureAssetsCached(ctx context.Context, manifest assets.Manifest, onProgress func(cache.Progress)) error {
	return f.cache.EnsureAllCached(ctx, manifest, onProgress)
}

// IsStorageAvailable reports whether assets persist across sessions.
func (f *Facade) IsStorageAvailable() bool {
	return f.cache.IsStorageAvailable()
}

// Engine returns the audio engine.
func (f *Facade) Engine() *audio.Engine {
	return f.engine
}
