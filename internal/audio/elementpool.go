package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/goblinnotes/goblin/internal/failure"
)

// ElementPool is the fallback backend. Each play opens its own device
// player over a copy of a decoded template, and fades run on a frame ticker
// that also notices when a player ran out of audio.
type ElementPool struct {
	device  Device
	load    SourceFunc
	decoder Decoder
	timing  Timing

	flight singleflight.Group

	mu        sync.Mutex
	templates map[string][]byte
	active    map[*Element]struct{}
	ticking   bool
	closed    bool
}

// NewElementPool creates a pool opening players on device.
func NewElementPool(device Device, load SourceFunc, decoder Decoder, timing Timing) *ElementPool {
	if timing.Frame <= 0 {
		timing.Frame = DefaultTiming().Frame
	}
	return &ElementPool{
		device:    device,
		load:      load,
		decoder:   decoder,
		timing:    timing,
		templates: make(map[string][]byte),
		active:    make(map[*Element]struct{}),
	}
}

// Template returns the decoded PCM for key, loading it once.
func (p *ElementPool) Template(ctx context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	pcm, ok := p.templates[key]
	p.mu.Unlock()
	if ok {
		return pcm, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := p.flight.DoChan(key, func() (interface{}, error) {
		data, err := p.load(shared, key)
		if err != nil {
			return nil, err
		}
		buf, err := p.decoder.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		pcm := buf.PCM()
		p.mu.Lock()
		p.templates[key] = pcm
		p.mu.Unlock()
		return pcm, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// ResolveSource implements Backend.
func (p *ElementPool) ResolveSource(ctx context.Context, key string) error {
	_, err := p.Template(ctx, key)
	return err
}

// Play starts a new element for key. Prior elements in the group are
// paused and rewound first.
func (p *ElementPool) Play(ctx context.Context, key string, opts PlayOptions) (Handle, error) {
	e, err := p.start(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// StartLoop plays key on repeat in the stinger group until halted.
func (p *ElementPool) StartLoop(ctx context.Context, key string) (*Element, error) {
	return p.start(ctx, key, PlayOptions{Group: GroupStinger, Volume: 1, MaxDuration: NoLimit, Loop: true})
}

func (p *ElementPool) start(ctx context.Context, key string, opts PlayOptions) (*Element, error) {
	if opts.Group.steals() {
		p.Stop(opts.Group)
	}

	pcm, err := p.Template(ctx, key)
	if err != nil {
		return nil, err
	}

	var r io.Reader = bytes.NewReader(pcm)
	if opts.Loop {
		r = newLoopReader(pcm)
	}
	player, err := p.device.NewPlayer(r)
	if err != nil {
		return nil, fmt.Errorf("open player for %s: %w", key, err)
	}

	e := &Element{
		pool:   p,
		key:    key,
		group:  opts.Group,
		player: player,
		peak:   opts.peak(),
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		e.finish()
		return nil, failure.New(failure.CodeClosed, "element pool closed", failure.ErrClosed)
	}
	var stolen []*Element
	if opts.Group.steals() {
		stolen = p.takeGroupLocked(opts.Group)
	}
	player.SetVolume(e.peak)
	player.Play()
	p.active[e] = struct{}{}
	if limit := p.timing.maxDuration(opts); limit > 0 {
		e.cutoff = time.AfterFunc(limit, func() { p.fadeOut(e) })
	}
	p.ensureTickerLocked()
	p.mu.Unlock()

	haltAll(stolen)
	log.Debug("Element started", "key", key, "group", opts.Group, "volume", e.peak)
	return e, nil
}

// takeGroupLocked removes the group's elements from the active set.
func (p *ElementPool) takeGroupLocked(group Group) []*Element {
	var out []*Element
	for e := range p.active {
		if e.group == group {
			delete(p.active, e)
			out = append(out, e)
		}
	}
	return out
}

func haltAll(elements []*Element) {
	for _, e := range elements {
		e.player.Pause()
		_ = e.player.Reset()
		e.finish()
	}
}

// Stop pauses, rewinds and releases every element in group.
func (p *ElementPool) Stop(group Group) {
	p.mu.Lock()
	stolen := p.takeGroupLocked(group)
	p.mu.Unlock()
	haltAll(stolen)
}

func (p *ElementPool) halt(e *Element) {
	p.mu.Lock()
	delete(p.active, e)
	p.mu.Unlock()
	haltAll([]*Element{e})
}

func (p *ElementPool) fadeOut(e *Element) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.active[e]; !ok || e.fading {
		return
	}
	e.fading = true
	e.fadeStart = time.Now()
	e.fadeFrom = clamp01(e.player.Volume())
	p.ensureTickerLocked()
}

func (p *ElementPool) ensureTickerLocked() {
	if p.ticking || p.closed {
		return
	}
	p.ticking = true
	go p.tick()
}

// tick runs while elements are active: it advances fades and releases
// elements that faded out or reached the end of their audio.
func (p *ElementPool) tick() {
	ticker := time.NewTicker(p.timing.Frame)
	defer ticker.Stop()

	for now := range ticker.C {
		p.mu.Lock()
		var finished []*Element
		for e := range p.active {
			if e.fading {
				elapsed := now.Sub(e.fadeStart)
				e.player.SetVolume(FadeGain(e.fadeFrom, elapsed, p.timing.Fade))
				if elapsed >= p.timing.Fade {
					e.player.Pause()
					finished = append(finished, e)
				}
				continue
			}
			if !e.player.IsPlaying() {
				finished = append(finished, e)
			}
		}
		for _, e := range finished {
			delete(p.active, e)
		}
		idle := len(p.active) == 0 || p.closed
		if idle {
			p.ticking = false
		}
		p.mu.Unlock()

		for _, e := range finished {
			e.finish()
			log.Debug("Element ended", "key", e.key, "group", e.group)
		}
		if idle {
			return
		}
	}
}

// ActiveCount returns the number of live elements.
func (p *ElementPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Preload decodes templates for keys. Failures are logged and skipped.
func (p *ElementPool) Preload(ctx context.Context, keys []string) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for _, key := range dedupe(keys) {
		g.Go(func() error {
			if _, err := p.Template(ctx, key); err != nil {
				log.Warn("Preload failed", "key", key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Close halts every element. Later plays fail with failure.ErrClosed.
func (p *ElementPool) Close() error {
	p.mu.Lock()
	p.closed = true
	var all []*Element
	for e := range p.active {
		all = append(all, e)
	}
	p.active = make(map[*Element]struct{})
	p.mu.Unlock()

	haltAll(all)
	return nil
}
