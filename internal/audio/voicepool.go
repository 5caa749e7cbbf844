package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Group is a logical voice group. Starting a voice steals the voices already
// sounding in its group.
type Group int

const (
	GroupNotes Group = iota
	GroupNarrator
	GroupStinger
)

func (g Group) String() string {
	switch g {
	case GroupNotes:
		return "notes"
	case GroupNarrator:
		return "narrator"
	case GroupStinger:
		return "stinger"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// steals reports whether a new voice fades the others. Stingers are managed
// by LoopPlayer reference counts and never steal.
func (g Group) steals() bool {
	return g != GroupStinger
}

// Timing holds the envelope constants shared by both backends.
type Timing struct {
	Attack          time.Duration
	Fade            time.Duration
	MaxNoteDuration time.Duration
	StopMargin      time.Duration
	Frame           time.Duration
}

// DefaultTiming returns the tuned envelope.
func DefaultTiming() Timing {
	return Timing{
		Attack:          15 * time.Millisecond,
		Fade:            240 * time.Millisecond,
		MaxNoteDuration: 1200 * time.Millisecond,
		StopMargin:      30 * time.Millisecond,
		Frame:           16 * time.Millisecond,
	}
}

// NoLimit disables the max-duration cutoff in PlayOptions.
const NoLimit time.Duration = -1

// Boost scales note velocity into peak gain.
const Boost = 1.3

// PlayOptions describes one play request.
type PlayOptions struct {
	Velocity float64
	Group    Group

	// Volume, when positive, is the peak gain and Velocity is ignored.
	Volume float64

	// MaxDuration caps playback before the fade. Zero uses the group default:
	// notes are capped at Timing.MaxNoteDuration, other groups play out.
	MaxDuration time.Duration

	Loop bool
}

func (o PlayOptions) peak() float64 {
	if o.Volume > 0 {
		return clamp01(o.Volume)
	}
	return clamp01(math.Min(1, o.Velocity*Boost))
}

func (t Timing) maxDuration(o PlayOptions) time.Duration {
	switch {
	case o.MaxDuration > 0:
		return o.MaxDuration
	case o.MaxDuration < 0:
		return 0
	case o.Group == GroupNotes:
		return t.MaxNoteDuration
	default:
		return 0
	}
}

// SourceFunc loads the encoded bytes of an asset.
type SourceFunc func(ctx context.Context, key string) ([]byte, error)

// Voice is one sound scheduled on the graph.
type Voice struct {
	pool   *VoicePool
	key    string
	group  Group
	source *Source
	gain   *Param

	startTime       float64
	naturalStopTime float64
	fadeStopTime    float64

	done chan struct{}
	once sync.Once
}

// Done is closed when the voice has stopped and left the graph.
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stop fades the voice out.
func (v *Voice) Stop() {
	v.pool.graph.Do(func(now float64) {
		v.pool.mu.Lock()
		defer v.pool.mu.Unlock()
		v.pool.fadeLocked(v, now)
	})
}

// Gain returns the voice gain at the current graph time.
func (v *Voice) Gain() float64 {
	var g float64
	v.pool.graph.Do(func(now float64) {
		g = v.gain.ValueAt(now)
	})
	return g
}

// Key returns the asset the voice plays.
func (v *Voice) Key() string { return v.key }

func (v *Voice) finish() {
	v.once.Do(func() { close(v.done) })
}

// VoicePool is the graph backend. Decoded buffers are cached for the life
// of the pool.
type VoicePool struct {
	graph   *Graph
	load    SourceFunc
	decoder Decoder
	timing  Timing

	flight singleflight.Group

	mu      sync.Mutex
	buffers map[string]*Buffer
	active  map[Group]map[*Voice]struct{}
}

// NewVoicePool creates a pool scheduling on graph.
func NewVoicePool(graph *Graph, load SourceFunc, decoder Decoder, timing Timing) *VoicePool {
	return &VoicePool{
		graph:   graph,
		load:    load,
		decoder: decoder,
		timing:  timing,
		buffers: make(map[string]*Buffer),
		active:  make(map[Group]map[*Voice]struct{}),
	}
}

// ResolveBuffer returns the decoded buffer for key. Concurrent calls for the
// same key share one load and decode. A cancelled ctx stops waiting, but the
// shared work still completes and is cached.
func (p *VoicePool) ResolveBuffer(ctx context.Context, key string) (*Buffer, error) {
	p.mu.Lock()
	buf, ok := p.buffers[key]
	p.mu.Unlock()
	if ok {
		return buf, nil
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
		p.mu.Lock()
		p.buffers[key] = buf
		p.mu.Unlock()
		log.Debug("Buffer decoded", "key", key, "duration", buf.Duration())
		return buf, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Buffer), nil
	}
}

// ResolveSource implements Backend.
func (p *VoicePool) ResolveSource(ctx context.Context, key string) error {
	_, err := p.ResolveBuffer(ctx, key)
	return err
}

// Play schedules key on the graph. Voices already in the group begin fading
// before the buffer is resolved and again right before the new attack, so
// voices started while this one was loading are faded too.
func (p *VoicePool) Play(ctx context.Context, key string, opts PlayOptions) (Handle, error) {
	if opts.Group.steals() {
		p.Stop(opts.Group)
	}

	buf, err := p.ResolveBuffer(ctx, key)
	if err != nil {
		return nil, err
	}

	v := &Voice{
		pool:  p,
		key:   key,
		group: opts.Group,
		done:  make(chan struct{}),
	}
	p.graph.Do(func(now float64) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if opts.Group.steals() {
			p.stealLocked(opts.Group, now)
		}
		p.scheduleLocked(v, buf, opts, now)
		p.graph.add(v.source)
		if p.active[opts.Group] == nil {
			p.active[opts.Group] = make(map[*Voice]struct{})
		}
		p.active[opts.Group][v] = struct{}{}
	})

	log.Debug("Voice started",
		"key", key,
		"group", opts.Group,
		"peak", opts.peak(),
		"natural_stop", v.naturalStopTime,
		"fade_stop", v.fadeStopTime)
	return v, nil
}

// scheduleLocked builds the envelope: attack to peak, hold until the
// max-duration cutoff, fade to silence, stop after a short margin.
func (p *VoicePool) scheduleLocked(v *Voice, buf *Buffer, opts PlayOptions, now float64) {
	peak := opts.peak()
	attack := p.timing.Attack.Seconds()
	fade := p.timing.Fade.Seconds()

	gain := NewParam(0)
	gain.SetValueAt(0, now)
	gain.LinearRampTo(peak, now+attack)

	natural := now + buf.Duration().Seconds()
	if opts.Loop {
		natural = math.Inf(1)
	}
	stop := natural
	fadeStop := natural

	if limit := p.timing.maxDuration(opts); limit > 0 {
		holdEnd := math.Max(now+limit.Seconds(), now+attack)
		if holdEnd < natural {
			gain.SetValueAt(peak, holdEnd)
			gain.LinearRampTo(0, holdEnd+fade)
			fadeStop = holdEnd + fade
			stop = fadeStop + p.timing.StopMargin.Seconds()
		}
	}

	v.gain = gain
	v.startTime = now
	v.naturalStopTime = natural
	v.fadeStopTime = fadeStop
	v.source = &Source{
		buf:     buf,
		gain:    gain,
		start:   toFrames(now),
		stop:    toFrames(stop),
		loop:    opts.Loop,
		onEnded: func() { p.release(v) },
	}
}

// stealLocked fades every active voice in group from its current gain.
func (p *VoicePool) stealLocked(group Group, now float64) {
	for v := range p.active[group] {
		p.fadeLocked(v, now)
	}
}

func (p *VoicePool) fadeLocked(v *Voice, now float64) {
	end := now + p.timing.Fade.Seconds()
	v.gain.CancelAndHold(now)
	v.gain.LinearRampTo(0, end)
	v.source.setStop(end)
	if end < v.fadeStopTime {
		v.fadeStopTime = end
	}
	delete(p.active[v.group], v)
}

func (p *VoicePool) release(v *Voice) {
	p.mu.Lock()
	delete(p.active[v.group], v)
	p.mu.Unlock()
	v.finish()
	log.Debug("Voice ended", "key", v.key, "group", v.group)
}

// Stop fades every voice in group.
func (p *VoicePool) Stop(group Group) {
	p.graph.Do(func(now float64) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.stealLocked(group, now)
	})
}

// Active returns the voices sounding in group that have not been stolen.
func (p *VoicePool) Active(group Group) []*Voice {
	p.mu.Lock()
	defer p.mu.Unlock()

	voices := make([]*Voice, 0, len(p.active[group]))
	for v := range p.active[group] {
		voices = append(voices, v)
	}
	return voices
}

// Preload resolves keys ahead of need. Failures are logged and skipped.
func (p *VoicePool) Preload(ctx context.Context, keys []string) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for _, key := range dedupe(keys) {
		g.Go(func() error {
			if _, err := p.ResolveBuffer(ctx, key); err != nil {
				log.Warn("Preload failed", "key", key, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

const preloadConcurrency = 4

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
