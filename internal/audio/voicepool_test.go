package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goblinnotes/goblin/internal/failure"
)

// testSource serves the key itself as asset bytes and counts loads.
type testSource struct {
	loads atomic.Int32
	delay time.Duration
}

func (s *testSource) load(ctx context.Context, key string) ([]byte, error) {
	s.loads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if key == "missing" {
		return nil, failure.New(failure.CodeFetch, "not found", nil)
	}
	return []byte(key), nil
}

// testDecoder decodes any payload into a constant buffer of frames, except
// "corrupt".
func testDecoder(frames int) Decoder {
	return DecoderFunc(func(data []byte) (*Buffer, error) {
		if string(data) == "corrupt" {
			return nil, failure.New(failure.CodeDecode, "bad data", nil)
		}
		return constBuffer(frames, 0.5), nil
	})
}

func render(g *Graph, frames int) {
	p := make([]byte, 441*frameBytes)
	for frames > 0 {
		n := 441
		if frames < n {
			n = frames
		}
		_, _ = g.Read(p[:n*frameBytes])
		frames -= n
	}
}

func isDone(h Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

func TestVoicePool_StealLeavesOneFullVoice(t *testing.T) {
	g := NewGraph()
	src := &testSource{}
	timing := DefaultTiming()
	pool := NewVoicePool(g, src.load, testDecoder(2*SampleRate), timing)
	ctx := context.Background()

	a, err := pool.Play(ctx, "c4", PlayOptions{Velocity: 1, Group: GroupNotes})
	if err != nil {
		t.Fatalf("Play(a) error = %v", err)
	}
	render(g, SampleRate/10)

	voiceA := a.(*Voice)
	if got := voiceA.Gain(); got != 1 {
		t.Fatalf("A gain before steal = %v, want 1", got)
	}

	b, err := pool.Play(ctx, "e4", PlayOptions{Velocity: 1, Group: GroupNotes})
	if err != nil {
		t.Fatalf("Play(b) error = %v", err)
	}
	voiceB := b.(*Voice)
	render(g, int(toFrames(timing.Attack.Seconds()))+1)

	full := 0
	for _, v := range []*Voice{voiceA, voiceB} {
		if v.Gain() >= 1 {
			full++
		}
	}
	if full != 1 {
		t.Errorf("%d voices at full gain after attack, want 1", full)
	}
	if voiceB.Gain() != 1 {
		t.Errorf("B gain = %v, want 1", voiceB.Gain())
	}
	if gain := voiceA.Gain(); gain >= 1 || gain <= 0 {
		t.Errorf("A gain = %v, want fading between 0 and 1", gain)
	}

	active := pool.Active(GroupNotes)
	if len(active) != 1 || active[0] != voiceB {
		t.Errorf("active voices = %v, want only B", active)
	}

	render(g, SampleRate/2)
	if !isDone(voiceA) {
		t.Error("stolen voice not released after its fade")
	}
	if voiceA.Gain() != 0 {
		t.Errorf("A gain after fade = %v, want 0", voiceA.Gain())
	}
	if isDone(voiceB) {
		t.Error("B released early")
	}
}

func TestVoicePool_Envelope(t *testing.T) {
	g := NewGraph()
	src := &testSource{}
	timing := DefaultTiming()
	pool := NewVoicePool(g, src.load, testDecoder(3*SampleRate), timing)

	h, err := pool.Play(context.Background(), "c4", PlayOptions{Velocity: 0.5, Group: GroupNotes})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	v := h.(*Voice)

	wantPeak := 0.5 * Boost
	if !approx(v.Gain(), 0) {
		t.Errorf("gain at start = %v, want 0", v.Gain())
	}

	render(g, SampleRate/2)
	if !approx(v.Gain(), wantPeak) {
		t.Errorf("sustain gain = %v, want %v", v.Gain(), wantPeak)
	}

	wantFadeStop := timing.MaxNoteDuration.Seconds() + timing.Fade.Seconds()
	if !approx(v.fadeStopTime, wantFadeStop) {
		t.Errorf("fade stop = %v, want %v", v.fadeStopTime, wantFadeStop)
	}
	if !approx(v.naturalStopTime, 3) {
		t.Errorf("natural stop = %v, want 3", v.naturalStopTime)
	}

	render(g, SampleRate)
	if !isDone(v) {
		t.Error("voice not stopped after max duration plus fade")
	}
	if len(pool.Active(GroupNotes)) != 0 {
		t.Error("voice still active")
	}
	if g.Len() != 0 {
		t.Errorf("graph still holds %d sources", g.Len())
	}
}

func TestVoicePool_NaturalEnd(t *testing.T) {
	g := NewGraph()
	src := &testSource{}
	pool := NewVoicePool(g, src.load, testDecoder(SampleRate/10), DefaultTiming())

	h, err := pool.Play(context.Background(), "goblin/hello", PlayOptions{Group: GroupNarrator, Volume: 0.55})
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	render(g, SampleRate/20)
	if isDone(h) {
		t.Fatal("voice ended early")
	}
	if !approx(h.(*Voice).Gain(), 0.55) {
		t.Errorf("gain = %v, want 0.55", h.(*Voice).Gain())
	}

	render(g, SampleRate/10)
	if !isDone(h) {
		t.Error("voice not released at end of buffer")
	}
}

func TestVoicePool_GroupsAreIndependent(t *testing.T) {
	g := NewGraph()
	src := &testSource{}
	pool := NewVoicePool(g, src.load, testDecoder(SampleRate), DefaultTiming())
	ctx := context.Background()

	note, _ := pool.Play(ctx, "c4", PlayOptions{Velocity: 1, Group: GroupNotes})
	line, _ := pool.Play(ctx, "hello", PlayOptions{Volume: 0.55, Group: GroupNarrator})
	first, _ := pool.Play(ctx, "win", PlayOptions{Volume: 1, Group: GroupStinger})
	second, _ := pool.Play(ctx, "win", PlayOptions{Volume: 1, Group: GroupStinger})
	render(g, SampleRate/10)

	for name, h := range map[string]Handle{"note": note, "line": line, "first": first, "second": second} {
		if h.(*Voice).Gain() <= 0 {
			t.Errorf("%s was stolen", name)
		}
	}
	if n := len(pool.Active(GroupStinger)); n != 2 {
		t.Errorf("stinger voices = %d, want 2", n)
	}
	// overlapping stingers hold their peak, neither starts fading
	if got := first.(*Voice).Gain(); got != 1 {
		t.Errorf("first stinger gain = %v, want 1", got)
	}
}

func TestVoicePool_ResolveBufferCoalesces(t *testing.T) {
	src := &testSource{delay: 20 * time.Millisecond}
	pool := NewVoicePool(NewGraph(), src.load, testDecoder(100), DefaultTiming())

	var wg sync.WaitGroup
	bufs := make([]*Buffer, 8)
	for i := range bufs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf, err := pool.ResolveBuffer(context.Background(), "c4")
			if err != nil {
				t.Errorf("ResolveBuffer() error = %v", err)
			}
			bufs[i] = buf
		}(i)
	}
	wg.Wait()

	if n := src.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
	for i, buf := range bufs {
		if buf != bufs[0] {
			t.Errorf("caller %d got a different buffer", i)
		}
	}
}

func TestVoicePool_ResolveBufferErrors(t *testing.T) {
	src := &testSource{}
	pool := NewVoicePool(NewGraph(), src.load, testDecoder(100), DefaultTiming())
	ctx := context.Background()

	if _, err := pool.ResolveBuffer(ctx, "missing"); !errors.Is(err, failure.ErrFetch) {
		t.Errorf("missing asset error = %v, want ErrFetch", err)
	}
	if _, err := pool.ResolveBuffer(ctx, "corrupt"); !errors.Is(err, failure.ErrDecode) {
		t.Errorf("corrupt asset error = %v, want ErrDecode", err)
	}

	// failures are not cached
	before := src.loads.Load()
	_, _ = pool.ResolveBuffer(ctx, "missing")
	if src.loads.Load() != before+1 {
		t.Error("failed load was cached")
	}
}

func TestVoicePool_ResolveBufferCancelled(t *testing.T) {
	src := &testSource{delay: 50 * time.Millisecond}
	pool := NewVoicePool(NewGraph(), src.load, testDecoder(100), DefaultTiming())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.ResolveBuffer(ctx, "c4"); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	// the shared load still completes and is kept
	time.Sleep(100 * time.Millisecond)
	if _, err := pool.ResolveBuffer(context.Background(), "c4"); err != nil {
		t.Fatalf("ResolveBuffer() error = %v", err)
	}
	if n := src.loads.Load(); n != 1 {
		t.Errorf("loads = %d, want 1", n)
	}
}

func TestVoicePool_Preload(t *testing.T) {
	src := &testSource{}
	pool := NewVoicePool(NewGraph(), src.load, testDecoder(100), DefaultTiming())
	ctx := context.Background()

	pool.Preload(ctx, []string{"c4", "missing", "c4", "corrupt", "d4"})

	before := src.loads.Load()
	for _, key := range []string{"c4", "d4"} {
		if _, err := pool.ResolveBuffer(ctx, key); err != nil {
			t.Errorf("ResolveBuffer(%q) error = %v", key, err)
		}
	}
	if src.loads.Load() != before {
		t.Error("preloaded buffers were loaded again")
	}
}

func TestVoicePool_Stop(t *testing.T) {
	g := NewGraph()
	src := &testSource{}
	pool := NewVoicePool(g, src.load, testDecoder(2*SampleRate), DefaultTiming())

	h, _ := pool.Play(context.Background(), "hello", PlayOptions{Volume: 0.55, Group: GroupNarrator})
	render(g, SampleRate/10)

	pool.Stop(GroupNarrator)
	if len(pool.Active(GroupNarrator)) != 0 {
		t.Error("voice still active after Stop")
	}
	render(g, SampleRate/2)
	if !isDone(h) {
		t.Error("voice not released after Stop")
	}
}

func TestGraph_MixesAndClamps(t *testing.T) {
	g := NewGraph()
	buf := constBuffer(100, 0.75)
	g.Do(func(now float64) {
		for i := 0; i < 2; i++ {
			gain := NewParam(1)
			g.add(&Source{buf: buf, gain: gain, start: 0, stop: never})
		}
	})

	p := make([]byte, 10*frameBytes)
	n, err := g.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("Read() = %d, %v", n, err)
	}
	if got := readSample(p, 0); got != 1 {
		t.Errorf("mixed sample = %v, want clamped 1", got)
	}

	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Read(p); err == nil {
		t.Error("Read after Close should fail")
	}
}
