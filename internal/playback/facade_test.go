package playback

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/cache"
	"github.com/goblinnotes/goblin/internal/failure"
	"github.com/goblinnotes/goblin/internal/fetch"
)

// visualRecorder records every picture the facade shows.
type visualRecorder struct {
	mu  sync.Mutex
	ids []assets.LineID
}

func (r *visualRecorder) SetVisual(meta assets.LineMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, meta.ID)
}

func (r *visualRecorder) seen() []assets.LineID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]assets.LineID(nil), r.ids...)
}

type harness struct {
	dev     *audio.MockDevice
	engine  *audio.Engine
	facade  *Facade
	visuals *visualRecorder
}

// gameFiles holds every manifest asset under its on-disk name.
func gameFiles() fstest.MapFS {
	files := fstest.MapFS{}
	for _, a := range assets.DefaultManifest() {
		name, _ := url.PathUnescape(a.Key())
		files[name] = &fstest.MapFile{Data: []byte("data:" + name)}
	}
	return files
}

// shortDecoder decodes every asset into 50ms of audio.
var shortDecoder = audio.DecoderFunc(func(data []byte) (*audio.Buffer, error) {
	return audio.NewBuffer(make([]float32, audio.SampleRate/20*audio.Channels)), nil
})

func newHarness(t *testing.T, opts audio.MockOptions, files fstest.MapFS) *harness {
	t.Helper()

	fetcher := fetch.NewCachingFetcher(fetch.NewDirFetcher(files), 1<<20)
	assetCache := cache.NewAssetCache(cache.NewQuotaMemoryCache(1<<20), fetcher, cache.DefaultNamespace, cache.DefaultVersion)
	dev := audio.NewMockDevice(opts)
	engine := audio.NewEngine(dev, assetCache.Source, shortDecoder, audio.DefaultTiming())
	t.Cleanup(func() { _ = engine.Close() })

	visuals := &visualRecorder{}
	return &harness{
		dev:     dev,
		engine:  engine,
		facade:  New(assetCache, engine, visuals),
		visuals: visuals,
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for voice line")
	}
}

func TestPlayNote_FallsBackToElements(t *testing.T) {
	h := newHarness(t, audio.MockOptions{Realtime: true}, gameFiles())
	h.engine.Selector.ForceUnsupported()

	if err := h.facade.PlayNote(context.Background(), "C4", 1); err != nil {
		t.Fatalf("PlayNote() error = %v", err)
	}
	if h.engine.Elements.ActiveCount() != 1 {
		t.Errorf("active elements = %d, want 1", h.engine.Elements.ActiveCount())
	}

	eventually(t, "element cleanup", func() bool {
		return h.engine.Elements.ActiveCount() == 0
	})
	if h.dev.PlayersCreated != 1 {
		t.Errorf("players created = %d, want 1", h.dev.PlayersCreated)
	}
	eventually(t, "player close", func() bool {
		return len(h.dev.Players()) == 0
	})
}

func TestPlayNote_UsesGraphWhenUnlocked(t *testing.T) {
	h := newHarness(t, audio.MockOptions{RequireGesture: true}, gameFiles())
	ctx := context.Background()

	if h.facade.Unlock(ctx, false) {
		t.Fatal("unlocked without gesture")
	}
	if !h.facade.Unlock(ctx, true) {
		t.Fatal("gesture unlock failed")
	}

	if err := h.facade.PlayNote(ctx, "Db4", 0.8); err != nil {
		t.Fatalf("PlayNote() error = %v", err)
	}
	if n := len(h.engine.Voices.Active(audio.GroupNotes)); n != 1 {
		t.Errorf("graph voices = %d, want 1", n)
	}
	if h.engine.Elements.ActiveCount() != 0 {
		t.Error("element backend used while graph is running")
	}
}

func TestPlayNote_InvalidIdentifier(t *testing.T) {
	h := newHarness(t, audio.MockOptions{}, gameFiles())

	for _, note := range []string{"H2", "c4", "C", "C#10", ""} {
		err := h.facade.PlayNote(context.Background(), note, 1)
		if !errors.Is(err, failure.ErrInvalidIdentifier) {
			t.Errorf("PlayNote(%q) error = %v, want ErrInvalidIdentifier", note, err)
		}
	}
	if h.dev.PlayersCreated != 0 {
		t.Errorf("players created = %d, want 0", h.dev.PlayersCreated)
	}
}

func TestPlayNote_MissingSampleIsSilent(t *testing.T) {
	h := newHarness(t, audio.MockOptions{}, fstest.MapFS{})

	if err := h.facade.PlayNote(context.Background(), "C4", 1); err != nil {
		t.Errorf("PlayNote() error = %v, want nil", err)
	}
}

func TestPlayVoiceLine_NewerRequestOwnsVisual(t *testing.T) {
	h := newHarness(t, audio.MockOptions{Realtime: true}, gameFiles())
	ctx := context.Background()

	first, err := h.facade.PlayVoiceLine(ctx, assets.LineWin, VoiceLineOptions{WithAudio: true})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "first line to start", func() bool {
		return h.engine.Elements.ActiveCount() == 1
	})

	second, err := h.facade.PlayVoiceLine(ctx, assets.LineLose, VoiceLineOptions{WithAudio: true})
	if err != nil {
		t.Fatal(err)
	}
	wait(t, first)
	wait(t, second)

	want := []assets.LineID{assets.LineWin, assets.LineLose, assets.LineHello}
	if got := h.visuals.seen(); !reflect.DeepEqual(got, want) {
		t.Errorf("visuals = %v, want %v", got, want)
	}
	if h.facade.VisualLine() != assets.LineHello {
		t.Errorf("visual line = %v, want hello", h.facade.VisualLine())
	}

	if h.dev.PlayersCreated != 2 {
		t.Errorf("players created = %d, want 2", h.dev.PlayersCreated)
	}
	eventually(t, "players released", func() bool {
		return len(h.dev.Players()) == 0
	})
}

// gatedVisual blocks inside the first hello picture until released.
type gatedVisual struct {
	visualRecorder
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedVisual) SetVisual(meta assets.LineMeta) {
	g.visualRecorder.SetVisual(meta)
	if meta.ID == assets.LineHello {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
}

func TestPlayVoiceLine_StaleResetNeverOverwritesNewerPicture(t *testing.T) {
	h := newHarness(t, audio.MockOptions{Realtime: true}, gameFiles())
	gate := &gatedVisual{entered: make(chan struct{}), release: make(chan struct{})}
	h.facade = New(h.facade.cache, h.engine, gate)
	ctx := context.Background()

	first, err := h.facade.PlayVoiceLine(ctx, assets.LineWin, VoiceLineOptions{WithAudio: true})
	if err != nil {
		t.Fatal(err)
	}
	wait(t, gate.entered)

	// the first line is showing its reset picture while the next request arrives
	issued := make(chan (<-chan struct{}))
	go func() {
		second, _ := h.facade.PlayVoiceLine(ctx, assets.LineLose, VoiceLineOptions{WithAudio: true})
		issued <- second
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	second := <-issued
	wait(t, first)

	got := gate.seen()
	want := []assets.LineID{assets.LineWin, assets.LineHello, assets.LineLose}
	if len(got) < 3 || !reflect.DeepEqual(got[:3], want) {
		t.Fatalf("visuals = %v, want prefix %v", got, want)
	}

	wait(t, second)
	got = gate.seen()
	if last := got[len(got)-1]; last != assets.LineHello || h.facade.VisualLine() != last {
		t.Errorf("host shows %v, facade tracks %v, want hello", last, h.facade.VisualLine())
	}
}

func TestPlayVoiceLine_ImmediateSupersede(t *testing.T) {
	h := newHarness(t, audio.MockOptions{Realtime: true}, gameFiles())
	ctx := context.Background()

	first, _ := h.facade.PlayVoiceLine(ctx, assets.LineWin, VoiceLineOptions{WithAudio: true})
	second, _ := h.facade.PlayVoiceLine(ctx, assets.LineLose, VoiceLineOptions{WithAudio: true})
	wait(t, first)
	wait(t, second)

	want := []assets.LineID{assets.LineWin, assets.LineLose, assets.LineHello}
	if got := h.visuals.seen(); !reflect.DeepEqual(got, want) {
		t.Errorf("visuals = %v, want %v", got, want)
	}
	eventually(t, "players released", func() bool {
		return len(h.dev.Players()) == 0 && h.engine.Elements.ActiveCount() == 0
	})
	if !h.facade.HasLinePlayedSuccessfully() {
		t.Error("newest line did not play")
	}
}

func TestPlayVoiceLine_WithoutAudio(t *testing.T) {
	h := newHarness(t, audio.MockOptions{}, gameFiles())

	done, err := h.facade.PlayVoiceLine(context.Background(), assets.LineWaiting, VoiceLineOptions{})
	if err != nil {
		t.Fatal(err)
	}
	wait(t, done)

	want := []assets.LineID{assets.LineWaiting, assets.LineHello}
	if got := h.visuals.seen(); !reflect.DeepEqual(got, want) {
		t.Errorf("visuals = %v, want %v", got, want)
	}
	if h.dev.PlayersCreated != 0 {
		t.Error("audio played for a silent line")
	}
	if h.facade.HasLinePlayedSuccessfully() {
		t.Error("silent line counted as played")
	}
}

func TestPlayVoiceLine_WithoutAudioStopsCurrentLine(t *testing.T) {
	h := newHarness(t, audio.MockOptions{}, gameFiles())
	ctx := context.Background()

	playing, _ := h.facade.PlayVoiceLine(ctx, assets.LineWin, VoiceLineOptions{WithAudio: true})
	eventually(t, "line to start", func() bool {
		return h.engine.Elements.ActiveCount() == 1
	})

	if _, err := h.facade.PlayVoiceLine(ctx, assets.LineHello, VoiceLineOptions{}); err != nil {
		t.Fatal(err)
	}
	wait(t, playing)

	want := []assets.LineID{assets.LineWin, assets.LineHello}
	if got := h.visuals.seen(); !reflect.DeepEqual(got, want) {
		t.Errorf("visuals = %v, want %v", got, want)
	}
	if err := h.facade.WaitForVoiceLine(ctx); err != nil {
		t.Errorf("WaitForVoiceLine() error = %v", err)
	}
}

func TestPlayVoiceLine_UnknownLine(t *testing.T) {
	h := newHarness(t, audio.MockOptions{}, gameFiles())

	_, err := h.facade.PlayVoiceLine(context.Background(), "dance", VoiceLineOptions{WithAudio: true})
	if !errors.Is(err, failure.ErrInvalidIdentifier) {
		t.Errorf("error = %v, want ErrInvalidIdentifier", err)
	}
	if len(h.visuals.seen()) != 0 {
		t.Error("visual changed for unknown line")
	}
}

func TestWaitForVoiceLine(t *testing.T) {
	h := newHarness(t, audio.MockOptions{Realtime: true}, gameFiles())
	ctx := context.Background()

	_, _ = h.facade.PlayVoiceLine(ctx, assets.LineHello, VoiceLineOptions{WithAudio: true})
	if err := h.facade.WaitForVoiceLine(ctx); err != nil {
		t.Fatalf("WaitForVoiceLine() error = %v", err)
	}
	if !h.facade.HasLinePlayedSuccessfully() {
		t.Error("line not reported as played")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	h.dev.Suspend()
	_, _ = h.facade.PlayVoiceLine(ctx, assets.LineWaiting, VoiceLineOptions{WithAudio: true})
	if err := h.facade.WaitForVoiceLine(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForVoiceLine() error = %v, want context.Canceled", err)
	}
}

func TestPreloadNotes(t *testing.T) {
	h := newHarness(t, audio.MockOptions{}, gameFiles())

	h.facade.PreloadNotes(context.Background(), []string{"C4", "C4", "bogus", "F#3"})
	if h.dev.PlayersCreated != 0 {
		t.Error("preload opened players")
	}
}

func TestGenerationGuard(t *testing.T) {
	var g GenerationGuard

	a := g.Next()
	if !g.IsCurrent(a) {
		t.Error("fresh token not current")
	}
	b := g.Next()
	if g.IsCurrent(a) {
		t.Error("superseded token still current")
	}
	if !g.IsCurrent(b) || g.Current() != b || b <= a {
		t.Errorf("tokens not increasing: %d then %d", a, b)
	}
}
