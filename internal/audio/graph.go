package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
)

const never = math.MaxInt64

// Source plays a Buffer on the graph through its gain param.
type Source struct {
	buf     *Buffer
	gain    *Param
	start   int64 // frame
	stop    int64 // frame, never when unbounded
	loop    bool
	onEnded func()
}

// Graph mixes scheduled sources into one float32 stereo stream. Its clock is
// the number of frames rendered so far, so automation and start/stop times
// are exact to the frame. Graph implements io.Reader and is played through
// a single device player.
type Graph struct {
	mu      sync.Mutex
	frames  int64
	sources []*Source
	closed  bool
}

// NewGraph creates an empty graph at time zero.
func NewGraph() *Graph {
	return &Graph{}
}

// Now returns the graph time in seconds.
func (g *Graph) Now() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return toSeconds(g.frames)
}

// Do runs fn under the graph lock with the current time. Sources and their
// params may only be changed inside Do.
func (g *Graph) Do(fn func(now float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(toSeconds(g.frames))
}

// Close ends the stream; Read returns io.EOF afterwards.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// Len returns the number of scheduled sources.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sources)
}

// add schedules src. Callers hold the lock.
func (g *Graph) add(src *Source) {
	g.sources = append(g.sources, src)
}

// setStop pulls src's stop time forward to t. Callers hold the lock.
func (src *Source) setStop(t float64) {
	if f := toFrames(t); f < src.stop {
		src.stop = f
	}
}

// Read renders the next frames. onEnded callbacks of sources that finished
// run after the lock is released.
func (g *Graph) Read(p []byte) (int, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0, io.EOF
	}

	n := len(p) / frameBytes
	var ended []func()
	for i := 0; i < n; i++ {
		frame := g.frames + int64(i)
		t := toSeconds(frame)
		var left, right float64
		for _, src := range g.sources {
			if frame < src.start || frame >= src.stop {
				continue
			}
			pos := int(frame - src.start)
			if pos >= src.buf.Frames() {
				if !src.loop || src.buf.Frames() == 0 {
					continue
				}
				pos %= src.buf.Frames()
			}
			l, r := src.buf.Frame(pos)
			gain := src.gain.ValueAt(t)
			left += float64(l) * gain
			right += float64(r) * gain
		}
		putFrame(p[i*frameBytes:], left, right)
	}
	g.frames += int64(n)

	live := g.sources[:0]
	for _, src := range g.sources {
		if g.finished(src) {
			if src.onEnded != nil {
				ended = append(ended, src.onEnded)
			}
			continue
		}
		live = append(live, src)
	}
	for i := len(live); i < len(g.sources); i++ {
		g.sources[i] = nil
	}
	g.sources = live
	g.mu.Unlock()

	for _, fn := range ended {
		fn()
	}
	return n * frameBytes, nil
}

func (g *Graph) finished(src *Source) bool {
	if g.frames >= src.stop {
		return true
	}
	return !src.loop && g.frames >= src.start+int64(src.buf.Frames())
}

func putFrame(p []byte, left, right float64) {
	binary.LittleEndian.PutUint32(p, math.Float32bits(float32(clampSample(left))))
	binary.LittleEndian.PutUint32(p[bytesPerSample:], math.Float32bits(float32(clampSample(right))))
}

func clampSample(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func toSeconds(frames int64) float64 {
	return float64(frames) / SampleRate
}

func toFrames(t float64) int64 {
	if math.IsInf(t, 1) {
		return never
	}
	return int64(math.Round(t * SampleRate))
}
