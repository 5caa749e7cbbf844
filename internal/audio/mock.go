package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/goblinnotes/goblin/internal/failure"
)

// MockOptions configures a MockDevice.
type MockOptions struct {
	// Realtime consumes playing streams on a background ticker at the
	// output rate. Without it, tests drive consumption with Advance.
	Realtime bool

	// RequireGesture makes Resume fail with a policy error until it is
	// called with a user gesture context.
	RequireGesture bool

	// ResumeErr, when set, is returned by every Resume.
	ResumeErr error
}

// MockDevice implements Device without audio hardware. Streams are read and
// discarded, so readers observe the same pull pattern as on real output.
type MockDevice struct {
	mu        sync.Mutex
	opts      MockOptions
	players   []*MockPlayer
	closed    bool
	unlocked  bool
	suspended bool
	stop      chan struct{}

	// Test helpers
	PlayersCreated int
	PlayersClosed  int
	ResumeCalls    int
}

// NewMockDevice creates a mock device.
func NewMockDevice(opts MockOptions) *MockDevice {
	d := &MockDevice{
		opts: opts,
		stop: make(chan struct{}),
	}
	if opts.Realtime {
		go d.run(10 * time.Millisecond)
	}
	return d
}

func (d *MockDevice) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frames := int(int64(SampleRate) * int64(interval) / int64(time.Second))
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.Advance(frames)
		}
	}
}

// NewPlayer creates a mock player over r.
func (d *MockDevice) NewPlayer(r io.Reader) (Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("mock audio device closed: %w", failure.ErrClosed)
	}

	p := &MockPlayer{device: d, reader: r, volume: 1}
	d.players = append(d.players, p)
	d.PlayersCreated++
	return p, nil
}

// Resume unlocks output, enforcing the gesture requirement if configured.
func (d *MockDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ResumeCalls++
	if d.opts.ResumeErr != nil {
		return d.opts.ResumeErr
	}
	if d.opts.RequireGesture && !d.unlocked && !IsUserGesture(ctx) {
		return failure.New(failure.CodePlaybackBlocked,
			"NotAllowedError: play() can only be initiated by a user gesture", failure.ErrPlaybackBlocked)
	}
	d.unlocked = true
	d.suspended = false
	return nil
}

// Suspend stops consumption until the next Resume.
func (d *MockDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.suspended = true
	return nil
}

func (d *MockDevice) SampleRate() int   { return SampleRate }
func (d *MockDevice) ChannelCount() int { return Channels }

// Close stops the device and closes all players.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stop)
	players := d.players
	d.players = nil
	d.mu.Unlock()

	for _, p := range players {
		_ = p.Close()
	}
	log.Debug("Mock audio device closed")
	return nil
}

// Advance consumes frames from every playing stream, as if that much audio
// had been rendered.
func (d *MockDevice) Advance(frames int) {
	d.mu.Lock()
	if d.suspended || d.closed {
		d.mu.Unlock()
		return
	}
	live := d.players[:0]
	for _, p := range d.players {
		if !p.isClosed() {
			live = append(live, p)
		}
	}
	d.players = live
	players := append([]*MockPlayer(nil), live...)
	d.mu.Unlock()

	for _, p := range players {
		p.consume(frames * frameBytes)
	}
}

// Players returns the players created so far that are not closed.
func (d *MockDevice) Players() []*MockPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*MockPlayer
	for _, p := range d.players {
		if !p.isClosed() {
			out = append(out, p)
		}
	}
	return out
}

// MockPlayer implements Player for MockDevice.
type MockPlayer struct {
	device *MockDevice
	reader io.Reader
	mu     sync.Mutex

	playing  bool
	closed   bool
	eof      bool
	volume   float64
	consumed int64
	scratch  []byte

	// Test helpers
	PlayCount  int
	PauseCount int
	ResetCount int
}

func (p *MockPlayer) consume(n int) {
	p.mu.Lock()
	if !p.playing || p.closed {
		p.mu.Unlock()
		return
	}
	if cap(p.scratch) < n {
		p.scratch = make([]byte, n)
	}
	buf := p.scratch[:n]
	r := p.reader
	p.mu.Unlock()

	read, err := io.ReadFull(r, buf)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumed += int64(read)
	if err != nil {
		p.playing = false
		p.eof = true
	}
}

// Play starts or resumes playback
func (p *MockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.playing || p.eof {
		return
	}
	p.playing = true
	p.PlayCount++
}

// Pause pauses playback
func (p *MockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.playing = false
		p.PauseCount++
	}
}

// IsPlaying returns whether audio is currently playing
func (p *MockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Reset rewinds a seekable stream.
func (p *MockPlayer) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seeker, ok := p.reader.(io.Seeker)
	if !ok {
		return fmt.Errorf("reader does not support seeking")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return err
	}
	p.eof = false
	p.consumed = 0
	p.ResetCount++
	return nil
}

// SetVolume sets the playback volume (0.0 to 1.0)
func (p *MockPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
}

// Volume returns the current volume
func (p *MockPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close closes the player
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.playing = false
	p.mu.Unlock()

	p.device.mu.Lock()
	p.device.PlayersClosed++
	p.device.mu.Unlock()
	return nil
}

// Consumed returns the number of bytes read from the stream.
func (p *MockPlayer) Consumed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumed
}

func (p *MockPlayer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
