//go:build !nocgo

package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// OtoDevice plays through the system output.
type OtoDevice struct {
	ctx *oto.Context
	mu  sync.Mutex
}

// NewOtoDevice opens the system output, retrying on platforms whose audio
// servers are slow to come up. oto allows a single context per process, so
// later calls share the first one.
func NewOtoDevice(platform *PlatformInfo) (*OtoDevice, error) {
	otoOnce.Do(func() {
		otoCtx, otoErr = openOtoContext(platform)
	})
	if otoErr != nil {
		return nil, otoErr
	}
	return &OtoDevice{ctx: otoCtx}, nil
}

func openOtoContext(platform *PlatformInfo) (*oto.Context, error) {
	retries, delay := platform.retryPolicy()

	var lastErr error
	for i := 0; i < retries; i++ {
		if i > 0 {
			log.Debug("Retrying audio output initialization", "attempt", i+1, "of", retries)
			time.Sleep(delay)
		}

		options := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   platform.BufferSize(),
		}
		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			lastErr = fmt.Errorf("failed to create audio context: %w", err)
			log.Debug("Audio output initialization failed", "attempt", i+1, "error", err)
			continue
		}

		select {
		case <-ready:
			log.Info("Audio output initialized", "attempt", i+1, "buffer", options.BufferSize)
			return ctx, nil
		case <-time.After(platform.readyTimeout()):
			// oto v3 contexts cannot be closed; a failed one is left to the GC.
			return nil, fmt.Errorf("audio context initialization timeout after %v", platform.readyTimeout())
		}
	}
	return nil, fmt.Errorf("failed to initialize audio output after %d attempts: %w", retries, lastErr)
}

// NewPlayer creates an oto player over r.
func (d *OtoDevice) NewPlayer(r io.Reader) (Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return nil, fmt.Errorf("audio device closed")
	}
	p := d.ctx.NewPlayer(r)
	// ~20ms of look-ahead keeps scheduling tight
	p.SetBufferSize(SampleRate / 50 * frameBytes)
	return &otoPlayer{player: p, volume: 1}, nil
}

// Resume restarts output. The system output has no autoplay policy.
func (d *OtoDevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return fmt.Errorf("audio device closed")
	}
	if err := d.ctx.Err(); err != nil {
		return err
	}
	return d.ctx.Resume()
}

// Suspend pauses output.
func (d *OtoDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx == nil {
		return nil
	}
	return d.ctx.Suspend()
}

func (d *OtoDevice) SampleRate() int   { return SampleRate }
func (d *OtoDevice) ChannelCount() int { return Channels }

// Close detaches from the shared context.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ctx = nil
	return nil
}

// otoPlayer wraps an oto.Player to implement Player
type otoPlayer struct {
	player *oto.Player
	mu     sync.Mutex
	volume float64
}

func (p *otoPlayer) Play()           { p.player.Play() }
func (p *otoPlayer) Pause()          { p.player.Pause() }
func (p *otoPlayer) IsPlaying() bool { return p.player.IsPlaying() }

func (p *otoPlayer) Reset() error {
	_, err := p.player.Seek(0, io.SeekStart)
	return err
}

func (p *otoPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	p.player.SetVolume(volume)
}

func (p *otoPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *otoPlayer) Close() error {
	return p.player.Close()
}
