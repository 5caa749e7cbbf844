package audio

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// Output format shared by every player: interleaved stereo float32 LE.
const (
	SampleRate     = 44100
	Channels       = 2
	bytesPerSample = 4
	frameBytes     = Channels * bytesPerSample
)

// Device opens players on an audio output. Only one device may exist per
// process, so both playback backends share it.
type Device interface {
	// NewPlayer creates a player pulling float32 stereo frames from r.
	NewPlayer(r io.Reader) (Player, error)

	// Resume starts or restarts output. It fails with a policy error when
	// output may only start from a user gesture and ctx carries none.
	Resume(ctx context.Context) error

	// Suspend pauses all output.
	Suspend() error

	SampleRate() int
	ChannelCount() int
	Close() error
}

// Player is a single output stream.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool

	// Reset rewinds the stream to its start.
	Reset() error

	SetVolume(volume float64)
	Volume() float64
	Close() error
}

// DeviceKind selects a Device implementation.
type DeviceKind int

const (
	// DeviceAuto opens the system output and falls back to a mock device
	// when there is none.
	DeviceAuto DeviceKind = iota
	// DeviceOto uses the system output via oto.
	DeviceOto
	// DeviceMock discards audio in real time.
	DeviceMock
)

// NewDevice creates a device of the requested kind.
func NewDevice(kind DeviceKind) (Device, error) {
	switch kind {
	case DeviceOto:
		log.Debug("Creating oto audio device")
		dev, err := NewOtoDevice(DetectPlatform())
		if err != nil {
			return nil, err
		}
		return dev, nil

	case DeviceMock:
		log.Debug("Creating mock audio device")
		return NewMockDevice(MockOptions{Realtime: true}), nil

	case DeviceAuto:
		platform := DetectPlatform()
		log.Debug("Platform detection complete", "info", platform.String())

		if platform.ShouldUseMockAudio() {
			reason := "no audio devices"
			if platform.IsCI {
				reason = "CI environment"
			}
			log.Info("Using mock audio device", "reason", reason)
			return NewMockDevice(MockOptions{Realtime: true}), nil
		}

		dev, err := NewOtoDevice(platform)
		if err != nil {
			log.Warn("Failed to open audio output, falling back to mock",
				"error", err,
				"platform", platform.OS)
			return NewMockDevice(MockOptions{Realtime: true}), nil
		}
		return dev, nil

	default:
		return nil, fmt.Errorf("unknown audio device kind: %v", kind)
	}
}

type gestureKey struct{}

// WithUserGesture marks ctx as originating from a user gesture such as a key
// press, which lifts autoplay restrictions.
func WithUserGesture(ctx context.Context) context.Context {
	return context.WithValue(ctx, gestureKey{}, true)
}

// IsUserGesture reports whether ctx was marked by WithUserGesture.
func IsUserGesture(ctx context.Context) bool {
	v, _ := ctx.Value(gestureKey{}).(bool)
	return v
}
