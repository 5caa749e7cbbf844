// Package config holds the runtime settings of goblin.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/cache"
)

// Config contains all goblin configuration options.
type Config struct {
	Debug bool `yaml:"debug" env:"GOBLIN_DEBUG" envDefault:"false"`

	// Asset source. AssetDir wins over AssetBaseURL when both are set.
	AssetDir     string `yaml:"asset_dir" env:"GOBLIN_ASSET_DIR"`
	AssetBaseURL string `yaml:"asset_base_url" env:"GOBLIN_ASSET_BASE_URL"`

	Cache CacheConfig `yaml:"cache"`
	Audio AudioConfig `yaml:"audio"`
}

// CacheConfig selects the persistent asset store.
type CacheConfig struct {
	Backend   string `yaml:"backend" env:"GOBLIN_CACHE_BACKEND" envDefault:"sqlite"`
	Path      string `yaml:"path" env:"GOBLIN_CACHE_PATH"`
	Capacity  int64  `yaml:"capacity" env:"GOBLIN_CACHE_CAPACITY" envDefault:"5242880"`
	Namespace string `yaml:"namespace" env:"GOBLIN_CACHE_NAMESPACE" envDefault:"goblin-notes"`
	Version   string `yaml:"version" env:"GOBLIN_CACHE_VERSION" envDefault:"v1"`
}

// AudioConfig contains output and envelope settings.
type AudioConfig struct {
	Device     string  `yaml:"device" env:"GOBLIN_AUDIO_DEVICE" envDefault:"auto"`
	LowLatency bool    `yaml:"low_latency" env:"GOBLIN_AUDIO_LOW_LATENCY" envDefault:"true"`
	Velocity   float64 `yaml:"velocity" env:"GOBLIN_AUDIO_VELOCITY" envDefault:"0.8"`

	Attack          time.Duration `yaml:"attack" env:"GOBLIN_AUDIO_ATTACK" envDefault:"15ms"`
	Fade            time.Duration `yaml:"fade" env:"GOBLIN_AUDIO_FADE" envDefault:"240ms"`
	MaxNoteDuration time.Duration `yaml:"max_note_duration" env:"GOBLIN_AUDIO_MAX_NOTE_DURATION" envDefault:"1200ms"`
}

// DefaultConfig returns a Config with the tuned defaults.
func DefaultConfig() Config {
	timing := audio.DefaultTiming()
	store := cache.DefaultStoreConfig()
	return Config{
		Cache: CacheConfig{
			Backend:   string(store.Backend),
			Capacity:  store.Capacity,
			Namespace: cache.DefaultNamespace,
			Version:   cache.DefaultVersion,
		},
		Audio: AudioConfig{
			Device:          "auto",
			LowLatency:      true,
			Velocity:        0.8,
			Attack:          timing.Attack,
			Fade:            timing.Fade,
			MaxNoteDuration: timing.MaxNoteDuration,
		},
	}
}

var (
	validBackends = []string{"sqlite", "disk", "memory", "none"}
	validDevices  = []string{"auto", "oto", "mock"}
)

// Validate checks the configuration and normalizes enum casing.
func (c *Config) Validate() error {
	backend, ok := oneOf(c.Cache.Backend, validBackends)
	if !ok {
		return fmt.Errorf("invalid cache backend '%s': must be one of %v", c.Cache.Backend, validBackends)
	}
	c.Cache.Backend = backend

	device, ok := oneOf(c.Audio.Device, validDevices)
	if !ok {
		return fmt.Errorf("invalid audio device '%s': must be one of %v", c.Audio.Device, validDevices)
	}
	c.Audio.Device = device

	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache capacity must not be negative, got %d", c.Cache.Capacity)
	}
	if c.Cache.Namespace == "" || c.Cache.Version == "" {
		return fmt.Errorf("cache namespace and version must not be empty")
	}
	if strings.Contains(c.Cache.Namespace, ":") || strings.Contains(c.Cache.Version, ":") {
		return fmt.Errorf("cache namespace and version must not contain ':'")
	}

	if c.Audio.Velocity < 0 || c.Audio.Velocity > 1 {
		return fmt.Errorf("velocity must be between 0.0 and 1.0, got %f", c.Audio.Velocity)
	}
	if c.Audio.Attack <= 0 || c.Audio.Fade <= 0 {
		return fmt.Errorf("attack and fade must be positive")
	}
	if c.Audio.MaxNoteDuration < c.Audio.Attack {
		return fmt.Errorf("max note duration %v is shorter than the attack %v", c.Audio.MaxNoteDuration, c.Audio.Attack)
	}
	return nil
}

func oneOf(v string, valid []string) (string, bool) {
	for _, s := range valid {
		if strings.EqualFold(v, s) {
			return s, true
		}
	}
	return v, false
}

// Timing returns the envelope for the audio engine.
func (c Config) Timing() audio.Timing {
	t := audio.DefaultTiming()
	t.Attack = c.Audio.Attack
	t.Fade = c.Audio.Fade
	t.MaxNoteDuration = c.Audio.MaxNoteDuration
	return t
}

// DeviceKind maps the configured device name.
func (c Config) DeviceKind() audio.DeviceKind {
	switch c.Audio.Device {
	case "oto":
		return audio.DeviceOto
	case "mock":
		return audio.DeviceMock
	default:
		return audio.DeviceAuto
	}
}

// StoreConfig returns the persistent store settings. defaultPath is used
// when no path is configured.
func (c Config) StoreConfig(defaultPath string) *cache.StoreConfig {
	sc := cache.DefaultStoreConfig()
	sc.Backend = cache.Backend(c.Cache.Backend)
	sc.Capacity = c.Cache.Capacity
	sc.Path = c.Cache.Path
	if sc.Path == "" {
		sc.Path = defaultPath
	}
	return sc
}

// MarshalYAML writes durations in their string form.
func (a AudioConfig) MarshalYAML() (any, error) {
	return struct {
		Device          string  `yaml:"device"`
		LowLatency      bool    `yaml:"low_latency"`
		Velocity        float64 `yaml:"velocity"`
		Attack          string  `yaml:"attack"`
		Fade            string  `yaml:"fade"`
		MaxNoteDuration string  `yaml:"max_note_duration"`
	}{
		Device:          a.Device,
		LowLatency:      a.LowLatency,
		Velocity:        a.Velocity,
		Attack:          a.Attack.String(),
		Fade:            a.Fade.String(),
		MaxNoteDuration: a.MaxNoteDuration.String(),
	}, nil
}
