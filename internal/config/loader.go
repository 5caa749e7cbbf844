package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Load builds the configuration from defaults, the environment and v, in
// increasing order of precedence, and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return DefaultConfig(), fmt.Errorf("error parsing environment: %w", err)
	}

	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	}
	if v.IsSet("asset_dir") {
		cfg.AssetDir = v.GetString("asset_dir")
	}
	if v.IsSet("asset_base_url") {
		cfg.AssetBaseURL = v.GetString("asset_base_url")
	}

	cfg.Cache = loadCacheConfig(v, cfg.Cache)
	cfg.Audio = loadAudioConfig(v, cfg.Audio)

	if err := cfg.expandPaths(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// expandPaths resolves a leading ~ in the user supplied paths.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.AssetDir, &c.Cache.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// LoadFromViper loads the configuration from the global viper instance.
func LoadFromViper() (Config, error) {
	return Load(viper.GetViper())
}

func loadCacheConfig(v *viper.Viper, cfg CacheConfig) CacheConfig {
	if v.IsSet("cache.backend") {
		cfg.Backend = v.GetString("cache.backend")
	}
	if v.IsSet("cache.path") {
		cfg.Path = v.GetString("cache.path")
	}
	if v.IsSet("cache.capacity") {
		cfg.Capacity = v.GetInt64("cache.capacity")
	}
	if v.IsSet("cache.namespace") {
		cfg.Namespace = v.GetString("cache.namespace")
	}
	if v.IsSet("cache.version") {
		cfg.Version = v.GetString("cache.version")
	}
	return cfg
}

func loadAudioConfig(v *viper.Viper, cfg AudioConfig) AudioConfig {
	if v.IsSet("audio.device") {
		cfg.Device = v.GetString("audio.device")
	}
	if v.IsSet("audio.low_latency") {
		cfg.LowLatency = v.GetBool("audio.low_latency")
	}
	if v.IsSet("audio.velocity") {
		cfg.Velocity = v.GetFloat64("audio.velocity")
	}

	// Durations accept either "240ms" strings or plain integer nanoseconds.
	if v.IsSet("audio.attack") {
		cfg.Attack = v.GetDuration("audio.attack")
	}
	if v.IsSet("audio.fade") {
		cfg.Fade = v.GetDuration("audio.fade")
	}
	if v.IsSet("audio.max_note_duration") {
		cfg.MaxNoteDuration = v.GetDuration("audio.max_note_duration")
	}
	return cfg
}

// SetDefaults registers the defaults with v so they show up in
// v.AllSettings.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("debug", d.Debug)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.capacity", d.Cache.Capacity)
	v.SetDefault("cache.namespace", d.Cache.Namespace)
	v.SetDefault("cache.version", d.Cache.Version)

	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.low_latency", d.Audio.LowLatency)
	v.SetDefault("audio.velocity", d.Audio.Velocity)
	v.SetDefault("audio.attack", d.Audio.Attack.String())
	v.SetDefault("audio.fade", d.Audio.Fade.String())
	v.SetDefault("audio.max_note_duration", d.Audio.MaxNoteDuration.String())
}
