package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/cache"
	"github.com/goblinnotes/goblin/internal/config"
	"github.com/goblinnotes/goblin/internal/fetch"
	"github.com/goblinnotes/goblin/internal/playback"
)

// transportCacheSize bounds the in-process copy of fetched assets, which
// also serves the assets that are never persisted.
const transportCacheSize = 64 << 20

// app holds everything a command needs to make the goblin speak.
type app struct {
	manifest   assets.Manifest
	store      cache.Store
	fetcher    *fetch.CachingFetcher
	assetCache *cache.AssetCache
	engine     *audio.Engine
	facade     *playback.Facade
}

func newFetcher(c config.Config) (fetch.Fetcher, error) {
	switch {
	case c.AssetDir != "":
		if st, err := os.Stat(c.AssetDir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("asset directory %q is not readable", c.AssetDir)
		}
		log.Debug("Serving assets from directory", "dir", c.AssetDir)
		return fetch.NewDirFetcher(os.DirFS(c.AssetDir)), nil
	case c.AssetBaseURL != "":
		log.Debug("Fetching assets over HTTP", "base", c.AssetBaseURL)
		return fetch.NewHTTPFetcher(fetch.HTTPConfig{BaseURL: c.AssetBaseURL})
	default:
		return nil, errors.New("no asset source: set --assets or --base-url (or asset_dir in the config file)")
	}
}

func defaultStorePath(backend string) string {
	scope := gap.NewScope(gap.User, "goblin")
	var (
		p   string
		err error
	)
	if backend == string(cache.BackendDisk) {
		p, err = scope.CacheDir()
	} else {
		p, err = scope.DataPath("assets.db")
	}
	if err != nil {
		log.Warn("Could not locate user data directory", "error", err)
		return ""
	}
	return p
}

// openStore opens the configured store. A store that cannot be opened is
// replaced by an unavailable one and the game runs without persistence.
func openStore(c config.Config) cache.Store {
	sc := c.StoreConfig(defaultStorePath(c.Cache.Backend))
	store, err := cache.OpenStore(sc)
	if err != nil {
		log.Warn("Asset store unavailable, continuing without persistence",
			"backend", sc.Backend,
			"path", sc.Path,
			"error", err)
		return cache.UnavailableStore{}
	}
	return store
}

// newApp wires storage, the audio engine and the playback facade. visual
// receives the narrator picture changes and may be nil.
func newApp(c config.Config, visual playback.Visual) (*app, error) {
	source, err := newFetcher(c)
	if err != nil {
		return nil, err
	}

	a := &app{
		manifest: assets.DefaultManifest(),
		store:    openStore(c),
		fetcher:  fetch.NewCachingFetcher(source, transportCacheSize),
	}
	a.assetCache = cache.NewAssetCache(a.store, a.fetcher, c.Cache.Namespace, c.Cache.Version)

	device, err := audio.NewDevice(c.DeviceKind())
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}
	a.engine = audio.NewEngine(device, a.assetCache.Source, audio.MP3Decoder{}, c.Timing())
	if !c.Audio.LowLatency {
		a.engine.Selector.ForceUnsupported()
	}
	a.facade = playback.New(a.assetCache, a.engine, visual)
	return a, nil
}

// Close stops playback and closes the store.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
