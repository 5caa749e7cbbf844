// Package main provides the entry point for the goblin CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/config"
	"github.com/goblinnotes/goblin/internal/playback"
	"github.com/goblinnotes/goblin/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	cfg        config.Config

	rootCmd = &cobra.Command{
		Use:   "goblin",
		Short: "Train your ear with a goblin at the piano",
		Long: paragraph(
			fmt.Sprintf("\nPlay notes, hear them back and let the %s keep score.", keyword("goblin")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateOptions()
		},
		RunE: execute,
	}
)

func validateOptions() error {
	var err error
	cfg, err = config.LoadFromViper()
	if err != nil {
		return err
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Configuration loaded",
		"backend", cfg.Cache.Backend,
		"device", cfg.Audio.Device,
		"low_latency", cfg.Audio.LowLatency)
	return nil
}

func execute(*cobra.Command, []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the piano needs a terminal; use 'goblin play' to play notes from scripts")
	}

	width, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width, height = 80, 24
	}
	return runTUI(width, height)
}

func runTUI(width, height int) error {
	visuals := make(chan assets.LineMeta, 8)
	a, err := newApp(cfg, playback.VisualFunc(func(meta assets.LineMeta) {
		select {
		case visuals <- meta:
		default:
			log.Debug("Dropped visual update", "line", meta.ID)
		}
	}))
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	p := ui.NewProgram(ui.Config{
		Facade:   a.facade,
		Manifest: a.manifest,
		Visuals:  visuals,
		Velocity: cfg.Audio.Velocity,
		Width:    width,
		Height:   height,
	}, viper.GetViper())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.String("assets", "", "directory containing the game assets")
	flags.String("base-url", "", "URL the game assets are served from")
	flags.String("backend", "", "asset store backend (sqlite, disk, memory, none)")
	flags.String("device", "", "audio output (auto, oto, mock)")
	flags.Bool("no-low-latency", false, "always play through individual players")
	flags.Bool("debug", false, "log debug output")

	// Config bindings
	_ = viper.BindPFlag("asset_dir", flags.Lookup("assets"))
	_ = viper.BindPFlag("asset_base_url", flags.Lookup("base-url"))
	_ = viper.BindPFlag("cache.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("audio.device", flags.Lookup("device"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	lowLatency := flags.Lookup("no-low-latency")
	cobra.OnInitialize(func() {
		if lowLatency.Changed {
			viper.Set("audio.low_latency", lowLatency.Value.String() != "true")
		}
	})

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, preloadCmd, playCmd, sayCmd, scoreCmd, cacheCmd, rulesCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "goblin")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "goblin")}, dirs...)
	}

	if c := os.Getenv("GOBLIN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("goblin")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("goblin")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "goblin.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
