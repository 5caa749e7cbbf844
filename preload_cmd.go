package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/cache"
	"github.com/goblinnotes/goblin/internal/playback"
)

var preloadCmd = &cobra.Command{
	Use:   "preload",
	Short: "Cache the game assets and let the goblin say hello",
	Long: paragraph(fmt.Sprintf("\n%s every asset into the persistent store, then warm up the narrator and play the greeting.",
		keyword("Download"))),
	Example: paragraph("goblin preload --assets ./public\ngoblin preload --silent"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		silent, _ := cmd.Flags().GetBool("silent")

		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		ctx := cmd.Context()

		if silent {
			err := a.facade.EnsureAssetsCached(ctx, a.manifest, func(p cache.Progress) {
				printStatus(out, interactive, playback.BootStatus{Text: fmt.Sprintf("%d/%d %s", p.Completed, p.Total, p.Asset.Path)})
			})
			if interactive {
				fmt.Fprintln(out)
			}
			if err != nil {
				return err
			}
			printStorage(out, a.facade)
			return nil
		}

		greeted, err := a.facade.Boot(ctx, a.manifest, func(s playback.BootStatus) {
			printStatus(out, interactive, s)
		})
		if err != nil {
			return err
		}
		if !greeted {
			// The user pressing enter is the gesture the output waits for.
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			if !a.facade.Greet(audio.WithUserGesture(ctx)) {
				log.Warn("Greeting did not play after key press")
				fmt.Fprintln(out, failed("The goblin stayed silent."))
			}
		}
		printStorage(out, a.facade)
		return nil
	},
}

func init() {
	preloadCmd.Flags().Bool("silent", false, "only cache the assets")
}

func printStatus(w io.Writer, interactive bool, s playback.BootStatus) {
	if interactive && !s.Ready && !s.NeedsGesture {
		fmt.Fprintf(w, "\r\033[K%s", s.Text)
		return
	}
	if interactive {
		fmt.Fprint(w, "\r\033[K")
	}
	fmt.Fprintln(w, s.Text)
}

func printStorage(w io.Writer, f *playback.Facade) {
	if f.IsStorageAvailable() {
		fmt.Fprintln(w, faint("Assets are stored for the next session."))
		return
	}
	fmt.Fprintln(w, faint("Storage unavailable: assets will be fetched again next time."))
}
