package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/playback"
)

// rest is the placeholder for a silent beat in a note sequence.
const rest = "-"

var playCmd = &cobra.Command{
	Use:   "play [NOTE...]",
	Short: "Play a sequence of piano notes",
	Long: paragraph(fmt.Sprintf("\nPlay notes one %s apart. Use %s for a rest. Without notes, play every key from --from to --to.",
		keyword("beat"), keyword(rest))),
	Example: paragraph("goblin play C4 E4 G4 - C5\ngoblin play --from C3 --to C4 --tempo 240"),
	RunE: func(cmd *cobra.Command, args []string) error {
		tempo, _ := cmd.Flags().GetFloat64("tempo")
		if tempo <= 0 {
			return fmt.Errorf("tempo must be positive, got %v", tempo)
		}

		notes := args
		if len(notes) == 0 {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			var err error
			if notes, err = assets.LinearNotes(from, to); err != nil {
				return err
			}
		}
		notes, err := normalizeNotes(notes)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		// Running the command is the user gesture.
		ctx := audio.WithUserGesture(cmd.Context())
		a.facade.Unlock(ctx, true)
		a.facade.PreloadNotes(ctx, notes)

		return playSequence(ctx, cmd.OutOrStdout(), a.facade, notes, beat(tempo), cfg.Audio.Velocity, cfg.Timing())
	},
}

var sayCmd = &cobra.Command{
	Use:       "say LINE",
	Short:     "Let the goblin say one of its lines",
	Example:   paragraph("goblin say hello\ngoblin say lose --mute"),
	Args:      cobra.ExactArgs(1),
	ValidArgs: lineNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := assets.LineID(strings.ToLower(args[0]))
		if _, ok := assets.Line(id); !ok {
			return unknownErr("line", args[0], lineNames())
		}
		mute, _ := cmd.Flags().GetBool("mute")

		out := cmd.OutOrStdout()
		a, err := newApp(cfg, playback.VisualFunc(func(meta assets.LineMeta) {
			fmt.Fprintln(out, faint("» "+meta.Alt))
		}))
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		ctx := audio.WithUserGesture(cmd.Context())
		a.facade.Unlock(ctx, true)
		done, err := a.facade.PlayVoiceLine(ctx, id, playback.VoiceLineOptions{WithAudio: !mute})
		if err != nil {
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if !mute && !a.facade.HasLinePlayedSuccessfully() {
			return errors.New("the line did not play; see the log for details")
		}
		return nil
	},
}

func init() {
	playCmd.Flags().Float64("tempo", 120, "beats per minute")
	playCmd.Flags().String("from", assets.KeyRange.Min, "lowest note when no notes are given")
	playCmd.Flags().String("to", assets.KeyRange.Max, "highest note when no notes are given")
	sayCmd.Flags().Bool("mute", false, "only show the goblin, without audio")
}

// beat is the length of a quarter note.
func beat(tempo float64) time.Duration {
	return time.Duration(60 / tempo * float64(time.Second))
}

// normalizeNotes validates notes against the keyboard and returns them in
// their canonical spelling.
func normalizeNotes(notes []string) ([]string, error) {
	keyboard := assets.KeyboardNotes()
	out := make([]string, 0, len(notes))
	for _, s := range notes {
		if s == rest {
			out = append(out, rest)
			continue
		}
		if s == "" {
			return nil, errors.New("empty note")
		}
		n, err := assets.ParseNote(strings.ToUpper(s[:1]) + s[1:])
		if err != nil || !slices.Contains(keyboard, n.String()) {
			return nil, unknownErr("note", s, keyboard)
		}
		out = append(out, n.String())
	}
	return out, nil
}

func playSequence(ctx context.Context, w io.Writer, f *playback.Facade, notes []string, step time.Duration, velocity float64, timing audio.Timing) error {
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for i, note := range notes {
		if i > 0 {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if note == rest {
			continue
		}
		fmt.Fprint(w, keyword(note)+" ")
		if err := f.PlayNote(ctx, note, velocity); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)

	// Let the last note ring out.
	tail := timing.MaxNoteDuration + timing.Fade + timing.StopMargin
	select {
	case <-time.After(tail):
	case <-ctx.Done():
	}
	log.Debug("Sequence finished", "notes", len(notes), "beat", step)
	return nil
}

func lineNames() []string {
	ids := assets.LineIDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// unknownErr reports an unknown identifier with the closest candidates.
func unknownErr(kind, input string, candidates []string) error {
	if s := suggest(input, candidates); len(s) > 0 {
		return fmt.Errorf("unknown %s %q, did you mean %s?", kind, input, strings.Join(s, ", "))
	}
	return fmt.Errorf("unknown %s %q", kind, input)
}

func suggest(input string, candidates []string) []string {
	matches := fuzzy.Find(strings.ToLower(input), lowered(candidates))
	var out []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		out = append(out, candidates[m.Index])
	}
	return out
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
