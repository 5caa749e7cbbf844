package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/playback"
)

var scoreCmd = &cobra.Command{
	Use:   "score FROM TO",
	Short: "Count a score up or down with the goblin's stingers",
	Long: paragraph(fmt.Sprintf("\nAnimate a score from FROM to TO. A rising %s score loops the pre-win stinger, a falling score loops the lose stinger and a rising total with --win ends in the win jingle.",
		keyword("potential"))),
	Example: paragraph("goblin score 0 120 --role potential\ngoblin score 40 160 --win\ngoblin score 100 60"),
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid score %q", args[0])
		}
		to, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid score %q", args[1])
		}
		if from == to {
			return errors.New("nothing to count: FROM equals TO")
		}

		roleName, _ := cmd.Flags().GetString("role")
		role := playback.Role(roleName)
		if role != playback.RoleTotal && role != playback.RolePotential {
			return unknownErr("role", roleName, []string{string(playback.RoleTotal), string(playback.RolePotential)})
		}
		win, _ := cmd.Flags().GetBool("win")
		rate, _ := cmd.Flags().GetFloat64("rate")
		if rate <= 0 {
			return fmt.Errorf("rate must be positive, got %v", rate)
		}

		a, err := newApp(cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		ctx := audio.WithUserGesture(cmd.Context())
		a.facade.Unlock(ctx, true)

		board := playback.NewScoreboard(a.engine.Elements)
		defer board.Reset()
		if win {
			board.MarkWinTransfer()
		}

		steps := scoreSteps(from, to)
		direction := 1
		if to < from {
			direction = -1
		}

		out := cmd.OutOrStdout()
		board.AnimationStart(ctx, role, direction)
		completed := countScore(ctx, steps, time.Duration(float64(time.Second)/rate), func(n int) {
			fmt.Fprintf(out, "\r\033[K%s %s", faint(string(role)), keyword(humanize.Comma(int64(n))))
		})
		fmt.Fprintln(out)
		board.AnimationEnd(ctx, role, direction, completed)

		// the win jingle plays to its end
		waitForStingers(ctx, a.engine.Elements)
		log.Debug("Score animation finished", "from", from, "to", to, "role", role, "completed", completed)
		return nil
	},
}

func init() {
	scoreCmd.Flags().String("role", string(playback.RoleTotal), "score display (total, potential)")
	scoreCmd.Flags().Bool("win", false, "land a won round on the total")
	scoreCmd.Flags().Float64("rate", 40, "points counted per second")
}

// scoreSteps lists the values shown after from, ending with to.
func scoreSteps(from, to int) []int {
	step := 1
	if to < from {
		step = -1
	}
	var out []int
	for n := from; n != to; {
		n += step
		out = append(out, n)
	}
	return out
}

// countScore shows each step on a ticker and reports whether it reached the
// last one before ctx ended.
func countScore(ctx context.Context, steps []int, interval time.Duration, show func(int)) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, n := range steps {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
		show(n)
	}
	return true
}

func waitForStingers(ctx context.Context, pool *audio.ElementPool) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for pool.ActiveCount() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
