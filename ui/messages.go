package ui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/failure"
	"github.com/goblinnotes/goblin/internal/playback"
)

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// bootStatusMsg reports preload progress.
type bootStatusMsg playback.BootStatus

// bootDoneMsg is sent when the boot sequence ends.
type bootDoneMsg struct {
	greeted bool
	err     error
}

// greetDoneMsg is sent when a greeting retried from a key press ends.
type greetDoneMsg struct{ greeted bool }

// visualMsg carries the narrator picture to show.
type visualMsg assets.LineMeta

// configChangedMsg is sent when the config file was rewritten.
type configChangedMsg struct{ velocity float64 }

type statusMessageTimeoutMsg struct{}

// startBoot runs the boot sequence in the background. Statuses and the final
// bootDoneMsg arrive on the returned channel.
func startBoot(ctx context.Context, f *playback.Facade, manifest assets.Manifest) <-chan tea.Msg {
	ch := make(chan tea.Msg, 16)
	go func() {
		defer close(ch)
		greeted, err := f.Boot(ctx, manifest, func(s playback.BootStatus) {
			select {
			case ch <- bootStatusMsg(s):
			case <-ctx.Done():
			}
		})
		select {
		case ch <- bootDoneMsg{greeted: greeted, err: err}:
		case <-ctx.Done():
		}
	}()
	return ch
}

func waitForBoot(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func waitForVisual(ch <-chan assets.LineMeta) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		meta, ok := <-ch
		if !ok {
			return nil
		}
		return visualMsg(meta)
	}
}

func greetCmd(ctx context.Context, f *playback.Facade) tea.Cmd {
	return func() tea.Msg {
		return greetDoneMsg{greeted: f.Greet(ctx)}
	}
}

func playNoteCmd(ctx context.Context, f *playback.Facade, note string, velocity float64) tea.Cmd {
	return func() tea.Msg {
		if err := f.PlayNote(ctx, note, velocity); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func playLineCmd(ctx context.Context, f *playback.Facade, id assets.LineID, withAudio bool) tea.Cmd {
	return func() tea.Msg {
		if _, err := f.PlayVoiceLine(ctx, id, playback.VoiceLineOptions{WithAudio: withAudio}); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func statusMessageTimeout() tea.Cmd {
	return tea.Tick(statusMessageTimeoutDuration, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{}
	})
}

// describeError turns playback errors into a short status line.
func describeError(err error) string {
	switch {
	case errors.Is(err, failure.ErrInvalidIdentifier):
		return "unknown note"
	case errors.Is(err, failure.ErrClosed):
		return "audio closed"
	case errors.Is(err, context.Canceled):
		return ""
	default:
		log.Debug("Playback error shown in status bar", "error", err)
		return err.Error()
	}
}
