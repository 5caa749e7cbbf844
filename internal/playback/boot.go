package playback

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/cache"
)

// Boot status texts.
const (
	StatusLoading      = "Lade Kobold-Klänge …"
	StatusPreparing    = "Der Kobold bereitet den Gruß vor …"
	StatusWaiting      = "Wir warten auf den Kobold …"
	StatusNeedsGesture = "Tippe einmal, damit der Kobold hallo sagen darf."
	StatusReady        = "Bereit!"
)

// BootStatus is reported while the game starts.
type BootStatus struct {
	Text     string
	Progress float64

	// NeedsGesture asks the user for a key press before the greeting can
	// be played.
	NeedsGesture bool
	Ready        bool
}

// Boot caches the manifest, warms up the greeting and plays it. It reports
// true when the greeting was heard; otherwise the host should call Greet
// from the next key press.
func (f *Facade) Boot(ctx context.Context, manifest assets.Manifest, report func(BootStatus)) (bool, error) {
	if report == nil {
		report = func(BootStatus) {}
	}

	report(BootStatus{Text: StatusLoading})
	err := f.EnsureAssetsCached(ctx, manifest, func(p cache.Progress) {
		report(BootStatus{Text: progressText(p), Progress: ratio(p)})
	})
	if err != nil {
		return false, err
	}

	report(BootStatus{Text: StatusPreparing, Progress: 1})
	if err := f.WarmUp(ctx, assets.LineHello); err != nil {
		return false, err
	}

	report(BootStatus{Text: StatusWaiting, Progress: 1})
	if f.greet(ctx) {
		report(BootStatus{Text: StatusReady, Progress: 1, Ready: true})
		return true, nil
	}

	report(BootStatus{Text: StatusNeedsGesture, Progress: 1, NeedsGesture: true})
	return false, nil
}

// Greet unlocks playback from a user gesture and retries the greeting.
func (f *Facade) Greet(ctx context.Context) bool {
	f.Unlock(ctx, true)
	return f.greet(ctx)
}

func (f *Facade) greet(ctx context.Context) bool {
	done, err := f.PlayVoiceLine(ctx, assets.LineHello, VoiceLineOptions{WithAudio: true})
	if err != nil {
		log.Error("Greeting failed", "error", err)
		return false
	}
	select {
	case <-done:
	case <-ctx.Done():
		return false
	}
	return f.HasLinePlayedSuccessfully()
}

func progressText(p cache.Progress) string {
	if p.Asset.Kind == assets.KindAudio {
		return fmt.Sprintf("Lade Audios (%d/%d) …", p.Completed, p.Total)
	}
	return fmt.Sprintf("Lade Bilder (%d/%d) …", p.Completed, p.Total)
}

func ratio(p cache.Progress) float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}
