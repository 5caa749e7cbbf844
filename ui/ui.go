// Package ui provides the virtual piano for goblin.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/goblinnotes/goblin/internal/assets"
	"github.com/goblinnotes/goblin/internal/audio"
	"github.com/goblinnotes/goblin/internal/playback"
)

const statusMessageTimeoutDuration = time.Second * 3 // how long to show status messages like "octave 4"

// NewProgram returns a new Tea program. When v has a config file, changes to
// it are picked up while the piano runs.
func NewProgram(cfg Config, v *viper.Viper) *tea.Program {
	log.Debug("Starting piano", "velocity", cfg.Velocity)

	m := newModel(cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if v != nil && v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			log.Debug("Configuration changed", "file", e.Name, "op", e.Op.String())
			p.Send(configChangedMsg{velocity: v.GetFloat64("audio.velocity")})
		})
		v.WatchConfig()
	}
	return p
}

// state is the top-level application state.
type state int

const (
	stateBooting state = iota
	stateNeedsGesture
	stateReady
)

func (s state) String() string {
	return map[state]string{
		stateBooting:      "booting",
		stateNeedsGesture: "waiting for a key press",
		stateReady:        "ready",
	}[s]
}

type model struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	state  state

	width  int
	height int

	// Boot overlay
	spinner  spinner.Model
	progress progress.Model
	boot     playback.BootStatus
	bootCh   <-chan tea.Msg

	octave   int
	pressed  string
	line     assets.LineMeta
	velocity float64
	voice    bool

	statusMessage string
	statusIsError bool
}

func newModel(cfg Config) model {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))

	hello, _ := assets.Line(assets.LineHello)
	return model{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		state:    stateBooting,
		width:    cfg.Width,
		height:   cfg.Height,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		boot:     playback.BootStatus{Text: playback.StatusLoading},
		octave:   defaultOctave,
		line:     hello,
		velocity: cfg.Velocity,
		voice:    true,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, waitForVisual(m.cfg.Visuals)}
	if m.cfg.Facade != nil {
		cmds = append(cmds, func() tea.Msg {
			return bootChannelMsg{startBoot(m.ctx, m.cfg.Facade, m.cfg.Manifest)}
		})
	}
	return tea.Batch(cmds...)
}

// bootChannelMsg hands the boot channel to the model.
type bootChannelMsg struct{ ch <-chan tea.Msg }

func (m model) gestureCtx() context.Context {
	return audio.WithUserGesture(m.ctx)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.progress.Width = min(msg.Width-8, 48)
		return m, nil

	case bootChannelMsg:
		m.bootCh = msg.ch
		return m, waitForBoot(m.bootCh)

	case bootStatusMsg:
		m.boot = playback.BootStatus(msg)
		if m.boot.NeedsGesture {
			m.state = stateNeedsGesture
		}
		return m, waitForBoot(m.bootCh)

	case bootDoneMsg:
		if msg.err != nil {
			log.Error("Boot failed", "error", msg.err)
			m.state = stateReady
			cmd := m.flash(describeError(msg.err), true)
			return m, cmd
		}
		if msg.greeted {
			m.state = stateReady
		}
		return m, nil

	case greetDoneMsg:
		if !msg.greeted {
			cmd := m.flash("the goblin stayed silent", true)
			return m, cmd
		}
		return m, nil

	case visualMsg:
		m.line = assets.LineMeta(msg)
		return m, waitForVisual(m.cfg.Visuals)

	case configChangedMsg:
		if msg.velocity > 0 && msg.velocity <= 1 && msg.velocity != m.velocity {
			m.velocity = msg.velocity
			cmd := m.flash(fmt.Sprintf("velocity %.2f", m.velocity), false)
			return m, cmd
		}
		return m, nil

	case errMsg:
		if text := describeError(msg.err); text != "" {
			cmd := m.flash(text, true)
			return m, cmd
		}
		return m, nil

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		m.statusIsError = false
		return m, nil

	case spinner.TickMsg:
		if m.state == stateReady {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c", "q":
		m.cancel()
		return m, tea.Quit
	case "ctrl+z":
		return m, tea.Suspend
	case "z", "x":
		delta := -1
		if key == "x" {
			delta = 1
		}
		m.octave = clampOctave(m.octave + delta)
		cmd := m.flash(fmt.Sprintf("octave %d", m.octave), false)
		return m, cmd
	}

	if m.cfg.Facade == nil {
		return m, nil
	}

	switch m.state {
	case stateBooting:
		// Assets are still loading; a key press still counts as the gesture
		// that unlocks output.
		m.cfg.Facade.Unlock(m.gestureCtx(), true)
		return m, nil
	case stateNeedsGesture:
		m.state = stateReady
		return m, greetCmd(m.gestureCtx(), m.cfg.Facade)
	}

	if note, ok := noteForKey(key, m.octave); ok {
		m.pressed = note
		m.cfg.Facade.Unlock(m.gestureCtx(), true)
		return m, playNoteCmd(m.gestureCtx(), m.cfg.Facade, note, m.velocity)
	}

	switch key {
	case "1", "2", "3", "4":
		id := assets.LineIDs()[key[0]-'1']
		m.cfg.Facade.Unlock(m.gestureCtx(), true)
		return m, playLineCmd(m.gestureCtx(), m.cfg.Facade, id, m.voice)

	case "m":
		m.voice = !m.voice
		if !m.voice {
			m.cfg.Facade.Engine().StopAll(audio.GroupNarrator)
			cmd := m.flash("goblin muted", false)
			return m, cmd
		}
		cmd := m.flash("goblin speaks", false)
		return m, cmd

	case "esc":
		m.pressed = ""
		engine := m.cfg.Facade.Engine()
		engine.StopAll(audio.GroupNotes)
		engine.StopAll(audio.GroupNarrator)
		return m, nil
	}
	return m, nil
}

func (m *model) flash(text string, isError bool) tea.Cmd {
	m.statusMessage = text
	m.statusIsError = isError
	return statusMessageTimeout()
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")).Padding(0, 1)
	goblinStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5A56E0")).
			Padding(0, 2)
	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#04B575")).
			Padding(1, 3)
	hintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
)

func (m model) View() string {
	if m.state != stateReady {
		return m.overlayView()
	}

	goblin := goblinStyle.Render(fmt.Sprintf("( %s )\n%s", m.line.ID, m.line.Alt))
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Goblin Notes"),
		"",
		goblin,
		"",
		renderKeyboard(m.octave, m.pressed),
		"",
		hintStyle.Render("z/x octave • 1-4 goblin lines • m mute • esc stop • q quit"),
	)

	bar := m.statusBar().View(m.width)
	gap := m.height - lipgloss.Height(body) - lipgloss.Height(bar)
	if gap < 1 {
		gap = 1
	}
	return body + strings.Repeat("\n", gap) + bar
}

func (m model) overlayView() string {
	var lines []string
	switch m.state {
	case stateNeedsGesture:
		lines = append(lines, m.boot.Text)
	default:
		lines = append(lines, m.spinner.View()+" "+m.boot.Text, "", m.progress.ViewAs(m.boot.Progress))
	}
	box := overlayStyle.Render(strings.Join(lines, "\n"))
	if m.width <= 0 || m.height <= 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m model) statusBar() statusBar {
	s := statusBar{
		octave:   m.octave,
		velocity: m.velocity,
		voice:    m.voice,
		message:  m.statusMessage,
		isError:  m.statusIsError,
	}
	if f := m.cfg.Facade; f != nil {
		s.backend = f.Engine().Selector.State()
		s.storage = f.IsStorageAvailable()
	}
	return s
}
