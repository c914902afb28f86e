package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/wasm-audio/bridge"
	"github.com/wippyai/wasm-audio/descriptor"
	"github.com/wippyai/wasm-audio/host"
	"github.com/wippyai/wasm-audio/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	refreshInterval = 50 * time.Millisecond
	paramStep       = 0.05
	bendStep        = 1024
	bendLimit       = 8191
	recentReports   = 8
	noteVelocity    = 100
)

// keyNotes maps the home row to a C major scale from middle C.
var keyNotes = map[string]uint8{
	"a": 60, "s": 62, "d": 64, "f": 65, "g": 67, "h": 69, "j": 71, "k": 72,
}

type tickMsg time.Time

type interactiveModel struct {
	err      error
	sess     *runtime.Session
	tables   *descriptor.Tables
	stats    func() host.DriverStats
	runErr   <-chan error
	name     string
	bar      progress.Model
	inputs   []int
	outputs  []int
	values   map[string]float32
	recent   []string
	selected int
	note     int
	bend     int32
}

func newInteractiveModel(name string, sess *runtime.Session, stats func() host.DriverStats, runErr <-chan error) *interactiveModel {
	t := sess.Tables()
	return &interactiveModel{
		sess:    sess,
		tables:  t,
		stats:   stats,
		runErr:  runErr,
		name:    name,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(30), progress.WithoutPercentage()),
		inputs:  t.ParameterIndices(descriptor.Input),
		outputs: t.ParameterIndices(descriptor.Output),
		values:  sess.Control().Parameters(),
		note:    -1,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *interactiveModel) Init() tea.Cmd {
	return tick()
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg.String())

	case tickMsg:
		m.refresh()
		if m.err != nil {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m *interactiveModel) handleKey(key string) tea.Cmd {
	ch := m.sess.Control()
	switch key {
	case "ctrl+c", "q":
		return tea.Quit

	case "up":
		if m.selected > 0 {
			m.selected--
		}

	case "down":
		if m.selected < len(m.inputs)-1 {
			m.selected++
		}

	case "left", "right":
		if len(m.inputs) == 0 {
			break
		}
		p := m.tables.Parameters[m.inputs[m.selected]]
		v := m.values[p.Name]
		if key == "left" {
			v -= paramStep
		} else {
			v += paramStep
		}
		m.setErr(ch.SetParameterIndex(p.Index, v))
		m.values[p.Name] = v

	case "[", "]":
		if key == "[" {
			m.bend = max(m.bend-bendStep, -bendLimit)
		} else {
			m.bend = min(m.bend+bendStep, bendLimit)
		}
		m.setErr(ch.PitchBend(m.bend))

	case " ":
		if m.note >= 0 {
			m.setErr(ch.NoteOff(uint8(m.note)))
			m.note = -1
		}

	default:
		note, ok := keyNotes[key]
		if !ok {
			break
		}
		if m.note >= 0 && m.note != int(note) {
			m.setErr(ch.NoteOff(uint8(m.note)))
		}
		m.setErr(ch.NoteOn(note, noteVelocity))
		m.note = int(note)
	}
	return nil
}

// setErr records a control error as a report line; dropped events already
// arrive through Reports.
func (m *interactiveModel) setErr(err error) {
	if err != nil {
		m.push(errorStyle.Render(err.Error()))
	}
}

func (m *interactiveModel) push(line string) {
	m.recent = append(m.recent, line)
	if len(m.recent) > recentReports {
		m.recent = m.recent[len(m.recent)-recentReports:]
	}
}

// refresh drains pending reports without blocking and rereads values.
func (m *interactiveModel) refresh() {
	reports := m.sess.Control().Reports()
drain:
	for {
		select {
		case n, ok := <-reports:
			if !ok {
				break drain
			}
			if n.Kind != bridge.NotifyParameter {
				m.push(describe(m.tables, n))
			}
		default:
			break drain
		}
	}
	m.values = m.sess.Control().Parameters()

	select {
	case err := <-m.runErr:
		if err != nil {
			m.err = err
		}
	default:
	}
}

func (m *interactiveModel) meter(v float32) string {
	return m.bar.ViewAs(float64(min(max(v, 0), 1)))
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Audio Bridge"))
	b.WriteString(" ")
	b.WriteString(m.name)
	b.WriteString("\n\n")

	if len(m.inputs) > 0 {
		b.WriteString("Inputs:\n")
		for i, idx := range m.inputs {
			p := m.tables.Parameters[idx]
			v := m.values[p.Name]
			label := fmt.Sprintf("%-10s %7.3f", p.Name, v)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + label))
			} else {
				b.WriteString("  " + nameStyle.Render(label))
			}
			b.WriteString(" ")
			b.WriteString(m.meter(v))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(m.outputs) > 0 {
		b.WriteString("Outputs:\n")
		for _, idx := range m.outputs {
			p := m.tables.Parameters[idx]
			v := m.values[p.Name]
			b.WriteString("  " + outputStyle.Render(fmt.Sprintf("%-10s %7.3f", p.Name, v)))
			b.WriteString(" ")
			b.WriteString(m.meter(v))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	note := "-"
	if m.note >= 0 {
		note = fmt.Sprint(m.note)
	}
	st := m.stats()
	b.WriteString(fmt.Sprintf("Note %s  Bend %d  Callbacks %d  Mismatches %d\n\n",
		note, m.bend, st.Callbacks, st.Mismatches))

	for _, line := range m.recent {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(m.recent) > 0 {
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("a-k play • space release • [/] bend • ↑/↓ select • ←/→ adjust • q quit"))
	return b.String()
}

// runInteractive plays the guest against a wall-clock driver and shows its
// parameters live. Logging is discarded since the terminal belongs to the TUI.
func runInteractive(ctx context.Context, opts *options) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}

	rt, err := runtime.New(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	mod, err := load(ctx, rt, opts)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	sess, err := mod.Open(ctx, float32(opts.rate), runtime.SessionConfig{
		Bridge: bridge.Options{Permission: bridge.PermissionGranted},
	})
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer sess.Close(ctx)

	if err := applyControls(sess.Control(), opts); err != nil {
		return err
	}

	drv, err := sess.Driver(host.DriverConfig{
		SampleRate: opts.rate,
		Frames:     opts.frames,
		Realtime:   true,
		Source:     sineSource(opts.rate),
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runErr <- drv.Run(runCtx, 0)
	}()
	defer func() {
		cancel()
		<-done
	}()

	name := opts.builtin
	if name == "" {
		name = opts.wasm
	}
	p := tea.NewProgram(newInteractiveModel(name, sess, drv.Stats, runErr), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
