// ABOUTME: Panel TUI for displaying sync state and correction activity
// ABOUTME: Real-time status display using bubbletea
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/glowsync/glowsync-go/internal/protocol"
)

// PanelTUI manages the panel TUI
type PanelTUI struct {
	program  *tea.Program
	updates  chan protocol.StatusSnapshot
	quitChan chan struct{} // Signal to stop the panel
}

// tuiModel is the bubbletea model for the panel TUI
type tuiModel struct {
	name      string
	daemonURL string
	snapshot  protocol.StatusSnapshot
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type snapshotMsg protocol.StatusSnapshot

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tickEvery(),
	)
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case snapshotMsg:
		m.snapshot = protocol.StatusSnapshot(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down panel...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	warnStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("203"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Glowsync Panel"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Panel: "))
	b.WriteString(valueStyle.Render(m.name))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Daemon: "))
	if m.snapshot.SourceHealthy {
		b.WriteString(valueStyle.Render(m.daemonURL))
	} else {
		b.WriteString(warnStyle.Render(m.daemonURL + " (unreachable)"))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	uptime := time.Since(m.startTime).Round(time.Second)
	b.WriteString(valueStyle.Render(uptime.String()))
	b.WriteString("\n\n")

	if m.snapshot.Playing {
		b.WriteString(headerStyle.Render("Playing: "))
		b.WriteString(valueStyle.Render(m.snapshot.Item))
		if m.snapshot.FrameLocked {
			b.WriteString(valueStyle.Render("  [frame-locked]"))
		}
		b.WriteString("\n")

		b.WriteString(headerStyle.Render("Position: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s (reported %ds)",
			formatMs(m.snapshot.EstimatedMs), m.snapshot.ReportedSec)))
		b.WriteString("\n")

		b.WriteString(headerStyle.Render("Drift: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%+.1f ppm", m.snapshot.DriftPpm)))
		b.WriteString("\n")
	} else {
		b.WriteString(headerStyle.Render("Playing: "))
		b.WriteString(valueStyle.Render("idle"))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Corrections: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d hard, %d soft",
		m.snapshot.HardSeeks, m.snapshot.SoftRates)))
	b.WriteString("\n")

	if m.snapshot.FailedPolls > 0 {
		b.WriteString(headerStyle.Render("Failed polls: "))
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d", m.snapshot.FailedPolls)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// formatMs renders a millisecond position as m:ss.mmm.
func formatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
}

// NewPanelTUI creates a new panel TUI
func NewPanelTUI() *PanelTUI {
	return &PanelTUI{
		updates:  make(chan protocol.StatusSnapshot, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until quit. name labels the panel; daemonURL shows which
// daemon it follows.
func (t *PanelTUI) Start(name, daemonURL string) error {
	m := tuiModel{
		name:      name,
		daemonURL: daemonURL,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for snapshot := range t.updates {
			if t.program != nil {
				t.program.Send(snapshotMsg(snapshot))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status snapshot to the TUI
func (t *PanelTUI) Update(snapshot protocol.StatusSnapshot) {
	select {
	case t.updates <- snapshot:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *PanelTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *PanelTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
