// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// monitorModel is the Bubble Tea model for monitor --tui
type monitorModel struct {
	connInfo      string
	anomaliesOnly bool
	stats         *protocol.Statistics
	log           []logEntry
	maxLogEntries int
	lastStatus    *protocol.Line
	snapshot      protocol.StatusSnapshot
	connLost      bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type linkEventMsg link.Event

func initialMonitorModel(connInfo string, anomaliesOnly bool) monitorModel {
	return monitorModel{
		connInfo:      connInfo,
		anomaliesOnly: anomaliesOnly,
		stats:         protocol.NewStatistics(),
		log:           make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func runMonitorTUI(sub *link.Subscription, info link.ConnectionInfo) error {
	m := initialMonitorModel(describe(info), anomaliesOnly)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go forwardEvents(p, sub)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// forwardEvents relays link events to the program until sub is closed.
func forwardEvents(p *tea.Program, sub *link.Subscription) {
	for ev := range sub.C() {
		p.Send(linkEventMsg(ev))
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case linkEventMsg:
		m.handleEvent(link.Event(msg))
	}

	return m, nil
}

func (m *monitorModel) handleEvent(ev link.Event) {
	switch ev.Kind {
	case link.EventLine:
		validationErrors := protocol.ValidateStatus(ev.Line.Text())
		m.stats.Update(ev.Line, nil, validationErrors)

		if ev.Line.IsStatus() {
			m.lastStatus = ev.Line
			m.snapshot, _ = protocol.ParseStatus(ev.Line.Text())
		}

		for _, err := range validationErrors {
			m.addLogEntry(fmt.Sprintf("STATUS: %s", err.Message), true)
		}
		if len(validationErrors) == 0 && !m.anomaliesOnly {
			m.addLogEntry(ev.Line.Text(), false)
		}

	case link.EventDiscard:
		m.stats.Update(nil, ev.Err, nil)
		m.addLogEntry(fmt.Sprintf("DISCARDED: %v", ev.Err), true)

	case link.EventConnection:
		switch ev.Reason {
		case link.ReasonLost:
			m.connLost = true
			m.addLogEntry("Connection lost", true)
		case link.ReasonOpened:
			m.connLost = false
			m.connInfo = describe(ev.Info)
			m.addLogEntry("Connected: "+m.connInfo, false)
		case link.ReasonClosed:
			m.addLogEntry("Disconnected", false)
		}
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.log = append(m.log, entry)

	// Keep only last N entries
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newStyles()

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("FINISHER - LINE MONITOR"))
	s.WriteString("\n")
	connStatus := m.connInfo
	if m.connLost {
		connStatus = st.error.Render("CONNECTION LOST")
	}
	mode := "All lines"
	if m.anomaliesOnly {
		mode = "Anomalies only"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | r=reset q=quit", connStatus, mode)))
	s.WriteString("\n\n")

	// Statistics
	var validPercent float64
	if m.stats.StatusLines > 0 {
		validPercent = float64(m.stats.ValidStatus) * 100.0 / float64(m.stats.StatusLines)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Lines:"), st.value.Render(fmt.Sprintf("%d", m.stats.TotalLines)),
		st.label.Render("Status:"), st.value.Render(fmt.Sprintf("%d (%.1f%% clean)", m.stats.StatusLines, validPercent)),
		st.label.Render("Other:"), st.value.Render(fmt.Sprintf("%d", m.stats.OtherLines)),
	))

	if m.stats.Anomalies > 0 || m.stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)   %s %s\n",
			st.label.Render("Anomalies:"), st.warning.Render(fmt.Sprintf("%d", m.stats.Anomalies)),
			st.header.Render("bad numbers"), m.stats.InvalidNumbers,
			st.header.Render("unknown keys"), m.stats.UnknownKeys,
			st.header.Render("malformed"), m.stats.MalformedTokens,
			st.label.Render("Discarded:"), st.error.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.label.Render("Line Rate:"), st.value.Render(fmt.Sprintf("%.1f lines/s", m.stats.LineRate)),
		st.label.Render("Anomaly Rate:"), func() string {
			if m.stats.AnomalyRate > 0 {
				return st.error.Render(fmt.Sprintf("%.1f/s", m.stats.AnomalyRate))
			}
			return st.value.Render("0.0/s")
		}(),
	))

	s.WriteString(st.box.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest status
	if m.lastStatus != nil {
		s.WriteString(st.label.Render("Latest Status:"))
		s.WriteString(" ")
		s.WriteString(st.header.Render(m.lastStatus.Timestamp().Format("15:04:05.000")))
		s.WriteString("\n")
		s.WriteString(st.box.Render(strings.TrimRight(protocol.FormatSnapshot(m.snapshot), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(st.label.Render("Recent Lines:"))
	s.WriteString("\n")

	logHeight := m.height - 15 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(renderLog(st, m.log, logHeight, m.width-4))

	return s.String()
}

// styles are the lipgloss styles shared by the TUIs
type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	error   lipgloss.Style
	warning lipgloss.Style
	box     lipgloss.Style
	focused lipgloss.Style
	button  lipgloss.Style
	pressed lipgloss.Style
	big     lipgloss.Style
}

func newStyles() styles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:     box,
		focused: box.BorderForeground(lipgloss.Color("12")),
		button:  button,
		pressed: button.Background(lipgloss.Color("10")),
		big:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")),
	}
}

// renderLog draws the last height entries in a box of the given width.
func renderLog(st styles, entries []logEntry, height, width int) string {
	var content strings.Builder

	startIdx := len(entries) - height
	if startIdx < 0 {
		startIdx = 0
	}

	if len(entries) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(entries); i++ {
			entry := entries[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				content.WriteString(fmt.Sprintf("%s %s\n",
					st.header.Render(timestamp),
					st.error.Render("✗ "+entry.message),
				))
			} else {
				content.WriteString(fmt.Sprintf("%s %s\n",
					st.header.Render(timestamp),
					st.warning.Render("ℹ "+entry.message),
				))
			}
		}
	}

	return st.box.Width(width).Render(content.String())
}
