// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/finisher/pkg/link"
	"github.com/Thermoquad/finisher/pkg/machine"
	"github.com/Thermoquad/finisher/pkg/protocol"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusCentral = iota
	focusPlanet
	focusTime
	focusCount
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type controlKeyMap struct {
	Start      key.Binding
	StartSOP   key.Binding
	Stop       key.Binding
	Next       key.Binding
	Prev       key.Binding
	Up         key.Binding
	Down       key.Binding
	Connect    key.Binding
	Disconnect key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newControlKeyMap() controlKeyMap {
	return controlKeyMap{
		Start:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		StartSOP:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "start SOP")),
		Stop:       key.NewBinding(key.WithKeys("x", " "), key.WithHelp("x", "stop")),
		Next:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next field")),
		Prev:       key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev field")),
		Up:         key.NewBinding(key.WithKeys("up", "k", "+"), key.WithHelp("↑/k", "increase")),
		Down:       key.NewBinding(key.WithKeys("down", "j", "-"), key.WithHelp("↓/j", "decrease")),
		Connect:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		Disconnect: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "disconnect")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k controlKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Next, k.Up, k.Down, k.Help, k.Quit}
}

func (k controlKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.StartSOP, k.Stop},
		{k.Next, k.Prev, k.Up, k.Down},
		{k.Connect, k.Disconnect, k.Help, k.Quit},
	}
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctx     context.Context
	session *session // nil in tests; connect and disconnect are then no-ops
	sync    *machine.Synchronizer

	// Mirrored state
	state      machine.State
	connInfo   link.ConnectionInfo
	connecting bool
	connLost   bool

	// Event log
	log           []logEntry
	maxLogEntries int

	// UI state
	keys         controlKeyMap
	help         help.Model
	spinner      spinner.Model
	focusedField int
	width        int
	height       int
	quitting     bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

// stateMsg tells the model the synchronizer state changed. The model
// always re-reads the synchronizer, so a message that arrives late cannot
// roll the view back.
type stateMsg struct{}

type connectResultMsg struct {
	info link.ConnectionInfo
	err  error
}

type disconnectResultMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(ctx context.Context, s *session, sync *machine.Synchronizer) controlModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	return controlModel{
		ctx:           ctx,
		session:       s,
		sync:          sync,
		state:         sync.Snapshot(),
		log:           make([]logEntry, 0),
		maxLogEntries: 100,
		connecting:    s != nil,
		keys:          newControlKeyMap(),
		help:          help.New(),
		spinner:       sp,
		focusedField:  focusCentral,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(m.connectCmd(), m.spinner.Tick)
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = m.sync.Snapshot()

	case connectResultMsg:
		m.connecting = false
		if msg.info.Connected {
			m.connInfo = msg.info
		}
		switch {
		case msg.err != nil:
			m.addLogEntry(fmt.Sprintf("Connect failed: %v", msg.err), true)
		case !msg.info.Connected:
			m.addLogEntry("No controller found - running without one", true)
		}

	case disconnectResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Disconnect failed: %v", msg.err), true)
		}

	case linkEventMsg:
		m.handleLinkEvent(link.Event(msg))
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Next):
		m.focusedField = (m.focusedField + 1) % focusCount

	case key.Matches(msg, m.keys.Prev):
		m.focusedField = (m.focusedField + focusCount - 1) % focusCount

	case key.Matches(msg, m.keys.Up):
		m.adjust(protocol.Up)

	case key.Matches(msg, m.keys.Down):
		m.adjust(protocol.Down)

	case key.Matches(msg, m.keys.Start):
		if m.sync.Snapshot().CanStart() {
			m.state = m.sync.Start()
			m.logCommand()
		}

	case key.Matches(msg, m.keys.StartSOP):
		if m.sync.Snapshot().CanStart() {
			m.state = m.sync.StartSOP()
			m.logCommand()
		}

	case key.Matches(msg, m.keys.Stop):
		m.state = m.sync.Stop()
		m.logCommand()

	case key.Matches(msg, m.keys.Connect):
		if !m.connecting && !m.state.Connected && m.session != nil {
			m.connecting = true
			return m, m.connectCmd()
		}

	case key.Matches(msg, m.keys.Disconnect):
		if m.state.Connected {
			return m, m.disconnectCmd()
		}
	}

	return m, nil
}

func (m *controlModel) adjust(dir protocol.Direction) {
	switch m.focusedField {
	case focusCentral, focusPlanet:
		target := protocol.TargetCentral
		if m.focusedField == focusPlanet {
			target = protocol.TargetPlanet
		}
		st, err := m.sync.AdjustSpeed(target, dir)
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return
		}
		m.state = st
		m.logCommand()

	case focusTime:
		m.state = m.sync.AdjustTime(dir)
	}
}

func (m controlModel) connectCmd() tea.Cmd {
	if m.session == nil {
		return nil
	}
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		info, err := s.connect(ctx)
		return connectResultMsg{info: info, err: err}
	}
}

func (m controlModel) disconnectCmd() tea.Cmd {
	if m.session == nil {
		return nil
	}
	s, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := s.manager.Disconnect(ctx)
		return disconnectResultMsg{err: err}
	}
}

func (m *controlModel) handleLinkEvent(ev link.Event) {
	switch ev.Kind {
	case link.EventConnection:
		switch ev.Reason {
		case link.ReasonOpened:
			m.connInfo = ev.Info
			m.connLost = false
			m.addLogEntry("Connected: "+describe(ev.Info), false)
		case link.ReasonClosed:
			m.connInfo = ev.Info
			m.addLogEntry("Disconnected", false)
		case link.ReasonLost:
			m.connInfo = ev.Info
			m.connLost = true
			msg := "Connection lost"
			if ev.Err != nil {
				msg = fmt.Sprintf("Connection lost: %v", ev.Err)
			}
			m.addLogEntry(msg, true)
		}

	case link.EventLine:
		// status lines arrive constantly and are reflected in the panels
		if !ev.Line.IsStatus() {
			m.addLogEntry(ev.Line.Text(), false)
			return
		}
		for _, err := range protocol.ValidateStatus(ev.Line.Text()) {
			m.addLogEntry("STATUS: "+err.Message, true)
		}

	case link.EventDiscard:
		m.addLogEntry(fmt.Sprintf("DISCARDED: %v", ev.Err), true)
	}
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newStyles()
	var s strings.Builder

	// Header
	s.WriteString(st.title.Render("FINISHER CONTROL"))
	s.WriteString(" ")
	connStatus := describe(m.connInfo)
	switch {
	case m.connecting:
		connStatus = m.spinner.View() + st.warning.Render(" CONNECTING...")
	case m.connLost && !m.state.Connected:
		connStatus = st.warning.Render("RECONNECTING...")
	case !m.state.Connected:
		connStatus = st.warning.Render("NOT CONNECTED (demo)")
	}
	s.WriteString(st.header.Render("| ") + connStatus)
	s.WriteString("\n\n")

	// Setpoint panels
	panelWidth := 18
	panels := []string{
		m.renderField(st, focusCentral, "CENTRAL", fmt.Sprintf("%d RPM", m.state.CentralRPM), panelWidth),
		m.renderField(st, focusPlanet, "PLANET", fmt.Sprintf("%d RPM", m.state.PlanetRPM), panelWidth),
		m.renderField(st, focusTime, "TIME", fmt.Sprintf("%d min", m.state.TimeMins), panelWidth),
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels[0], " ", panels[1], " ", panels[2]))
	s.WriteString("\n\n")

	// Timers
	runState := st.header.Render("STOPPED")
	if m.state.Running {
		runState = st.value.Render("RUNNING")
	}
	abrasive := st.value.Render(machine.FormatHHMMSS(m.state.AbrasiveMs))
	if m.state.AbrasiveMs == 0 {
		abrasive = st.error.Render(machine.FormatHHMMSS(0))
	}
	timers := fmt.Sprintf("%s %s   %s %s   %s",
		st.label.Render("Run:"), st.big.Render(machine.FormatMMSS(m.state.CountdownMs)),
		st.label.Render("Abrasive:"), abrasive,
		runState,
	)
	s.WriteString(st.box.Width(m.width - 4).Render(timers))
	s.WriteString("\n\n")

	// Buttons
	s.WriteString(m.renderButtons(st))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")
	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}
	s.WriteString(renderLog(st, m.log, logHeight, m.width-4))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderField(st styles, field int, label, value string, width int) string {
	box := st.box
	if m.focusedField == field {
		box = st.focused
	}
	content := st.label.Render(label) + "\n" + st.big.Render(value)
	return box.Width(width).Render(content)
}

func (m controlModel) renderButtons(st styles) string {
	start := st.button
	sop := st.button
	if !m.state.CanStart() {
		start = st.header.Padding(0, 2)
		sop = st.header.Padding(0, 2)
	}
	stop := st.pressed
	if !m.state.Running {
		stop = st.button
	}

	buttons := []string{
		start.Render("[ Start s ]"),
		sop.Render("[ SOP o ]"),
		stop.Render("[ Stop x ]"),
	}
	line := strings.Join(buttons, " ")

	if m.state.LastCommand != "" {
		line += "   " + st.header.Render(fmt.Sprintf("last: %s", m.state.LastCommand))
	}
	return line
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) logCommand() {
	if m.state.LastCommand == "" {
		return
	}
	suffix := ""
	if !m.state.Connected {
		suffix = " (not connected)"
	}
	m.addLogEntry(fmt.Sprintf("Sent %s%s", m.state.LastCommand, suffix), false)
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.log = append(m.log, entry)

	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}
