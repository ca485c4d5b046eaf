// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/benchrig/kp184ctl/pkg/kp184"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusModeSelect = iota
	focusSetpointInput
	focusOutputButton
)

var controlModes = []kp184.Mode{kp184.ModeCV, kp184.ModeCC, kp184.ModeCR, kp184.ModeCW}

// setpointLimits gives the input hint per mode.
var setpointLimits = map[kp184.Mode]string{
	kp184.ModeCV: "0-150 V",
	kp184.ModeCC: "0-30 A",
	kp184.ModeCR: "0-80 Ohm",
	kp184.ModeCW: "0-250 W",
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	session  *kp184.Session
	poller   *kp184.Poller
	connInfo string

	// Latest telemetry
	snapshot    kp184.Snapshot
	hasSnapshot bool

	// Control
	pendingMode   kp184.Mode
	setpointInput textinput.Model
	focusedField  int

	// Event log
	eventLog      []eventLogEntry
	maxLogEntries int

	// UI state
	width    int
	height   int
	killing  bool
	quitting bool
	runErr   error
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type snapshotMsg kp184.Snapshot

type pollerDoneMsg struct {
	err error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(session *kp184.Session, connInfo string, poller *kp184.Poller) controlModel {
	ti := textinput.New()
	ti.Placeholder = "1.00"
	ti.CharLimit = 8
	ti.Width = 10

	return controlModel{
		session:       session,
		poller:        poller,
		connInfo:      connInfo,
		pendingMode:   kp184.ModeCC,
		setpointInput: ti,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		focusedField:  focusModeSelect,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return nil
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		m.snapshot = kp184.Snapshot(msg)
		m.hasSnapshot = true
		if m.snapshot.Stale {
			m.addLogEntry("telemetry read timed out, showing previous values", true)
		}

	case pollerDoneMsg:
		// Poller finished its shutdown path (kill or fatal error); the
		// output-off attempt has already happened.
		m.quitting = true
		m.runErr = msg.err
		return m, tea.Quit
	}

	// Update child components
	if m.focusedField == focusSetpointInput {
		var cmd tea.Cmd
		m.setpointInput, cmd = m.setpointInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		// Kill: the poller commands the output off with the shortest
		// timeout, then pollerDoneMsg quits the TUI.
		m.killing = true
		m.addLogEntry("KILL: commanding load output off", true)
		m.poller.Kill()
		return m, nil

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "left", "h":
		if m.focusedField == focusModeSelect {
			m.pendingMode = prevMode(m.pendingMode)
		}

	case "right", "l":
		if m.focusedField == focusModeSelect {
			m.pendingMode = nextMode(m.pendingMode)
		}

	case "enter":
		return m.handleEnter()
	}

	if m.focusedField == focusSetpointInput {
		var cmd tea.Cmd
		m.setpointInput, cmd = m.setpointInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if m.killing {
		return m, nil
	}

	switch m.focusedField {
	case focusModeSelect:
		m.applyMode()
	case focusSetpointInput:
		m.applySetpoint()
	case focusOutputButton:
		m.toggleOutput()
	}
	return m, nil
}

func (m controlModel) cycleFocus(delta int) controlModel {
	m.focusedField = (m.focusedField + delta + focusOutputButton + 1) % (focusOutputButton + 1)

	if m.focusedField == focusSetpointInput {
		m.setpointInput.Focus()
	} else {
		m.setpointInput.Blur()
	}
	return m
}

//////////////////////////////////////////////////////////////
// Device Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) applyMode() {
	if err := m.session.SetMode(m.pendingMode); err != nil {
		m.addLogEntry(fmt.Sprintf("set mode failed: %v", err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("mode set to %s", m.pendingMode), false)
}

func (m *controlModel) applySetpoint() {
	raw := m.setpointInput.Value()
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		m.addLogEntry(fmt.Sprintf("invalid setpoint value: %q", raw), true)
		return
	}

	field := kp184.FieldForMode(m.pendingMode)
	if err := m.session.SetSetpoint(field, value); err != nil {
		m.addLogEntry(fmt.Sprintf("set %s failed: %v", field, err), true)
		return
	}
	m.addLogEntry(fmt.Sprintf("setpoint %s = %g", field, value), false)
	m.setpointInput.SetValue("")
}

func (m *controlModel) toggleOutput() {
	target := true
	if m.hasSnapshot && m.snapshot.OutputOn {
		target = false
	}
	if err := m.session.SetOutput(target); err != nil {
		m.addLogEntry(fmt.Sprintf("set output failed: %v", err), true)
		return
	}
	if target {
		m.addLogEntry("load output ON", false)
	} else {
		m.addLogEntry("load output OFF", false)
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		if m.runErr != nil {
			return fmt.Sprintf("Stopped: %v\nLoad output commanded off.\n", m.runErr)
		}
		return "Load output commanded off. Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	focusedButtonStyle := buttonStyle.
		Background(lipgloss.Color("10"))

	// Header
	s.WriteString(titleStyle.Render("KP184 CONTROL"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=kill Tab=switch Enter=apply", m.connInfo)))
	s.WriteString("\n\n")

	// Telemetry panel
	s.WriteString(m.renderTelemetry(labelStyle, valueStyle, warningStyle, boxStyle))
	s.WriteString("\n\n")

	// Control panel
	s.WriteString(m.renderControls(labelStyle, valueStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle))

	return s.String()
}

func (m controlModel) renderTelemetry(labelStyle, valueStyle, warningStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(labelStyle.Render("TELEMETRY"))
	content.WriteString(" | ")

	if !m.hasSnapshot {
		content.WriteString("waiting for first poll...")
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	snap := m.snapshot
	onOff := "OFF"
	if snap.OutputOn {
		onOff = "ON"
	}

	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Mode:"), valueStyle.Render(snap.Mode.String())))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Output:"), valueStyle.Render(onOff)))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Voltage:"), valueStyle.Render(fmt.Sprintf("%.3f V", snap.Voltage))))
	content.WriteString(fmt.Sprintf("%s %s  ", labelStyle.Render("Current:"), valueStyle.Render(fmt.Sprintf("%.3f A", snap.Current))))
	content.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Power:"), valueStyle.Render(fmt.Sprintf("%.2f W", snap.Power))))

	if snap.Stale {
		content.WriteString("  ")
		content.WriteString(warningStyle.Render("[stale]"))
	}

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m controlModel) renderControls(labelStyle, valueStyle, boxStyle, focusedBoxStyle, buttonStyle, focusedButtonStyle lipgloss.Style) string {
	// Mode selector
	var modes strings.Builder
	modes.WriteString(labelStyle.Render("Mode: "))
	for i, mode := range controlModes {
		if i > 0 {
			modes.WriteString(" ")
		}
		if mode == m.pendingMode {
			modes.WriteString(valueStyle.Render("[" + mode.String() + "]"))
		} else {
			modes.WriteString(" " + mode.String() + " ")
		}
	}
	modeBox := boxStyle
	if m.focusedField == focusModeSelect {
		modeBox = focusedBoxStyle
	}
	modePanel := modeBox.Render(modes.String())

	// Setpoint input
	var setpoint strings.Builder
	setpoint.WriteString(labelStyle.Render(fmt.Sprintf("Setpoint (%s): ", setpointLimits[m.pendingMode])))
	if m.focusedField == focusSetpointInput {
		setpoint.WriteString(m.setpointInput.View())
	} else {
		val := m.setpointInput.Value()
		if val == "" {
			val = m.setpointInput.Placeholder
		}
		setpoint.WriteString(fmt.Sprintf("[%s]", val))
	}
	setpointBox := boxStyle
	if m.focusedField == focusSetpointInput {
		setpointBox = focusedBoxStyle
	}
	setpointPanel := setpointBox.Render(setpoint.String())

	// Output button
	btnText := "[ Output ON ]"
	if m.hasSnapshot && m.snapshot.OutputOn {
		btnText = "[ Output OFF ]"
	}
	var button string
	if m.focusedField == focusOutputButton {
		button = focusedButtonStyle.Render(btnText)
	} else {
		button = buttonStyle.Render(btnText)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, modePanel, " ", setpointPanel, " ", button)
}

func (m controlModel) renderEventLog(labelStyle, warningStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyle
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func nextMode(m kp184.Mode) kp184.Mode {
	return kp184.Mode((uint8(m) + 1) % uint8(len(controlModes)))
}

func prevMode(m kp184.Mode) kp184.Mode {
	return kp184.Mode((uint8(m) + uint8(len(controlModes)) - 1) % uint8(len(controlModes)))
}
