// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"mediaroom/internal/device"
	"mediaroom/internal/logger"
	"mediaroom/internal/remote"
)

const (
	// actionTimeout covers the slowest action, a state query
	actionTimeout = remote.DefaultQueryTimeout + 5*time.Second

	maxChannelDigits = 3
)

// LogEntry represents a log entry for display
type LogEntry struct {
	Timestamp time.Time
	Level     string // INF, DBG, ERR
	Message   string
	Action    string // button name or action
}

// actionResultMsg reports a finished action back to the model
type actionResultMsg struct {
	button   remoteButton
	label    string
	action   string
	response *device.ActionResponse
}

// RemoteModel handles the remote control screen
type RemoteModel struct {
	// Connected box
	device     device.Device
	deviceInfo device.DeviceInfo

	// Remote control state
	selectedButton  remoteButton
	lastButtonPress time.Time
	channelEntry    string
	pending         int
	boxState        string
	boxStateAt      time.Time

	// Response and history
	lastResponse  *device.ActionResponse
	lastLabel     string
	actionHistory []actionHistoryEntry

	// Flags
	debugMode bool

	// Screen dimensions for responsive layout
	width  int
	height int

	// Log display
	logBuffer   []LogEntry
	maxLogLines int
}

// NewRemoteModel creates a new remote control screen model
func NewRemoteModel(dev device.Device, debug bool) RemoteModel {
	return RemoteModel{
		device:        dev,
		deviceInfo:    dev.GetDeviceInfo(),
		actionHistory: []actionHistoryEntry{},
		debugMode:     debug,
		logBuffer:     []LogEntry{},
		maxLogLines:   3,
	}
}

// Init queries the box state when the screen opens
func (m RemoteModel) Init() tea.Cmd {
	return m.process(buttonState, "State", device.ActionRequest{
		Type:   device.ActionTypeState,
		Action: string(device.StateActionGet),
	})
}

// Close releases the box connection if the device holds one
func (m RemoteModel) Close() error {
	if closer, ok := m.device.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Update handles remote control screen messages
func (m RemoteModel) Update(msg tea.Msg) (RemoteModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case actionResultMsg:
		return m.handleActionResult(msg), nil

	case tea.KeyMsg:
		switch msg.String() {
		// Navigation keys
		case "up":
			return m.handleRemoteButton(buttonUp)
		case "down":
			return m.handleRemoteButton(buttonDown)
		case "left":
			return m.handleRemoteButton(buttonLeft)
		case "right":
			return m.handleRemoteButton(buttonRight)
		case "enter":
			if m.channelEntry != "" {
				return m.handleChannelEntry()
			}
			return m.handleRemoteButton(buttonOK)
		case "backspace":
			if m.channelEntry != "" {
				m.channelEntry = m.channelEntry[:len(m.channelEntry)-1]
				return m, nil
			}
			return m.handleRemoteButton(buttonBack)
		case "esc":
			if m.channelEntry != "" {
				m.channelEntry = ""
				return m, nil
			}
			return m.handleRemoteButton(buttonExit)

		// Power and state
		case "p":
			return m.handleRemoteButton(buttonPower)
		case "o":
			return m.handlePower(buttonPowerOn, device.PowerActionOn)
		case "f":
			return m.handlePower(buttonPowerOff, device.PowerActionOff)
		case "s":
			return m.handleStateQuery()

		// Volume and channel
		case "+", "=":
			return m.handleRemoteButton(buttonVolUp)
		case "-":
			return m.handleRemoteButton(buttonVolDown)
		case "m":
			return m.handleRemoteButton(buttonMute)
		case "pgup":
			return m.handleRemoteButton(buttonChanUp)
		case "pgdown":
			return m.handleRemoteButton(buttonChanDown)
		case "l":
			return m.handleRemoteButton(buttonLast)

		// Number keys build up a channel number
		case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
			return m.handleNumberKey(msg.String())

		// Function keys
		case "home":
			return m.handleRemoteButton(buttonMenu)
		case "g":
			return m.handleRemoteButton(buttonGuide)
		case "i":
			return m.handleRemoteButton(buttonInfo)

		// Playback
		case " ":
			return m.handleRemoteButton(buttonPlayPause)
		case "x":
			return m.handleRemoteButton(buttonStop)
		case ",":
			return m.handleRemoteButton(buttonRewind)
		case ".":
			return m.handleRemoteButton(buttonForward)
		case "r":
			return m.handleRemoteButton(buttonRecord)
		case "[":
			return m.handleRemoteButton(buttonReplay)
		case "]":
			return m.handleRemoteButton(buttonSkip)

		// Colour keys
		case "f1":
			return m.handleRemoteButton(buttonRed)
		case "f2":
			return m.handleRemoteButton(buttonGreen)
		case "f3":
			return m.handleRemoteButton(buttonYellow)
		case "f4":
			return m.handleRemoteButton(buttonBlue)
		}
	}

	return m, nil
}

// View renders the remote control screen
func (m RemoteModel) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("Mediaroom - Remote Control"))

	// Box info (compact single line)
	boxInfo := successStyle.Render("📺 " + m.deviceInfo.Model + " " + m.deviceInfo.Address)
	if m.boxState != "" {
		boxInfo += " " + lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C")).
			Render(fmt.Sprintf("[%s at %s]", m.boxState, m.boxStateAt.Format("15:04:05")))
	}
	sections = append(sections, boxInfo)

	sections = append(sections, m.renderHorizontalRemoteLayout())

	if m.channelEntry != "" {
		sections = append(sections, subtitleStyle.Render("Channel: "+m.channelEntry+"_"))
	}

	if m.pending > 0 {
		sections = append(sections, helpStyle.Render(fmt.Sprintf("Sending... (%d pending)", m.pending)))
	} else if m.lastResponse != nil {
		sections = append(sections, m.renderStatusBar())
	}

	if m.debugMode {
		if logDisplay := m.renderLogDisplay(); logDisplay != "" {
			sections = append(sections, logDisplay)
		}
	}

	sections = append(sections, m.renderHelpText())

	return strings.Join(sections, "\n\n")
}

// renderHorizontalRemoteLayout creates a horizontal remote control layout
func (m RemoteModel) renderHorizontalRemoteLayout() string {
	getButtonStyle := func(btn remoteButton) lipgloss.Style {
		if m.selectedButton == btn && time.Since(m.lastButtonPress) < 200*time.Millisecond {
			return remoteButtonActiveStyle
		}
		return remoteButtonStyle
	}

	// Left column: Power & Navigation (all buttons 6 chars wide)
	navColumn := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.JoinHorizontal(lipgloss.Center,
			getButtonStyle(buttonPowerOn).Render("  ON  "),
			getButtonStyle(buttonPower).Render(" PWR  "),
			getButtonStyle(buttonPowerOff).Render(" OFF  ")),
		"",
		getButtonStyle(buttonUp).Render("  ↑   "),
		lipgloss.JoinHorizontal(lipgloss.Center,
			getButtonStyle(buttonLeft).Render("  ←   "),
			getButtonStyle(buttonOK).Render(" OK   "),
			getButtonStyle(buttonRight).Render("  →   ")),
		getButtonStyle(buttonDown).Render("  ↓   "),
	)

	navColumnWithHeader := lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B")).Render("Power & Navigation:"),
		navColumn,
	)

	// Middle column: Volume & Channel
	volumeColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#8BE9FD")).Render("Volume & Channel:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonVolUp).Render("VOL + "),
			"  ",
			getButtonStyle(buttonChanUp).Render("CH +  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonVolDown).Render("VOL - "),
			"  ",
			getButtonStyle(buttonChanDown).Render("CH -  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonMute).Render("MUTE  "),
			"  ",
			getButtonStyle(buttonLast).Render("LAST  ")),
		getButtonStyle(buttonChannel).Render("0-9   "),
	)

	// Right column: Menus, playback and colour keys
	functionColumn := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("Functions:"),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonMenu).Render("MENU  "),
			" ",
			getButtonStyle(buttonGuide).Render("GUIDE "),
			" ",
			getButtonStyle(buttonInfo).Render("INFO  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonBack).Render("BACK  "),
			" ",
			getButtonStyle(buttonExit).Render("EXIT  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonRewind).Render(" <<   "),
			getButtonStyle(buttonPlayPause).Render(" >||  "),
			getButtonStyle(buttonForward).Render(" >>   ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonReplay).Render(" |<   "),
			getButtonStyle(buttonStop).Render(" STOP "),
			getButtonStyle(buttonSkip).Render(" >|   "),
			getButtonStyle(buttonRecord).Render(" REC  ")),
		lipgloss.JoinHorizontal(lipgloss.Left,
			getButtonStyle(buttonRed).Foreground(lipgloss.Color("#FF5555")).Render(" RED  "),
			getButtonStyle(buttonGreen).Foreground(lipgloss.Color("#50FA7B")).Render("GREEN "),
			getButtonStyle(buttonYellow).Foreground(lipgloss.Color("#F1FA8C")).Render("YELLOW"),
			getButtonStyle(buttonBlue).Foreground(lipgloss.Color("#8BE9FD")).Render(" BLUE ")),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top,
		navColumnWithHeader,
		strings.Repeat(" ", 4),
		volumeColumn,
		strings.Repeat(" ", 4),
		functionColumn,
	)
}

// renderStatusBar creates the status bar with last action result
func (m RemoteModel) renderStatusBar() string {
	if m.lastResponse == nil {
		return ""
	}

	if !m.lastResponse.Success {
		return errorStyle.Render("✗ " + m.lastLabel + ": " + m.lastResponse.Error)
	}

	status := successStyle.Render("✓ " + m.lastLabel)
	if m.lastResponse.Data != nil {
		status += fmt.Sprintf(": %v", m.lastResponse.Data)
	}
	return status
}

// renderLogDisplay creates a fixed height log display area
func (m RemoteModel) renderLogDisplay() string {
	if len(m.logBuffer) == 0 {
		return ""
	}

	maxLines := m.maxLogLines
	start := 0
	if len(m.logBuffer) > maxLines {
		start = len(m.logBuffer) - maxLines
	}

	autoScrollIcon := ""
	if len(m.logBuffer) > maxLines {
		autoScrollIcon = " ↓"
	}

	logLines := []string{
		lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4")).
			Render(fmt.Sprintf("─── LOGS%s ───", autoScrollIcon)),
	}

	for i := 0; i < maxLines; i++ {
		if start+i >= len(m.logBuffer) {
			// Keep the area at a fixed height
			logLines = append(logLines, "")
			continue
		}

		entry := m.logBuffer[start+i]

		var levelStyle lipgloss.Style
		switch entry.Level {
		case "ERR":
			levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
		case "DBG":
			levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6272A4"))
		default: // INF
			levelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
		}

		message := entry.Message
		if len(message) > 60 {
			message = message[:57] + "..."
		}

		logLines = append(logLines, fmt.Sprintf("%s [%s] %s",
			entry.Timestamp.Format("15:04:05"),
			levelStyle.Render(entry.Level),
			message))
	}

	return strings.Join(logLines, "\n")
}

// addLogEntry adds a new log entry to the buffer
func (m *RemoteModel) addLogEntry(level, message, action string) {
	m.logBuffer = append(m.logBuffer, LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Action:    action,
	})

	// Keep more in buffer than we display
	if len(m.logBuffer) > 20 {
		m.logBuffer = m.logBuffer[1:]
	}
}

// renderHelpText creates the help text at the bottom
func (m RemoteModel) renderHelpText() string {
	help := "Arrows: Navigate • Enter: OK • P: Power • O/F: On/Off • S: State • +/-: Volume • 0-9 Enter: Channel"
	if m.width > 120 {
		help += " • PgUp/PgDn: Channel • M: Mute • Home: Menu • G: Guide • Space: Play/Pause • F1-F4: Colours • q: Disconnect"
	} else {
		help += " • q: Disconnect"
	}

	return "\n" + helpStyle.Render(help)
}

// handleRemoteButton presses the key bound to button
func (m RemoteModel) handleRemoteButton(button remoteButton) (RemoteModel, tea.Cmd) {
	name, ok := buttonKeys[button]
	if !ok || m.device == nil {
		return m, nil
	}

	return m.press(button, name, device.ActionRequest{
		Type:   device.ActionTypeCommand,
		Action: name,
	})
}

// handleNumberKey appends a digit to the channel being entered
func (m RemoteModel) handleNumberKey(key string) (RemoteModel, tea.Cmd) {
	if len(m.channelEntry) >= maxChannelDigits {
		return m, nil
	}
	m.channelEntry += key
	m.selectedButton = buttonChannel
	m.lastButtonPress = time.Now()

	if len(m.channelEntry) == maxChannelDigits {
		return m.handleChannelEntry()
	}
	return m, nil
}

// handleChannelEntry sends the entered number as one numeric command
func (m RemoteModel) handleChannelEntry() (RemoteModel, tea.Cmd) {
	entry := m.channelEntry
	m.channelEntry = ""

	n, err := strconv.Atoi(entry)
	if err != nil || m.device == nil {
		return m, nil
	}

	return m.press(buttonChannel, "Channel "+strconv.Itoa(n), device.ActionRequest{
		Type:   device.ActionTypeCommand,
		Action: strconv.Itoa(n),
	})
}

// handlePower switches the box on or off depending on its current state
func (m RemoteModel) handlePower(button remoteButton, action device.PowerAction) (RemoteModel, tea.Cmd) {
	if m.device == nil {
		return m, nil
	}

	return m.press(button, "Power "+string(action), device.ActionRequest{
		Type:   device.ActionTypePower,
		Action: string(action),
	})
}

// handleStateQuery asks the box for its state
func (m RemoteModel) handleStateQuery() (RemoteModel, tea.Cmd) {
	if m.device == nil {
		return m, nil
	}

	return m.press(buttonState, "State", device.ActionRequest{
		Type:   device.ActionTypeState,
		Action: string(device.StateActionGet),
	})
}

// press marks button as active and runs request in the background
func (m RemoteModel) press(button remoteButton, label string, request device.ActionRequest) (RemoteModel, tea.Cmd) {
	m.selectedButton = button
	m.lastButtonPress = time.Now()
	m.pending++

	if m.debugMode {
		m.addLogEntry("DBG", fmt.Sprintf("%s requested", label), label)
	}

	return m, m.process(button, label, request)
}

// process returns a command that sends request to the device off the UI goroutine
func (m RemoteModel) process(button remoteButton, label string, request device.ActionRequest) tea.Cmd {
	dev := m.device

	return func() tea.Msg {
		actionJSON, err := json.Marshal(request)
		if err != nil {
			return actionResultMsg{button: button, label: label, response: device.Failure("%v", err)}
		}

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		response, err := dev.Process(ctx, actionJSON)
		if err != nil {
			response = device.Failure("%v", err)
		}

		return actionResultMsg{
			button:   button,
			label:    label,
			action:   string(actionJSON),
			response: response,
		}
	}
}

// handleActionResult records the outcome of a finished action
func (m RemoteModel) handleActionResult(msg actionResultMsg) RemoteModel {
	if m.pending > 0 {
		m.pending--
	}

	response := msg.response
	m.lastResponse = response
	m.lastLabel = msg.label

	if response.Success {
		if data, ok := response.Data.(map[string]interface{}); ok {
			if state, ok := data["state"].(string); ok {
				m.boxState = state
				m.boxStateAt = time.Now()
			}
		}
	}

	if m.debugMode {
		if response.Success {
			m.addLogEntry("INF", fmt.Sprintf("%s completed", msg.label), msg.label)
		} else {
			m.addLogEntry("ERR", fmt.Sprintf("%s failed: %s", msg.label, response.Error), msg.label)
		}
	}

	entry := actionHistoryEntry{
		Timestamp: time.Now(),
		Action:    msg.action,
		Success:   response.Success,
	}
	if response.Success {
		if data, err := json.Marshal(response.Data); err == nil {
			entry.Response = string(data)
		} else {
			entry.Response = fmt.Sprintf("%v", response.Data)
		}
	} else {
		entry.Error = response.Error
	}

	m.actionHistory = append([]actionHistoryEntry{entry}, m.actionHistory...)
	if len(m.actionHistory) > 50 {
		m.actionHistory = m.actionHistory[:50]
	}

	log := logger.New()
	log.Info().
		Str("action", msg.action).
		Bool("success", response.Success).
		Msg("Remote button pressed")

	return m
}
