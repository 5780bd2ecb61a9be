package cli

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Screen types
type screen int

const (
	screenBoxSetup screen = iota
	screenRemoteControl
)

// Common styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Width(50)

	inputFocusedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#FF79C6")).
				Padding(0, 1).
				Width(50)

	buttonStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#7D56F4")).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 2).
			Margin(0, 1)

	buttonActiveStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#FF79C6")).
				Foreground(lipgloss.Color("#FAFAFA")).
				Padding(0, 2).
				Margin(0, 1)

	remoteButtonStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				Padding(0, 1).
				Margin(0, 1).
				Background(lipgloss.Color("#44475A")).
				Foreground(lipgloss.Color("#F8F8F2"))

	remoteButtonActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				Padding(0, 1).
				Margin(0, 1).
				Background(lipgloss.Color("#FF79C6")).
				Foreground(lipgloss.Color("#FAFAFA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	listItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	listItemActiveStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Foreground(lipgloss.Color("#FF79C6")).
				Bold(true)
)

// Remote button types
type remoteButton int

const (
	buttonNone remoteButton = iota
	buttonPower
	buttonPowerOn
	buttonPowerOff
	buttonState
	buttonVolUp
	buttonVolDown
	buttonMute
	buttonChanUp
	buttonChanDown
	buttonLast
	buttonUp
	buttonDown
	buttonLeft
	buttonRight
	buttonOK
	buttonBack
	buttonMenu
	buttonGuide
	buttonInfo
	buttonExit
	buttonPlayPause
	buttonStop
	buttonRewind
	buttonForward
	buttonRecord
	buttonReplay
	buttonSkip
	buttonRed
	buttonGreen
	buttonYellow
	buttonBlue
	buttonChannel
)

// buttonKeys maps key-press buttons to their names in the key table
var buttonKeys = map[remoteButton]string{
	buttonPower:     "Power",
	buttonVolUp:     "VolUp",
	buttonVolDown:   "VolDown",
	buttonMute:      "Mute",
	buttonChanUp:    "ChanUp",
	buttonChanDown:  "ChanDown",
	buttonLast:      "Last",
	buttonUp:        "Up",
	buttonDown:      "Down",
	buttonLeft:      "Left",
	buttonRight:     "Right",
	buttonOK:        "OK",
	buttonBack:      "Back",
	buttonMenu:      "Menu",
	buttonGuide:     "Guide",
	buttonInfo:      "Info",
	buttonExit:      "Exit",
	buttonPlayPause: "PlayPause",
	buttonStop:      "Stop",
	buttonRewind:    "Rewind",
	buttonForward:   "Forward",
	buttonRecord:    "Record",
	buttonReplay:    "Replay",
	buttonSkip:      "Skip",
	buttonRed:       "Red",
	buttonGreen:     "Green",
	buttonYellow:    "Yellow",
	buttonBlue:      "Blue",
}

// Action history entry
type actionHistoryEntry struct {
	Timestamp time.Time
	Action    string
	Success   bool
	Response  string
	Error     string
}

// Utility functions

// insertText inserts text at the specified position in a string
func insertText(text string, pos int, insert string) string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(text) {
		pos = len(text)
	}
	return text[:pos] + insert + text[pos:]
}

// deleteCharAt deletes the character at the specified position
func deleteCharAt(text string, pos int) string {
	if pos < 0 || pos >= len(text) {
		return text
	}
	return text[:pos] + text[pos+1:]
}

// renderTextWithCursor renders text with a cursor indicator at the specified position
func renderTextWithCursor(text string, cursorPos int, showCursor bool) string {
	if !showCursor || cursorPos < 0 {
		return text
	}

	if cursorPos > len(text) {
		cursorPos = len(text)
	}

	if cursorPos == len(text) {
		return text + "│"
	}

	// Highlight the character under the cursor
	highlightedChar := lipgloss.NewStyle().
		Background(lipgloss.Color("#FF79C6")).
		Foreground(lipgloss.Color("#FAFAFA")).
		Render(string(text[cursorPos]))

	return text[:cursorPos] + highlightedChar + text[cursorPos+1:]
}
