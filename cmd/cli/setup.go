package cli

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"mediaroom/internal/config"
	"mediaroom/internal/discovery"
	"mediaroom/internal/logger"
	"mediaroom/internal/remote"
)

// Setup screen input fields
type setupField int

const (
	setupFieldHostAddress setupField = iota
	setupFieldConnect
	setupFieldDiscover
	setupFieldBoxList
)

const defaultScanWait = 10 * time.Second

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// boxCandidate is an entry in the box list, either configured or discovered
type boxCandidate struct {
	Label   string
	Address string
	Port    int
}

// discoveryResultMsg carries the outcome of a background scan
type discoveryResultMsg struct {
	boxes []discovery.Box
	err   error
}

// SetupModel handles the box setup screen
type SetupModel struct {
	// Navigation
	focusedField setupField

	// Input fields
	hostAddress       string
	hostAddressCursor int

	// Configured and discovered boxes
	candidates []boxCandidate
	selected   int
	scanning   bool
	scanWait   time.Duration

	// Connection state
	connectionError string

	// Connected box (when setup complete)
	box *remote.BoxDevice

	// Flags
	debugMode bool

	// Configuration, nil when running without a config file
	config *config.Config
}

// NewSetupModel creates a new setup screen model
func NewSetupModel(debug bool, cfg *config.Config) SetupModel {
	m := SetupModel{
		focusedField: setupFieldHostAddress,
		debugMode:    debug,
		config:       cfg,
		scanWait:     defaultScanWait,
	}

	if cfg != nil {
		if cfg.Discovery.MaxWait > 0 && cfg.Discovery.MaxWait < defaultScanWait {
			m.scanWait = cfg.Discovery.MaxWait
		}
		for _, box := range cfg.Boxes {
			label := box.ID
			if box.Name != "" {
				label = fmt.Sprintf("%s (%s)", box.Name, box.ID)
			}
			m.candidates = append(m.candidates, boxCandidate{
				Label:   fmt.Sprintf("%s  %s", label, box.Address),
				Address: box.Address,
				Port:    box.Port,
			})
		}
	}

	return m
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case discoveryResultMsg:
		return m.handleDiscoveryResult(msg), nil

	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab":
			return m.handleTabNavigation(msg.String() == "shift+tab"), nil

		case "enter":
			switch m.focusedField {
			case setupFieldHostAddress, setupFieldConnect:
				return m.handleConnect()
			case setupFieldDiscover:
				return m.handleDiscover()
			case setupFieldBoxList:
				return m.handleSelectCandidate()
			}
			return m, nil

		case "up":
			return m.handleUp(), nil

		case "down":
			return m.handleDown(), nil

		case "left":
			return m.handleLeft(), nil

		case "right":
			return m.handleRight(), nil

		case "backspace":
			return m.handleBackspace(), nil

		case "delete":
			return m.handleDelete(), nil

		case "home":
			return m.handleHome(), nil

		case "end":
			return m.handleEnd(), nil

		default:
			return m.handleTextInput(msg.String()), nil
		}
	}

	return m, nil
}

// View renders the setup screen
func (m SetupModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Mediaroom - Box Setup"))
	b.WriteString("\n\n")

	// Host Address Input
	b.WriteString(subtitleStyle.Render("Box Address (IP or IP:Port):"))
	b.WriteString("\n")
	hostStyle := inputStyle
	showCursor := m.focusedField == setupFieldHostAddress
	if showCursor {
		hostStyle = inputFocusedStyle
	}
	b.WriteString(hostStyle.Render(renderTextWithCursor(m.hostAddress, m.hostAddressCursor, showCursor)))
	b.WriteString("\n\n")

	// Buttons
	connectStyle := buttonStyle
	if m.focusedField == setupFieldConnect {
		connectStyle = buttonActiveStyle
	}
	discoverStyle := buttonStyle
	if m.focusedField == setupFieldDiscover {
		discoverStyle = buttonActiveStyle
	}
	discoverText := "Discover"
	if m.scanning {
		discoverText = fmt.Sprintf("Scanning (%s)...", m.scanWait)
	}
	b.WriteString(connectStyle.Render("Connect"))
	b.WriteString(discoverStyle.Render(discoverText))
	b.WriteString("\n\n")

	// Box list
	if len(m.candidates) > 0 {
		b.WriteString(subtitleStyle.Render("Boxes:"))
		b.WriteString("\n")
		for i, candidate := range m.candidates {
			style := listItemStyle
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				if m.focusedField == setupFieldBoxList {
					style = listItemActiveStyle
				}
			}
			b.WriteString(style.Render(cursor + candidate.Label))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	// Connection Error
	if m.connectionError != "" {
		b.WriteString(errorStyle.Render("Error: " + m.connectionError))
		b.WriteString("\n\n")
	}

	// Help
	b.WriteString(helpStyle.Render("Tab: Next field • Enter: Action • ↑/↓: Choose box • ←/→: Move cursor • Home/End: Start/End • q: Quit"))

	return b.String()
}

// focusOrder lists the fields Tab cycles through; the box list only when it has entries
func (m SetupModel) focusOrder() []setupField {
	fields := []setupField{setupFieldHostAddress, setupFieldConnect, setupFieldDiscover}
	if len(m.candidates) > 0 {
		fields = append(fields, setupFieldBoxList)
	}
	return fields
}

// handleTabNavigation moves between input fields
func (m SetupModel) handleTabNavigation(reverse bool) SetupModel {
	fields := m.focusOrder()

	currentIndex := 0
	for i, field := range fields {
		if field == m.focusedField {
			currentIndex = i
			break
		}
	}

	if reverse {
		currentIndex--
		if currentIndex < 0 {
			currentIndex = len(fields) - 1
		}
	} else {
		currentIndex++
		if currentIndex >= len(fields) {
			currentIndex = 0
		}
	}

	m.focusedField = fields[currentIndex]
	m.syncCursorPosition()
	return m
}

// handleConnect creates the controller for the entered address
func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	if m.hostAddress == "" {
		m.connectionError = "Box address is required"
		return m, nil
	}

	if !m.IsValidHostAddress(m.hostAddress) {
		m.connectionError = "Invalid box address format"
		return m, nil
	}

	host, port := splitHostPort(m.hostAddress)

	var opts []remote.Option
	if m.config != nil {
		opts = m.config.ControllerOptions(config.BoxConfig{Address: host, Port: port})
	} else if port != 0 {
		opts = append(opts, remote.WithPort(port))
	}

	controller, err := remote.New(host, opts...)
	if err != nil {
		m.connectionError = err.Error()
		return m, nil
	}

	m.box = remote.NewBoxDevice(controller)
	m.connectionError = ""

	log := logger.New()
	log.Info().
		Str("address", host).
		Int("port", port).
		Msg("Box selected")

	return m, nil
}

// handleDiscover starts a background scan for announcing boxes
func (m SetupModel) handleDiscover() (SetupModel, tea.Cmd) {
	if m.scanning {
		return m, nil
	}
	m.scanning = true
	m.connectionError = ""

	scanner := discovery.NewScanner()
	if m.config != nil {
		scanner.ListenConfig = m.config.ListenConfig()
	}
	wait := m.scanWait

	return m, func() tea.Msg {
		boxes, err := scanner.Scan(context.Background(), wait)
		return discoveryResultMsg{boxes: boxes, err: err}
	}
}

// handleDiscoveryResult merges scan results into the box list
func (m SetupModel) handleDiscoveryResult(msg discoveryResultMsg) SetupModel {
	m.scanning = false
	if msg.err != nil {
		m.connectionError = fmt.Sprintf("Discovery failed: %v", msg.err)
		return m
	}
	if len(msg.boxes) == 0 {
		m.connectionError = "No boxes announced themselves"
		return m
	}

	known := make(map[string]bool, len(m.candidates))
	for _, c := range m.candidates {
		known[c.Address] = true
	}

	for _, box := range msg.boxes {
		if known[box.Address] {
			continue
		}
		state := remote.StateStandby
		if box.Tuned {
			state = remote.StatePlaying
		}
		m.candidates = append(m.candidates, boxCandidate{
			Label:   fmt.Sprintf("%s  %s", box.Address, state),
			Address: box.Address,
		})
	}

	m.focusedField = setupFieldBoxList
	return m
}

// handleSelectCandidate connects to the highlighted box
func (m SetupModel) handleSelectCandidate() (SetupModel, tea.Cmd) {
	if m.selected < 0 || m.selected >= len(m.candidates) {
		return m, nil
	}

	candidate := m.candidates[m.selected]
	m.hostAddress = candidate.Address
	if candidate.Port != 0 {
		m.hostAddress = net.JoinHostPort(candidate.Address, strconv.Itoa(candidate.Port))
	}
	m.hostAddressCursor = len(m.hostAddress)

	return m.handleConnect()
}

// handleUp handles up arrow key
func (m SetupModel) handleUp() SetupModel {
	if m.focusedField == setupFieldBoxList && m.selected > 0 {
		m.selected--
	}
	return m
}

// handleDown handles down arrow key
func (m SetupModel) handleDown() SetupModel {
	if m.focusedField == setupFieldBoxList && m.selected < len(m.candidates)-1 {
		m.selected++
	}
	return m
}

// handleLeft handles left arrow key
func (m SetupModel) handleLeft() SetupModel {
	if m.focusedField == setupFieldHostAddress && m.hostAddressCursor > 0 {
		m.hostAddressCursor--
	}
	return m
}

// handleRight handles right arrow key
func (m SetupModel) handleRight() SetupModel {
	if m.focusedField == setupFieldHostAddress && m.hostAddressCursor < len(m.hostAddress) {
		m.hostAddressCursor++
	}
	return m
}

// handleBackspace handles backspace key
func (m SetupModel) handleBackspace() SetupModel {
	if m.focusedField == setupFieldHostAddress && m.hostAddressCursor > 0 && len(m.hostAddress) > 0 {
		m.hostAddress = deleteCharAt(m.hostAddress, m.hostAddressCursor-1)
		m.hostAddressCursor--
	}
	return m
}

// handleDelete handles delete key
func (m SetupModel) handleDelete() SetupModel {
	if m.focusedField == setupFieldHostAddress && m.hostAddressCursor < len(m.hostAddress) {
		m.hostAddress = deleteCharAt(m.hostAddress, m.hostAddressCursor)
	}
	return m
}

// handleHome handles home key
func (m SetupModel) handleHome() SetupModel {
	if m.focusedField == setupFieldHostAddress {
		m.hostAddressCursor = 0
	}
	return m
}

// handleEnd handles end key
func (m SetupModel) handleEnd() SetupModel {
	if m.focusedField == setupFieldHostAddress {
		m.hostAddressCursor = len(m.hostAddress)
	}
	return m
}

// handleTextInput handles character input
func (m SetupModel) handleTextInput(input string) SetupModel {
	if m.focusedField != setupFieldHostAddress {
		return m
	}

	// Addresses are plain ASCII
	printableInput := ""
	for _, r := range input {
		if r > 32 && r < 127 {
			printableInput += string(r)
		}
	}
	if printableInput == "" || len(printableInput) != len(input) {
		return m
	}

	m.hostAddress = insertText(m.hostAddress, m.hostAddressCursor, printableInput)
	m.hostAddressCursor += len(printableInput)
	return m
}

// syncCursorPosition ensures cursor positions are within bounds
func (m *SetupModel) syncCursorPosition() {
	if m.hostAddressCursor < 0 {
		m.hostAddressCursor = 0
	}
	if m.hostAddressCursor > len(m.hostAddress) {
		m.hostAddressCursor = len(m.hostAddress)
	}
}

// IsValidHostAddress validates the host address format (with optional port)
func (m SetupModel) IsValidHostAddress(address string) bool {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		portStr = ""
	}
	if host == "" {
		return false
	}

	if net.ParseIP(host) == nil && !hostnamePattern.MatchString(host) {
		return false
	}

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return false
		}
	}

	return true
}

// splitHostPort returns the host and the port, 0 when none was given
func splitHostPort(address string) (string, int) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return address, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// IsConnected returns true once a box has been selected
func (m SetupModel) IsConnected() bool {
	return m.box != nil
}

// GetBox returns the selected box
func (m SetupModel) GetBox() *remote.BoxDevice {
	return m.box
}

// GetDebugMode returns the debug mode flag
func (m SetupModel) GetDebugMode() bool {
	return m.debugMode
}
