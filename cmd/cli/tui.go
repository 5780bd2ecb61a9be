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
	"github.com/charmbracelet/bubbletea"
	"mediaroom/internal/config"
	"mediaroom/internal/logger"
)

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool

	debug  bool
	config *config.Config

	// Screen models
	setupModel  SetupModel
	remoteModel RemoteModel
}

func initialModel(debug bool, cfg *config.Config) model {
	return model{
		currentScreen: screenBoxSetup,
		debug:         debug,
		config:        cfg,
		setupModel:    NewSetupModel(debug, cfg),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.currentScreen == screenRemoteControl {
			m.remoteModel, _ = m.remoteModel.Update(msg)
		}
		return m, nil

	case discoveryResultMsg:
		if m.currentScreen == screenBoxSetup {
			m.setupModel, _ = m.setupModel.Update(msg)
		}
		return m, nil

	case actionResultMsg:
		if m.currentScreen == screenRemoteControl {
			var cmd tea.Cmd
			m.remoteModel, cmd = m.remoteModel.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		// Global quit handling
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			if m.currentScreen == screenRemoteControl {
				m.remoteModel.Close()
			}
			return m, tea.Quit

		case "q":
			if m.currentScreen == screenBoxSetup {
				m.quitting = true
				return m, tea.Quit
			}
			// In remote screen, 'q' goes back to setup
			m.remoteModel.Close()
			m.currentScreen = screenBoxSetup
			m.setupModel = NewSetupModel(m.debug, m.config)
			return m, nil
		}

		// Route messages to appropriate screen
		switch m.currentScreen {
		case screenBoxSetup:
			var cmd tea.Cmd
			m.setupModel, cmd = m.setupModel.Update(msg)

			if m.setupModel.IsConnected() {
				m.remoteModel = NewRemoteModel(m.setupModel.GetBox(), m.setupModel.GetDebugMode())
				m.remoteModel.width = m.width
				m.remoteModel.height = m.height
				m.currentScreen = screenRemoteControl
				return m, tea.Batch(cmd, m.remoteModel.Init())
			}

			return m, cmd

		case screenRemoteControl:
			var cmd tea.Cmd
			m.remoteModel, cmd = m.remoteModel.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Thanks for using Mediaroom!") + "\n"
	}

	// Route view rendering to appropriate screen
	switch m.currentScreen {
	case screenBoxSetup:
		return m.setupModel.View()
	case screenRemoteControl:
		return m.remoteModel.View()
	default:
		return "Unknown screen"
	}
}

// StartTUI runs the terminal remote. cfg may be nil.
func StartTUI(debug bool, cfg *config.Config) error {
	log := logger.New()
	log.Debug().Bool("config", cfg != nil).Msg("Starting terminal remote")

	p := tea.NewProgram(
		initialModel(debug, cfg),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// Ensure proper cleanup on panic or interrupt
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}
