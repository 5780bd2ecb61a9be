package config

import (
	"errors"
	"fmt"
	"os"
)

// Manager edits the box list of a configuration file in place
type Manager struct {
	configPath string
}

// NewManager creates a new config manager
func NewManager(configPath string) *Manager {
	return &Manager{configPath: configPath}
}

// Path returns the configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// Load loads the configuration, writing the default one first when the file is missing
func (m *Manager) Load() (*Config, error) {
	if _, err := os.Stat(m.configPath); errors.Is(err, os.ErrNotExist) {
		defaultConfig := NewDefaultConfig()
		if err := m.Save(defaultConfig); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return defaultConfig, nil
	}

	return Load(m.configPath)
}

// Save validates the configuration and writes it
func (m *Manager) Save(config *Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	return config.Save(m.configPath)
}

// AddBox adds a new box to the configuration
func (m *Manager) AddBox(box BoxConfig) error {
	config, err := m.Load()
	if err != nil {
		return err
	}

	for _, existing := range config.Boxes {
		if existing.ID == box.ID {
			return fmt.Errorf("box with ID '%s' already exists", box.ID)
		}
	}

	config.Boxes = append(config.Boxes, box)
	return m.Save(config)
}

// UpdateBox replaces the box with the given id, keeping the id
func (m *Manager) UpdateBox(id string, updated BoxConfig) error {
	config, err := m.Load()
	if err != nil {
		return err
	}

	for i := range config.Boxes {
		if config.Boxes[i].ID == id {
			updated.ID = id
			config.Boxes[i] = updated
			return m.Save(config)
		}
	}

	return fmt.Errorf("box with ID '%s' not found", id)
}

// RemoveBox removes a box from the configuration. The last box cannot be removed.
func (m *Manager) RemoveBox(id string) error {
	config, err := m.Load()
	if err != nil {
		return err
	}

	for i := range config.Boxes {
		if config.Boxes[i].ID == id {
			config.Boxes = append(config.Boxes[:i], config.Boxes[i+1:]...)
			return m.Save(config)
		}
	}

	return fmt.Errorf("box with ID '%s' not found", id)
}

// ListBoxes returns all configured boxes
func (m *Manager) ListBoxes() ([]BoxConfig, error) {
	config, err := m.Load()
	if err != nil {
		return nil, err
	}
	return config.Boxes, nil
}

// BackupConfig copies the current configuration next to the original
func (m *Manager) BackupConfig() error {
	config, err := m.Load()
	if err != nil {
		return err
	}
	return config.Save(m.configPath + ".backup")
}

// RestoreFromBackup replaces the configuration with the backup copy
func (m *Manager) RestoreFromBackup() error {
	backupPath := m.configPath + ".backup"

	if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("backup file does not exist: %s", backupPath)
	}

	config, err := Load(backupPath)
	if err != nil {
		return fmt.Errorf("failed to load backup: %w", err)
	}

	return m.Save(config)
}
