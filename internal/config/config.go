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

package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"mediaroom/internal/control"
	"mediaroom/internal/discovery"
	"mediaroom/internal/keys"
	"mediaroom/internal/notify"
	"mediaroom/internal/remote"
)

// DefaultPath is where the hub looks for its configuration
const DefaultPath = "mediaroom.yml"

// Config represents the configuration file structure
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Control   ControlConfig   `yaml:"control"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Boxes     []BoxConfig     `yaml:"boxes"`
	API       APIConfig       `yaml:"api"`
	Keys      map[string]int  `yaml:"keys,omitempty"` // key code overrides and additions
}

// NetworkConfig contains NOTIFY listener settings
type NetworkConfig struct {
	MulticastGroup string `yaml:"multicast_group"` // empty disables the multicast join
	NotifyPort     int    `yaml:"notify_port"`
	BindAddress    string `yaml:"bind_address,omitempty"`
	Interface      string `yaml:"interface,omitempty"` // empty joins on every multicast interface
	QueueSize      int    `yaml:"queue_size,omitempty"`
}

// ControlConfig contains key-press channel settings
type ControlConfig struct {
	Port           int           `yaml:"port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	IOTimeout      time.Duration `yaml:"io_timeout"`
	KeyPacing      time.Duration `yaml:"key_pacing"`
	StateTimeout   time.Duration `yaml:"state_timeout"`
}

// DiscoveryConfig contains scan settings
type DiscoveryConfig struct {
	MaxWait time.Duration `yaml:"max_wait"`
	Ignore  []string      `yaml:"ignore,omitempty"`
}

// BoxConfig represents a single set-top box
type BoxConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name,omitempty"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port,omitempty"` // overrides control.port
}

// APIConfig contains the hub HTTP API settings
type APIConfig struct {
	Listen      string        `yaml:"listen"`
	JWTSecret   string        `yaml:"jwt_secret,omitempty"` // empty disables authentication
	JWTIssuer   string        `yaml:"jwt_issuer,omitempty"`
	TokenExpiry time.Duration `yaml:"token_expiry,omitempty"`
}

// Load loads configuration from a YAML file, fills defaults and validates it
func Load(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyDefaults fills every unset field with the protocol default
func (c *Config) ApplyDefaults() {
	if c.Network.NotifyPort == 0 {
		c.Network.NotifyPort = notify.DefaultPort
	}
	if c.Network.QueueSize == 0 {
		c.Network.QueueSize = notify.DefaultQueueSize
	}
	if c.Control.Port == 0 {
		c.Control.Port = control.DefaultPort
	}
	if c.Control.ConnectTimeout == 0 {
		c.Control.ConnectTimeout = control.DefaultConnectTimeout
	}
	if c.Control.IOTimeout == 0 {
		c.Control.IOTimeout = control.DefaultIOTimeout
	}
	if c.Control.KeyPacing == 0 {
		c.Control.KeyPacing = control.KeyPacing
	}
	if c.Control.StateTimeout == 0 {
		c.Control.StateTimeout = remote.DefaultQueryTimeout
	}
	if c.Discovery.MaxWait == 0 {
		c.Discovery.MaxWait = discovery.DefaultScanTimeout
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8090"
	}
	if c.API.JWTIssuer == "" {
		c.API.JWTIssuer = "mediaroom-hub"
	}
	if c.API.TokenExpiry == 0 {
		c.API.TokenExpiry = 24 * time.Hour
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate network config
	if c.Network.MulticastGroup != "" {
		ip := net.ParseIP(c.Network.MulticastGroup)
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("network.multicast_group %q is not a multicast address", c.Network.MulticastGroup)
		}
	}
	if err := validPort("network.notify_port", c.Network.NotifyPort); err != nil {
		return err
	}
	if c.Network.QueueSize < 0 {
		return fmt.Errorf("network.queue_size must not be negative")
	}

	// Validate control config
	if err := validPort("control.port", c.Control.Port); err != nil {
		return err
	}
	if c.Control.ConnectTimeout < 0 || c.Control.IOTimeout < 0 || c.Control.StateTimeout < 0 {
		return fmt.Errorf("control timeouts must not be negative")
	}
	if c.Control.KeyPacing < control.KeyPacing {
		return fmt.Errorf("control.key_pacing must be at least %s", control.KeyPacing)
	}

	if c.Discovery.MaxWait < 0 {
		return fmt.Errorf("discovery.max_wait must not be negative")
	}

	// Validate boxes
	if len(c.Boxes) == 0 {
		return fmt.Errorf("at least one box must be configured")
	}

	boxIDs := make(map[string]bool)
	for i, box := range c.Boxes {
		if box.ID == "" {
			return fmt.Errorf("boxes[%d].id is required", i)
		}
		if boxIDs[box.ID] {
			return fmt.Errorf("duplicate box ID: %s", box.ID)
		}
		boxIDs[box.ID] = true

		if box.Address == "" {
			return fmt.Errorf("boxes[%d].address is required", i)
		}
		if box.Port != 0 {
			if err := validPort(fmt.Sprintf("boxes[%d].port", i), box.Port); err != nil {
				return err
			}
		}
	}

	// Validate key overrides
	for name, code := range c.Keys {
		if name == "" {
			return fmt.Errorf("keys: empty key name")
		}
		if code < 0 {
			return fmt.Errorf("keys.%s: code must not be negative", name)
		}
	}

	if c.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}

	return nil
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", field, port)
	}
	return nil
}

// GetBox returns a box configuration by ID
func (c *Config) GetBox(id string) (*BoxConfig, error) {
	for i := range c.Boxes {
		if c.Boxes[i].ID == id {
			return &c.Boxes[i], nil
		}
	}
	return nil, fmt.Errorf("box not found: %s", id)
}

// ListenConfig returns the NOTIFY listener settings
func (c *Config) ListenConfig() notify.ListenConfig {
	return notify.ListenConfig{
		Group:     c.Network.MulticastGroup,
		Address:   c.Network.BindAddress,
		Port:      c.Network.NotifyPort,
		Interface: c.Network.Interface,
		QueueSize: c.Network.QueueSize,
	}
}

// KeyTable returns the default key table with the configured overrides applied
func (c *Config) KeyTable() keys.Table {
	if len(c.Keys) == 0 {
		return keys.Default()
	}
	return keys.Default().Merge(c.Keys)
}

// ControllerOptions returns the controller settings for one box
func (c *Config) ControllerOptions(box BoxConfig) []remote.Option {
	port := c.Control.Port
	if box.Port != 0 {
		port = box.Port
	}
	return []remote.Option{
		remote.WithPort(port),
		remote.WithConnectTimeout(c.Control.ConnectTimeout),
		remote.WithIOTimeout(c.Control.IOTimeout),
		remote.WithPacing(c.Control.KeyPacing),
		remote.WithQueryTimeout(c.Control.StateTimeout),
		remote.WithKeyTable(c.KeyTable()),
		remote.WithListenConfig(c.ListenConfig()),
	}
}

// NewDefaultConfig creates a default configuration template
func NewDefaultConfig() *Config {
	config := &Config{
		Network: NetworkConfig{
			MulticastGroup: notify.DefaultGroup,
		},
		Boxes: []BoxConfig{
			{
				ID:      "living_room",
				Name:    "Living room",
				Address: "192.168.1.64",
			},
		},
	}
	config.ApplyDefaults()
	return config
}
