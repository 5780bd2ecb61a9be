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

package hub

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"mediaroom/internal/config"
	"mediaroom/internal/discovery"
	"mediaroom/internal/logger"
	"mediaroom/internal/notify"
)

// Daemon represents the hub daemon
type Daemon struct {
	config     *config.Config
	configPath string
	listener   *notify.Listener
	manager    *BoxManager
	registry   *Registry
	api        *APIServer
	logger     zerolog.Logger
	running    bool
	mutex      sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewDaemon creates a new hub daemon from a configuration file
func NewDaemon(configPath string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := NewDaemonWithConfig(cfg)
	d.configPath = configPath
	return d, nil
}

// NewDaemonWithConfig creates a daemon from an already loaded configuration
func NewDaemonWithConfig(cfg *config.Config) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		config: cfg,
		logger: logger.Component("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run starts the daemon and blocks until SIGINT, SIGTERM or Stop
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return d.Stop()
	case <-d.ctx.Done():
		d.logger.Info().Msg("Context cancelled")
		return d.Stop()
	}
}

// Start binds the NOTIFY listener and brings up boxes, registry and API
func (d *Daemon) Start() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.running {
		return fmt.Errorf("daemon is already running")
	}

	d.logger.Info().
		Str("config_path", d.configPath).
		Int("box_count", len(d.config.Boxes)).
		Msg("Starting Mediaroom hub")

	listener, err := notify.Listen(d.ctx, d.config.ListenConfig())
	if err != nil {
		return fmt.Errorf("failed to start NOTIFY listener: %w", err)
	}

	manager := NewBoxManager(d.config, listener)
	if err := manager.Initialize(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to initialize boxes: %w", err)
	}

	registry, err := NewRegistry(DefaultRegistrySize)
	if err != nil {
		manager.Shutdown()
		listener.Close()
		return fmt.Errorf("failed to create registry: %w", err)
	}

	scanner := discovery.NewScanner()
	scanner.Listener = listener
	scanner.Timeout = d.config.Discovery.MaxWait

	var tokens *TokenService
	if d.config.API.JWTSecret != "" {
		tokens = NewTokenService(d.config.API.JWTSecret, d.config.API.JWTIssuer, d.config.API.TokenExpiry)
	}

	api := NewAPIServer(APIOptions{
		Manager:  manager,
		Registry: registry,
		Scanner:  scanner,
		Listener: listener,
		Tokens:   tokens,
		Ignore:   d.config.Discovery.Ignore,
	})
	if err := api.Start(d.config.API.Listen); err != nil {
		manager.Shutdown()
		listener.Close()
		return fmt.Errorf("failed to start API server: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := registry.Run(d.ctx, listener); err != nil {
			d.logger.Error().Err(err).Msg("Registry stopped")
		}
	}()

	d.listener = listener
	d.manager = manager
	d.registry = registry
	d.api = api
	d.running = true

	d.logger.Info().
		Int("box_count", manager.GetBoxCount()).
		Str("api", d.config.API.Listen).
		Msg("Hub started successfully")

	return nil
}

// Stop stops the hub daemon gracefully
func (d *Daemon) Stop() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	d.logger.Info().Msg("Stopping hub")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.api.Stop(shutdownCtx); err != nil {
		d.logger.Error().Err(err).Msg("Error stopping API server")
	}

	d.cancel()
	d.manager.Shutdown()
	if err := d.listener.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Error closing NOTIFY listener")
	}
	d.wg.Wait()

	d.logger.Info().Msg("Hub stopped")
	return nil
}

// IsRunning returns true if the daemon is running
func (d *Daemon) IsRunning() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.running
}

// GetStatus returns daemon status information
func (d *Daemon) GetStatus() map[string]interface{} {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	status := map[string]interface{}{
		"running":   d.running,
		"box_count": len(d.config.Boxes),
		"api":       d.config.API.Listen,
	}
	if d.running {
		status["seen_boxes"] = len(d.registry.List())
		status["nonce_stats"] = d.manager.GetNonceStats()
	}
	return status
}
