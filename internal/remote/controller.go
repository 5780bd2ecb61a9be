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

package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"mediaroom/internal/control"
	"mediaroom/internal/keys"
	"mediaroom/internal/logger"
	"mediaroom/internal/notify"
)

// DefaultQueryTimeout bounds the wait for the next announcement in GetState
const DefaultQueryTimeout = 10 * time.Second

// ErrClosed is returned by every operation after Close
var ErrClosed = errors.New("controller closed")

// Controller drives one set-top box: key presses go over the control channel,
// state is read from the box's own NOTIFY announcements.
type Controller struct {
	address      string
	port         int
	ioTimeout    time.Duration
	connTimeout  time.Duration
	queryTimeout time.Duration
	pacing       time.Duration
	table        keys.Table
	listenConfig notify.ListenConfig
	logger       zerolog.Logger

	channel *control.Channel

	// cmdMu keeps multi-key commands from interleaving
	cmdMu sync.Mutex

	// query admits one state wait at a time; a channel so waiting can be cancelled
	query chan struct{}

	mu           sync.Mutex
	listener     *notify.Listener
	ownsListener bool
	sub          *notify.Subscription
	ip           string
	closed       bool
}

// Option configures a Controller
type Option func(*Controller)

// WithPort sets the control port (default 8082)
func WithPort(port int) Option {
	return func(c *Controller) { c.port = port }
}

// WithIOTimeout bounds each key write and acknowledgement read
func WithIOTimeout(d time.Duration) Option {
	return func(c *Controller) { c.ioTimeout = d }
}

// WithConnectTimeout bounds opening the control channel
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) { c.connTimeout = d }
}

// WithQueryTimeout sets how long GetState waits before answering OFF
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Controller) { c.queryTimeout = d }
}

// WithPacing raises the delay between key presses; values below control.KeyPacing are ignored
func WithPacing(d time.Duration) Option {
	return func(c *Controller) { c.pacing = d }
}

// WithKeyTable replaces the key table used to resolve commands
func WithKeyTable(table keys.Table) Option {
	return func(c *Controller) { c.table = table }
}

// WithListener shares an existing listener. The controller does not close it.
func WithListener(l *notify.Listener) Option {
	return func(c *Controller) {
		c.listener = l
		c.ownsListener = false
	}
}

// WithListenConfig sets how the controller binds its own listener when none is shared
func WithListenConfig(cfg notify.ListenConfig) Option {
	return func(c *Controller) { c.listenConfig = cfg }
}

// New creates a controller for the box at address. Nothing is opened until first use.
func New(address string, opts ...Option) (*Controller, error) {
	if address == "" {
		return nil, fmt.Errorf("box address is required")
	}

	c := &Controller{
		address:      address,
		port:         control.DefaultPort,
		ioTimeout:    control.DefaultIOTimeout,
		connTimeout:  control.DefaultConnectTimeout,
		queryTimeout: DefaultQueryTimeout,
		pacing:       control.KeyPacing,
		table:        keys.Default(),
		listenConfig: notify.DefaultListenConfig(),
		query:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = DefaultQueryTimeout
	}

	c.logger = logger.Component("remote").With().Str("box", address).Logger()
	c.channel = control.NewChannel(control.Config{
		Address:        address,
		Port:           c.port,
		ConnectTimeout: c.connTimeout,
		IOTimeout:      c.ioTimeout,
		Pacing:         c.pacing,
	})

	return c, nil
}

// Address returns the box address the controller was created with
func (c *Controller) Address() string {
	return c.address
}

// Keys returns the key table in use
func (c *Controller) Keys() keys.Table {
	return c.table
}

// IsConnected reports whether the control channel is currently open
func (c *Controller) IsConnected() bool {
	return c.channel.IsOpen()
}

// SendCommand validates cmd, then presses its keys in order. An invalid
// command fails with ErrUnknownCommand before any connection is made.
func (c *Controller) SendCommand(ctx context.Context, cmd Command) error {
	codes, err := cmd.Resolve(c.table)
	if err != nil {
		c.logger.Warn().Str("command", cmd.String()).Msg("Rejected command")
		return err
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}

	if err := c.channel.Open(ctx); err != nil {
		if errors.Is(err, control.ErrShutdown) {
			return ErrClosed
		}
		return err
	}

	c.logger.Info().Str("command", cmd.String()).Int("keys", len(codes)).Msg("Sending command")

	for i, code := range codes {
		// Close may land between keys; the rest of the command is abandoned
		if c.isClosed() {
			return fmt.Errorf("%w: %s interrupted after %d of %d keys", ErrClosed, cmd, i, len(codes))
		}
		if err := c.channel.SendKey(ctx, code); err != nil {
			if errors.Is(err, control.ErrShutdown) {
				return fmt.Errorf("%w: %s interrupted after %d of %d keys", ErrClosed, cmd, i, len(codes))
			}
			return fmt.Errorf("failed to send %s: %w", cmd, err)
		}
	}
	return nil
}

// GetState waits for the box's next announcement. Silence for the query
// timeout means OFF; cancellation by the caller yields StateUnknown and the
// context error.
func (c *Controller) GetState(ctx context.Context) (State, error) {
	select {
	case c.query <- struct{}{}:
		defer func() { <-c.query }()
	case <-ctx.Done():
		return StateUnknown, ctx.Err()
	}

	sub, err := c.subscription(ctx)
	if err != nil {
		return StateUnknown, err
	}

	// Anything queued predates this call
	if stale := sub.Drain(); stale > 0 {
		c.logger.Debug().Int("stale", stale).Msg("Discarded queued announcements")
	}

	queryCtx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	msg, err := sub.Next(queryCtx)
	if err != nil {
		if ctx.Err() != nil {
			return StateUnknown, ctx.Err()
		}
		if c.isClosed() {
			return StateUnknown, ErrClosed
		}
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Debug().Dur("timeout", c.queryTimeout).Msg("No announcement, box is off")
			return StateOff, nil
		}
		return StateUnknown, err
	}

	if msg.Tuned {
		return StatePlaying, nil
	}
	return StateStandby, nil
}

// GetStandby reports whether the box is in standby
func (c *Controller) GetStandby(ctx context.Context) (bool, error) {
	state, err := c.GetState(ctx)
	if err != nil {
		return false, err
	}
	return state == StateStandby, nil
}

// GetPlaying reports whether the box is playing
func (c *Controller) GetPlaying(ctx context.Context) (bool, error) {
	state, err := c.GetState(ctx)
	if err != nil {
		return false, err
	}
	return state == StatePlaying, nil
}

// TurnOn presses Power only when the box is in standby. It reports whether a key was sent.
func (c *Controller) TurnOn(ctx context.Context) (bool, error) {
	standby, err := c.GetStandby(ctx)
	if err != nil {
		return false, err
	}
	if !standby {
		c.logger.Info().Msg("Box is not in standby, not toggling power")
		return false, nil
	}
	if err := c.SendCommand(ctx, Key(keys.Power)); err != nil {
		return false, err
	}
	return true, nil
}

// TurnOff presses Power only when the box is playing. It reports whether a key was sent.
func (c *Controller) TurnOff(ctx context.Context) (bool, error) {
	playing, err := c.GetPlaying(ctx)
	if err != nil {
		return false, err
	}
	if !playing {
		c.logger.Info().Msg("Box is not playing, not toggling power")
		return false, nil
	}
	if err := c.SendCommand(ctx, Key(keys.Power)); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the control channel, the subscription and any listener the
// controller bound itself. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	var owned *notify.Listener
	if c.ownsListener {
		owned = c.listener
	}
	c.listener = nil
	c.mu.Unlock()

	var errs []error
	if err := c.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close control channel: %w", err))
	}
	if sub != nil {
		sub.Close()
	}
	if owned != nil {
		if err := owned.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close NOTIFY listener: %w", err))
		}
	}

	c.logger.Debug().Msg("Controller closed")
	return errors.Join(errs...)
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// subscription returns the box-scoped subscription, binding a listener and
// resolving the box address on first use.
func (c *Controller) subscription(ctx context.Context) (*notify.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.sub != nil {
		return c.sub, nil
	}

	if c.ip == "" {
		ip, err := resolveIP(ctx, c.address)
		if err != nil {
			return nil, err
		}
		c.ip = ip
	}

	if c.listener == nil {
		l, err := notify.Listen(ctx, c.listenConfig)
		if err != nil {
			return nil, err
		}
		c.listener = l
		c.ownsListener = true
	}

	sub, err := c.listener.Subscribe(c.ip)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.ip, err)
	}
	c.sub = sub
	return sub, nil
}

// resolveIP turns a hostname into the IPv4 address announcements arrive from
func resolveIP(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}

	addrs, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if v4 := addr.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("failed to resolve %s: no addresses", host)
	}
	return addrs[0].String(), nil
}
