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

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"mediaroom/internal/keys"
	"mediaroom/internal/logger"
)

const (
	// DefaultPort is the box's key-press control port
	DefaultPort = 8082

	// DefaultConnectTimeout bounds dialing plus reading the preamble
	DefaultConnectTimeout = 5 * time.Second

	// DefaultIOTimeout bounds each write and acknowledgement read
	DefaultIOTimeout = 60 * time.Second

	// KeyPacing is the minimum spacing the box needs between key presses
	KeyPacing = 300 * time.Millisecond

	preambleSize = 6
	ackSize      = 3
)

var (
	// ErrConnect wraps every failure to establish the control connection
	ErrConnect = errors.New("control connection failed")

	// ErrClosed is returned when the connection drops in the middle of a key press
	ErrClosed = errors.New("control connection closed")

	// ErrShutdown is returned once Close has been called; the channel never reconnects after it
	ErrShutdown = errors.New("control channel shut down")
)

// Dialer opens the raw TCP connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds the channel's connection settings
type Config struct {
	Address        string
	Port           int
	ConnectTimeout time.Duration
	IOTimeout      time.Duration
	// Pacing can be raised for slow boxes but never drops below KeyPacing
	Pacing time.Duration
	Dialer Dialer
}

// Channel is the key-press connection to one box
type Channel struct {
	address        string
	connectTimeout time.Duration
	ioTimeout      time.Duration
	pacing         time.Duration
	dialer         Dialer
	logger         zerolog.Logger

	mu       sync.Mutex
	conn     net.Conn
	shutdown bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewChannel creates a closed channel; it connects on Open or the first SendKey
func NewChannel(cfg Config) *Channel {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.Pacing < KeyPacing {
		cfg.Pacing = KeyPacing
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}

	address := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	return &Channel{
		address:        address,
		connectTimeout: cfg.ConnectTimeout,
		ioTimeout:      cfg.IOTimeout,
		pacing:         cfg.Pacing,
		dialer:         cfg.Dialer,
		done:           make(chan struct{}),
		logger:         logger.Component("control").With().Str("box", address).Logger(),
	}
}

// Address returns host:port of the box
func (c *Channel) Address() string {
	return c.address
}

// IsOpen reports whether a connection is currently held
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Open connects to the box if not already connected
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked(ctx)
}

func (c *Channel) openLocked(ctx context.Context) error {
	if c.shutdown {
		return ErrShutdown
	}
	if c.conn != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	c.logger.Info().Msg("Connecting to box")

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to connect to box")
		return fmt.Errorf("%w: failed to dial %s: %v", ErrConnect, c.address, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	// The box greets every connection with a fixed preamble we do not interpret
	preamble := make([]byte, preambleSize)
	if _, err := io.ReadFull(conn, preamble); err != nil {
		conn.Close()
		c.logger.Error().Err(err).Msg("Failed to read preamble")
		return fmt.Errorf("%w: failed to read preamble from %s: %v", ErrConnect, c.address, err)
	}
	conn.SetReadDeadline(time.Time{})

	c.conn = conn
	c.logger.Info().Msg("Connected to box")
	return nil
}

// SendKey writes one key press, drains its acknowledgement and then waits out
// the pacing interval. A closed channel is reopened first.
func (c *Channel) SendKey(ctx context.Context, code keys.Code) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.openLocked(ctx); err != nil {
		return err
	}

	c.logger.Debug().Int("key", int(code)).Msg("Sending key")

	// Cancelling ctx unblocks the write and the acknowledgement read
	conn := c.conn
	conn.SetDeadline(c.ioDeadline(ctx))
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })

	if _, err := fmt.Fprintf(conn, "key=%d\n", code); err != nil {
		stop()
		c.dropLocked()
		return fmt.Errorf("%w: failed to write key %d: %w", ErrClosed, code, ioCause(ctx, err))
	}

	ack := make([]byte, ackSize)
	if _, err := io.ReadFull(conn, ack); err != nil {
		stop()
		c.dropLocked()
		return fmt.Errorf("%w: failed to read acknowledgement for key %d: %w", ErrClosed, code, ioCause(ctx, err))
	}
	stop()
	conn.SetDeadline(time.Time{})

	timer := time.NewTimer(c.pacing)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.done:
		// No further key follows a shutdown
		return nil
	case <-ctx.Done():
		// The gap before the next key holds even when the caller gives up
		<-timer.C
		return ctx.Err()
	}
}

// ioDeadline is the earlier of the caller's deadline and the I/O timeout
func (c *Channel) ioDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// ioCause reports the caller's cancellation instead of the deadline it triggered
func ioCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Close releases the connection for good; later Open and SendKey calls fail
// with ErrShutdown. It is safe to call more than once.
func (c *Channel) Close() error {
	c.doneOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.logger.Info().Msg("Disconnected")
	return err
}

func (c *Channel) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
