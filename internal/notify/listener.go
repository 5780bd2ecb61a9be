package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"mediaroom/internal/logger"
)

const (
	// DefaultGroup is the multicast group boxes announce on
	DefaultGroup = "239.255.255.250"

	// DefaultPort is the UDP port NOTIFY datagrams are sent to
	DefaultPort = 8082

	// DefaultQueueSize is the per-subscription backlog before old messages are dropped
	DefaultQueueSize = 32

	maxDatagramSize = 8192
)

// ErrListenerClosed is returned once the listener has stopped receiving
var ErrListenerClosed = errors.New("notify listener closed")

// PacketSource is the receive side of a datagram socket. net.PacketConn satisfies it.
type PacketSource interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	Close() error
}

// ListenConfig describes how to bind the NOTIFY socket
type ListenConfig struct {
	// Group is the multicast group to join. Empty means plain broadcast/unicast receive.
	Group string

	// Address is the local IP to bind, 0.0.0.0 when empty
	Address string

	Port int

	// Interface restricts the multicast join to one interface by name
	Interface string

	QueueSize int
}

// DefaultListenConfig returns the standard Mediaroom multicast settings
func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		Group:     DefaultGroup,
		Port:      DefaultPort,
		QueueSize: DefaultQueueSize,
	}
}

// Listener receives NOTIFY datagrams and fans them out to subscriptions
type Listener struct {
	source    PacketSource
	queueSize int
	logger    zerolog.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// Listen binds the NOTIFY socket described by cfg and starts receiving
func Listen(ctx context.Context, cfg ListenConfig) (*Listener, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	bindIP := cfg.Address
	if bindIP == "" {
		bindIP = "0.0.0.0"
	}
	address := net.JoinHostPort(bindIP, fmt.Sprint(cfg.Port))

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(ctx, "udp4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to bind NOTIFY socket %s: %w", address, err)
	}

	log := logger.Component("notify")

	if cfg.Group != "" {
		if err := joinGroup(conn, cfg.Group, cfg.Interface, log); err != nil {
			conn.Close()
			return nil, err
		}
	}

	log.Debug().
		Str("address", address).
		Str("group", cfg.Group).
		Msg("NOTIFY listener bound")

	return NewListener(conn, cfg.QueueSize), nil
}

// joinGroup joins the multicast group on every usable interface, or the named one
func joinGroup(conn net.PacketConn, group, ifname string, log zerolog.Logger) error {
	groupIP := net.ParseIP(group)
	if groupIP == nil || !groupIP.IsMulticast() {
		return fmt.Errorf("invalid multicast group: %s", group)
	}
	groupAddr := &net.UDPAddr{IP: groupIP}
	p := ipv4.NewPacketConn(conn)

	var ifaces []net.Interface
	if ifname != "" {
		ifi, err := net.InterfaceByName(ifname)
		if err != nil {
			return fmt.Errorf("failed to find interface %s: %w", ifname, err)
		}
		ifaces = []net.Interface{*ifi}
	} else {
		all, err := net.Interfaces()
		if err != nil {
			return fmt.Errorf("failed to list interfaces: %w", err)
		}
		for _, ifi := range all {
			if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
				ifaces = append(ifaces, ifi)
			}
		}
	}

	joined := 0
	for i := range ifaces {
		if err := p.JoinGroup(&ifaces[i], groupAddr); err != nil {
			log.Warn().Err(err).Str("interface", ifaces[i].Name).Msg("Failed to join multicast group")
			continue
		}
		joined++
	}

	if joined == 0 {
		// Let the kernel pick the interface
		if err := p.JoinGroup(nil, groupAddr); err != nil {
			return fmt.Errorf("failed to join multicast group %s: %w", group, err)
		}
	}
	return nil
}

// NewListener starts receiving from source. The listener owns source and closes it.
func NewListener(source PacketSource, queueSize int) *Listener {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	l := &Listener{
		source:    source,
		queueSize: queueSize,
		logger:    logger.Component("notify"),
		subs:      make(map[string]*Subscription),
		done:      make(chan struct{}),
	}
	go l.run()
	return l
}

// Subscribe registers a new delivery queue. An empty target receives every
// announcement, otherwise only those sent from the target IP.
func (l *Listener) Subscribe(target string) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrListenerClosed
	}

	sub := &Subscription{
		id:       uuid.New().String(),
		target:   normalizeIP(target),
		queue:    make(chan *Message, l.queueSize),
		done:     make(chan struct{}),
		listener: l,
	}
	l.subs[sub.id] = sub

	l.logger.Debug().
		Str("subscription", sub.id).
		Str("target", sub.target).
		Msg("Subscribed to NOTIFY announcements")

	return sub, nil
}

// Done is closed once the receive loop has exited
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close stops the receive loop, releases the socket and ends every subscription
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		err = l.source.Close()
		<-l.done

		l.mu.Lock()
		subs := l.subs
		l.subs = make(map[string]*Subscription)
		l.mu.Unlock()

		for _, sub := range subs {
			sub.markDone()
		}
	})
	return err
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Listener) run() {
	defer close(l.done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.source.ReadFrom(buf)
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logger.Error().Err(err).Msg("NOTIFY receive failed")
			return
		}

		msg, err := Parse(addr, buf[:n])
		if err != nil {
			l.logger.Debug().
				Err(err).
				Str("from", fmt.Sprint(addr)).
				Msg("Dropping datagram")
			continue
		}

		l.dispatch(msg)
	}
}

func (l *Listener) dispatch(msg *Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sub := range l.subs {
		if sub.target != "" && sub.target != msg.Sender {
			continue
		}
		sub.deliver(msg)
	}
}

func (l *Listener) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, id)
}

// Subscription is one consumer's ordered view of the announcements
type Subscription struct {
	id       string
	target   string
	queue    chan *Message
	done     chan struct{}
	listener *Listener

	closeOnce sync.Once
}

// ID returns the unique subscription identifier
func (s *Subscription) ID() string {
	return s.id
}

// Target returns the sender IP this subscription is scoped to, or "" when unscoped
func (s *Subscription) Target() string {
	return s.target
}

// deliver is only called by the listener with its lock held
func (s *Subscription) deliver(msg *Message) {
	select {
	case s.queue <- msg:
		return
	default:
	}

	// Full: drop the oldest entry so the newest announcement wins
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- msg:
	default:
	}
}

// Next blocks until the next announcement for this subscription arrives.
// If ctx ends first nothing is consumed and ctx.Err() is returned.
func (s *Subscription) Next(ctx context.Context) (*Message, error) {
	select {
	case msg := <-s.queue:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.queue:
		return msg, nil
	case <-s.done:
		return nil, ErrListenerClosed
	case <-s.listener.done:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain discards queued announcements and returns how many were dropped
func (s *Subscription) Drain() int {
	dropped := 0
	for {
		select {
		case <-s.queue:
			dropped++
		default:
			return dropped
		}
	}
}

// Close detaches the subscription from its listener
func (s *Subscription) Close() {
	s.listener.remove(s.id)
	s.markDone()
}

func (s *Subscription) markDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

func normalizeIP(s string) string {
	if s == "" {
		return ""
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String()
	}
	return s
}
