// Package controltest runs a fake set-top box control port for tests.
package controltest

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// Preamble is what the fake box sends on every new connection
const Preamble = "MRBOX\n"

// Press is one key line received by the box
type Press struct {
	Line string
	At   time.Time
}

// Box accepts control connections on a loopback port and acknowledges keys
type Box struct {
	listener net.Listener

	mu             sync.Mutex
	silentPreamble bool
	withholdAcks   bool
	dropAfter      int
	presses        []Press
	connections    int
	conns          []net.Conn
	wg             sync.WaitGroup
}

// NewBox starts a fake box and stops it when the test ends
func NewBox(t *testing.T) *Box {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start fake box: %v", err)
	}

	b := &Box{listener: ln}
	b.wg.Add(1)
	go b.serve()
	t.Cleanup(b.Close)
	return b
}

// Host returns the loopback IP the box listens on
func (b *Box) Host() string {
	return b.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the TCP port the box listens on
func (b *Box) Port() int {
	return b.listener.Addr().(*net.TCPAddr).Port
}

// SetSilentPreamble makes the box accept connections without greeting them
func (b *Box) SetSilentPreamble(silent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silentPreamble = silent
}

// SetWithholdAcks makes the box record keys without ever acknowledging them
func (b *Box) SetWithholdAcks(withhold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withholdAcks = withhold
}

// SetDropAfter closes each new connection after n keys; zero disables it
func (b *Box) SetDropAfter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropAfter = n
}

// Presses returns the key lines received so far
func (b *Box) Presses() []Press {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Press(nil), b.presses...)
}

// Keys returns just the key values received so far, e.g. "61440"
func (b *Box) Keys() []string {
	var out []string
	for _, p := range b.Presses() {
		out = append(out, strings.TrimPrefix(p.Line, "key="))
	}
	return out
}

// Connections returns how many control connections were accepted
func (b *Box) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connections
}

// Close stops accepting and drops every open connection
func (b *Box) Close() {
	b.listener.Close()
	b.mu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Box) serve() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.connections++
		b.conns = append(b.conns, conn)
		b.mu.Unlock()

		b.wg.Add(1)
		go b.handle(conn)
	}
}

func (b *Box) handle(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	b.mu.Lock()
	silent, withhold, dropAfter := b.silentPreamble, b.withholdAcks, b.dropAfter
	b.mu.Unlock()

	if !silent {
		if _, err := conn.Write([]byte(Preamble)); err != nil {
			return
		}
	}

	reader := bufio.NewReader(conn)
	handled := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		b.mu.Lock()
		b.presses = append(b.presses, Press{Line: strings.TrimSpace(line), At: time.Now()})
		b.mu.Unlock()

		handled++
		if dropAfter > 0 && handled >= dropAfter {
			return
		}
		if withhold {
			continue
		}
		if _, err := conn.Write([]byte("OK\n")); err != nil {
			return
		}
	}
}
