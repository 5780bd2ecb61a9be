// Package notifytest provides an in-memory NOTIFY packet source for tests.
package notifytest

import (
	"fmt"
	"net"
	"sync"
	"time"
)

type packet struct {
	data []byte
	addr net.Addr
}

// Source is a notify.PacketSource fed by Emit instead of a socket
type Source struct {
	packets chan packet
	closed  chan struct{}
	once    sync.Once
}

// NewSource returns an open in-memory source
func NewSource() *Source {
	return &Source{
		packets: make(chan packet, 256),
		closed:  make(chan struct{}),
	}
}

// ReadFrom blocks until a packet is emitted or the source is closed
func (s *Source) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case pkt := <-s.packets:
		return copy(p, pkt.data), pkt.addr, nil
	case <-s.closed:
		return 0, nil, net.ErrClosed
	}
}

// Close releases the source; further Emit calls are ignored
func (s *Source) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// IsClosed reports whether Close has been called
func (s *Source) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Emit queues a raw datagram as if sent from ip
func (s *Source) Emit(ip string, payload string) {
	if s.IsClosed() {
		return
	}
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: 8082}
	select {
	case s.packets <- packet{data: []byte(payload), addr: addr}:
	case <-s.closed:
	}
}

// Announce emits a well-formed NOTIFY from ip
func (s *Source) Announce(ip string, tuned bool) {
	s.Emit(ip, Payload(ip, tuned))
}

// Repeat announces from ip every interval until the returned stop is called,
// the way a box keeps re-announcing its state
func (s *Source) Repeat(ip string, tuned bool, every time.Duration) (stop func()) {
	quit := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Announce(ip, tuned)
			case <-quit:
				return
			case <-s.closed:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(quit) }) }
}

// Payload builds a NOTIFY datagram the way a box sends it
func Payload(ip string, tuned bool) string {
	activities := "<activities />"
	if tuned {
		activities = `<activities><tune src="dvb://1.2.3" channel="105" /></activities>`
	}
	return fmt.Sprintf("NOTIFY * HTTP/1.1\r\n"+
		"x-type: dvr\r\n"+
		"x-filter: 4ab6f8d2-8c1e-4e52-9c0e-5f2f8d1e0b77\r\n"+
		"x-lastUserActivity: 10/18/2026 20:31:02\r\n"+
		"x-location: http://%s:8080/dvrfs/info.xml\r\n"+
		"x-device: 0b3e7c2a-5d4f-4a8e-b1c9-2f6d7e8a9b01\r\n"+
		"x-debug: http://%s:8080\r\n"+
		"\r\n"+
		"<node count=\"42\">%s</node>", ip, ip, activities)
}
