// Package discovery finds Mediaroom set-top boxes by listening to their NOTIFY
// announcements for a bounded amount of time.
//
// Boxes do not answer queries; they multicast their state periodically, so a
// scan simply collects every sender seen before the window closes:
//
//	scanner := discovery.NewScanner()
//	boxes, err := scanner.Discover(ctx, nil, 10*time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, ip := range boxes {
//	    fmt.Println(ip)
//	}
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"mediaroom/internal/logger"
	"mediaroom/internal/notify"
)

// DefaultScanTimeout is used when no wait is given
const DefaultScanTimeout = 30 * time.Second

// Box is one set-top box seen during a scan
type Box struct {
	Address       string    `json:"address"`
	DeviceUUID    string    `json:"device_uuid,omitempty"`
	Location      string    `json:"location,omitempty"`
	Tuned         bool      `json:"tuned"`
	Announcements int       `json:"announcements"`
	LastSeen      time.Time `json:"last_seen"`
}

// String returns a human-readable description of the box
func (b Box) String() string {
	state := "standby"
	if b.Tuned {
		state = "playing"
	}
	return fmt.Sprintf("Mediaroom box at %s (%s, %d announcements)", b.Address, state, b.Announcements)
}

// Scanner collects box announcements
type Scanner struct {
	// Timeout is the scan window used when Discover is called with zero wait
	Timeout time.Duration

	// ListenConfig is used to bind a private listener for each scan
	ListenConfig notify.ListenConfig

	// Listener, when set, is shared instead of binding a private one. It is not closed by the scan.
	Listener *notify.Listener

	logger zerolog.Logger
}

// NewScanner creates a scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:      DefaultScanTimeout,
		ListenConfig: notify.DefaultListenConfig(),
		logger:       logger.Component("discovery"),
	}
}

// Discover returns the distinct addresses of boxes heard within maxWait, minus ignore.
// Hearing nothing is not an error.
func (s *Scanner) Discover(ctx context.Context, ignore []string, maxWait time.Duration) ([]string, error) {
	boxes, err := s.Scan(ctx, maxWait)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(ignore))
	for _, ip := range ignore {
		skip[ip] = struct{}{}
	}

	addresses := make([]string, 0, len(boxes))
	for _, box := range boxes {
		if _, ok := skip[box.Address]; ok {
			continue
		}
		addresses = append(addresses, box.Address)
	}
	return addresses, nil
}

// Scan listens for maxWait and returns one entry per sender, sorted by address
func (s *Scanner) Scan(ctx context.Context, maxWait time.Duration) ([]Box, error) {
	if maxWait <= 0 {
		maxWait = s.Timeout
	}
	if maxWait <= 0 {
		maxWait = DefaultScanTimeout
	}

	listener := s.Listener
	if listener == nil {
		l, err := notify.Listen(ctx, s.ListenConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to start NOTIFY listener: %w", err)
		}
		defer l.Close()
		listener = l
	}

	sub, err := listener.Subscribe("")
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to NOTIFY announcements: %w", err)
	}
	defer sub.Close()

	scanCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	s.logger.Debug().Dur("max_wait", maxWait).Msg("Scanning for boxes")

	seen := make(map[string]*Box)
	for {
		msg, err := sub.Next(scanCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("scan interrupted: %w", err)
		}

		box, ok := seen[msg.Sender]
		if !ok {
			box = &Box{Address: msg.Sender}
			seen[msg.Sender] = box
			s.logger.Debug().Str("box", msg.Sender).Msg("Found box")
		}
		box.Announcements++
		box.Tuned = msg.Tuned
		box.LastSeen = msg.ReceivedAt
		if msg.DeviceUUID != "" {
			box.DeviceUUID = msg.DeviceUUID
		}
		if msg.Location != "" {
			box.Location = msg.Location
		}
	}

	boxes := make([]Box, 0, len(seen))
	for _, box := range seen {
		boxes = append(boxes, *box)
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Address < boxes[j].Address })

	s.logger.Debug().Int("count", len(boxes)).Msg("Scan finished")
	return boxes, nil
}
