package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"mediaroom/internal/logger"
	"mediaroom/internal/notify"
	"mediaroom/internal/remote"
)

// DefaultRegistrySize bounds how many distinct boxes the registry remembers
const DefaultRegistrySize = 256

// SeenBox is the latest announcement heard from one box
type SeenBox struct {
	Address          string       `json:"address"`
	DeviceUUID       string       `json:"device_uuid,omitempty"`
	Location         string       `json:"location,omitempty"`
	State            remote.State `json:"state"`
	Tune             *notify.Tune `json:"tune,omitempty"`
	LastUserActivity string       `json:"last_user_activity,omitempty"`
	Announcements    int          `json:"announcements"`
	FirstSeen        time.Time    `json:"first_seen"`
	LastSeen         time.Time    `json:"last_seen"`
}

// Registry keeps the most recently heard boxes on the network
type Registry struct {
	cache  *lru.Cache[string, *SeenBox]
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewRegistry creates a registry holding up to size boxes
func NewRegistry(size int) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	cache, err := lru.New[string, *SeenBox](size)
	if err != nil {
		return nil, err
	}
	return &Registry{
		cache:  cache,
		logger: logger.Component("registry"),
	}, nil
}

// Observe records one announcement
func (r *Registry) Observe(msg *notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	box, ok := r.cache.Get(msg.Sender)
	if !ok {
		box = &SeenBox{Address: msg.Sender, FirstSeen: msg.ReceivedAt}
		r.cache.Add(msg.Sender, box)
		r.logger.Info().Str("box", msg.Sender).Msg("New box seen")
	}

	box.Announcements++
	box.LastSeen = msg.ReceivedAt
	box.Tune = msg.Tune
	box.LastUserActivity = msg.LastUserActivity
	if msg.Tuned {
		box.State = remote.StatePlaying
	} else {
		box.State = remote.StateStandby
	}
	if msg.DeviceUUID != "" {
		box.DeviceUUID = msg.DeviceUUID
	}
	if msg.Location != "" {
		box.Location = msg.Location
	}
}

// Get returns a copy of the entry for address
func (r *Registry) Get(address string) (SeenBox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	box, ok := r.cache.Peek(address)
	if !ok {
		return SeenBox{}, false
	}
	return *box, true
}

// List returns copies of every entry sorted by address
func (r *Registry) List() []SeenBox {
	r.mu.Lock()
	defer r.mu.Unlock()

	boxes := make([]SeenBox, 0, r.cache.Len())
	for _, address := range r.cache.Keys() {
		if box, ok := r.cache.Peek(address); ok {
			boxes = append(boxes, *box)
		}
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Address < boxes[j].Address })
	return boxes
}

// Run feeds the registry from an unscoped subscription until ctx ends or the listener closes
func (r *Registry) Run(ctx context.Context, listener *notify.Listener) error {
	sub, err := listener.Subscribe("")
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, notify.ErrListenerClosed) {
				return nil
			}
			return err
		}
		r.Observe(msg)
	}
}
