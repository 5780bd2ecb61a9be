package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"mediaroom/internal/config"
	"mediaroom/internal/device"
	"mediaroom/internal/logger"
	"mediaroom/internal/notify"
	"mediaroom/internal/remote"
)

// ErrBoxNotFound is returned for ids missing from the configuration
var ErrBoxNotFound = errors.New("box not found")

// BoxInfo describes a managed box for API listings
type BoxInfo struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Device    device.DeviceInfo `json:"device"`
	Connected bool              `json:"connected"`
}

// BoxManager owns one controller per configured box. All controllers share
// the hub's NOTIFY listener.
type BoxManager struct {
	boxes      map[string]*remote.BoxDevice
	names      map[string]string
	config     *config.Config
	listener   *notify.Listener
	mutex      sync.RWMutex
	logger     zerolog.Logger
	nonceCache *NonceCache
}

// NewBoxManager creates a new box manager
func NewBoxManager(cfg *config.Config, listener *notify.Listener) *BoxManager {
	return &BoxManager{
		boxes:      make(map[string]*remote.BoxDevice),
		names:      make(map[string]string),
		config:     cfg,
		listener:   listener,
		logger:     logger.Component("box_manager"),
		nonceCache: NewNonceCache(50, time.Hour), // 50 nonces per box, 1 hour expiration
	}
}

// Initialize creates a controller for every configured box
func (bm *BoxManager) Initialize() error {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.logger.Info().
		Int("box_count", len(bm.config.Boxes)).
		Msg("Initializing boxes")

	for _, box := range bm.config.Boxes {
		opts := append(bm.config.ControllerOptions(box), remote.WithListener(bm.listener))
		controller, err := remote.New(box.Address, opts...)
		if err != nil {
			bm.closeLocked()
			return fmt.Errorf("failed to create controller for box %s: %w", box.ID, err)
		}

		bm.boxes[box.ID] = remote.NewBoxDevice(controller)
		bm.names[box.ID] = box.Name
		bm.logger.Info().
			Str("box_id", box.ID).
			Str("box_address", box.Address).
			Msg("Box initialized")
	}

	return nil
}

// GetBox returns a box by ID
func (bm *BoxManager) GetBox(id string) (*remote.BoxDevice, error) {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	box, exists := bm.boxes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBoxNotFound, id)
	}

	return box, nil
}

// ListBoxes returns every managed box sorted by ID
func (bm *BoxManager) ListBoxes() []BoxInfo {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	infos := make([]BoxInfo, 0, len(bm.boxes))
	for id, box := range bm.boxes {
		infos = append(infos, BoxInfo{
			ID:        id,
			Name:      bm.names[id],
			Device:    box.GetDeviceInfo(),
			Connected: box.Controller().IsConnected(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// GetBoxCount returns the number of managed boxes
func (bm *BoxManager) GetBoxCount() int {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return len(bm.boxes)
}

// GetState queries a box's current state
func (bm *BoxManager) GetState(ctx context.Context, id string) (remote.State, error) {
	box, err := bm.GetBox(id)
	if err != nil {
		return remote.StateUnknown, err
	}
	return box.Controller().GetState(ctx)
}

// ProcessBoxAction runs an action on a box. A repeated nonce returns the first
// response without touching the box again, including while the first request
// is still running.
func (bm *BoxManager) ProcessBoxAction(ctx context.Context, boxID string, actionJSON []byte, nonce string) (*device.ActionResponse, error) {
	box, err := bm.GetBox(boxID)
	if err != nil {
		return nil, err
	}

	if nonce != "" && !ValidateNonce(nonce) {
		bm.logger.Warn().
			Str("box_id", boxID).
			Str("nonce", nonce).
			Msg("Invalid nonce format")
		return device.Failure("invalid nonce format"), nil
	}

	cached, found, err := bm.nonceCache.Claim(ctx, boxID, nonce)
	if err != nil {
		return nil, err
	}
	if found {
		bm.logger.Info().
			Str("box_id", boxID).
			Str("nonce", nonce).
			Msg("Returning cached response for duplicate nonce")
		return cached, nil
	}

	bm.logger.Debug().
		Str("box_id", boxID).
		RawJSON("action", actionJSON).
		Msg("Processing box action")

	response, err := box.Process(ctx, actionJSON)
	if err != nil {
		bm.logger.Error().
			Str("box_id", boxID).
			Err(err).
			Msg("Box action processing failed")
		response = device.Failure("action processing failed: %v", err)
	}

	bm.logger.Info().
		Str("box_id", boxID).
		Bool("success", response.Success).
		Msg("Box action processed")

	bm.nonceCache.Complete(boxID, nonce, response)
	return response, nil
}

// GetNonceStats returns nonce cache statistics
func (bm *BoxManager) GetNonceStats() NonceStats {
	return bm.nonceCache.Stats()
}

// Shutdown closes every controller
func (bm *BoxManager) Shutdown() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.logger.Info().
		Int("box_count", len(bm.boxes)).
		Msg("Shutting down box manager")

	bm.nonceCache.Shutdown()
	bm.closeLocked()
}

func (bm *BoxManager) closeLocked() {
	for id, box := range bm.boxes {
		if err := box.Controller().Close(); err != nil {
			bm.logger.Warn().Str("box_id", id).Err(err).Msg("Failed to close controller")
		}
	}
	bm.boxes = make(map[string]*remote.BoxDevice)
	bm.names = make(map[string]string)
}
