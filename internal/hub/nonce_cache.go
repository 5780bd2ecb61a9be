package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"mediaroom/internal/device"
	"mediaroom/internal/logger"
)

const (
	defaultNoncesPerBox = 50
	defaultNonceTTL     = time.Hour

	// nonceTimestampDigits is the width of a millisecond Unix timestamp
	nonceTimestampDigits = 13
	nonceRandomDigits    = 8
)

type nonceKey struct {
	box   string
	nonce string
}

// NonceStats summarises what the cache currently holds
type NonceStats struct {
	Boxes    map[string]int `json:"boxes"`
	Total    int            `json:"total"`
	InFlight int            `json:"in_flight"`
	PerBox   int            `json:"per_box"`
	TTL      string         `json:"ttl"`
}

// NonceCache makes box actions idempotent per (box, nonce). The first request
// with a nonce claims it and runs; a duplicate either gets the stored response
// or, while the first is still running, waits for it.
type NonceCache struct {
	perBox int
	ttl    time.Duration
	logger zerolog.Logger

	mu       sync.Mutex
	boxes    map[string]*expirable.LRU[string, *device.ActionResponse]
	inFlight map[nonceKey]chan struct{}
}

// NewNonceCache keeps up to perBox responses per box for ttl each
func NewNonceCache(perBox int, ttl time.Duration) *NonceCache {
	if perBox <= 0 {
		perBox = defaultNoncesPerBox
	}
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	return &NonceCache{
		perBox:   perBox,
		ttl:      ttl,
		logger:   logger.Component("nonce_cache"),
		boxes:    make(map[string]*expirable.LRU[string, *device.ActionResponse]),
		inFlight: make(map[nonceKey]chan struct{}),
	}
}

// GenerateNonce returns "<unix millis>-<8 hex digits>"
func GenerateNonce() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:nonceRandomDigits])
}

// ValidateNonce reports whether nonce has the form GenerateNonce produces
func ValidateNonce(nonce string) bool {
	stamp, random, ok := strings.Cut(nonce, "-")
	if !ok || len(stamp) < nonceTimestampDigits || len(random) != nonceRandomDigits {
		return false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return false
		}
	}
	for _, r := range strings.ToLower(random) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func (nc *NonceCache) boxLocked(boxID string) *expirable.LRU[string, *device.ActionResponse] {
	cache, ok := nc.boxes[boxID]
	if !ok {
		cache = expirable.NewLRU[string, *device.ActionResponse](nc.perBox, nil, nc.ttl)
		nc.boxes[boxID] = cache
	}
	return cache
}

// Lookup returns the stored response for nonce without waiting on in-flight work
func (nc *NonceCache) Lookup(boxID, nonce string) (*device.ActionResponse, bool) {
	if nonce == "" {
		return nil, false
	}

	nc.mu.Lock()
	defer nc.mu.Unlock()

	cache, ok := nc.boxes[boxID]
	if !ok {
		return nil, false
	}
	return cache.Get(nonce)
}

// Claim either returns the response already recorded for nonce (found is true)
// or reserves the nonce for the caller, who must then call Complete. While
// another caller holds the reservation Claim waits for it or for ctx.
// An empty nonce is never reserved.
func (nc *NonceCache) Claim(ctx context.Context, boxID, nonce string) (*device.ActionResponse, bool, error) {
	if nonce == "" {
		return nil, false, nil
	}
	key := nonceKey{box: boxID, nonce: nonce}

	for {
		nc.mu.Lock()
		if resp, ok := nc.boxLocked(boxID).Get(nonce); ok {
			nc.mu.Unlock()
			return resp, true, nil
		}
		wait, busy := nc.inFlight[key]
		if !busy {
			nc.inFlight[key] = make(chan struct{})
			nc.mu.Unlock()
			return nil, false, nil
		}
		nc.mu.Unlock()

		nc.logger.Debug().Str("box_id", boxID).Str("nonce", nonce).Msg("Waiting for in-flight duplicate")
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Complete records the response for a claimed nonce and releases any waiters
func (nc *NonceCache) Complete(boxID, nonce string, response *device.ActionResponse) {
	if nonce == "" {
		return
	}
	key := nonceKey{box: boxID, nonce: nonce}

	nc.mu.Lock()
	defer nc.mu.Unlock()

	nc.boxLocked(boxID).Add(nonce, response)
	if wait, ok := nc.inFlight[key]; ok {
		close(wait)
		delete(nc.inFlight, key)
	}
}

// Stats reports per-box counts and the number of actions still running
func (nc *NonceCache) Stats() NonceStats {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	stats := NonceStats{
		Boxes:    make(map[string]int, len(nc.boxes)),
		InFlight: len(nc.inFlight),
		PerBox:   nc.perBox,
		TTL:      nc.ttl.String(),
	}
	for boxID, cache := range nc.boxes {
		n := cache.Len()
		stats.Boxes[boxID] = n
		stats.Total += n
	}
	return stats
}

// Shutdown drops every stored response and releases waiters; they retry and
// find the nonce unclaimed.
func (nc *NonceCache) Shutdown() {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	for _, cache := range nc.boxes {
		cache.Purge()
	}
	nc.boxes = make(map[string]*expirable.LRU[string, *device.ActionResponse])
	for key, wait := range nc.inFlight {
		close(wait)
		delete(nc.inFlight, key)
	}
}
