package hub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/device"
	"mediaroom/internal/hub"
)

func TestNewNonceCache(t *testing.T) {
	t.Run("invalid parameters fall back to defaults", func(t *testing.T) {
		cache := hub.NewNonceCache(0, 0)
		defer cache.Shutdown()

		nonce := hub.GenerateNonce()
		response := &device.ActionResponse{Success: true, Data: "test"}

		cache.Complete("den", nonce, response)
		retrieved, found := cache.Lookup("den", nonce)
		require.True(t, found)
		assert.Equal(t, response, retrieved)

		stats := cache.Stats()
		assert.Equal(t, 50, stats.PerBox)
		assert.Equal(t, "1h0m0s", stats.TTL)
	})
}

func TestGenerateNonce(t *testing.T) {
	t.Run("generates unique nonces", func(t *testing.T) {
		assert.NotEqual(t, hub.GenerateNonce(), hub.GenerateNonce())
	})

	t.Run("generated nonce passes validation", func(t *testing.T) {
		nonce := hub.GenerateNonce()
		assert.True(t, hub.ValidateNonce(nonce), nonce)
	})
}

func TestValidateNonce(t *testing.T) {
	tests := []struct {
		name     string
		nonce    string
		expected bool
	}{
		{"empty nonce", "", false},
		{"too short", "123", false},
		{"valid nonce", "1691234567890-a1b2c3d4", true},
		{"no dash", "1691234567890a1b2c3d4", false},
		{"multiple dashes", "1691234567890-a1b2-c3d4", false},
		{"dash at start", "-1691234567890a1b2c3d4", false},
		{"dash at end", "1691234567890a1b2c3d4-", false},
		{"non-numeric timestamp", "abc1234567890-a1b2c3d4", false},
		{"short timestamp", "123456789-a1b2c3d4", false},
		{"invalid hex", "1691234567890-xyz2c3d4", false},
		{"short hex", "1691234567890-a1b2c3", false},
		{"long hex", "1691234567890-a1b2c3d4e", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hub.ValidateNonce(tt.nonce))
		})
	}
}

func TestNonceCache_Operations(t *testing.T) {
	cache := hub.NewNonceCache(10, time.Hour)
	defer cache.Shutdown()

	nonce := "1691234567890-a1b2c3d4"
	response := &device.ActionResponse{Success: true, Data: "pressed"}

	t.Run("unknown nonce", func(t *testing.T) {
		resp, found := cache.Lookup("den", nonce)
		assert.False(t, found)
		assert.Nil(t, resp)
	})

	t.Run("claim then complete", func(t *testing.T) {
		resp, found, err := cache.Claim(context.Background(), "den", nonce)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, resp)
		assert.Equal(t, 1, cache.Stats().InFlight)

		cache.Complete("den", nonce, response)

		resp, found, err = cache.Claim(context.Background(), "den", nonce)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "pressed", resp.Data)
		assert.Equal(t, 0, cache.Stats().InFlight)
		assert.Equal(t, 1, cache.Stats().Boxes["den"])
	})

	t.Run("nonces are scoped per box", func(t *testing.T) {
		_, found := cache.Lookup("kitchen", nonce)
		assert.False(t, found)
	})

	t.Run("empty nonce is never cached or claimed", func(t *testing.T) {
		cache.Complete("den", "", response)
		_, found := cache.Lookup("den", "")
		assert.False(t, found)

		_, found, err := cache.Claim(context.Background(), "den", "")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 0, cache.Stats().InFlight)
	})
}

func TestNonceCache_Claim(t *testing.T) {
	t.Run("duplicate waits for the running claim", func(t *testing.T) {
		cache := hub.NewNonceCache(10, time.Hour)
		defer cache.Shutdown()

		nonce := "1691234567890-0000beef"
		_, found, err := cache.Claim(context.Background(), "den", nonce)
		require.NoError(t, err)
		require.False(t, found)

		type result struct {
			resp  *device.ActionResponse
			found bool
		}
		done := make(chan result, 1)
		go func() {
			resp, found, _ := cache.Claim(context.Background(), "den", nonce)
			done <- result{resp, found}
		}()

		select {
		case <-done:
			t.Fatal("duplicate returned before the first claim completed")
		case <-time.After(100 * time.Millisecond):
		}

		response := &device.ActionResponse{Success: true, Data: "once"}
		cache.Complete("den", nonce, response)

		select {
		case r := <-done:
			assert.True(t, r.found)
			assert.Same(t, response, r.resp)
		case <-time.After(2 * time.Second):
			t.Fatal("duplicate was not released")
		}
	})

	t.Run("waiting duplicate honours cancellation", func(t *testing.T) {
		cache := hub.NewNonceCache(10, time.Hour)
		defer cache.Shutdown()

		nonce := "1691234567890-0000cafe"
		_, _, err := cache.Claim(context.Background(), "den", nonce)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, found, err := cache.Claim(ctx, "den", nonce)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, found)
	})
}

func TestNonceCache_Eviction(t *testing.T) {
	cache := hub.NewNonceCache(2, time.Hour)
	defer cache.Shutdown()

	for _, n := range []string{"1691234567890-00000001", "1691234567890-00000002", "1691234567890-00000003"} {
		cache.Complete("den", n, &device.ActionResponse{Success: true})
	}

	assert.Equal(t, 2, cache.Stats().Boxes["den"])
	_, found := cache.Lookup("den", "1691234567890-00000001")
	assert.False(t, found)
}

func TestNonceCache_Expiration(t *testing.T) {
	cache := hub.NewNonceCache(10, 20*time.Millisecond)
	defer cache.Shutdown()

	cache.Complete("den", "1691234567890-a1b2c3d4", &device.ActionResponse{Success: true})
	time.Sleep(40 * time.Millisecond)

	_, found := cache.Lookup("den", "1691234567890-a1b2c3d4")
	assert.False(t, found)
}
