package hub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/hub"
	"mediaroom/internal/notify"
	"mediaroom/internal/remote"
)

func TestRegistry(t *testing.T) {
	t.Run("tracks the latest state per box", func(t *testing.T) {
		registry, err := hub.NewRegistry(4)
		require.NoError(t, err)

		first := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
		registry.Observe(&notify.Message{Sender: "10.0.0.2", Tuned: true, DeviceUUID: "abc", ReceivedAt: first})
		registry.Observe(&notify.Message{Sender: "10.0.0.1", ReceivedAt: first})
		registry.Observe(&notify.Message{Sender: "10.0.0.2", Tuned: false, ReceivedAt: first.Add(time.Minute)})

		box, ok := registry.Get("10.0.0.2")
		require.True(t, ok)
		assert.Equal(t, remote.StateStandby, box.State)
		assert.Equal(t, 2, box.Announcements)
		assert.Equal(t, "abc", box.DeviceUUID)
		assert.Equal(t, first, box.FirstSeen)
		assert.Equal(t, first.Add(time.Minute), box.LastSeen)

		list := registry.List()
		require.Len(t, list, 2)
		assert.Equal(t, "10.0.0.1", list[0].Address)
		assert.Equal(t, "10.0.0.2", list[1].Address)
	})

	t.Run("forgets the least recently heard box when full", func(t *testing.T) {
		registry, err := hub.NewRegistry(2)
		require.NoError(t, err)

		registry.Observe(&notify.Message{Sender: "10.0.0.1"})
		registry.Observe(&notify.Message{Sender: "10.0.0.2"})
		registry.Observe(&notify.Message{Sender: "10.0.0.1"})
		registry.Observe(&notify.Message{Sender: "10.0.0.3"})

		_, ok := registry.Get("10.0.0.2")
		assert.False(t, ok)
		assert.Len(t, registry.List(), 2)
	})
}
