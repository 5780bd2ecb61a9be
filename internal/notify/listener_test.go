package notify_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/notify"
	"mediaroom/internal/notify/notifytest"
)

func nextWithin(t *testing.T, sub *notify.Subscription, d time.Duration) *notify.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestListener_FanOut(t *testing.T) {
	t.Run("every subscriber receives every announcement in order", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)
		defer listener.Close()

		first, err := listener.Subscribe("")
		require.NoError(t, err)
		second, err := listener.Subscribe("")
		require.NoError(t, err)

		source.Announce("10.0.0.1", false)
		source.Announce("10.0.0.2", true)

		for _, sub := range []*notify.Subscription{first, second} {
			assert.Equal(t, "10.0.0.1", nextWithin(t, sub, time.Second).Sender)
			msg := nextWithin(t, sub, time.Second)
			assert.Equal(t, "10.0.0.2", msg.Sender)
			assert.True(t, msg.Tuned)
		}
	})

	t.Run("scoped subscription only sees its box", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)
		defer listener.Close()

		scoped, err := listener.Subscribe("10.0.0.2")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.2", scoped.Target())

		source.Announce("10.0.0.1", true)
		source.Announce("10.0.0.3", true)
		source.Announce("10.0.0.2", false)

		msg := nextWithin(t, scoped, time.Second)
		assert.Equal(t, "10.0.0.2", msg.Sender)
		assert.False(t, msg.Tuned)
		assert.Equal(t, 0, scoped.Drain())
	})

	t.Run("malformed datagrams are skipped", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)
		defer listener.Close()

		sub, err := listener.Subscribe("")
		require.NoError(t, err)

		source.Emit("10.0.0.7", "garbage")
		source.Emit("10.0.0.7", "")
		source.Announce("10.0.0.8", false)

		assert.Equal(t, "10.0.0.8", nextWithin(t, sub, time.Second).Sender)
	})
}

func TestSubscription_Next(t *testing.T) {
	t.Run("cancelled wait consumes nothing", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)
		defer listener.Close()

		waiter, err := listener.Subscribe("")
		require.NoError(t, err)
		other, err := listener.Subscribe("")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = waiter.Next(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		source.Announce("10.0.0.4", false)

		assert.Equal(t, "10.0.0.4", nextWithin(t, other, time.Second).Sender)
		assert.Equal(t, "10.0.0.4", nextWithin(t, waiter, time.Second).Sender)
	})

	t.Run("full queue drops the oldest announcement", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 2)
		defer listener.Close()

		small, err := listener.Subscribe("")
		require.NoError(t, err)
		observer, err := listener.Subscribe("")
		require.NoError(t, err)

		for i := 1; i <= 2; i++ {
			source.Announce(fmt.Sprintf("10.0.0.%d", i), false)
			nextWithin(t, observer, time.Second)
		}
		source.Announce("10.0.0.3", false)
		nextWithin(t, observer, time.Second)

		assert.Equal(t, "10.0.0.2", nextWithin(t, small, time.Second).Sender)
		assert.Equal(t, "10.0.0.3", nextWithin(t, small, time.Second).Sender)
	})

	t.Run("drain discards the backlog", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)
		defer listener.Close()

		sub, err := listener.Subscribe("")
		require.NoError(t, err)
		observer, err := listener.Subscribe("")
		require.NoError(t, err)

		source.Announce("10.0.0.1", false)
		source.Announce("10.0.0.2", false)
		nextWithin(t, observer, time.Second)
		nextWithin(t, observer, time.Second)

		assert.Equal(t, 2, sub.Drain())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = sub.Next(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("closed subscription stops receiving", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)
		defer listener.Close()

		sub, err := listener.Subscribe("")
		require.NoError(t, err)
		sub.Close()
		sub.Close()

		_, err = sub.Next(context.Background())
		assert.ErrorIs(t, err, notify.ErrListenerClosed)
	})
}

func TestListener_Close(t *testing.T) {
	t.Run("close releases the source and wakes waiters", func(t *testing.T) {
		source := notifytest.NewSource()
		listener := notify.NewListener(source, 0)

		sub, err := listener.Subscribe("10.0.0.1")
		require.NoError(t, err)

		errc := make(chan error, 1)
		go func() {
			_, err := sub.Next(context.Background())
			errc <- err
		}()

		require.NoError(t, listener.Close())
		require.NoError(t, listener.Close())
		assert.True(t, source.IsClosed())

		select {
		case err := <-errc:
			assert.ErrorIs(t, err, notify.ErrListenerClosed)
		case <-time.After(time.Second):
			t.Fatal("waiter was not released by Close")
		}

		_, err = listener.Subscribe("")
		assert.ErrorIs(t, err, notify.ErrListenerClosed)
	})
}

func TestListen(t *testing.T) {
	t.Run("receives datagrams on a bound socket", func(t *testing.T) {
		port := freeUDPPort(t)

		listener, err := notify.Listen(context.Background(), notify.ListenConfig{
			Address: "127.0.0.1",
			Port:    port,
		})
		require.NoError(t, err)
		defer listener.Close()

		sub, err := listener.Subscribe("127.0.0.1")
		require.NoError(t, err)

		conn, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", port))
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Write([]byte(notifytest.Payload("127.0.0.1", true)))
		require.NoError(t, err)

		msg := nextWithin(t, sub, 2*time.Second)
		assert.Equal(t, "127.0.0.1", msg.Sender)
		assert.True(t, msg.Tuned)
	})

	t.Run("close frees the port", func(t *testing.T) {
		port := freeUDPPort(t)
		cfg := notify.ListenConfig{Address: "127.0.0.1", Port: port}

		listener, err := notify.Listen(context.Background(), cfg)
		require.NoError(t, err)
		require.NoError(t, listener.Close())

		probe, err := net.ListenPacket("udp4", fmt.Sprintf("127.0.0.1:%d", port))
		require.NoError(t, err)
		probe.Close()
	})

	t.Run("bind failure is reported", func(t *testing.T) {
		// TEST-NET-3 is never assigned to a local interface
		_, err := notify.Listen(context.Background(), notify.ListenConfig{
			Address: "203.0.113.7",
			Port:    freeUDPPort(t),
		})
		assert.ErrorContains(t, err, "failed to bind NOTIFY socket")
	})

	t.Run("rejects a non-multicast group", func(t *testing.T) {
		_, err := notify.Listen(context.Background(), notify.ListenConfig{
			Group:   "10.0.0.1",
			Address: "127.0.0.1",
			Port:    freeUDPPort(t),
		})
		assert.Error(t, err)
	})
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}
