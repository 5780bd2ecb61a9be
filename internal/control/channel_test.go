package control_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediaroom/internal/control"
	"mediaroom/internal/control/controltest"
	"mediaroom/internal/keys"
)

func newChannel(box *controltest.Box) *control.Channel {
	return control.NewChannel(control.Config{
		Address:        box.Host(),
		Port:           box.Port(),
		ConnectTimeout: time.Second,
		IOTimeout:      time.Second,
	})
}

func TestChannel_Open(t *testing.T) {
	t.Run("consumes the preamble and stays open", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := newChannel(box)
		defer channel.Close()

		assert.False(t, channel.IsOpen())
		require.NoError(t, channel.Open(context.Background()))
		assert.True(t, channel.IsOpen())

		require.NoError(t, channel.Open(context.Background()))
		assert.Equal(t, 1, box.Connections())
	})

	t.Run("refused connection reports ErrConnect", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		channel := control.NewChannel(control.Config{Address: "127.0.0.1", Port: port})
		err = channel.Open(context.Background())
		assert.ErrorIs(t, err, control.ErrConnect)
		assert.False(t, channel.IsOpen())
	})

	t.Run("missing preamble times out", func(t *testing.T) {
		box := controltest.NewBox(t)
		box.SetSilentPreamble(true)

		channel := control.NewChannel(control.Config{
			Address:        box.Host(),
			Port:           box.Port(),
			ConnectTimeout: 100 * time.Millisecond,
		})

		start := time.Now()
		err := channel.Open(context.Background())
		assert.ErrorIs(t, err, control.ErrConnect)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, channel.IsOpen())
	})
}

func TestChannel_Close(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := newChannel(box)

		require.NoError(t, channel.Open(context.Background()))
		require.NoError(t, channel.Close())
		require.NoError(t, channel.Close())
		assert.False(t, channel.IsOpen())
	})

	t.Run("closed channel never reconnects", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := newChannel(box)
		require.NoError(t, channel.Close())

		assert.ErrorIs(t, channel.Open(context.Background()), control.ErrShutdown)
		assert.ErrorIs(t, channel.SendKey(context.Background(), keys.Code(48)), control.ErrShutdown)
		assert.False(t, channel.IsOpen())
		assert.Equal(t, 0, box.Connections())
	})

	t.Run("close during pacing ends the wait", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := control.NewChannel(control.Config{
			Address: box.Host(),
			Port:    box.Port(),
			Pacing:  5 * time.Second,
		})

		done := make(chan error, 1)
		go func() { done <- channel.SendKey(context.Background(), keys.Code(48)) }()

		require.Eventually(t, func() bool { return len(box.Keys()) == 1 }, 2*time.Second, 10*time.Millisecond)
		require.NoError(t, channel.Close())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("SendKey kept pacing after Close")
		}
		assert.False(t, channel.IsOpen())
	})
}

func TestChannel_SendKey(t *testing.T) {
	t.Run("opens lazily and writes the key line", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := newChannel(box)
		defer channel.Close()

		require.NoError(t, channel.SendKey(context.Background(), keys.Code(61440)))

		assert.True(t, channel.IsOpen())
		require.Len(t, box.Presses(), 1)
		assert.Equal(t, "key=61440", box.Presses()[0].Line)
	})

	t.Run("consecutive keys share a connection and respect pacing", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := newChannel(box)
		defer channel.Close()

		start := time.Now()
		require.NoError(t, channel.SendKey(context.Background(), keys.Code(49)))
		assert.GreaterOrEqual(t, time.Since(start), control.KeyPacing)
		require.NoError(t, channel.SendKey(context.Background(), keys.Code(50)))

		presses := box.Presses()
		require.Len(t, presses, 2)
		assert.GreaterOrEqual(t, presses[1].At.Sub(presses[0].At), control.KeyPacing)
		assert.Equal(t, 1, box.Connections())
	})

	t.Run("pacing cannot be configured below the protocol minimum", func(t *testing.T) {
		box := controltest.NewBox(t)
		channel := control.NewChannel(control.Config{
			Address: box.Host(),
			Port:    box.Port(),
			Pacing:  time.Millisecond,
		})
		defer channel.Close()

		start := time.Now()
		require.NoError(t, channel.SendKey(context.Background(), keys.Code(48)))
		assert.GreaterOrEqual(t, time.Since(start), control.KeyPacing)
	})

	t.Run("dropped connection is reopened on the next key", func(t *testing.T) {
		box := controltest.NewBox(t)
		box.SetDropAfter(1)
		channel := newChannel(box)
		defer channel.Close()

		err := channel.SendKey(context.Background(), keys.Code(48))
		assert.ErrorIs(t, err, control.ErrClosed)
		assert.False(t, channel.IsOpen())

		box.SetDropAfter(0)
		require.NoError(t, channel.SendKey(context.Background(), keys.Code(49)))
		assert.Equal(t, 2, box.Connections())
		assert.Equal(t, []string{"48", "49"}, box.Keys())
	})

	t.Run("cancellation unblocks a missing acknowledgement", func(t *testing.T) {
		box := controltest.NewBox(t)
		box.SetWithholdAcks(true)
		channel := control.NewChannel(control.Config{
			Address:   box.Host(),
			Port:      box.Port(),
			IOTimeout: time.Minute,
		})
		defer channel.Close()

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(100*time.Millisecond, cancel)

		start := time.Now()
		err := channel.SendKey(ctx, keys.Code(48))
		assert.ErrorIs(t, err, control.ErrClosed)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 2*time.Second)
		assert.False(t, channel.IsOpen())
	})

	t.Run("caller deadline bounds the acknowledgement read", func(t *testing.T) {
		box := controltest.NewBox(t)
		box.SetWithholdAcks(true)
		channel := control.NewChannel(control.Config{
			Address:   box.Host(),
			Port:      box.Port(),
			IOTimeout: time.Minute,
		})
		defer channel.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := channel.SendKey(ctx, keys.Code(48))
		assert.ErrorIs(t, err, control.ErrClosed)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("unreachable box fails without sending", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		ln.Close()

		channel := control.NewChannel(control.Config{Address: "127.0.0.1", Port: port})
		err = channel.SendKey(context.Background(), keys.Code(48))
		assert.ErrorIs(t, err, control.ErrConnect)
	})
}
