package redisstream

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuildBusInMemory(t *testing.T) {
	bus, err := BuildBus(DefaultSettings(), nil, zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, bus.Client)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscriber.Subscribe(ctx, "push")
	require.NoError(t, err)

	require.NoError(t, bus.Publisher.Publish("push", message.NewMessage(watermill.NewUUID(), []byte("hello"))))

	select {
	case msg := <-ch:
		require.Equal(t, "hello", string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
}

func TestSettingsValidate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.Enabled = true
	require.NoError(t, s.Validate())

	s.Group = " "
	require.Error(t, s.Validate())

	_, err := BuildBus(s, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestEnsureGroupAtTailNilClient(t *testing.T) {
	require.Error(t, EnsureGroupAtTail(context.Background(), nil, "s", "g", zerolog.Nop()))
}

func TestEnsureGroupAtTailUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	err := EnsureGroupAtTail(context.Background(), client, "wsbind:push", "wsbind", zerolog.Nop())
	require.ErrorContains(t, err, "create consumer group wsbind on wsbind:push")
}

func TestWatermillLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWatermillLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	l.With(watermill.LogFields{"topic": "push"}).Error("publish failed", errors.New("boom"), watermill.LogFields{"n": 1})
	out := buf.String()
	require.Contains(t, out, `"component":"watermill"`)
	require.Contains(t, out, `"topic":"push"`)
	require.Contains(t, out, `"error":"boom"`)
	require.Contains(t, out, `"n":1`)

	buf.Reset()
	l.Trace("noise", nil)
	require.Empty(t, buf.String())
}
