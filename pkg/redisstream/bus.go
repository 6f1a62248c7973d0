// Package redisstream builds the Watermill publisher/subscriber pair used for
// out-of-band pushes. Redis Streams back it when enabled, an in-process
// gochannel otherwise.
package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Bus bundles a publisher and a subscriber sharing one backend.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Client is nil for the in-process bus.
	Client redis.UniversalClient

	closers []func() error
}

// Close shuts the publisher, the subscriber and the redis client down, in
// that order, and returns the first error.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// BuildBus constructs the bus. client may be nil, in which case one is
// created from s.Addr and owned by the bus.
func BuildBus(s Settings, client redis.UniversalClient, logger zerolog.Logger) (*Bus, error) {
	wlogger := NewWatermillLogger(logger)
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wlogger)
		return &Bus{
			Publisher:  ch,
			Subscriber: ch,
			closers:    []func() error{ch.Close},
		}, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	bus := &Bus{}
	if client == nil {
		c := redis.NewClient(&redis.Options{Addr: s.Addr})
		client = c
		defer func() {
			if bus.Client == nil {
				_ = c.Close()
			}
		}()
	}
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, wlogger)
	if err != nil {
		return nil, errors.Wrap(err, "redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, wlogger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}

	bus.Publisher = pub
	bus.Subscriber = sub
	bus.Client = client
	bus.closers = []func() error{pub.Close, sub.Close, client.Close}
	return bus, nil
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, client redis.Cmdable, stream, group string, logger zerolog.Logger) error {
	if client == nil {
		return errors.New("redis client is nil")
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	logger.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
