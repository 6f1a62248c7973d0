// Package push delivers payloads published on a message bus to the live
// connection of a session, addressed by session token.
package push

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultTopic = "wsbind.push"

// Envelope is the bus message format.
type Envelope struct {
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload"`
}

// TextWriter is what the relay needs from a connection.
type TextWriter interface {
	comparable
	WriteText(data []byte) error
}

// Lookup resolves a session token to its bound connection.
type Lookup[C TextWriter] interface {
	LookupByToken(ctx context.Context, token string) (C, bool)
}

// Relay consumes push envelopes and writes their payload to the addressed
// connection. Undeliverable messages are acked and dropped.
type Relay[C TextWriter] struct {
	subscriber message.Subscriber
	lookup     Lookup[C]
	topic      string
	logger     zerolog.Logger
}

func NewRelay[C TextWriter](sub message.Subscriber, lookup Lookup[C], topic string, logger zerolog.Logger) (*Relay[C], error) {
	if sub == nil {
		return nil, errors.New("push: subscriber is nil")
	}
	if lookup == nil {
		return nil, errors.New("push: lookup is nil")
	}
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	return &Relay[C]{
		subscriber: sub,
		lookup:     lookup,
		topic:      topic,
		logger:     logger.With().Str("component", "push").Str("topic", topic).Logger(),
	}, nil
}

// Run blocks until ctx is done or the subscription channel closes.
func (r *Relay[C]) Run(ctx context.Context) error {
	ch, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", r.topic)
	}
	r.logger.Info().Msg("push relay started")
	defer r.logger.Info().Msg("push relay stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Context(), msg)
			msg.Ack()
		}
	}
}

func (r *Relay[C]) deliver(ctx context.Context, msg *message.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		r.logger.Warn().Err(err).Str("msg_id", msg.UUID).Msg("dropping malformed push message")
		return
	}
	if strings.TrimSpace(env.Token) == "" || len(env.Payload) == 0 {
		r.logger.Warn().Str("msg_id", msg.UUID).Msg("dropping push message without token or payload")
		return
	}

	conn, ok := r.lookup.LookupByToken(ctx, env.Token)
	if !ok {
		r.logger.Debug().Str("msg_id", msg.UUID).Msg("no live connection for push target")
		return
	}
	if err := conn.WriteText(env.Payload); err != nil {
		r.logger.Warn().Err(err).Str("msg_id", msg.UUID).Msg("push write failed")
		return
	}
	r.logger.Debug().Str("msg_id", msg.UUID).Int("bytes", len(env.Payload)).Msg("push delivered")
}

// Publish sends payload to the session identified by token.
func Publish(pub message.Publisher, topic, token string, payload any) error {
	if pub == nil {
		return errors.New("push: publisher is nil")
	}
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal push payload")
	}
	b, err := json.Marshal(Envelope{Token: token, Payload: raw})
	if err != nil {
		return errors.Wrap(err, "marshal push envelope")
	}
	return errors.Wrap(pub.Publish(topic, message.NewMessage(watermill.NewUUID(), b)), "publish push message")
}
