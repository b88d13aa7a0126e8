package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
)

// ConsumerConfig configures the durable event consumer.
type ConsumerConfig struct {
	StreamName    string
	ConsumerName  string
	FilterSubject string
	MaxDeliver    int
	BufferSize    int
}

// DefaultConsumerConfig returns the production consumer settings.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		StreamName:    "GAME_EVENTS",
		ConsumerName:  "camtag-notifier",
		FilterSubject: "game.events.>",
		MaxDeliver:    5,
		BufferSize:    256,
	}
}

// Consumer reads game events off JetStream and hands them to the dispatcher.
// The durable consumer keeps its place across restarts, so no event is
// skipped while the process is down.
type Consumer struct {
	nc         *nats.Conn
	js         jetstream.JetStream
	dispatcher *Dispatcher
	cfg        ConsumerConfig
}

// NewConsumer connects to NATS and ensures the durable consumer exists.
func NewConsumer(ctx context.Context, natsURL string, dispatcher *Dispatcher, cfg ConsumerConfig) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("notifier reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("notifier disconnected from NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c := &Consumer{nc: nc, js: js, dispatcher: dispatcher, cfg: cfg}
	if err := c.ensureConsumer(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) ensureConsumer(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       c.cfg.ConsumerName,
		FilterSubject: c.cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.cfg.ConsumerName, err)
	}
	return nil
}

// Run consumes events until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	consumer, err := c.js.Consumer(ctx, c.cfg.StreamName, c.cfg.ConsumerName)
	if err != nil {
		return fmt.Errorf("look up consumer %s: %w", c.cfg.ConsumerName, err)
	}

	msgCh := make(chan jetstream.Msg, c.cfg.BufferSize)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case msgCh <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	defer cc.Stop()

	log.Info().
		Str("stream", c.cfg.StreamName).
		Str("consumer", c.cfg.ConsumerName).
		Msg("notifier consuming events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgCh:
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg jetstream.Msg) {
	var env events.Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		// A malformed event never gets better on redelivery.
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable event")
		if err := msg.Ack(); err != nil {
			log.Warn().Err(err).Msg("failed to ack undecodable event")
		}
		return
	}

	if err := c.dispatcher.Dispatch(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.EventID.String()).
			Str("event_type", env.EventType).
			Msg("failed to dispatch event")
		if err := msg.Nak(); err != nil {
			log.Warn().Err(err).Msg("failed to nak event")
		}
		return
	}

	if err := msg.Ack(); err != nil {
		log.Warn().Err(err).Msg("failed to ack event")
	}
}

// Close tears down the NATS connection.
func (c *Consumer) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}
