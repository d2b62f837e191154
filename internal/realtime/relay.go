package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tuweeter/internal/logging"
	"tuweeter/internal/metrics"
)

const (
	RelayChannel        = "realtime:events"
	relayOutboxSize     = 256
	relayPublishTimeout = 2 * time.Second
)

// RedisRelay shares events between server instances over Redis Pub/Sub.
// Publish queues the event for Redis; every instance's subscriber feeds its
// own hub, the publishing instance included.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	outbox  chan Event
	logger  zerolog.Logger
}

func NewRedisRelay(client redis.UniversalClient, hub *Hub) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: RelayChannel,
		hub:     hub,
		outbox:  make(chan Event, relayOutboxSize),
		logger:  logging.Component("relay"),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev Event) {
	select {
	case r.outbox <- ev:
	default:
		metrics.IncDropped("relay_full")
		logging.Ctx(ctx).Warn().Str(logging.FieldEvent, ev.Name).Msg("relay outbox full, event dropped")
	}
}

// Run subscribes to the relay channel and drains the outbox until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Wait for the subscription so events published right after start are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		r.logger.Error().Err(err).Msg("subscribe failed, falling back to local delivery")
		r.drainLocal(ctx)
		return
	}
	r.logger.Info().Str("channel", r.channel).Msg("relay subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-r.outbox:
			r.send(ctx, ev)

		case msg, ok := <-messages:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn().Err(err).Msg("malformed relay message")
				continue
			}
			r.hub.Publish(ctx, ev)
		}
	}
}

func (r *RedisRelay) send(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error().Err(err).Str(logging.FieldEvent, ev.Name).Msg("encode relay event")
		return
	}

	pctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(pctx, r.channel, data).Err(); err != nil {
		r.logger.Warn().Err(err).Str(logging.FieldEvent, ev.Name).Msg("relay publish failed, delivering locally")
		r.hub.Publish(ctx, ev)
	}
}

func (r *RedisRelay) drainLocal(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.outbox:
			r.hub.Publish(ctx, ev)
		}
	}
}
