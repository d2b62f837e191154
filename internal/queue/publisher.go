package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tuweeter/internal/logging"
)

// StreamMaxLen bounds the timeline stream; XADD trims approximately.
const StreamMaxLen = 100000

// Publisher adds timeline events to a stream.
type Publisher interface {
	Publish(ctx context.Context, stream string, event TimelineEvent) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client redis.UniversalClient
	log    zerolog.Logger
}

func NewPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client, log: logging.Component("stream_publisher")}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event TimelineEvent) (string, error) {
	values, err := event.ToMap()
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.log.Debug().
		Str("stream", stream).
		Str(logging.FieldEvent, event.Type).
		Str("msg_id", messageID).
		Msg("published")
	return messageID, nil
}

// NopPublisher discards events. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, TimelineEvent) (string, error) {
	return "", nil
}
