package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	TopicChatMessage = "chat_message"
	TopicAIResponse  = "ai_response"

	payloadField = "d"
)

var (
	ErrPublishTimeout = errors.New("broker did not acknowledge the message in time")
	ErrPublishFailed  = errors.New("broker rejected the message")
)

// Message is one entry read from a topic.
type Message struct {
	ID      string
	Topic   string
	Payload []byte
}

// HandlerFunc processes one message. Its result does not affect
// acknowledgement: every delivered message is acked once the handler returns.
type HandlerFunc func(ctx context.Context, msg Message)

type Config struct {
	AckTimeout time.Duration
	MaxLen     int64
	// Block is how long a read waits for new entries. A negative value polls
	// without blocking.
	Block time.Duration
}

// RedisBroker implements topics as Redis streams. Consumers share work
// through a consumer group, so a message is handled by one replica.
type RedisBroker struct {
	client *redis.Client
	cfg    Config
}

func NewRedisBroker(client *redis.Client, cfg Config) *RedisBroker {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}
	if cfg.Block == 0 {
		cfg.Block = 2 * time.Second
	}
	return &RedisBroker{client: client, cfg: cfg}
}

// Publish appends payload to topic and waits up to the ack timeout for Redis
// to confirm the write.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.AckTimeout)
	defer cancel()

	args := &redis.XAddArgs{Stream: topic, Values: map[string]interface{}{payloadField: payload}}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	id, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", publishError(ctx, topic, err)
	}
	return id, nil
}

// publishError classifies a failed XADD. The socket deadline follows the
// context deadline, so an i/o timeout can surface before ctx reports it.
func publishError(ctx context.Context, topic string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", ErrPublishTimeout, topic, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrPublishFailed, topic, err)
}

// Subscribe reads topic as consumer within group until ctx is cancelled or
// Redis returns an error other than an empty read. The group is created on
// first use, starting from new entries only.
func (b *RedisBroker) Subscribe(ctx context.Context, topic, group, consumer string, handler HandlerFunc) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    10,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}

		for _, stream := range res {
			for _, m := range stream.Messages {
				handler(ctx, Message{ID: m.ID, Topic: topic, Payload: payloadOf(m.Values)})
				if err := b.client.XAck(context.WithoutCancel(ctx), topic, group, m.ID).Err(); err != nil {
					return fmt.Errorf("ack %s %s: %w", topic, m.ID, err)
				}
			}
		}
	}
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func payloadOf(values map[string]interface{}) []byte {
	switch v := values[payloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
