package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"go-chatbot/internal/broker"
	"go-chatbot/internal/metrics"
)

type Subscriber interface {
	Subscribe(ctx context.Context, topic, group, consumer string, handler broker.HandlerFunc) error
}

type Pusher interface {
	Deliver(ctx context.Context, key string, payload []byte) bool
}

// ReplyConsumer is the background worker that turns ai_response entries into
// stored bot messages and pushes them to the user's live connection.
type ReplyConsumer struct {
	service  *Service
	pusher   Pusher
	sub      Subscriber
	group    string
	consumer string
	log      zerolog.Logger
}

func NewReplyConsumer(service *Service, pusher Pusher, sub Subscriber, group, consumer string, log zerolog.Logger) *ReplyConsumer {
	return &ReplyConsumer{service: service, pusher: pusher, sub: sub, group: group, consumer: consumer, log: log}
}

// Process handles one reply payload and reports whether it reached a live
// connection.
func (rc *ReplyConsumer) Process(ctx context.Context, payload []byte) (bool, error) {
	var reply AIResponse
	if err := json.Unmarshal(payload, &reply); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	msg, err := rc.service.SaveReply(ctx, reply)
	if err != nil {
		return false, err
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	return rc.pusher.Deliver(ctx, ConnectionKey(msg.Author), out), nil
}

func (rc *ReplyConsumer) handle(ctx context.Context, m broker.Message) {
	pushed, err := rc.Process(ctx, m.Payload)
	switch {
	case err != nil:
		metrics.RepliesConsumed.WithLabelValues("failed").Inc()
		rc.log.Error().Err(err).Str("module", "MessageConsumer/ConsumeResponse").Str("entry", m.ID).Msg("reply dropped")
	case pushed:
		metrics.RepliesConsumed.WithLabelValues("pushed").Inc()
	default:
		metrics.RepliesConsumed.WithLabelValues("stored").Inc()
	}
}

// Run consumes until ctx is cancelled or the subscription fails. It does not
// restart itself; a failed subscription needs a process restart.
func (rc *ReplyConsumer) Run(ctx context.Context) error {
	rc.log.Info().Str("topic", broker.TopicAIResponse).Str("group", rc.group).Msg("reply consumer started")
	err := rc.sub.Subscribe(ctx, broker.TopicAIResponse, rc.group, rc.consumer, rc.handle)
	if err != nil && !errors.Is(err, context.Canceled) {
		rc.log.Error().Err(err).Str("module", "MessageConsumer/ConsumeResponse").Msg("reply consumer stopped")
		return err
	}
	rc.log.Info().Msg("reply consumer stopped")
	return nil
}
