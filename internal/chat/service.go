package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-chatbot/internal/broker"
	"go-chatbot/internal/metrics"
)

// SequenceKey is the counter used for chat message ids.
const SequenceKey = "customer_chat_messages"

var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrMalformedReply = errors.New("malformed bot reply")
)

type Store interface {
	SaveMessage(ctx context.Context, msg *ChatMessage) error
	History(ctx context.Context, author string, before int64) ([]ChatMessage, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (string, error)
}

// Service is the relay pipeline: persist, then hand off to the broker.
type Service struct {
	store Store
	seq   SequenceAllocator
	pub   Publisher
	now   func() time.Time
}

func NewService(store Store, seq SequenceAllocator, pub Publisher) *Service {
	return &Service{store: store, seq: seq, pub: pub, now: time.Now}
}

func (s *Service) newMessage(ctx context.Context, author, body string, isBot bool, inReplyTo *int64) (ChatMessage, error) {
	id, err := s.seq.Next(ctx, SequenceKey)
	if err != nil {
		return ChatMessage{}, err
	}
	msg := ChatMessage{
		ID:        id,
		Author:    author,
		Body:      body,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
		IsBot:     isBot,
		InReplyTo: inReplyTo,
	}
	if err := s.store.SaveMessage(ctx, &msg); err != nil {
		return ChatMessage{}, fmt.Errorf("save message %d: %w", id, err)
	}
	return msg, nil
}

// PostMessage stores a user message and publishes it on chat_message. A
// publish failure is returned together with the stored message: the row is
// kept and only the relay is lost.
func (s *Service) PostMessage(ctx context.Context, author, body string) (ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	msg, err := s.newMessage(ctx, author, body, false, nil)
	if err != nil {
		return ChatMessage{}, err
	}
	metrics.MessagesPosted.Inc()

	payload, err := json.Marshal(msg)
	if err != nil {
		return msg, err
	}
	if _, err := s.pub.Publish(ctx, broker.TopicChatMessage, payload); err != nil {
		reason := "error"
		if errors.Is(err, broker.ErrPublishTimeout) {
			reason = "timeout"
		}
		metrics.PublishFailures.WithLabelValues(reason).Inc()
		return msg, fmt.Errorf("relay message %d: %w", msg.ID, err)
	}
	return msg, nil
}

// FetchHistory returns one page of author's history. LastID is the oldest id
// on the page, or 0 when the page is empty.
func (s *Service) FetchHistory(ctx context.Context, author string, before int64) (HistoryPage, error) {
	msgs, err := s.store.History(ctx, author, before)
	if err != nil {
		return HistoryPage{}, err
	}
	page := HistoryPage{Messages: msgs}
	if page.Messages == nil {
		page.Messages = []ChatMessage{}
	}
	if len(msgs) > 0 {
		page.LastID = msgs[0].ID
	}
	return page, nil
}

// SaveReply stores a bot reply. The reply must name the user and the
// message it answers.
func (s *Service) SaveReply(ctx context.Context, reply AIResponse) (ChatMessage, error) {
	if reply.User == "" || reply.RequestID == nil {
		return ChatMessage{}, fmt.Errorf("%w: user and request_id are required", ErrMalformedReply)
	}
	return s.newMessage(ctx, reply.User, reply.Response, true, reply.RequestID)
}
