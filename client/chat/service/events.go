package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"msg_client/client/common/infra/mq"
)

const (
	EventSessionStarted    = "session.started"
	EventSessionEnded      = "session.ended"
	EventChatsRefreshed    = "chats.refreshed"
	EventMessagesRefreshed = "messages.refreshed"
	EventMessageSent       = "message.sent"
)

type Event struct {
	Type      string    `json:"event"`
	UserID    int64     `json:"user_id,omitempty"`
	ChatID    int64     `json:"chat_id,omitempty"`
	MessageID int64     `json:"message_id,omitempty"`
	Count     int       `json:"count,omitempty"`
	At        time.Time `json:"at"`
}

// EventSink receives synchronizer events. Failures are logged by the caller
// and never affect synchronizer state.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

type EventSinkFunc func(ctx context.Context, event Event) error

func (f EventSinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// AMQPSink publishes events as JSON to the tgchat.events topic exchange.
type AMQPSink struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	channel *amqp.Channel
}

func NewAMQPSink(conn *amqp.Connection) (*AMQPSink, error) {
	ch, err := mq.OpenEventsChannel(conn)
	if err != nil {
		return nil, err
	}
	return &AMQPSink{conn: conn, channel: ch}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return fmt.Errorf("amqp sink is closed")
	}
	return s.channel.PublishWithContext(ctx, mq.EventsExchange, RoutingKey(event), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   event.At,
	})
}

func (s *AMQPSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
}

// RoutingKey is "<user_id>.<event>", or just the event without a user.
func RoutingKey(event Event) string {
	if event.UserID == 0 {
		return event.Type
	}
	return fmt.Sprintf("%d.%s", event.UserID, event.Type)
}
