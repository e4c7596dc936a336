// Package notify publishes generation lifecycle events to a message
// broker so downstream consumers (workspace sync, preview builders) can
// react without polling the API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"promptforge/pkg/domain"
)

const exchangeName = "promptforge.events"

// CompletedEvent announces that a turn was durably persisted.
type CompletedEvent struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	TurnID         string    `json:"turnId"`
	FileCount      int       `json:"fileCount"`
	ChangedCount   int       `json:"changedCount"`
	Iterative      bool      `json:"isIterativeUpdate"`
	CompletedAt    time.Time `json:"completedAt"`
}

// Notifier publishes events over an AMQP topic exchange.
type Notifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewNotifier dials the broker and declares the exchange.
func NewNotifier(url string) (*Notifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Notifier{conn: conn, channel: channel}, nil
}

// GenerationCompleted publishes a generation.completed event.
func (n *Notifier) GenerationCompleted(ctx context.Context, conversationID, userID string, turn domain.ConversationTurn, iterative bool) error {
	event := CompletedEvent{
		ConversationID: conversationID,
		UserID:         userID,
		TurnID:         turn.ID,
		FileCount:      len(turn.FullState),
		ChangedCount:   len(turn.FileChanges),
		Iterative:      iterative,
		CompletedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = n.channel.PublishWithContext(ctx, exchangeName, "generation.completed", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   event.CompletedAt,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (n *Notifier) Close() error {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
