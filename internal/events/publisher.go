package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dyluth/parley/pkg/conversation"
	"github.com/nats-io/nats.go"
)

// SubjectAll matches every conversation message subject.
const SubjectAll = "parley.conversation.*.message"

// Subject returns the subject message events of a conversation are published on.
func Subject(conversationID string) string {
	return fmt.Sprintf("parley.conversation.%s.message", conversationID)
}

// Publisher sends message events to NATS. It satisfies bus.Notifier.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials the NATS server at url.
func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url, nats.Name("parley"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &Publisher{conn: conn, logger: logger.With("component", "events")}, nil
}

// Notify publishes event as JSON on the conversation's subject.
func (p *Publisher) Notify(_ context.Context, event conversation.MessageEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}
	if err := p.conn.Publish(Subject(event.ConversationID), data); err != nil {
		return fmt.Errorf("failed to publish message event: %w", err)
	}
	p.logger.Debug("message event published", "conversation_id", event.ConversationID, "message_id", event.Message.ID)
	return nil
}

// Subscribe decodes events on subject and passes them to handler. Undecodable
// payloads are logged and skipped.
func (p *Publisher) Subscribe(subject string, handler func(conversation.MessageEvent)) (*nats.Subscription, error) {
	sub, err := p.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event conversation.MessageEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Warn("dropping undecodable message event", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}

// Flush waits until the server has processed all published messages.
func (p *Publisher) Flush() error {
	return p.conn.Flush()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	p.conn.Close()
}
