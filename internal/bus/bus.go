package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/parley/internal/tracing"
	"github.com/dyluth/parley/pkg/conversation"
	"github.com/google/uuid"
)

// Bus appends messages to the conversation store without consulting any policy.
// Compose it with WithPolicy for enforced delivery.
type Bus struct {
	store    conversation.Store
	sink     SnapshotSink
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithSnapshotSink writes an audit snapshot after each send. Failures are only logged.
func WithSnapshotSink(s SnapshotSink) Option {
	return func(b *Bus) { b.sink = s }
}

// WithNotifier publishes each appended message. Failures are only logged.
func WithNotifier(n Notifier) Option {
	return func(b *Bus) { b.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// New creates a Bus over store.
func New(store conversation.Store, opts ...Option) *Bus {
	b := &Bus{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bus")
	return b
}

// Send resolves or creates the conversation and appends the message.
func (b *Bus) Send(ctx context.Context, req SendRequest) (out Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "bus.send",
		tracing.String("sender", req.Sender),
		tracing.String("type", string(req.Type)),
	)
	defer func() { tracing.End(span, err) }()

	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	conv, err := b.resolveConversation(ctx, req, key)
	if err != nil {
		return Outcome{}, err
	}

	msg := &conversation.Message{
		ID:         uuid.NewString(),
		Sender:     req.Sender,
		Recipient:  req.Recipient.Display(),
		Recipients: req.Recipient.Names(),
		Content:    req.Content,
		Type:       req.Type,
		RelatedTo:  req.RelatedTo,
		Timestamp:  b.now().UTC(),
		Metadata:   req.Metadata,
	}

	stored, appended, err := b.store.Append(ctx, conv.ID, msg, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to append message: %w", err)
	}

	if appended {
		b.logger.Info("message sent",
			"conversation_id", conv.ID,
			"message_id", stored.ID,
			"sender", stored.Sender,
			"recipient", stored.Recipient,
			"type", string(stored.Type),
		)
		b.notify(ctx, conv.ID, stored)
	} else {
		b.logger.Debug("duplicate send suppressed",
			"conversation_id", conv.ID,
			"message_id", stored.ID,
			"idempotency_key", key,
		)
	}
	// Snapshots are upserts, so replays rewrite the same row
	b.snapshot(ctx, conv)

	return Delivered(Receipt{
		MessageID:      stored.ID,
		ConversationID: conv.ID,
		Timestamp:      stored.Timestamp,
		Sender:         stored.Sender,
		Recipient:      stored.Recipient,
		Recipients:     stored.Recipients,
		Content:        stored.Content,
		Type:           stored.Type,
		Duplicate:      !appended,
	}), nil
}

func (b *Bus) resolveConversation(ctx context.Context, req SendRequest, key string) (*conversation.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := b.store.GetConversation(ctx, req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, conversation.ErrNotFound) {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		b.logger.Debug("unknown conversation id, opening a new one", "conversation_id", req.ConversationID)
	}

	conv := &conversation.Conversation{
		ID:        conversation.DeriveID(key),
		Topic:     fmt.Sprintf("Conversation between %s and %s", req.Sender, req.Recipient.Display()),
		Status:    conversation.StatusActive,
		CreatedAt: b.now().UTC(),
	}
	if _, err := b.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (b *Bus) notify(ctx context.Context, conversationID string, msg *conversation.Message) {
	if b.notifier == nil {
		return
	}
	event := conversation.MessageEvent{ConversationID: conversationID, Message: *msg}
	if err := b.notifier.Notify(ctx, event); err != nil {
		b.logger.Warn("message notification failed", "conversation_id", conversationID, "error", err)
	}
}

func (b *Bus) snapshot(ctx context.Context, conv *conversation.Conversation) {
	if b.sink == nil {
		return
	}
	messages, err := b.store.Messages(ctx, conv.ID)
	if err != nil {
		b.logger.Warn("could not read messages for snapshot", "conversation_id", conv.ID, "error", err)
		return
	}
	if err := b.sink.WriteSnapshot(ctx, conversation.SnapshotOf(conv, messages)); err != nil {
		b.logger.Warn("could not save conversation snapshot", "conversation_id", conv.ID, "error", err)
	}
}

// History returns the ordered messages of a conversation. Unknown ids yield an empty slice.
func (b *Bus) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	messages, err := b.store.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return messages, nil
}

// OpenConversation creates a conversation with an explicit topic, idempotent on key.
// Used by callers that need a conversation before the first message, such as collaborations.
func (b *Bus) OpenConversation(ctx context.Context, topic, key string) (*conversation.Conversation, error) {
	if key == "" {
		key = uuid.NewString()
	}
	conv := &conversation.Conversation{
		ID:        conversation.DeriveID(key),
		Topic:     topic,
		Status:    conversation.StatusActive,
		CreatedAt: b.now().UTC(),
	}
	created, err := b.store.CreateConversation(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if !created {
		existing, err := b.store.GetConversation(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		return existing, nil
	}
	b.logger.Info("conversation opened", "conversation_id", conv.ID, "topic", topic)
	return conv, nil
}
