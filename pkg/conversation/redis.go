package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// createScript writes the header hash and index entry only if the conversation is new.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'topic', ARGV[2], 'status', ARGV[3], 'created_at_ms', ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[1])
return 1
`)

// appendScript performs the idempotency check, RPUSH and key record as one unit.
// Returns {1, json} when appended, {0, stored_json} for a replayed key and {-1, ''}
// when the conversation does not exist.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1, ''}
end
if ARGV[2] == '1' then
  local existing = redis.call('GET', KEYS[3])
  if existing then
    return {0, existing}
  end
end
redis.call('RPUSH', KEYS[2], ARGV[1])
if ARGV[2] == '1' then
  redis.call('SET', KEYS[3], ARGV[1])
end
return {1, ARGV[1]}
`)

// RedisStore is a Store backed by Redis. Keys and channels are namespaced.
// The store is safe for concurrent use from multiple goroutines and processes.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
	logger    *slog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithLogger sets the logger used for best-effort failures such as event publishing.
func WithLogger(l *slog.Logger) RedisOption {
	return func(s *RedisStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRedisStore creates a store for the given namespace.
// Returns an error if namespace is empty.
func NewRedisStore(redisOpts *redis.Options, namespace string, opts ...RedisOption) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	s := &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "conversation_store")
	return s, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) CreateConversation(ctx context.Context, c *Conversation) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("invalid conversation: %w", err)
	}

	hash := ConversationToHash(c)
	keys := []string{ConversationKey(s.namespace, c.ID), ConversationIndexKey(s.namespace)}
	res, err := createScript.Run(ctx, s.rdb, keys, hash["id"], hash["topic"], hash["status"], hash["created_at_ms"]).Int()
	if err != nil {
		return false, fmt.Errorf("failed to write conversation to Redis: %w", err)
	}
	return res == 1, nil
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	header, err := s.header(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	header.Messages = messages
	return header, nil
}

func (s *RedisStore) header(ctx context.Context, id string) (*Conversation, error) {
	hashData, err := s.rdb.HGetAll(ctx, ConversationKey(s.namespace, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation from Redis: %w", err)
	}
	// HGetAll returns an empty map for missing keys
	if len(hashData) == 0 {
		return nil, ErrNotFound
	}
	c, err := HashToConversation(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize conversation: %w", err)
	}
	return c, nil
}

func (s *RedisStore) Append(ctx context.Context, conversationID string, msg *Message, idempotencyKey string) (*Message, bool, error) {
	if err := msg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid message: %w", err)
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal message: %w", err)
	}

	useKey := "0"
	if idempotencyKey != "" {
		useKey = "1"
	}
	keys := []string{
		ConversationKey(s.namespace, conversationID),
		MessagesKey(s.namespace, conversationID),
		IdempotencyKey(s.namespace, conversationID, idempotencyKey),
	}
	raw, err := appendScript.Run(ctx, s.rdb, keys, string(msgJSON), useKey).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("failed to append message in Redis: %w", err)
	}
	if len(raw) != 2 {
		return nil, false, fmt.Errorf("unexpected append result length %d", len(raw))
	}

	status, _ := raw[0].(int64)
	payload, _ := raw[1].(string)
	switch status {
	case -1:
		return nil, false, ErrNotFound
	case 0:
		var stored Message
		if err := json.Unmarshal([]byte(payload), &stored); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal stored message: %w", err)
		}
		return &stored, false, nil
	}

	// The message is stored; the event is best-effort
	s.publish(ctx, MessageEvent{ConversationID: conversationID, Message: *msg})

	stored := *msg
	return &stored, true, nil
}

func (s *RedisStore) publish(ctx context.Context, event MessageEvent) {
	eventJSON, err := json.Marshal(event)
	if err == nil {
		err = s.rdb.Publish(ctx, MessageEventsChannel(s.namespace), eventJSON).Err()
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish message event",
			"conversation_id", event.ConversationID,
			"message_id", event.Message.ID,
			"error", err)
	}
}

func (s *RedisStore) Messages(ctx context.Context, id string) ([]Message, error) {
	raw, err := s.rdb.LRange(ctx, MessagesKey(s.namespace, id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages from Redis: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var m Message
		if err := json.Unmarshal([]byte(entry), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Conversation, error) {
	ids, err := s.rdb.ZRange(ctx, ConversationIndexKey(s.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation index: %w", err)
	}

	out := make([]*Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(ctx, id)
		if err != nil {
			// Index entries are written with the header, so a miss means a concurrent flush
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *RedisStore) Complete(ctx context.Context, id string) error {
	key := ConversationKey(s.namespace, id)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check conversation existence: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := s.rdb.HSet(ctx, key, "status", string(StatusCompleted)).Err(); err != nil {
		return fmt.Errorf("failed to update conversation status: %w", err)
	}
	return nil
}

// ScanConversations returns the ids of all conversations starting with prefix.
func (s *RedisStore) ScanConversations(ctx context.Context, prefix string) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, ConversationIndexKey(s.namespace), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation index: %w", err)
	}
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	return matches, nil
}

// MessageEvent is published for every appended message.
type MessageEvent struct {
	ConversationID string  `json:"conversation_id"`
	Message        Message `json:"message"`
}

// Subscription is an active Pub/Sub subscription to message events.
// Caller must call Close() when done.
type Subscription struct {
	events <-chan *MessageEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of message events. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan *MessageEvent {
	return s.events
}

// Errors returns non-fatal subscription errors such as undecodable payloads.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe streams message events for this namespace.
// Delivery is at-most-once; slow subscribers may miss events.
func (s *RedisStore) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := s.rdb.Subscribe(ctx, MessageEventsChannel(s.namespace))

	// Wait for the subscription to be confirmed so no event published after return is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to message events: %w", err)
	}

	eventsChan := make(chan *MessageEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event MessageEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal message event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
