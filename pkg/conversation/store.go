package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store holds conversations and their ordered messages.
// Implementations must serialise appends per conversation id and honour idempotency
// keys: appending twice with the same key stores the message once.
type Store interface {
	// CreateConversation stores a new conversation header. It is idempotent on ID:
	// an existing conversation is left untouched and created is false.
	CreateConversation(ctx context.Context, c *Conversation) (created bool, err error)

	// GetConversation returns the header and messages, or ErrNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// Append adds msg to the conversation. A replayed idempotency key returns the
	// message stored by the first call and appended=false.
	Append(ctx context.Context, conversationID string, msg *Message, idempotencyKey string) (stored *Message, appended bool, err error)

	// Messages returns the ordered messages. Unknown ids yield an empty slice.
	Messages(ctx context.Context, id string) ([]Message, error)

	// List returns conversation headers ordered by creation time.
	List(ctx context.Context) ([]*Conversation, error)

	// Complete marks the conversation completed. Conversations are never deleted.
	Complete(ctx context.Context, id string) error

	Close() error
}

// MemoryStore is a run-scoped, in-process Store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memoryEntry
}

type memoryEntry struct {
	mu    sync.Mutex
	conv  Conversation
	seen  map[string]int // idempotency key -> message index
	order int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) CreateConversation(_ context.Context, c *Conversation) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, fmt.Errorf("invalid conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[c.ID]; ok {
		return false, nil
	}
	header := *c
	header.Messages = []Message{}
	s.conversations[c.ID] = &memoryEntry{
		conv:  header,
		seen:  make(map[string]int),
		order: int64(len(s.conversations)),
	}
	return true, nil
}

func (s *MemoryStore) entry(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.conversations[id]
	return e, ok
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.conv
	c.Messages = append([]Message(nil), e.conv.Messages...)
	return &c, nil
}

func (s *MemoryStore) Append(_ context.Context, conversationID string, msg *Message, idempotencyKey string) (*Message, bool, error) {
	if err := msg.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid message: %w", err)
	}
	e, ok := s.entry(conversationID)
	if !ok {
		return nil, false, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if idempotencyKey != "" {
		if idx, dup := e.seen[idempotencyKey]; dup {
			stored := e.conv.Messages[idx]
			return &stored, false, nil
		}
	}
	e.conv.Messages = append(e.conv.Messages, *msg)
	if idempotencyKey != "" {
		e.seen[idempotencyKey] = len(e.conv.Messages) - 1
	}
	stored := *msg
	return &stored, true, nil
}

func (s *MemoryStore) Messages(_ context.Context, id string) ([]Message, error) {
	e, ok := s.entry(id)
	if !ok {
		return []Message{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Message{}, e.conv.Messages...), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Conversation, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.conversations))
	for _, e := range s.conversations {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	out := make([]*Conversation, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		c := e.conv
		c.Messages = append([]Message(nil), e.conv.Messages...)
		e.mu.Unlock()
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) Complete(_ context.Context, id string) error {
	e, ok := s.entry(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	e.conv.Status = StatusCompleted
	e.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
