package conversation

import (
	"fmt"
	"strconv"
	"time"
)

// Conversation headers are stored as Redis hashes; messages are stored as JSON
// list entries because they are immutable and always read in order.

// ConversationToHash converts a conversation header to Redis hash fields.
// Messages are not part of the hash.
func ConversationToHash(c *Conversation) map[string]interface{} {
	return map[string]interface{}{
		"id":            c.ID,
		"topic":         c.Topic,
		"status":        string(c.Status),
		"created_at_ms": c.CreatedAt.UnixMilli(),
	}
}

// HashToConversation converts a Redis hash back to a conversation header.
func HashToConversation(hash map[string]string) (*Conversation, error) {
	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	c := &Conversation{
		ID:        hash["id"],
		Topic:     hash["topic"],
		Status:    Status(hash["status"]),
		CreatedAt: time.UnixMilli(createdAtMs).UTC(),
		Messages:  []Message{},
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
