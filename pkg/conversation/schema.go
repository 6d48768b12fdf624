package conversation

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced so several parley deployments
// can share one Redis server.
//
// Key pattern: parley:{namespace}:conversation:{id}[:suffix]
// Channel pattern: parley:{namespace}:message_events

// ConversationKey returns the Redis key for a conversation header hash.
// Pattern: parley:{namespace}:conversation:{conversation_id}
func ConversationKey(namespace, conversationID string) string {
	return fmt.Sprintf("parley:%s:conversation:%s", namespace, conversationID)
}

// MessagesKey returns the Redis key for a conversation's append-only message list.
// Pattern: parley:{namespace}:conversation:{conversation_id}:messages
func MessagesKey(namespace, conversationID string) string {
	return fmt.Sprintf("parley:%s:conversation:%s:messages", namespace, conversationID)
}

// IdempotencyKey returns the Redis key recording which message a send request produced.
// Pattern: parley:{namespace}:conversation:{conversation_id}:idem:{key}
func IdempotencyKey(namespace, conversationID, key string) string {
	return fmt.Sprintf("parley:%s:conversation:%s:idem:%s", namespace, conversationID, key)
}

// ConversationIndexKey returns the Redis key for the ZSET of conversation ids
// scored by creation time in milliseconds.
// Pattern: parley:{namespace}:conversations
func ConversationIndexKey(namespace string) string {
	return fmt.Sprintf("parley:%s:conversations", namespace)
}

// MessageEventsChannel returns the Pub/Sub channel carrying appended messages.
// Pattern: parley:{namespace}:message_events
func MessageEventsChannel(namespace string) string {
	return fmt.Sprintf("parley:%s:message_events", namespace)
}
