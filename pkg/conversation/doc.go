// Package conversation defines the message and conversation model shared by every
// parley component, and the stores that persist it.
//
// # Overview
//
// A Conversation is an append-only, ordered log of Messages scoped to one topic or
// exchange. Messages are immutable once appended. Conversations are never deleted;
// they may only be marked completed.
//
// # Idempotent appends
//
// Every append carries an idempotency key derived from a deterministic request id
// (for example "{run}/{stage}/{step}"), never from the random message id. A send that
// is retried by the execution engine replays the same key, and the store returns the
// message recorded by the first attempt instead of appending a duplicate. DeriveID
// maps the same key to a stable conversation id, so a retried send that has to create
// its conversation also lands in the same one.
//
// # Stores
//
// MemoryStore is run-scoped and serialises appends with a per-conversation mutex.
// RedisStore persists conversations under namespaced keys:
//
//	parley:{namespace}:conversation:{id}            header hash
//	parley:{namespace}:conversation:{id}:messages   message list (JSON entries)
//	parley:{namespace}:conversation:{id}:idem:{key} idempotency record
//	parley:{namespace}:conversations                ZSET index by creation time
//
// Appends run as a single Lua script so the duplicate check and the RPUSH are atomic,
// and every new message is published on parley:{namespace}:message_events.
//
// # Usage Example
//
//	store := conversation.NewMemoryStore()
//	conv := &conversation.Conversation{
//		ID:        conversation.DeriveID("run-1/planning/question"),
//		Topic:     "Conversation between Integrator and Researcher",
//		Status:    conversation.StatusActive,
//		CreatedAt: time.Now(),
//	}
//	if _, err := store.CreateConversation(ctx, conv); err != nil {
//		return err
//	}
package conversation
