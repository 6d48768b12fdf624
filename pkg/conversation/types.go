package conversation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that miss. History-style reads never return it;
// they resolve unknown ids to an empty sequence instead.
var ErrNotFound = errors.New("conversation not found")

// Message is one immutable entry in a conversation.
// Recipient is the joined display form; Recipients keeps the resolved names in order.
type Message struct {
	ID         string            `json:"id"`                   // UUID - globally unique
	Sender     string            `json:"sender"`               // Agent name
	Recipient  string            `json:"recipient"`            // "Writer" or "Researcher, Writer, Critic"
	Recipients []string          `json:"recipients"`           // Resolved recipient names
	Content    string            `json:"content"`              // Message body
	Type       MessageType       `json:"type"`                 // question, answer, proposal, ...
	RelatedTo  string            `json:"related_to,omitempty"` // ID of the message this responds to
	Timestamp  time.Time         `json:"timestamp"`            // Creation time
	Metadata   map[string]string `json:"metadata,omitempty"`   // Open key/value bag
}

// MessageType tags the purpose of a message. The named constants cover the
// protocol; any other non-empty tag is accepted as a free-form type.
type MessageType string

const (
	// MessageTypeQuestion asks another agent for input
	MessageTypeQuestion MessageType = "question"

	// MessageTypeAnswer replies to a question (RelatedTo is required)
	MessageTypeAnswer MessageType = "answer"

	// MessageTypeProposal puts a plan or draft in front of other agents
	MessageTypeProposal MessageType = "proposal"

	// MessageTypeFeedback responds to a proposal (RelatedTo is required)
	MessageTypeFeedback MessageType = "feedback"

	// MessageTypeUpdate is a status notification with no reply expected
	MessageTypeUpdate MessageType = "update"
)

// IsKnown reports whether the type is one of the protocol's named types.
func (t MessageType) IsKnown() bool {
	switch t {
	case MessageTypeQuestion, MessageTypeAnswer, MessageTypeProposal, MessageTypeFeedback, MessageTypeUpdate:
		return true
	default:
		return false
	}
}

// RequiresRelatedTo reports whether messages of this type must reference another message.
func (t MessageType) RequiresRelatedTo() bool {
	return t == MessageTypeAnswer || t == MessageTypeFeedback
}

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Validate checks that the status is one of the defined values.
func (s Status) Validate() error {
	switch s {
	case StatusActive, StatusCompleted:
		return nil
	default:
		return fmt.Errorf("invalid conversation status: %s", s)
	}
}

// Conversation is an append-only, ordered message log scoped to one topic or exchange.
type Conversation struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Validate checks the conversation header. Messages are validated on append.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	if err := c.Status.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks that the message carries the fields every consumer relies on.
func (m *Message) Validate() error {
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("message id must be a valid UUID: %w", err)
	}
	if m.Sender == "" {
		return fmt.Errorf("message sender cannot be empty")
	}
	if len(m.Recipients) == 0 {
		return fmt.Errorf("message must have at least one recipient")
	}
	if m.Type == "" {
		return fmt.Errorf("message type cannot be empty")
	}
	if m.Type.RequiresRelatedTo() && m.RelatedTo == "" {
		return fmt.Errorf("%s messages must set related_to", m.Type)
	}
	return nil
}

// Snapshot is the audit view of one conversation.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	Topic          string    `json:"topic"`
	Messages       []Message `json:"messages"`
}

// SnapshotOf builds a Snapshot from a conversation header and its messages.
func SnapshotOf(c *Conversation, messages []Message) Snapshot {
	if messages == nil {
		messages = []Message{}
	}
	return Snapshot{
		ConversationID: c.ID,
		Topic:          c.Topic,
		Messages:       messages,
	}
}

// DeriveID returns a stable conversation id for an idempotency key.
// Retried operations carrying the same key resolve to the same conversation.
func DeriveID(idempotencyKey string) string {
	return uuid.NewSHA1(namespaceConversation, []byte(idempotencyKey)).String()
}

var namespaceConversation = uuid.MustParse("6f1c3e52-8d0a-4f59-9a3b-2e7d4c1b0a61")
