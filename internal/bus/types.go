// Package bus delivers messages between agents. Bus appends messages to the
// conversation store; PolicyBus wraps any Sender and drops recipients the
// communication policy does not allow. Denials are results, never errors.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/parley/pkg/conversation"
)

// ErrRelatedToRequired is returned for answers and feedback without a parent message id.
var ErrRelatedToRequired = errors.New("related_to is required for answers and feedback")

// Recipient is either a single agent name or an ordered set of names.
type Recipient struct {
	names    []string
	multiple bool
}

// Single addresses one agent.
func Single(name string) Recipient {
	return Recipient{names: []string{name}}
}

// Multiple addresses several agents. Duplicates are dropped, order is kept.
func Multiple(names ...string) Recipient {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return Recipient{names: out, multiple: true}
}

// Names returns a copy of the recipient names.
func (r Recipient) Names() []string {
	return append([]string(nil), r.names...)
}

// IsMultiple reports whether the recipient was built with Multiple.
func (r Recipient) IsMultiple() bool {
	return r.multiple
}

// Display renders the recipients as they appear on a message: "A" or "A, B, C".
func (r Recipient) Display() string {
	return strings.Join(r.names, ", ")
}

// Validate checks that every recipient has a name.
func (r Recipient) Validate() error {
	if len(r.names) == 0 {
		return fmt.Errorf("recipient set cannot be empty")
	}
	for _, n := range r.names {
		if n == "" {
			return fmt.Errorf("recipient name cannot be empty")
		}
	}
	return nil
}

// SendRequest is one logical send.
// IdempotencyKey must be derived from a deterministic request id when the send may be
// retried; an empty key makes the send non-idempotent.
type SendRequest struct {
	Sender         string
	Recipient      Recipient
	Content        string
	Type           conversation.MessageType
	ConversationID string // Empty or unknown ids open a new conversation
	RelatedTo      string
	IdempotencyKey string
	Metadata       map[string]string
}

// Validate checks the request shape. Policy is not consulted here.
func (r SendRequest) Validate() error {
	if r.Sender == "" {
		return fmt.Errorf("sender cannot be empty")
	}
	if err := r.Recipient.Validate(); err != nil {
		return err
	}
	if r.Type == "" {
		return fmt.Errorf("message type cannot be empty")
	}
	if r.Type.RequiresRelatedTo() && r.RelatedTo == "" {
		return ErrRelatedToRequired
	}
	return nil
}

// Receipt confirms a delivered message.
type Receipt struct {
	MessageID      string                   `json:"message_id"`
	ConversationID string                   `json:"conversation_id"`
	Timestamp      time.Time                `json:"timestamp"`
	Sender         string                   `json:"sender"`
	Recipient      string                   `json:"recipient"`
	Recipients     []string                 `json:"recipients"`
	Content        string                   `json:"content"`
	Type           conversation.MessageType `json:"type"`
	Duplicate      bool                     `json:"duplicate,omitempty"` // A replayed key returned the original message
	Blocked        []string                 `json:"blocked,omitempty"`   // Recipients dropped by policy
}

// CommunicationBlocked reports a send that the policy refused entirely.
type CommunicationBlocked struct {
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
}

func (b CommunicationBlocked) String() string {
	return fmt.Sprintf("communication blocked: %s -> %s", b.Sender, strings.Join(b.Recipients, ", "))
}

// Outcome is exactly one of Receipt or Blocked.
type Outcome struct {
	Receipt *Receipt              `json:"receipt,omitempty"`
	Blocked *CommunicationBlocked `json:"blocked,omitempty"`
}

// IsBlocked reports whether the send was refused.
func (o Outcome) IsBlocked() bool {
	return o.Blocked != nil
}

// Delivered returns a Receipt outcome.
func Delivered(r Receipt) Outcome {
	return Outcome{Receipt: &r}
}

// Denied returns a Blocked outcome.
func Denied(sender string, recipients []string) Outcome {
	return Outcome{Blocked: &CommunicationBlocked{Sender: sender, Recipients: recipients}}
}

// Sender delivers one message. The error is reserved for infrastructure failures.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (Outcome, error)
}

// SnapshotSink persists conversation snapshots for audit.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, snap conversation.Snapshot) error
}

// Notifier publishes appended messages to interested listeners.
type Notifier interface {
	Notify(ctx context.Context, event conversation.MessageEvent) error
}

// Authorizer decides whether sender may address recipient.
type Authorizer interface {
	IsAllowed(sender, recipient string) bool
}
