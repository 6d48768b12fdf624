package bus

import (
	"context"

	"github.com/dyluth/parley/pkg/conversation"
)

// HistoryReader returns the ordered messages of a conversation.
type HistoryReader interface {
	History(ctx context.Context, conversationID string) ([]conversation.Message, error)
}

// Messenger offers typed conveniences over a Sender.
type Messenger struct {
	sender Sender
	reader HistoryReader
}

// NewMessenger combines a sender (usually a PolicyBus) with a history reader (usually the Bus).
func NewMessenger(sender Sender, reader HistoryReader) *Messenger {
	return &Messenger{sender: sender, reader: reader}
}

// SendOption adjusts a typed send.
type SendOption func(*SendRequest)

// InConversation threads the send into an existing conversation.
func InConversation(id string) SendOption {
	return func(r *SendRequest) { r.ConversationID = id }
}

// WithKey sets the idempotency key.
func WithKey(key string) SendOption {
	return func(r *SendRequest) { r.IdempotencyKey = key }
}

// WithMetadata attaches metadata to the message.
func WithMetadata(md map[string]string) SendOption {
	return func(r *SendRequest) { r.Metadata = md }
}

// Send passes a raw request through.
func (m *Messenger) Send(ctx context.Context, req SendRequest) (Outcome, error) {
	return m.sender.Send(ctx, req)
}

func (m *Messenger) send(ctx context.Context, from string, to Recipient, content string, msgType conversation.MessageType, relatedTo string, opts []SendOption) (Outcome, error) {
	req := SendRequest{
		Sender:    from,
		Recipient: to,
		Content:   content,
		Type:      msgType,
		RelatedTo: relatedTo,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return m.sender.Send(ctx, req)
}

// AskQuestion sends a question.
func (m *Messenger) AskQuestion(ctx context.Context, from string, to Recipient, question string, opts ...SendOption) (Outcome, error) {
	return m.send(ctx, from, to, question, conversation.MessageTypeQuestion, "", opts)
}

// ProvideAnswer answers the question with id questionID.
func (m *Messenger) ProvideAnswer(ctx context.Context, from string, to Recipient, answer, questionID string, opts ...SendOption) (Outcome, error) {
	if questionID == "" {
		return Outcome{}, ErrRelatedToRequired
	}
	return m.send(ctx, from, to, answer, conversation.MessageTypeAnswer, questionID, opts)
}

// MakeProposal sends a proposal, usually to several agents.
func (m *Messenger) MakeProposal(ctx context.Context, from string, to Recipient, proposal string, opts ...SendOption) (Outcome, error) {
	return m.send(ctx, from, to, proposal, conversation.MessageTypeProposal, "", opts)
}

// ProvideFeedback responds to the proposal with id proposalID.
func (m *Messenger) ProvideFeedback(ctx context.Context, from string, to Recipient, feedback, proposalID string, opts ...SendOption) (Outcome, error) {
	if proposalID == "" {
		return Outcome{}, ErrRelatedToRequired
	}
	return m.send(ctx, from, to, feedback, conversation.MessageTypeFeedback, proposalID, opts)
}

// SendUpdate sends a status update.
func (m *Messenger) SendUpdate(ctx context.Context, from string, to Recipient, update string, opts ...SendOption) (Outcome, error) {
	return m.send(ctx, from, to, update, conversation.MessageTypeUpdate, "", opts)
}

// History returns the ordered messages of a conversation. Unknown ids yield an empty slice.
func (m *Messenger) History(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	return m.reader.History(ctx, conversationID)
}
