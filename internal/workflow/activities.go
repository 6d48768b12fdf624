package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/executor"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/internal/telemetry"
	"github.com/dyluth/parley/internal/tracing"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/dyluth/parley/pkg/conversation"
)

// Operation names. They match the Activities method names, which is how both
// engines look them up.
const (
	OpCreateAgent           = "CreateAgent"
	OpAskQuestion           = "AskQuestion"
	OpProvideAnswer         = "ProvideAnswer"
	OpMakeProposal          = "MakeProposal"
	OpProvideFeedback       = "ProvideFeedback"
	OpGenerate              = "Generate"
	OpResolveDisagreement   = "ResolveDisagreement"
	OpCollaborativeResearch = "CollaborativeResearch"
	OpCollaborativeWriting  = "CollaborativeWriting"
	OpRecordThinking        = "RecordThinking"
	OpGetHistory            = "GetHistory"
	OpRespondToFeedback     = "RespondToFeedback"
)

// MessageInput is one typed send.
type MessageInput struct {
	Sender         string   `json:"sender"`
	Recipients     []string `json:"recipients"`
	Content        string   `json:"content"`
	RelatedTo      string   `json:"related_to,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	IdempotencyKey string   `json:"idempotency_key"`
}

func (m MessageInput) recipient() bus.Recipient {
	if len(m.Recipients) == 1 {
		return bus.Single(m.Recipients[0])
	}
	return bus.Multiple(m.Recipients...)
}

func (m MessageInput) validate() error {
	if m.Sender == "" {
		return fmt.Errorf("message sender cannot be empty")
	}
	if len(m.Recipients) == 0 {
		return fmt.Errorf("message needs at least one recipient")
	}
	return m.recipient().Validate()
}

// GenerateInput asks one agent to reason about one phase.
type GenerateInput struct {
	Agent   agent.Descriptor  `json:"agent"`
	Task    string            `json:"task"`
	Phase   reasoning.Phase   `json:"phase"`
	Context map[string]string `json:"context,omitempty"`
}

// ResolveInput arbitrates between positions.
type ResolveInput struct {
	Agents         []agent.Descriptor `json:"agents"`
	Issue          string             `json:"issue"`
	Positions      []string           `json:"positions"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// TaskInput runs a collaborative executor.
type TaskInput struct {
	Agent          agent.Descriptor   `json:"agent"`
	Supporting     []agent.Descriptor `json:"supporting"`
	Task           string             `json:"task"`
	Findings       string             `json:"findings,omitempty"` // Writing only
	ConversationID string             `json:"conversation_id,omitempty"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// ThinkingInput records one thinking step.
type ThinkingInput struct {
	Agent string                 `json:"agent"`
	Step  reasoning.ThinkingStep `json:"step"`
}

// FeedbackInput asks an agent to respond to feedback.
type FeedbackInput struct {
	Agent    agent.Descriptor `json:"agent"`
	Feedback string           `json:"feedback"`
	Title    string           `json:"title"`
}

// Activities holds the operation bodies. Every method takes a context and one
// serializable argument, so the struct registers directly as Temporal activities.
type Activities struct {
	Registry    *agent.Registry
	Messenger   *bus.Messenger
	Coordinator *collab.Coordinator
	Executor    *executor.Executor
	Reasoning   reasoning.Service
	Recorder    telemetry.Recorder
	Logger      *slog.Logger
	Now         func() time.Time
}

func (a *Activities) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

func (a *Activities) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// CreateAgent returns the descriptor for kind.
func (a *Activities) CreateAgent(ctx context.Context, kind agent.RoleKind) (d agent.Descriptor, err error) {
	_, span := tracing.StartSpan(ctx, "activity.create_agent", tracing.String("kind", string(kind)))
	defer func() { tracing.End(span, err) }()

	d, err = a.Registry.Create(kind)
	if err != nil {
		return agent.Descriptor{}, precondition(err)
	}
	return d, nil
}

func (a *Activities) send(ctx context.Context, name string, in MessageInput, do func(context.Context, bus.Recipient, []bus.SendOption) (bus.Outcome, error)) (out bus.Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "activity."+name,
		tracing.String("sender", in.Sender),
		tracing.String("idempotency_key", in.IdempotencyKey),
	)
	defer func() { tracing.End(span, err) }()

	if err := in.validate(); err != nil {
		return bus.Outcome{}, precondition(err)
	}
	opts := []bus.SendOption{bus.WithKey(in.IdempotencyKey)}
	if in.ConversationID != "" {
		opts = append(opts, bus.InConversation(in.ConversationID))
	}
	out, err = do(ctx, in.recipient(), opts)
	if IsPrecondition(err) {
		return bus.Outcome{}, precondition(err)
	}
	return out, err
}

// AskQuestion sends a question.
func (a *Activities) AskQuestion(ctx context.Context, in MessageInput) (bus.Outcome, error) {
	return a.send(ctx, "ask_question", in, func(ctx context.Context, to bus.Recipient, opts []bus.SendOption) (bus.Outcome, error) {
		return a.Messenger.AskQuestion(ctx, in.Sender, to, in.Content, opts...)
	})
}

// ProvideAnswer answers the question in RelatedTo.
func (a *Activities) ProvideAnswer(ctx context.Context, in MessageInput) (bus.Outcome, error) {
	return a.send(ctx, "provide_answer", in, func(ctx context.Context, to bus.Recipient, opts []bus.SendOption) (bus.Outcome, error) {
		return a.Messenger.ProvideAnswer(ctx, in.Sender, to, in.Content, in.RelatedTo, opts...)
	})
}

// MakeProposal sends a proposal.
func (a *Activities) MakeProposal(ctx context.Context, in MessageInput) (bus.Outcome, error) {
	return a.send(ctx, "make_proposal", in, func(ctx context.Context, to bus.Recipient, opts []bus.SendOption) (bus.Outcome, error) {
		return a.Messenger.MakeProposal(ctx, in.Sender, to, in.Content, opts...)
	})
}

// ProvideFeedback responds to the message in RelatedTo.
func (a *Activities) ProvideFeedback(ctx context.Context, in MessageInput) (bus.Outcome, error) {
	return a.send(ctx, "provide_feedback", in, func(ctx context.Context, to bus.Recipient, opts []bus.SendOption) (bus.Outcome, error) {
		return a.Messenger.ProvideFeedback(ctx, in.Sender, to, in.Content, in.RelatedTo, opts...)
	})
}

// Generate produces an agent's text for one phase.
func (a *Activities) Generate(ctx context.Context, in GenerateInput) (resp reasoning.Response, err error) {
	ctx, span := tracing.StartSpan(ctx, "activity.generate",
		tracing.String("agent", in.Agent.Name),
		tracing.String("phase", string(in.Phase)),
	)
	defer func() { tracing.End(span, err) }()

	req := reasoning.Request{Agent: in.Agent, Task: in.Task, Phase: in.Phase, Context: in.Context}
	if err := req.Validate(); err != nil {
		return reasoning.Response{}, precondition(err)
	}
	resp, err = a.Reasoning.Generate(ctx, req)
	if IsPrecondition(err) {
		return reasoning.Response{}, precondition(err)
	}
	return resp, err
}

// ResolveDisagreement arbitrates between the given positions.
func (a *Activities) ResolveDisagreement(ctx context.Context, in ResolveInput) (rec collab.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "activity.resolve_disagreement", tracing.String("issue", in.Issue))
	defer func() { tracing.End(span, err) }()

	rec, err = a.Coordinator.ResolveDisagreement(ctx, in.Agents, in.Issue, in.Positions, in.IdempotencyKey)
	if IsPrecondition(err) {
		return collab.Record{}, precondition(err)
	}
	return rec, err
}

// CollaborativeResearch runs the research executor with supporting agents.
func (a *Activities) CollaborativeResearch(ctx context.Context, in TaskInput) (out executor.Output, err error) {
	ctx, span := tracing.StartSpan(ctx, "activity.collaborative_research", tracing.String("agent", in.Agent.Name))
	defer func() { tracing.End(span, err) }()

	out, err = a.Executor.CollaborativeResearch(ctx, in.Agent, in.Supporting, in.Task, in.ConversationID, in.IdempotencyKey)
	if IsPrecondition(err) {
		return executor.Output{}, precondition(err)
	}
	return out, err
}

// CollaborativeWriting runs the writing executor with supporting agents.
func (a *Activities) CollaborativeWriting(ctx context.Context, in TaskInput) (out executor.Output, err error) {
	ctx, span := tracing.StartSpan(ctx, "activity.collaborative_writing", tracing.String("agent", in.Agent.Name))
	defer func() { tracing.End(span, err) }()

	out, err = a.Executor.CollaborativeWriting(ctx, in.Agent, in.Supporting, in.Task, in.Findings, in.ConversationID, in.IdempotencyKey)
	if IsPrecondition(err) {
		return executor.Output{}, precondition(err)
	}
	return out, err
}

// RecordThinking hands one step to the telemetry recorder.
func (a *Activities) RecordThinking(ctx context.Context, in ThinkingInput) (_ telemetry.Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "activity.record_thinking",
		tracing.String("agent", in.Agent),
		tracing.Int("step", in.Step.StepNumber),
	)
	defer func() { tracing.End(span, err) }()

	rec := telemetry.FromStep(in.Agent, in.Step, a.now())
	if a.Recorder == nil {
		return rec, nil
	}
	if err := a.Recorder.Record(ctx, rec); err != nil {
		return telemetry.Record{}, fmt.Errorf("failed to record thinking step: %w", err)
	}
	return rec, nil
}

// GetHistory returns a conversation's messages. Unknown ids yield an empty slice.
func (a *Activities) GetHistory(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	msgs, err := a.Messenger.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	return msgs, nil
}

// RespondToFeedback returns the agent's structured response.
func (a *Activities) RespondToFeedback(ctx context.Context, in FeedbackInput) (executor.FeedbackResponse, error) {
	return a.Executor.RespondToFeedback(ctx, in.Agent, in.Feedback, in.Title), nil
}
