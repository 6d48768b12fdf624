package collab

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dyluth/parley/internal/tracing"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/dyluth/parley/pkg/conversation"
)

// Opener opens a conversation with a topic, idempotent on key.
type Opener interface {
	OpenConversation(ctx context.Context, topic, key string) (*conversation.Conversation, error)
}

// Request describes one collaboration.
type Request struct {
	Agents          []agent.Descriptor
	Topic           string
	InitialProposal string
	Positions       []string
	IdempotencyKey  string
}

// Coordinator runs collaborations.
type Coordinator struct {
	opener   Opener
	strategy Strategy
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithStrategy replaces the default AcceptWithModifications strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Coordinator) { c.strategy = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator that opens conversations through opener.
func NewCoordinator(opener Opener, opts ...Option) *Coordinator {
	c := &Coordinator{
		opener:   opener,
		strategy: AcceptWithModifications{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "collab")
	return c
}

// CollaborateOnDecision opens a conversation for the topic and asks the strategy for a decision.
func (c *Coordinator) CollaborateOnDecision(ctx context.Context, req Request) (rec Record, err error) {
	ctx, span := tracing.StartSpan(ctx, "collab.decide",
		tracing.String("topic", req.Topic),
		tracing.Int("participants", len(req.Agents)),
	)
	defer func() { tracing.End(span, err) }()

	if len(req.Agents) < 2 {
		return Record{}, fmt.Errorf("%w: got %d", ErrInsufficientParticipants, len(req.Agents))
	}

	conv, err := c.opener.OpenConversation(ctx, "Collaboration on: "+req.Topic, req.IdempotencyKey)
	if err != nil {
		return Record{}, fmt.Errorf("failed to open collaboration conversation: %w", err)
	}

	participants := agent.Names(req.Agents)
	c.logger.Info("collaboration started",
		"conversation_id", conv.ID,
		"topic", req.Topic,
		"participants", participants,
		"initial_proposal", req.InitialProposal,
	)

	decision, err := c.strategy.Decide(ctx, Session{
		ConversationID:  conv.ID,
		Agents:          req.Agents,
		Topic:           req.Topic,
		InitialProposal: req.InitialProposal,
		Positions:       append([]string(nil), req.Positions...),
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to reach decision: %w", err)
	}

	rec = Record{
		ID:             conv.ID,
		Topic:          req.Topic,
		Participants:   participants,
		FinalDecision:  decision.Text,
		ConsensusLevel: decision.Level,
		Timestamp:      c.now().UTC(),
	}
	c.logger.Info("collaboration complete",
		"conversation_id", rec.ID,
		"decision", rec.FinalDecision,
		"consensus_level", string(rec.ConsensusLevel),
	)
	return rec, nil
}

// ResolveDisagreement arbitrates between competing positions on an issue.
func (c *Coordinator) ResolveDisagreement(ctx context.Context, agents []agent.Descriptor, issue string, positions []string, key string) (Record, error) {
	return c.CollaborateOnDecision(ctx, Request{
		Agents:         agents,
		Topic:          issue,
		Positions:      positions,
		IdempotencyKey: key,
	})
}
