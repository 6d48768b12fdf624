package collab

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/pkg/agent"
)

// Session is what a strategy sees of a collaboration.
type Session struct {
	ConversationID  string
	Agents          []agent.Descriptor
	Topic           string
	InitialProposal string
	Positions       []string
	IdempotencyKey  string
}

// Decision is a strategy's synthesis.
type Decision struct {
	Text  string
	Level ConsensusLevel
}

// Strategy synthesizes a decision for a session.
type Strategy interface {
	Decide(ctx context.Context, s Session) (Decision, error)
}

// AcceptWithModifications agrees to the initial proposal. With two or more
// competing positions it settles on a balanced decision at medium consensus.
type AcceptWithModifications struct{}

func (AcceptWithModifications) Decide(_ context.Context, s Session) (Decision, error) {
	if len(s.Positions) >= 2 {
		return Decision{
			Text:  fmt.Sprintf("Balanced decision on %s: %s", s.Topic, strings.Join(s.Positions, " / ")),
			Level: ConsensusMedium,
		}, nil
	}
	proposal := s.InitialProposal
	if proposal == "" && len(s.Positions) == 1 {
		proposal = s.Positions[0]
	}
	return Decision{
		Text:  fmt.Sprintf("Agreed to proceed with: %s with some modifications", proposal),
		Level: ConsensusHigh,
	}, nil
}

// Negotiated runs one propose/feedback round in the collaboration conversation.
// The first agent proposes to the rest; each reached agent answers with feedback.
// Consensus follows the share of participants that took part in the round.
type Negotiated struct {
	Messenger *bus.Messenger
}

func (n Negotiated) Decide(ctx context.Context, s Session) (Decision, error) {
	proposer := s.Agents[0]
	others := agent.Names(s.Agents[1:])
	proposal := s.InitialProposal
	if proposal == "" && len(s.Positions) > 0 {
		proposal = s.Positions[0]
	}

	out, err := n.Messenger.MakeProposal(ctx, proposer.Name, bus.Multiple(others...), proposal,
		bus.InConversation(s.ConversationID),
		bus.WithKey(s.IdempotencyKey+"/proposal"),
	)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to send proposal: %w", err)
	}

	engaged := 1
	if !out.IsBlocked() {
		for _, name := range out.Receipt.Recipients {
			feedback := "I support this proposal."
			if pos := positionFor(s, name); pos != "" {
				feedback = pos
			}
			fb, err := n.Messenger.ProvideFeedback(ctx, name, bus.Single(proposer.Name), feedback, out.Receipt.MessageID,
				bus.InConversation(s.ConversationID),
				bus.WithKey(fmt.Sprintf("%s/feedback/%s", s.IdempotencyKey, name)),
			)
			if err != nil {
				return Decision{}, fmt.Errorf("failed to send feedback from %s: %w", name, err)
			}
			if !fb.IsBlocked() {
				engaged++
			}
		}
	}

	share := float64(engaged) / float64(len(s.Agents))
	level := levelForShare(share)
	text := fmt.Sprintf("Agreed to proceed with: %s", proposal)
	if engaged < len(s.Agents) {
		text = fmt.Sprintf("Proceeding with: %s (input from %d of %d participants)", proposal, engaged, len(s.Agents))
	}
	return Decision{Text: text, Level: level}, nil
}

// positionFor returns the position listed at the named agent's input index, if any.
func positionFor(s Session, name string) string {
	for i, a := range s.Agents {
		if a.Name == name && i < len(s.Positions) {
			return s.Positions[i]
		}
	}
	return ""
}

func levelForShare(share float64) ConsensusLevel {
	switch {
	case share >= 1.0:
		return ConsensusHigh
	case share >= 0.75:
		return ConsensusMediumHigh
	case share >= 0.5:
		return ConsensusMedium
	default:
		return ConsensusLow
	}
}
