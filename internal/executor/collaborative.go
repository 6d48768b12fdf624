package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/pkg/agent"
)

// CollaborativeResearch researches task after consulting the first supporting
// agent the policy lets a reach. Blocked attempts are recorded in Output.Denials.
func (e *Executor) CollaborativeResearch(ctx context.Context, a agent.Descriptor, supporting []agent.Descriptor, task, conversationID, key string) (Output, error) {
	convID, err := e.ensureConversation(ctx, a, supporting, task, "Research plan for "+task, conversationID, key)
	if err != nil {
		return Output{}, err
	}

	question := fmt.Sprintf("What should I prioritise when researching %s?", task)
	steer, err := e.consult(ctx, a, supporting, task, question, convID, key)
	if err != nil {
		return Output{}, err
	}

	out, err := e.Research(ctx, a, task)
	if err != nil {
		return Output{}, err
	}
	out.ConversationID = convID
	out.Denials = steer.denials
	out.Document = withSteering(out.Document, steer)
	return out, nil
}

// CollaborativeWriting writes a report on task with input from supporting agents:
// a consultation, an outline proposal to every supporter, and a review of the
// outline by the designated reviewer. Recognised review directives reshape the report.
func (e *Executor) CollaborativeWriting(ctx context.Context, a agent.Descriptor, supporting []agent.Descriptor, task, findings, conversationID, key string) (Output, error) {
	convID, err := e.ensureConversation(ctx, a, supporting, task, "Report outline for "+task, conversationID, key)
	if err != nil {
		return Output{}, err
	}

	question := fmt.Sprintf("What should the report on %s emphasise?", task)
	steer, err := e.consult(ctx, a, supporting, task, question, convID, key)
	if err != nil {
		return Output{}, err
	}
	denials := steer.denials

	out, err := e.Write(ctx, a, task, findings)
	if err != nil {
		return Output{}, err
	}

	outline := fmt.Sprintf("Proposed outline for %s: EXECUTIVE SUMMARY, FINDINGS, IMPLEMENTATION RECOMMENDATIONS, CONCLUSION", task)
	proposal, err := e.messenger.MakeProposal(ctx, a.Name, bus.Multiple(agent.Names(supporting)...), outline,
		bus.InConversation(convID), bus.WithKey(subKey(key, "outline")))
	if err != nil {
		return Output{}, fmt.Errorf("failed to propose outline: %w", err)
	}
	denials = appendDenial(denials, a.Name, proposal)

	doc := withSteering(out.Document, steer)
	if reviewer, ok := reviewerFor(supporting); ok && reached(proposal, reviewer.Name) {
		feedback, delivered, err := e.review(ctx, reviewer, a, task, outline, proposal.Receipt.MessageID, convID, key)
		if err != nil {
			return Output{}, err
		}
		if delivered.IsBlocked() {
			denials = appendDenial(denials, reviewer.Name, delivered)
		} else {
			doc = applyFeedback(doc, feedback)
		}
	}

	out.Document = doc
	out.ConversationID = convID
	out.Denials = denials
	return out, nil
}

func (e *Executor) ensureConversation(ctx context.Context, a agent.Descriptor, supporting []agent.Descriptor, task, proposal, conversationID, key string) (string, error) {
	if conversationID != "" {
		return conversationID, nil
	}
	agents := append([]agent.Descriptor{a}, supporting...)
	rec, err := e.coordinator.CollaborateOnDecision(ctx, collab.Request{
		Agents:          agents,
		Topic:           task,
		InitialProposal: proposal,
		IdempotencyKey:  subKey(key, "collaboration"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to open collaboration: %w", err)
	}
	return rec.ID, nil
}

type steering struct {
	from    string
	answer  string
	denials []bus.CommunicationBlocked
}

// consult asks supporters in order until one question and its answer both get through.
func (e *Executor) consult(ctx context.Context, a agent.Descriptor, supporting []agent.Descriptor, task, question, convID, key string) (steering, error) {
	var s steering
	for _, sup := range supporting {
		asked, err := e.messenger.AskQuestion(ctx, a.Name, bus.Single(sup.Name), question,
			bus.InConversation(convID), bus.WithKey(subKey(key, "question/"+sup.Name)))
		if err != nil {
			return s, fmt.Errorf("failed to ask %s: %w", sup.Name, err)
		}
		if asked.IsBlocked() {
			s.denials = append(s.denials, *asked.Blocked)
			e.logger.Warn("supporting agent unreachable, trying next", "agent", a.Name, "supporter", sup.Name)
			continue
		}

		resp, err := e.reasoning.Generate(ctx, reasoning.Request{
			Agent:   sup,
			Task:    task,
			Phase:   reasoning.PhaseAdvise,
			Context: map[string]string{"question": question},
		})
		if err != nil {
			return s, fmt.Errorf("failed to get advice from %s: %w", sup.Name, err)
		}

		answered, err := e.messenger.ProvideAnswer(ctx, sup.Name, bus.Single(a.Name), resp.Text, asked.Receipt.MessageID,
			bus.InConversation(convID), bus.WithKey(subKey(key, "answer/"+sup.Name)))
		if err != nil {
			return s, fmt.Errorf("failed to answer from %s: %w", sup.Name, err)
		}
		if answered.IsBlocked() {
			s.denials = append(s.denials, *answered.Blocked)
			e.logger.Warn("answer blocked, trying next supporter", "agent", a.Name, "supporter", sup.Name)
			continue
		}

		s.from = sup.Name
		s.answer = resp.Text
		return s, nil
	}

	e.logger.Warn("no supporting agent reachable, continuing alone", "agent", a.Name, "denials", len(s.denials))
	return s, nil
}

func (e *Executor) review(ctx context.Context, reviewer, author agent.Descriptor, task, outline, proposalID, convID, key string) (string, bus.Outcome, error) {
	resp, err := e.reasoning.Generate(ctx, reasoning.Request{
		Agent:   reviewer,
		Task:    task,
		Phase:   reasoning.PhaseDraftReview,
		Context: map[string]string{"outline": outline},
	})
	if err != nil {
		return "", bus.Outcome{}, fmt.Errorf("failed to review outline: %w", err)
	}
	out, err := e.messenger.ProvideFeedback(ctx, reviewer.Name, bus.Single(author.Name), resp.Text, proposalID,
		bus.InConversation(convID), bus.WithKey(subKey(key, "review")))
	if err != nil {
		return "", bus.Outcome{}, fmt.Errorf("failed to send review: %w", err)
	}
	return resp.Text, out, nil
}

// reviewerFor picks the first critic among supporters, else the last supporter.
func reviewerFor(supporting []agent.Descriptor) (agent.Descriptor, bool) {
	if len(supporting) == 0 {
		return agent.Descriptor{}, false
	}
	for _, s := range supporting {
		if s.Kind == agent.RoleCritic {
			return s, true
		}
	}
	return supporting[len(supporting)-1], true
}

func reached(out bus.Outcome, name string) bool {
	if out.IsBlocked() {
		return false
	}
	for _, r := range out.Receipt.Recipients {
		if r == name {
			return true
		}
	}
	return false
}

// appendDenial records a fully or partially blocked send.
func appendDenial(denials []bus.CommunicationBlocked, sender string, out bus.Outcome) []bus.CommunicationBlocked {
	switch {
	case out.IsBlocked():
		return append(denials, *out.Blocked)
	case out.Receipt != nil && len(out.Receipt.Blocked) > 0:
		return append(denials, bus.CommunicationBlocked{Sender: sender, Recipients: out.Receipt.Blocked})
	}
	return denials
}

func withSteering(doc string, s steering) string {
	if s.from == "" {
		return doc
	}
	return doc + fmt.Sprintf("\n\nSteering input from %s: %s", s.from, s.answer)
}

// subKey scopes an idempotency key. An empty key stays empty so the send is not deduplicated.
func subKey(key, suffix string) string {
	if key == "" {
		return ""
	}
	return key + "/" + strings.TrimPrefix(suffix, "/")
}
