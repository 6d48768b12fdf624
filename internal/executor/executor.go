// Package executor runs research and writing tasks for a single agent, alone or
// with supporting agents consulted over the message bus.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/pkg/agent"
)

// Output is the product of one executor call.
type Output struct {
	Document       string                     `json:"document"`
	Steps          []reasoning.ThinkingStep   `json:"steps"`
	ConversationID string                     `json:"conversation_id,omitempty"`
	Denials        []bus.CommunicationBlocked `json:"denials,omitempty"`
}

// FeedbackResponse is an agent's structured reply to feedback.
type FeedbackResponse struct {
	Agent               string   `json:"agent"`
	Acknowledgment      string   `json:"acknowledgment"`
	PlannedChanges      []string `json:"planned_changes"`
	ClarifyingQuestions []string `json:"clarifying_questions"`
}

// Executor runs tasks.
type Executor struct {
	reasoning   reasoning.Service
	messenger   *bus.Messenger
	coordinator *collab.Coordinator
	logger      *slog.Logger
}

// New creates an Executor. messenger should enforce the communication policy.
func New(svc reasoning.Service, messenger *bus.Messenger, coordinator *collab.Coordinator, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		reasoning:   svc,
		messenger:   messenger,
		coordinator: coordinator,
		logger:      logger.With("component", "executor"),
	}
}

// Research produces a findings document from the research phases.
func (e *Executor) Research(ctx context.Context, a agent.Descriptor, task string) (Output, error) {
	texts, steps, err := e.runPhases(ctx, a, task, reasoning.ResearchPhases, nil)
	if err != nil {
		return Output{}, err
	}
	doc := fmt.Sprintf("Research findings on %s by %s:\n\n", task, a.Name) + strings.Join(texts, "\n\n")
	e.logger.Info("research complete", "agent", a.Name, "steps", len(steps))
	return Output{Document: doc, Steps: steps}, nil
}

// Write produces a report on task from the writing phases.
func (e *Executor) Write(ctx context.Context, a agent.Descriptor, task, findings string) (Output, error) {
	texts, steps, err := e.runPhases(ctx, a, task, reasoning.WritingPhases, map[string]string{"findings": findings})
	if err != nil {
		return Output{}, err
	}
	e.logger.Info("report written", "agent", a.Name, "steps", len(steps))
	return Output{Document: strings.Join(texts, "\n\n"), Steps: steps}, nil
}

func (e *Executor) runPhases(ctx context.Context, a agent.Descriptor, task string, phases []reasoning.Phase, phaseCtx map[string]string) ([]string, []reasoning.ThinkingStep, error) {
	texts := make([]string, 0, len(phases))
	steps := make([]reasoning.ThinkingStep, 0, len(phases))
	for i, phase := range phases {
		resp, err := e.reasoning.Generate(ctx, reasoning.Request{Agent: a, Task: task, Phase: phase, Context: phaseCtx})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reason about %s: %w", phase, err)
		}
		step := resp.Step
		step.StepNumber = i + 1
		texts = append(texts, resp.Text)
		steps = append(steps, step)
	}
	return texts, steps, nil
}

// RespondToFeedback turns feedback on title into planned changes and questions.
func (e *Executor) RespondToFeedback(_ context.Context, a agent.Descriptor, feedback, title string) FeedbackResponse {
	resp := FeedbackResponse{
		Agent:               a.Name,
		Acknowledgment:      fmt.Sprintf("Thank you for the feedback on %s. I will incorporate it in the next revision.", title),
		PlannedChanges:      []string{},
		ClarifyingQuestions: []string{},
	}
	for _, d := range matchDirectives(feedback) {
		resp.PlannedChanges = append(resp.PlannedChanges, d.change)
		if d.question != "" {
			resp.ClarifyingQuestions = append(resp.ClarifyingQuestions, d.question)
		}
	}
	if len(resp.PlannedChanges) == 0 {
		resp.PlannedChanges = append(resp.PlannedChanges, "Revise the report to address: "+feedback)
		resp.ClarifyingQuestions = append(resp.ClarifyingQuestions, "Are there specific sections you would like prioritised?")
	}
	e.logger.Info("responded to feedback", "agent", a.Name, "planned_changes", len(resp.PlannedChanges))
	return resp
}
