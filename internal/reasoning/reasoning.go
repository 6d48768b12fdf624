// Package reasoning produces agent output and the reasoning steps behind it.
// Real language generation is out of scope; TemplateService returns fixed,
// role-specific text so runs are deterministic.
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyluth/parley/pkg/agent"
)

// ErrUnknownPhase is returned for phases a service does not implement.
var ErrUnknownPhase = errors.New("unknown reasoning phase")

// Phase names one reasoning step of a task.
type Phase string

const (
	// Research document phases, in order
	PhaseFoundations Phase = "foundations"
	PhaseBenefits    Phase = "benefits"
	PhaseUseCases    Phase = "use-cases"

	// Writing document phases, in order
	PhaseStructure       Phase = "structure"
	PhaseAnalysis        Phase = "analysis"
	PhaseRecommendations Phase = "recommendations"
	PhaseConclusion      Phase = "conclusion"

	// Conversational phases
	PhaseApproach    Phase = "approach"     // Answer "how would you approach X?"
	PhaseAdvise      Phase = "advise"       // Steering answer to a primary agent's question
	PhasePlanReview  Phase = "plan-review"  // Feedback on a project plan
	PhaseDraftReview Phase = "draft-review" // Feedback on a draft outline
	PhaseFinalReview Phase = "final-review" // Feedback on the finished document
)

// ResearchPhases and WritingPhases list the document phases in order.
var (
	ResearchPhases = []Phase{PhaseFoundations, PhaseBenefits, PhaseUseCases}
	WritingPhases  = []Phase{PhaseStructure, PhaseAnalysis, PhaseRecommendations, PhaseConclusion}
)

// ThinkingStep is one recorded unit of reasoning. It carries no control-flow meaning.
type ThinkingStep struct {
	Content    string   `json:"content"`
	StepNumber int      `json:"step_number"` // 1-based within one executor call
	Reasoning  string   `json:"reasoning"`
	Evidence   []string `json:"evidence"`
	Conclusion string   `json:"conclusion,omitempty"`
}

// Request asks an agent to reason about one phase of a task.
type Request struct {
	Agent   agent.Descriptor
	Task    string
	Phase   Phase
	Context map[string]string // Phase inputs, e.g. "findings" or "question"
}

// Response is the phase output and the reasoning step that produced it.
type Response struct {
	Text string
	Step ThinkingStep
}

// Service generates agent output.
type Service interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Validate checks the request carries an agent and a phase.
func (r Request) Validate() error {
	if r.Agent.Name == "" {
		return fmt.Errorf("reasoning request needs an agent")
	}
	if r.Phase == "" {
		return fmt.Errorf("reasoning request needs a phase")
	}
	return nil
}
