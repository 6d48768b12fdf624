// Package workflow drives a team through planning, research, writing and review.
// Run holds the state machine; it reaches agents, the bus and the executors only
// through an Engine, so the same body runs in-process (LocalEngine) or as a
// Temporal workflow (TemporalEngine).
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/executor"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/dyluth/parley/pkg/conversation"
	"go.temporal.io/sdk/temporal"
)

// ErrTimeoutExceeded is returned when an operation times out or runs out of retries.
var ErrTimeoutExceeded = errors.New("timeout exceeded")

// Stage is a workflow stage. Stages run strictly in order.
type Stage string

const (
	StageInit     Stage = "init"
	StagePlanning Stage = "planning"
	StageResearch Stage = "research"
	StageWriting  Stage = "writing"
	StageReview   Stage = "review"
	StageDone     Stage = "done"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageInit, StagePlanning, StageResearch, StageWriting, StageReview, StageDone}

// FailureKind classifies a stage failure.
type FailureKind string

const (
	FailurePrecondition FailureKind = "precondition_violation"
	FailureTimeout      FailureKind = "timeout_exceeded"
)

// preconditionType is the application error type for failures that retrying cannot fix.
const preconditionType = "PreconditionViolation"

// stageErrorType is the application error type a failed Temporal run returns.
// Its details are the stage and the failure kind.
const stageErrorType = "StageError"

// StageError is the workflow's single failure value.
type StageError struct {
	Stage Stage
	Kind  FailureKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// toApplicationError carries a StageError across the Temporal boundary.
func toApplicationError(err error) error {
	var se *StageError
	if !errors.As(err, &se) {
		return err
	}
	return temporal.NewNonRetryableApplicationError(se.Error(), stageErrorType, se.Err, se.Stage, se.Kind)
}

// AsStageError extracts the stage failure from err, whether it came from an
// in-process run or from a Temporal workflow result.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se, true
	}

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != stageErrorType {
		return nil, false
	}
	var stage Stage
	var kind FailureKind
	if err := appErr.Details(&stage, &kind); err != nil {
		return nil, false
	}
	cause := errors.Unwrap(appErr)
	if cause == nil {
		cause = appErr
	}
	return &StageError{Stage: stage, Kind: kind, Err: cause}, true
}

// precondition marks err as non-retryable.
func precondition(err error) error {
	if err == nil {
		return nil
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), preconditionType, err)
}

// IsPrecondition reports whether err is a precondition violation, either as a
// known sentinel or as a non-retryable application error (which is how it
// arrives after crossing a Temporal activity boundary).
func IsPrecondition(err error) bool {
	if err == nil {
		return false
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == preconditionType {
		return true
	}
	for _, sentinel := range []error{
		agent.ErrUnknownRole,
		collab.ErrInsufficientParticipants,
		bus.ErrRelatedToRequired,
		reasoning.ErrUnknownPhase,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func classify(err error) FailureKind {
	if IsPrecondition(err) {
		return FailurePrecondition
	}
	// Timeouts and exhausted retries of transient failures look the same to callers
	return FailureTimeout
}

func stageFailure(stage Stage, err error) error {
	return &StageError{Stage: stage, Kind: classify(err), Err: err}
}

// RetryPolicy bounds retries of one operation.
type RetryPolicy struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
}

// CallOptions apply to one operation started through an Engine.
type CallOptions struct {
	Timeout time.Duration // Per attempt; zero means no limit
	Retry   RetryPolicy
}

// Timeouts are the per-attempt limits for each kind of operation.
type Timeouts struct {
	AgentCall    time.Duration `json:"agent_call"`
	ProposalCall time.Duration `json:"proposal_call"`
	ExecutorCall time.Duration `json:"executor_call"`
}

// Default limits.
const (
	DefaultAgentCallTimeout    = 10 * time.Second
	DefaultProposalCallTimeout = 15 * time.Second
	DefaultExecutorCallTimeout = 5 * time.Minute
	DefaultMaxAttempts         = 3
	DefaultInitialInterval     = time.Second

	DefaultResearchTopic = "Integration of Temporal with AI systems"
	DefaultReportTitle   = "Benefits of Temporal for AI Workflows"
)

// Input starts a run.
type Input struct {
	RunID         string      `json:"run_id"` // Scopes idempotency keys; replays with the same id never duplicate messages
	ResearchTopic string      `json:"research_topic"`
	ReportTitle   string      `json:"report_title"`
	Timeouts      Timeouts    `json:"timeouts"`
	Retry         RetryPolicy `json:"retry"`
}

// withDefaults fills unset fields. RunID is left to the caller.
func (in Input) withDefaults() Input {
	if in.ResearchTopic == "" {
		in.ResearchTopic = DefaultResearchTopic
	}
	if in.ReportTitle == "" {
		in.ReportTitle = DefaultReportTitle
	}
	if in.Timeouts.AgentCall == 0 {
		in.Timeouts.AgentCall = DefaultAgentCallTimeout
	}
	if in.Timeouts.ProposalCall == 0 {
		in.Timeouts.ProposalCall = DefaultProposalCallTimeout
	}
	if in.Timeouts.ExecutorCall == 0 {
		in.Timeouts.ExecutorCall = DefaultExecutorCallTimeout
	}
	if in.Retry.MaxAttempts == 0 {
		in.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if in.Retry.InitialInterval == 0 {
		in.Retry.InitialInterval = DefaultInitialInterval
	}
	return in
}

// StageConversation is the history of one stage's conversation.
type StageConversation struct {
	Stage    Stage                  `json:"stage"`
	Messages []conversation.Message `json:"messages"`
}

// StageTelemetry summarises what the run recorded.
type StageTelemetry struct {
	ThinkingStepCount     int                 `json:"thinking_step_count"`
	PerStageConversations []StageConversation `json:"per_stage_conversations"`
}

// Planning is the outcome of the planning stage.
type Planning struct {
	Decision collab.Record              `json:"decision"`
	Denials  []bus.CommunicationBlocked `json:"denials,omitempty"`
}

// Result is returned by a completed run.
type Result struct {
	FinalDocument          string                     `json:"final_document"`
	StageTelemetry         StageTelemetry             `json:"stage_telemetry"`
	Team                   map[string]string          `json:"team"`
	ResearchConversationID string                     `json:"research_conversation_id"`
	WritingConversationID  string                     `json:"writing_conversation_id"`
	FinalFeedback          string                     `json:"final_feedback"`
	WriterResponse         executor.FeedbackResponse  `json:"writer_response"`
	Planning               Planning                   `json:"planning"`
	Denials                []bus.CommunicationBlocked `json:"denials,omitempty"` // Every denial in the run, in order
}
