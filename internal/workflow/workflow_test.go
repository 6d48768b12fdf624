package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/executor"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/policy"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/internal/telemetry"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/dyluth/parley/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []telemetry.Record
	err     error
}

func (c *captureRecorder) Record(_ context.Context, rec telemetry.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, rec)
	return nil
}

type testDeps struct {
	acts     *Activities
	store    *conversation.MemoryStore
	recorder *captureRecorder
}

func setupTestActivities(t *testing.T, matrix *policy.Matrix, svc reasoning.Service) *testDeps {
	t.Helper()
	logger := logging.Discard()
	store := conversation.NewMemoryStore()
	raw := bus.New(store, bus.WithLogger(logger))
	messenger := bus.NewMessenger(bus.WithPolicy(raw, matrix, logger), raw)
	coord := collab.NewCoordinator(raw, collab.WithLogger(logger))
	reg, err := agent.NewRegistry(nil, logger)
	require.NoError(t, err)
	if svc == nil {
		svc = reasoning.NewTemplateService()
	}
	recorder := &captureRecorder{}

	return &testDeps{
		acts: &Activities{
			Registry:    reg,
			Messenger:   messenger,
			Coordinator: coord,
			Executor:    executor.New(svc, messenger, coord, logger),
			Reasoning:   svc,
			Recorder:    recorder,
			Logger:      logger,
		},
		store:    store,
		recorder: recorder,
	}
}

func testInput(runID string) Input {
	return Input{RunID: runID, Retry: RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond}}
}

func runLocal(t *testing.T, deps *testDeps, in Input) (*Result, *LocalEngine, error) {
	t.Helper()
	eng := NewLocalEngine(context.Background(), deps.acts, logging.Discard())
	res, err := Run(eng, in)
	return res, eng, err
}

func TestRun_LocalEngine(t *testing.T) {
	deps := setupTestActivities(t, policy.Default(), nil)

	res, eng, err := runLocal(t, deps, testInput("run-1"))
	require.NoError(t, err)
	assert.Equal(t, StageDone, eng.Stage())

	assert.Equal(t, map[string]string{
		"researcher": "Researcher",
		"writer":     "Writer",
		"critic":     "Critic",
		"integrator": "Integrator",
	}, res.Team)

	// Report shape
	assert.True(t, strings.HasPrefix(res.FinalDocument, "REPORT: "+strings.ToUpper(DefaultReportTitle)))
	assert.Contains(t, res.FinalDocument, "Research findings on "+DefaultResearchTopic+" by Researcher")
	assert.Contains(t, res.FinalDocument, "CHALLENGES AND LIMITATIONS")

	// Telemetry: 3 research steps plus 4 writing steps
	assert.Equal(t, 7, res.StageTelemetry.ThinkingStepCount)
	assert.Len(t, deps.recorder.records, 7)
	require.Len(t, res.StageTelemetry.PerStageConversations, 2)
	assert.Equal(t, StageResearch, res.StageTelemetry.PerStageConversations[0].Stage)
	assert.Equal(t, StageWriting, res.StageTelemetry.PerStageConversations[1].Stage)
	assert.Len(t, res.StageTelemetry.PerStageConversations[0].Messages, 2)
	assert.Len(t, res.StageTelemetry.PerStageConversations[1].Messages, 4)

	// Planning
	assert.Equal(t, "Project timeline", res.Planning.Decision.Topic)
	assert.Equal(t, []string{"Integrator", "Critic"}, res.Planning.Decision.Participants)
	assert.Equal(t, collab.ConsensusMedium, res.Planning.Decision.ConsensusLevel)
	assert.Empty(t, res.Planning.Denials)

	// The researcher may not reach the critic, so research falls back to the integrator
	require.Len(t, res.Denials, 1)
	assert.Equal(t, "Researcher", res.Denials[0].Sender)
	assert.Equal(t, []string{"Critic"}, res.Denials[0].Recipients)

	// Review
	assert.Contains(t, res.FinalFeedback, "implementation examples")
	assert.Equal(t, "Writer", res.WriterResponse.Agent)
	assert.NotEmpty(t, res.WriterResponse.PlannedChanges)

	writing, err := deps.store.Messages(context.Background(), res.WritingConversationID)
	require.NoError(t, err)
	last := writing[len(writing)-1]
	assert.Equal(t, conversation.MessageTypeFeedback, last.Type)
	assert.Equal(t, "final_report", last.RelatedTo)
	assert.Equal(t, "Critic", last.Sender)
}

func TestRun_ReplayDoesNotDuplicateMessages(t *testing.T) {
	deps := setupTestActivities(t, policy.Default(), nil)
	ctx := context.Background()

	first, _, err := runLocal(t, deps, testInput("replayed"))
	require.NoError(t, err)
	countMessages := func() int {
		convs, err := deps.store.List(ctx)
		require.NoError(t, err)
		total := 0
		for _, c := range convs {
			msgs, err := deps.store.Messages(ctx, c.ID)
			require.NoError(t, err)
			total += len(msgs)
		}
		return total
	}
	before := countMessages()

	second, _, err := runLocal(t, deps, testInput("replayed"))
	require.NoError(t, err)
	assert.Equal(t, before, countMessages())
	assert.Equal(t, first.ResearchConversationID, second.ResearchConversationID)
	assert.Equal(t, first.WritingConversationID, second.WritingConversationID)
	assert.Equal(t, first.FinalDocument, second.FinalDocument)
}

func TestRun_TelemetryIsBestEffort(t *testing.T) {
	deps := setupTestActivities(t, policy.Default(), nil)
	deps.recorder.err = errors.New("telemetry sink down")

	res, _, err := runLocal(t, deps, testInput("run-telemetry"))
	require.NoError(t, err)
	assert.Equal(t, 7, res.StageTelemetry.ThinkingStepCount)
}

func TestRun_PlanningDenialsAreRecorded(t *testing.T) {
	// Critic may not answer the integrator's proposal in this matrix
	edges := []policy.Edge{
		{From: "Integrator", To: "Researcher", Weight: 1},
		{From: "Integrator", To: "Writer", Weight: 1},
		{From: "Integrator", To: "Critic", Weight: 0},
		{From: "Researcher", To: "Integrator", Weight: 1},
		{From: "Researcher", To: "Writer", Weight: 1},
		{From: "Writer", To: "Researcher", Weight: 1},
		{From: "Writer", To: "Critic", Weight: 1},
		{From: "Writer", To: "Integrator", Weight: 1},
		{From: "Critic", To: "Writer", Weight: 1},
		{From: "Critic", To: "Integrator", Weight: 1},
	}
	matrix, err := policy.New(edges, 0)
	require.NoError(t, err)
	deps := setupTestActivities(t, matrix, nil)

	res, _, err := runLocal(t, deps, testInput("run-denials"))
	require.NoError(t, err)
	require.Len(t, res.Planning.Denials, 1)
	assert.Equal(t, "Integrator", res.Planning.Denials[0].Sender)
	assert.Equal(t, []string{"Critic"}, res.Planning.Denials[0].Recipients)
}

type failingReasoning struct {
	reasoning.Service
	phase reasoning.Phase
	err   error
}

func (f failingReasoning) Generate(ctx context.Context, req reasoning.Request) (reasoning.Response, error) {
	if req.Phase == f.phase {
		return reasoning.Response{}, f.err
	}
	return f.Service.Generate(ctx, req)
}

func TestRun_FailFast(t *testing.T) {
	tests := []struct {
		name      string
		phase     reasoning.Phase
		err       error
		wantStage Stage
		wantKind  FailureKind
	}{
		{
			name:      "transient failure exhausts retries",
			phase:     reasoning.PhaseApproach,
			err:       errors.New("model overloaded"),
			wantStage: StagePlanning,
			wantKind:  FailureTimeout,
		},
		{
			name:      "precondition failure in research",
			phase:     reasoning.PhaseBenefits,
			err:       reasoning.ErrUnknownPhase,
			wantStage: StageResearch,
			wantKind:  FailurePrecondition,
		},
		{
			name:      "failure in review",
			phase:     reasoning.PhaseFinalReview,
			err:       errors.New("timeout"),
			wantStage: StageReview,
			wantKind:  FailureTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := failingReasoning{Service: reasoning.NewTemplateService(), phase: tt.phase, err: tt.err}
			deps := setupTestActivities(t, policy.Default(), svc)

			res, _, err := runLocal(t, deps, testInput("run-fail"))
			require.Error(t, err)
			assert.Nil(t, res)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.wantStage, se.Stage)
			assert.Equal(t, tt.wantKind, se.Kind)
		})
	}
}

func TestRun_RequiresRunID(t *testing.T) {
	deps := setupTestActivities(t, policy.Default(), nil)
	_, _, err := runLocal(t, deps, Input{})

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, FailurePrecondition, se.Kind)
}

func TestIsPrecondition(t *testing.T) {
	assert.False(t, IsPrecondition(nil))
	assert.False(t, IsPrecondition(errors.New("boom")))
	assert.True(t, IsPrecondition(agent.ErrUnknownRole))
	assert.True(t, IsPrecondition(collab.ErrInsufficientParticipants))
	assert.True(t, IsPrecondition(bus.ErrRelatedToRequired))
	assert.True(t, IsPrecondition(precondition(errors.New("bad"))))
}

func TestAsStageError(t *testing.T) {
	_, ok := AsStageError(errors.New("boom"))
	assert.False(t, ok)

	local := stageFailure(StageResearch, ErrTimeoutExceeded)
	se, ok := AsStageError(fmt.Errorf("run: %w", local))
	require.True(t, ok)
	assert.Equal(t, StageResearch, se.Stage)

	remote := toApplicationError(stageFailure(StageWriting, precondition(errors.New("bad input"))))
	se, ok = AsStageError(remote)
	require.True(t, ok)
	assert.Equal(t, StageWriting, se.Stage)
	assert.Equal(t, FailurePrecondition, se.Kind)
	assert.Contains(t, se.Err.Error(), "bad input")
}

func TestActivities_Preconditions(t *testing.T) {
	deps := setupTestActivities(t, policy.Default(), nil)
	ctx := context.Background()

	_, err := deps.acts.CreateAgent(ctx, agent.RoleKind("poet"))
	assert.True(t, IsPrecondition(err))

	_, err = deps.acts.AskQuestion(ctx, MessageInput{Sender: "Integrator"})
	assert.True(t, IsPrecondition(err))

	_, err = deps.acts.ProvideAnswer(ctx, MessageInput{Sender: "Researcher", Recipients: []string{"Integrator"}, Content: "x"})
	assert.True(t, IsPrecondition(err))

	_, err = deps.acts.ResolveDisagreement(ctx, ResolveInput{Issue: "x"})
	assert.True(t, IsPrecondition(err))

	msgs, err := deps.acts.GetHistory(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

type temporalWorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env  *testsuite.TestWorkflowEnvironment
	deps *testDeps
}

func (s *temporalWorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.deps = setupTestActivities(s.T(), policy.Default(), nil)
	Register(s.env, s.deps.acts)
}

func (s *temporalWorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *temporalWorkflowSuite) TestCompletes() {
	s.env.ExecuteWorkflow(CollaborativeAgentWorkflow, testInput("temporal-run"))

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res Result
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Contains(res.FinalDocument, "CHALLENGES AND LIMITATIONS")
	s.Equal(7, res.StageTelemetry.ThinkingStepCount)
	s.Equal("Writer", res.Team["writer"])
	s.NotEmpty(res.ResearchConversationID)
	s.NotEmpty(res.WritingConversationID)

	val, err := s.env.QueryWorkflow(QueryCurrentStage)
	s.NoError(err)
	var stage Stage
	s.NoError(val.Get(&stage))
	s.Equal(StageDone, stage)
}

func (s *temporalWorkflowSuite) TestPreconditionFailsRun() {
	s.env.OnActivity(OpCreateAgent, mock.Anything, mock.Anything).
		Return(agent.Descriptor{}, precondition(agent.ErrUnknownRole))

	s.env.ExecuteWorkflow(CollaborativeAgentWorkflow, testInput("temporal-fail"))

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), string(StageInit))

	se, ok := AsStageError(err)
	s.Require().True(ok)
	s.Equal(StageInit, se.Stage)
	s.Equal(FailurePrecondition, se.Kind)
}

func TestTemporalWorkflowSuite(t *testing.T) {
	suite.Run(t, new(temporalWorkflowSuite))
}
