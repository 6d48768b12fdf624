package workflow

import (
	"fmt"

	"github.com/dyluth/parley/internal/bus"
	"github.com/dyluth/parley/internal/collab"
	"github.com/dyluth/parley/internal/executor"
	"github.com/dyluth/parley/internal/reasoning"
	"github.com/dyluth/parley/internal/telemetry"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/dyluth/parley/pkg/conversation"
)

const (
	projectPlan = "Based on our discussions, I propose the following plan: " +
		"1) Collaborative research led by the Researcher with Critic input, " +
		"2) Draft report creation by Writer, 3) Critical review by Critic, " +
		"4) Final integration and revisions led by me. " +
		"Timeline: 2 days for research, 2 days for writing, 1 day for review, 1 day for integration."

	timelineIssue = "Project timeline"

	// finalReportRef stands in for the report itself as the subject of review feedback
	finalReportRef = "final_report"
)

var timelinePositions = []string{
	"2 days for research is sufficient given the scope",
	"3 days for research is needed for thorough investigation",
}

// runner holds per-run state shared by the stage methods.
type runner struct {
	eng     Engine
	in      Input
	team    agent.Team
	result  *Result
	denials []bus.CommunicationBlocked
}

// Run executes every stage in order and returns the result. The first failing
// operation aborts the run with a *StageError.
func Run(eng Engine, in Input) (*Result, error) {
	in = in.withDefaults()
	if in.RunID == "" {
		return nil, &StageError{Stage: StageInit, Kind: FailurePrecondition, Err: fmt.Errorf("run id cannot be empty")}
	}

	r := &runner{eng: eng, in: in, result: &Result{}}
	stages := []struct {
		stage Stage
		run   func() error
	}{
		{StageInit, r.initTeam},
		{StagePlanning, r.plan},
		{StageResearch, r.research},
		{StageWriting, r.write},
		{StageReview, r.review},
	}
	for _, s := range stages {
		eng.Enter(s.stage)
		if err := s.run(); err != nil {
			if se, ok := errorsAsStage(err); ok {
				return nil, se
			}
			return nil, stageFailure(s.stage, err)
		}
	}
	eng.Enter(StageDone)

	r.result.Team = r.team.Roster()
	r.result.Denials = r.denials
	eng.Logger().Info("workflow complete",
		"run_id", in.RunID,
		"thinking_steps", r.result.StageTelemetry.ThinkingStepCount,
		"conversations", len(r.result.StageTelemetry.PerStageConversations),
		"denials", len(r.denials),
	)
	return r.result, nil
}

func (r *runner) key(stage Stage, step string) string {
	return fmt.Sprintf("%s/%s/%s", r.in.RunID, stage, step)
}

func (r *runner) agentCall() CallOptions {
	return CallOptions{Timeout: r.in.Timeouts.AgentCall, Retry: r.in.Retry}
}

func (r *runner) proposalCall() CallOptions {
	return CallOptions{Timeout: r.in.Timeouts.ProposalCall, Retry: r.in.Retry}
}

func (r *runner) executorCall() CallOptions {
	return CallOptions{Timeout: r.in.Timeouts.ExecutorCall, Retry: r.in.Retry}
}

func (r *runner) initTeam() error {
	futures := make([]Future, len(agent.AllRoles))
	for i, kind := range agent.AllRoles {
		futures[i] = r.eng.Start(OpCreateAgent, r.agentCall(), kind)
	}
	r.team = agent.Team{}
	for i, f := range futures {
		var d agent.Descriptor
		if err := f.Get(&d); err != nil {
			return err
		}
		r.team[agent.AllRoles[i]] = d
	}
	return nil
}

func (r *runner) plan() error {
	integrator := r.team[agent.RoleIntegrator]
	researcher := r.team[agent.RoleResearcher]
	writer := r.team[agent.RoleWriter]
	critic := r.team[agent.RoleCritic]

	// Each consultation writes only its own slot
	consultDenials := make([][]bus.CommunicationBlocked, 2)
	err := r.eng.Parallel(
		func(e Engine) error {
			d, err := r.consult(e, integrator, researcher,
				fmt.Sprintf("How would you approach researching %s?", r.in.ResearchTopic), r.in.ResearchTopic, "researcher")
			consultDenials[0] = d
			return err
		},
		func(e Engine) error {
			d, err := r.consult(e, integrator, writer,
				fmt.Sprintf("How would you structure a report on %s?", r.in.ReportTitle), r.in.ReportTitle, "writer")
			consultDenials[1] = d
			return err
		},
	)
	if err != nil {
		return err
	}
	var denials []bus.CommunicationBlocked
	for _, d := range consultDenials {
		denials = append(denials, d...)
	}

	var proposal bus.Outcome
	err = r.eng.Start(OpMakeProposal, r.proposalCall(), MessageInput{
		Sender:         integrator.Name,
		Recipients:     agent.Names([]agent.Descriptor{researcher, writer, critic}),
		Content:        projectPlan,
		IdempotencyKey: r.key(StagePlanning, "proposal"),
	}).Get(&proposal)
	if err != nil {
		return err
	}
	denials = appendOutcomeDenial(denials, integrator.Name, proposal)

	if reachedBy(proposal, critic.Name) {
		var review reasoning.Response
		if err := r.eng.Start(OpGenerate, r.agentCall(), GenerateInput{
			Agent: critic,
			Task:  projectPlan,
			Phase: reasoning.PhasePlanReview,
		}).Get(&review); err != nil {
			return err
		}
		var feedback bus.Outcome
		if err := r.eng.Start(OpProvideFeedback, r.agentCall(), MessageInput{
			Sender:         critic.Name,
			Recipients:     []string{integrator.Name},
			Content:        review.Text,
			RelatedTo:      proposal.Receipt.MessageID,
			ConversationID: proposal.Receipt.ConversationID,
			IdempotencyKey: r.key(StagePlanning, "feedback"),
		}).Get(&feedback); err != nil {
			return err
		}
		denials = appendOutcomeDenial(denials, critic.Name, feedback)
	}

	var decision collab.Record
	if err := r.eng.Start(OpResolveDisagreement, r.proposalCall(), ResolveInput{
		Agents:         []agent.Descriptor{integrator, critic},
		Issue:          timelineIssue,
		Positions:      timelinePositions,
		IdempotencyKey: r.key(StagePlanning, "resolve"),
	}).Get(&decision); err != nil {
		return err
	}

	r.result.Planning = Planning{Decision: decision, Denials: denials}
	r.denials = append(r.denials, denials...)
	return nil
}

// consult runs one question and answer pair. A blocked send ends the pair early.
func (r *runner) consult(e Engine, from, to agent.Descriptor, question, task, slug string) ([]bus.CommunicationBlocked, error) {
	var asked bus.Outcome
	if err := e.Start(OpAskQuestion, r.agentCall(), MessageInput{
		Sender:         from.Name,
		Recipients:     []string{to.Name},
		Content:        question,
		IdempotencyKey: r.key(StagePlanning, "question/"+slug),
	}).Get(&asked); err != nil {
		return nil, err
	}
	if asked.IsBlocked() {
		e.Logger().Warn("planning question blocked", "from", from.Name, "to", to.Name)
		return []bus.CommunicationBlocked{*asked.Blocked}, nil
	}

	var answer reasoning.Response
	if err := e.Start(OpGenerate, r.agentCall(), GenerateInput{
		Agent:   to,
		Task:    task,
		Phase:   reasoning.PhaseApproach,
		Context: map[string]string{"question": question},
	}).Get(&answer); err != nil {
		return nil, err
	}

	var answered bus.Outcome
	if err := e.Start(OpProvideAnswer, r.agentCall(), MessageInput{
		Sender:         to.Name,
		Recipients:     []string{from.Name},
		Content:        answer.Text,
		RelatedTo:      asked.Receipt.MessageID,
		ConversationID: asked.Receipt.ConversationID,
		IdempotencyKey: r.key(StagePlanning, "answer/"+slug),
	}).Get(&answered); err != nil {
		return nil, err
	}
	if answered.IsBlocked() {
		return []bus.CommunicationBlocked{*answered.Blocked}, nil
	}
	return nil, nil
}

func (r *runner) research() error {
	researcher := r.team[agent.RoleResearcher]
	var out executor.Output
	if err := r.eng.Start(OpCollaborativeResearch, r.executorCall(), TaskInput{
		Agent:          researcher,
		Supporting:     []agent.Descriptor{r.team[agent.RoleCritic], r.team[agent.RoleIntegrator]},
		Task:           r.in.ResearchTopic,
		IdempotencyKey: r.key(StageResearch, "collaborate"),
	}).Get(&out); err != nil {
		return err
	}

	r.result.ResearchConversationID = out.ConversationID
	r.result.FinalDocument = out.Document // Replaced once the report is written
	r.denials = append(r.denials, out.Denials...)
	return r.recordStage(StageResearch, researcher.Name, out)
}

func (r *runner) write() error {
	writer := r.team[agent.RoleWriter]
	var out executor.Output
	if err := r.eng.Start(OpCollaborativeWriting, r.executorCall(), TaskInput{
		Agent:          writer,
		Supporting:     []agent.Descriptor{r.team[agent.RoleResearcher], r.team[agent.RoleCritic], r.team[agent.RoleIntegrator]},
		Task:           r.in.ReportTitle,
		Findings:       r.result.FinalDocument,
		IdempotencyKey: r.key(StageWriting, "collaborate"),
	}).Get(&out); err != nil {
		return err
	}

	r.result.WritingConversationID = out.ConversationID
	r.result.FinalDocument = out.Document
	r.denials = append(r.denials, out.Denials...)
	return r.recordStage(StageWriting, writer.Name, out)
}

// recordStage emits the executor's thinking steps (best-effort) and captures the
// stage conversation.
func (r *runner) recordStage(stage Stage, agentName string, out executor.Output) error {
	futures := make([]Future, len(out.Steps))
	for i, step := range out.Steps {
		futures[i] = r.eng.Start(OpRecordThinking, r.agentCall(), ThinkingInput{Agent: agentName, Step: step})
	}
	for i, f := range futures {
		var rec telemetry.Record
		if err := f.Get(&rec); err != nil {
			r.eng.Logger().Warn("thinking step not recorded", "agent", agentName, "step", out.Steps[i].StepNumber, "error", err)
		}
	}
	r.result.StageTelemetry.ThinkingStepCount += len(out.Steps)

	var messages []conversation.Message
	if err := r.eng.Start(OpGetHistory, r.agentCall(), out.ConversationID).Get(&messages); err != nil {
		return err
	}
	if messages == nil {
		messages = []conversation.Message{}
	}
	r.result.StageTelemetry.PerStageConversations = append(r.result.StageTelemetry.PerStageConversations,
		StageConversation{Stage: stage, Messages: messages})
	return nil
}

func (r *runner) review() error {
	critic := r.team[agent.RoleCritic]
	writer := r.team[agent.RoleWriter]

	var review reasoning.Response
	if err := r.eng.Start(OpGenerate, r.agentCall(), GenerateInput{
		Agent: critic,
		Task:  r.in.ReportTitle,
		Phase: reasoning.PhaseFinalReview,
	}).Get(&review); err != nil {
		return err
	}

	var feedback bus.Outcome
	if err := r.eng.Start(OpProvideFeedback, r.proposalCall(), MessageInput{
		Sender:         critic.Name,
		Recipients:     []string{writer.Name},
		Content:        review.Text,
		RelatedTo:      finalReportRef,
		ConversationID: r.result.WritingConversationID,
		IdempotencyKey: r.key(StageReview, "feedback"),
	}).Get(&feedback); err != nil {
		return err
	}
	if feedback.IsBlocked() {
		r.denials = append(r.denials, *feedback.Blocked)
		r.eng.Logger().Warn("final feedback blocked, writer will not respond", "critic", critic.Name, "writer", writer.Name)
		return nil
	}
	r.result.FinalFeedback = feedback.Receipt.Content

	var resp executor.FeedbackResponse
	if err := r.eng.Start(OpRespondToFeedback, r.proposalCall(), FeedbackInput{
		Agent:    writer,
		Feedback: feedback.Receipt.Content,
		Title:    r.in.ReportTitle,
	}).Get(&resp); err != nil {
		return err
	}
	r.result.WriterResponse = resp
	return nil
}

func reachedBy(out bus.Outcome, name string) bool {
	if out.IsBlocked() || out.Receipt == nil {
		return false
	}
	for _, n := range out.Receipt.Recipients {
		if n == name {
			return true
		}
	}
	return false
}

func appendOutcomeDenial(denials []bus.CommunicationBlocked, sender string, out bus.Outcome) []bus.CommunicationBlocked {
	switch {
	case out.IsBlocked():
		return append(denials, *out.Blocked)
	case out.Receipt != nil && len(out.Receipt.Blocked) > 0:
		return append(denials, bus.CommunicationBlocked{Sender: sender, Recipients: out.Receipt.Blocked})
	}
	return denials
}
