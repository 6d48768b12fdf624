package workflow

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// WorkflowName is the registered Temporal workflow type.
const WorkflowName = "CollaborativeAgentWorkflow"

// QueryCurrentStage answers with the stage the workflow is in.
const QueryCurrentStage = "current_stage"

// DefaultTaskQueue is the task queue workers poll by default.
const DefaultTaskQueue = "parley"

// TemporalEngine runs operations as Temporal activities from workflow code.
type TemporalEngine struct {
	ctx   workflow.Context
	stage *Stage
}

// NewTemporalEngine wraps a workflow context.
func NewTemporalEngine(ctx workflow.Context) *TemporalEngine {
	stage := StageInit
	return &TemporalEngine{ctx: ctx, stage: &stage}
}

// Stage returns the stage last entered.
func (e *TemporalEngine) Stage() Stage {
	return *e.stage
}

func (e *TemporalEngine) Enter(stage Stage) {
	*e.stage = stage
	workflow.GetLogger(e.ctx).Info("entering stage", "stage", string(stage))
}

func (e *TemporalEngine) Logger() Logger {
	return workflow.GetLogger(e.ctx)
}

type temporalFuture struct {
	ctx    workflow.Context
	future workflow.Future
}

func (f temporalFuture) Get(result interface{}) error {
	return f.future.Get(f.ctx, result)
}

func (e *TemporalEngine) Start(op string, opts CallOptions, args ...interface{}) Future {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: opts.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    opts.Retry.InitialInterval,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    int32(opts.Retry.MaxAttempts),
		},
	}
	ctx := workflow.WithActivityOptions(e.ctx, ao)
	return temporalFuture{ctx: ctx, future: workflow.ExecuteActivity(ctx, op, args...)}
}

func (e *TemporalEngine) Parallel(branches ...func(Engine) error) error {
	errs := make([]error, len(branches))
	wg := workflow.NewWaitGroup(e.ctx)
	for i, branch := range branches {
		i, branch := i, branch
		wg.Add(1)
		workflow.Go(e.ctx, func(gctx workflow.Context) {
			defer wg.Done()
			errs[i] = branch(&TemporalEngine{ctx: gctx, stage: e.stage})
		})
	}
	wg.Wait(e.ctx)
	return firstError(errs)
}

var _ Engine = (*TemporalEngine)(nil)

// CollaborativeAgentWorkflow is the Temporal entry point. The run id defaults to
// the workflow id, so activity retries and workflow replays reuse the same
// idempotency keys.
func CollaborativeAgentWorkflow(ctx workflow.Context, in Input) (*Result, error) {
	eng := NewTemporalEngine(ctx)
	if err := workflow.SetQueryHandler(ctx, QueryCurrentStage, func() (Stage, error) {
		return eng.Stage(), nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register stage query: %w", err)
	}
	if in.RunID == "" {
		in.RunID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	res, err := Run(eng, in)
	if err != nil {
		return nil, toApplicationError(err)
	}
	return res, nil
}

// Registrar is the part of a Temporal worker (or test environment) Register needs.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivity(a interface{})
}

// Register adds the workflow and every activity to a worker.
func Register(r Registrar, acts *Activities) {
	r.RegisterWorkflowWithOptions(CollaborativeAgentWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivity(acts)
}

// StartOptions returns the options for starting a run. The workflow id is derived
// from the run id, so starting the same run twice is rejected by the server.
func StartOptions(runID, taskQueue string) client.StartWorkflowOptions {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return client.StartWorkflowOptions{
		ID:        "parley-" + runID,
		TaskQueue: taskQueue,
	}
}
