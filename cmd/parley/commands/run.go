package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dyluth/parley/internal/app"
	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/workflow"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
)

var (
	runID       string
	runTopic    string
	runTitle    string
	runTemporal bool
	runJSON     bool
	runOutput   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collaborative agent workflow",
	Long: `Run the team through planning, research, writing and review.

By default the run executes in-process. With --temporal (or engine.backend:
temporal) the run is started on a Temporal server and executed by a parley
worker; the command waits for the result.

Re-running with the same --run-id reuses the same conversations and idempotency
keys, so no message is stored twice.

Examples:
  # Run with the defaults
  parley run

  # Custom subject, machine-readable result
  parley run --topic "Event sourcing" --title "Event sourcing for agents" --json

  # Durable run on Temporal
  parley run --temporal --run-id demo-1`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run id used for idempotency keys (default: random)")
	runCmd.Flags().StringVar(&runTopic, "topic", "", "Override run.research_topic")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Override run.report_title")
	runCmd.Flags().BoolVar(&runTemporal, "temporal", false, "Execute on Temporal instead of in-process")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the full result as JSON")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Also write the final document to this file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runTemporal {
		cfg.Engine.Backend = config.EngineTemporal
	}
	if runTopic != "" {
		cfg.Run.ResearchTopic = runTopic
	}
	if runTitle != "" {
		cfg.Run.ReportTitle = runTitle
	}
	if err := cfg.Validate(); err != nil {
		return invalidRunConfig(err)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := runID
	if id == "" {
		id = uuid.NewString()
	}
	in := cfg.WorkflowInput(id)

	var res *workflow.Result
	if cfg.Engine.Backend == config.EngineTemporal {
		res, err = runOnTemporal(ctx, cfg, in, logger)
	} else {
		res, err = runInProcess(ctx, cfg, in, logger)
	}
	if err != nil {
		return reportRunError(err)
	}

	if runOutput != "" {
		if err := os.WriteFile(runOutput, []byte(res.FinalDocument+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printSummary(out, id, res)
	return nil
}

// invalidRunConfig reports a configuration rejected after the run flags were applied.
func invalidRunConfig(err error) error {
	var suggestions []string
	if errors.Is(err, config.ErrTemporalNeedsRedis) {
		suggestions = []string{"Temporal runs need a shared store:\n  store.backend: redis"}
	}
	return printer.Error("invalid configuration", err.Error(), suggestions)
}

func runInProcess(ctx context.Context, cfg *config.Config, in workflow.Input, logger *slog.Logger) (*workflow.Result, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.RunLocal(ctx, in)
}

func runOnTemporal(ctx context.Context, cfg *config.Config, in workflow.Input, logger *slog.Logger) (*workflow.Result, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Engine.Temporal.HostPort,
		Namespace: cfg.Engine.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.Engine.Temporal.HostPort, err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, workflow.StartOptions(in.RunID, cfg.Engine.Temporal.TaskQueue), workflow.WorkflowName, in)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	logger.Info("workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var res workflow.Result
	if err := run.Get(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func reportRunError(err error) error {
	if stageErr, ok := workflow.AsStageError(err); ok {
		return printer.ErrorWithContext(
			"run failed",
			stageErr.Err.Error(),
			map[string]string{"stage": string(stageErr.Stage), "kind": string(stageErr.Kind)},
			nil,
		)
	}
	return printer.Error("run failed", err.Error(), nil)
}

func printSummary(w io.Writer, id string, res *workflow.Result) {
	printer.Success("Run %s completed\n\n", id)

	printer.Step("Team\n")
	roles := make([]string, 0, len(res.Team))
	for role := range res.Team {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		printer.Detail(role, res.Team[role])
	}

	printer.Step("Planning\n")
	printer.Detail("decision", res.Planning.Decision.FinalDecision)
	printer.Detail("consensus", string(res.Planning.Decision.ConsensusLevel))

	printer.Step("Telemetry\n")
	printer.Detail("thinking steps", fmt.Sprint(res.StageTelemetry.ThinkingStepCount))
	for _, sc := range res.StageTelemetry.PerStageConversations {
		printer.Detail(string(sc.Stage)+" messages", fmt.Sprint(len(sc.Messages)))
	}
	printer.Detail("research conversation", res.ResearchConversationID)
	printer.Detail("writing conversation", res.WritingConversationID)

	if len(res.Denials) > 0 {
		printer.Step("Blocked messages\n")
		for _, d := range res.Denials {
			printer.Denied(d.Sender, d.Recipients)
		}
	}

	printer.Step("Review\n")
	printer.Detail("feedback", res.FinalFeedback)
	printer.Detail(res.WriterResponse.Agent, res.WriterResponse.Acknowledgment)
	for _, change := range res.WriterResponse.PlannedChanges {
		printer.Detail("planned", change)
	}

	fmt.Fprintf(w, "\n%s\n%s\n", strings.Repeat("=", 60), res.FinalDocument)
}
