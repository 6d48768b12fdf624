package config

import (
	"fmt"

	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/policy"
	"github.com/dyluth/parley/internal/tracing"
	"github.com/dyluth/parley/internal/workflow"
	"github.com/dyluth/parley/pkg/agent"
)

// PolicyMatrix builds the communication matrix over the configured roster.
// With no configured edges the stock matrix is resolved to the team's names;
// configured edges must name agents of the team.
func (c *Config) PolicyMatrix() (*policy.Matrix, error) {
	reg, err := agent.NewRegistry(c.AgentOverrides(), logging.Discard())
	if err != nil {
		return nil, fmt.Errorf("invalid team: %w", err)
	}
	names := reg.Names()

	if len(c.Policy.Edges) == 0 {
		return policy.New(policy.DefaultEdgesFor(names), c.Policy.DefaultWeight)
	}

	m, err := policy.New(c.Policy.Edges, c.Policy.DefaultWeight)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, e := range c.Policy.Edges {
		for _, n := range []string{e.From, e.To} {
			if !known[n] {
				return nil, fmt.Errorf("edge %s->%s: unknown agent %q", e.From, e.To, n)
			}
		}
	}
	return m, nil
}

// AgentOverrides converts the team section for agent.NewRegistry.
func (c *Config) AgentOverrides() map[agent.RoleKind]agent.Override {
	if len(c.Team) == 0 {
		return nil
	}
	out := make(map[agent.RoleKind]agent.Override, len(c.Team))
	for role, o := range c.Team {
		out[agent.RoleKind(role)] = agent.Override{
			Name:               o.Name,
			Role:               o.Role,
			Goal:               o.Goal,
			Backstory:          o.Backstory,
			Skills:             o.Skills,
			KnowledgeAreas:     o.KnowledgeAreas,
			CommunicationStyle: o.CommunicationStyle,
		}
	}
	return out
}

// WorkflowInput builds the input of one run.
func (c *Config) WorkflowInput(runID string) workflow.Input {
	return workflow.Input{
		RunID:         runID,
		ResearchTopic: c.Run.ResearchTopic,
		ReportTitle:   c.Run.ReportTitle,
		Timeouts: workflow.Timeouts{
			AgentCall:    c.Engine.Timeouts.AgentCall,
			ProposalCall: c.Engine.Timeouts.ProposalCall,
			ExecutorCall: c.Engine.Timeouts.ExecutorCall,
		},
		Retry: workflow.RetryPolicy{
			MaxAttempts:     c.Engine.Retry.MaxAttempts,
			InitialInterval: c.Engine.Retry.InitialInterval,
		},
	}
}

// LoggingConfig returns the logger settings, using defaultFormat when none is configured.
func (c *Config) LoggingConfig(defaultFormat string) logging.Config {
	format := c.Logging.Format
	if format == "" {
		format = defaultFormat
	}
	return logging.Config{Level: c.Logging.Level, Format: format, Output: c.Logging.Output}
}

// TracingConfig returns the tracer settings.
func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{Enabled: c.Tracing.Enabled, Exporter: c.Tracing.Exporter}
}
