package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/parley/internal/policy"
	"github.com/dyluth/parley/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "parley.yml", `version: "1.0"
namespace: demo
team:
  critic:
    name: "Reviewer"
policy:
  default_weight: 0.2
  edges:
    - {from: Integrator, to: Reviewer, weight: 1}
store:
  backend: redis
  redis_url: redis://cache:6379
engine:
  retry:
    max_attempts: 5
    initial_interval: 250ms
  timeouts:
    agent_call: 20s
run:
  research_topic: "Durable agents"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Namespace)
	assert.Equal(t, "Reviewer", cfg.Team["critic"].Name)
	assert.Equal(t, 0.2, cfg.Policy.DefaultWeight)
	assert.Len(t, cfg.Policy.Edges, 1)
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379", cfg.Store.RedisURL)
	assert.Equal(t, 5, cfg.Engine.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Retry.InitialInterval)
	assert.Equal(t, 20*time.Second, cfg.Engine.Timeouts.AgentCall)
	assert.Equal(t, 15*time.Second, cfg.Engine.Timeouts.ProposalCall)
	assert.Equal(t, "Durable agents", cfg.Run.ResearchTopic)
	assert.Equal(t, "Benefits of Temporal for AI Workflows", cfg.Run.ReportTitle)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "parley.toml", `version = "1.0"
namespace = "tomlns"

[store]
backend = "memory"

[engine]
backend = "local"

[engine.timeouts]
executor_call = "2m"

[[policy.edges]]
from = "Writer"
to = "Critic"
weight = 0.9
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tomlns", cfg.Namespace)
	assert.Equal(t, 2*time.Minute, cfg.Engine.Timeouts.ExecutorCall)
	require.Len(t, cfg.Policy.Edges, 1)
	assert.Equal(t, 0.9, cfg.Policy.Edges[0].Weight)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/parley.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")

	path := writeConfig(t, "parley.yml", "version: \"1.0\"\nteam:\n  - not a map\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	path = writeConfig(t, "parley.toml", "version = \n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse TOML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unsupported version", func(c *Config) { c.Version = "2.0" }, "unsupported version: 2.0"},
		{"bad namespace", func(c *Config) { c.Namespace = "a:b" }, "namespace"},
		{"unknown team role", func(c *Config) { c.Team = map[string]AgentOverride{"poet": {}} }, "unknown role 'poet'"},
		{"default weight out of range", func(c *Config) { c.Policy.DefaultWeight = 1.5 }, "default_weight"},
		{"bad store", func(c *Config) { c.Store.Backend = "etcd" }, "invalid store.backend"},
		{"bad engine", func(c *Config) { c.Engine.Backend = "cron" }, "invalid engine.backend"},
		{"temporal needs redis", func(c *Config) { c.Engine.Backend = EngineTemporal }, "needs store.backend 'redis'"},
		{"events without url", func(c *Config) { c.Events.Enabled = true }, "events.nats_url"},
		{"negative attempts", func(c *Config) { c.Engine.Retry.MaxAttempts = -1 }, "max_attempts"},
		{"negative timeout", func(c *Config) { c.Engine.Timeouts.AgentCall = -time.Second }, "agent_call"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"edge to unknown agent", func(c *Config) { c.Policy.Edges = []policy.Edge{{From: "Writer", To: "Ghost", Weight: 1}} }, `unknown agent "Ghost"`},
		{"duplicate agent names", func(c *Config) { c.Team = map[string]AgentOverride{"writer": {Name: "Critic"}} }, "invalid team"},
		{"bad consensus", func(c *Config) { c.Reasoning.Consensus = "vote" }, "reasoning.consensus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Version: Version}
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultNamespace, cfg.Namespace)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, EngineLocal, cfg.Engine.Backend)
	assert.Equal(t, DefaultTaskQueue, cfg.Engine.Temporal.TaskQueue)
	assert.Equal(t, 3, cfg.Engine.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Engine.Timeouts.AgentCall)
	assert.Equal(t, 5*time.Minute, cfg.Engine.Timeouts.ExecutorCall)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{"REDIS_URL": "redis://env:6379", "TEMPORAL_HOSTPORT": "temporal:7233"}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://env:6379", cfg.Store.RedisURL)
	assert.Equal(t, "temporal:7233", cfg.Engine.Temporal.HostPort)
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	noEnv := func(string) string { return "" }

	assert.Equal(t, "", Locate("", dir, noEnv))
	assert.Equal(t, "explicit.yml", Locate("explicit.yml", dir, noEnv))
	assert.Equal(t, "/env.yml", Locate("", dir, func(k string) string {
		if k == "PARLEY_CONFIG" {
			return "/env.yml"
		}
		return ""
	}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "parley.toml"), []byte(`version = "1.0"`), 0644))
	assert.Equal(t, filepath.Join(dir, "parley.toml"), Locate("", dir, noEnv))
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Team = map[string]AgentOverride{"writer": {Name: "Scribe", Skills: []string{"prose"}}}

	matrix, err := cfg.PolicyMatrix()
	require.NoError(t, err)
	assert.False(t, matrix.IsAllowed("Researcher", "Critic"))
	assert.True(t, matrix.IsAllowed("Integrator", "Critic"))
	assert.True(t, matrix.IsAllowed("Integrator", "Scribe"))
	assert.True(t, matrix.IsAllowed("Scribe", "Critic"))
	assert.False(t, matrix.IsAllowed("Integrator", "Writer"))

	overrides := cfg.AgentOverrides()
	assert.Equal(t, "Scribe", overrides[agent.RoleWriter].Name)

	in := cfg.WorkflowInput("run-9")
	assert.Equal(t, "run-9", in.RunID)
	assert.Equal(t, cfg.Run.ReportTitle, in.ReportTitle)
	assert.Equal(t, 3, in.Retry.MaxAttempts)

	assert.Equal(t, "text", cfg.LoggingConfig("text").Format)
	cfg.Logging.Format = "json"
	assert.Equal(t, "json", cfg.LoggingConfig("text").Format)
}
