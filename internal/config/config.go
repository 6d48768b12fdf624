package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dyluth/parley/internal/policy"
	"github.com/dyluth/parley/internal/reasoning"
	"gopkg.in/yaml.v3"
)

// Supported values
const (
	Version = "1.0"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	EngineLocal    = "local"
	EngineTemporal = "temporal"

	ConsensusAccept     = "accept"
	ConsensusNegotiated = "negotiated"

	DefaultNamespace        = "default"
	DefaultRedisURL         = "redis://localhost:6379"
	DefaultTemporalHostPort = "localhost:7233"
	DefaultTemporalNS       = "default"
	DefaultTaskQueue        = "parley"
)

// ErrTemporalNeedsRedis rejects a Temporal engine over the in-memory store.
var ErrTemporalNeedsRedis = errors.New("engine.backend 'temporal' needs store.backend 'redis': workers and the CLI must share conversations")

// Config represents the top-level parley.yml (or parley.toml) configuration
type Config struct {
	Version   string                   `yaml:"version" toml:"version"`
	Namespace string                   `yaml:"namespace" toml:"namespace"` // Scopes Redis keys
	Team      map[string]AgentOverride `yaml:"team,omitempty" toml:"team,omitempty"`
	Policy    PolicyConfig             `yaml:"policy" toml:"policy"`
	Store     StoreConfig              `yaml:"store" toml:"store"`
	Audit     AuditConfig              `yaml:"audit" toml:"audit"`
	Events    EventsConfig             `yaml:"events" toml:"events"`
	Engine    EngineConfig             `yaml:"engine" toml:"engine"`
	Reasoning ReasoningConfig          `yaml:"reasoning" toml:"reasoning"`
	Logging   LoggingConfig            `yaml:"logging" toml:"logging"`
	Tracing   TracingConfig            `yaml:"tracing" toml:"tracing"`
	Run       RunConfig                `yaml:"run" toml:"run"`
}

// AgentOverride replaces fields of a role's default descriptor. Keyed by role kind.
type AgentOverride struct {
	Name               string   `yaml:"name,omitempty" toml:"name,omitempty"`
	Role               string   `yaml:"role,omitempty" toml:"role,omitempty"`
	Goal               string   `yaml:"goal,omitempty" toml:"goal,omitempty"`
	Backstory          string   `yaml:"backstory,omitempty" toml:"backstory,omitempty"`
	Skills             []string `yaml:"skills,omitempty" toml:"skills,omitempty"`
	KnowledgeAreas     []string `yaml:"knowledge_areas,omitempty" toml:"knowledge_areas,omitempty"`
	CommunicationStyle string   `yaml:"communication_style,omitempty" toml:"communication_style,omitempty"`
}

// PolicyConfig is the communication matrix. No edges means the stock matrix.
type PolicyConfig struct {
	DefaultWeight float64       `yaml:"default_weight" toml:"default_weight"`
	Edges         []policy.Edge `yaml:"edges,omitempty" toml:"edges,omitempty"`
}

// StoreConfig selects the conversation store
type StoreConfig struct {
	Backend  string `yaml:"backend" toml:"backend"` // memory or redis
	RedisURL string `yaml:"redis_url,omitempty" toml:"redis_url,omitempty"`
}

// AuditConfig enables SQLite snapshots when a path is set
type AuditConfig struct {
	SQLitePath string `yaml:"sqlite_path,omitempty" toml:"sqlite_path,omitempty"`
}

// EventsConfig controls NATS message notifications
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	NATSURL  string `yaml:"nats_url,omitempty" toml:"nats_url,omitempty"`
	Embedded bool   `yaml:"embedded" toml:"embedded"` // Start an in-process server instead of dialling nats_url
}

// EngineConfig selects and tunes the execution engine
type EngineConfig struct {
	Backend  string         `yaml:"backend" toml:"backend"` // local or temporal
	Temporal TemporalConfig `yaml:"temporal" toml:"temporal"`
	Retry    RetryConfig    `yaml:"retry" toml:"retry"`
	Timeouts TimeoutsConfig `yaml:"timeouts" toml:"timeouts"`
}

// TemporalConfig locates the Temporal frontend
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" toml:"host_port"`
	Namespace string `yaml:"namespace" toml:"namespace"`
	TaskQueue string `yaml:"task_queue" toml:"task_queue"`
}

// RetryConfig bounds retries of each operation
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" toml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval" toml:"initial_interval"`
}

// TimeoutsConfig sets per-attempt limits
type TimeoutsConfig struct {
	AgentCall    time.Duration `yaml:"agent_call" toml:"agent_call"`
	ProposalCall time.Duration `yaml:"proposal_call" toml:"proposal_call"`
	ExecutorCall time.Duration `yaml:"executor_call" toml:"executor_call"`
}

// ReasoningConfig tunes the reasoning service wrapper
type ReasoningConfig struct {
	CircuitBreaker reasoning.BreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
	Consensus      string                  `yaml:"consensus,omitempty" toml:"consensus,omitempty"` // accept or negotiated
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format,omitempty" toml:"format,omitempty"` // Empty lets the binary pick
	Output string `yaml:"output,omitempty" toml:"output,omitempty"`
}

// TracingConfig mirrors tracing.Config
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Exporter string `yaml:"exporter,omitempty" toml:"exporter,omitempty"`
}

// RunConfig sets the run's subject matter
type RunConfig struct {
	ResearchTopic string `yaml:"research_topic" toml:"research_topic"`
	ReportTitle   string `yaml:"report_title" toml:"report_title"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	c := &Config{Version: Version}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// Validate applies defaults and performs strict validation
func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("unsupported version: %s (expected: %s)", c.Version, Version)
	}

	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if strings.ContainsAny(c.Namespace, ": ") {
		return fmt.Errorf("namespace %q must not contain ':' or spaces", c.Namespace)
	}

	for role := range c.Team {
		switch role {
		case "researcher", "writer", "critic", "integrator":
		default:
			return fmt.Errorf("team: unknown role '%s' (must be researcher, writer, critic or integrator)", role)
		}
	}

	if c.Policy.DefaultWeight < 0 || c.Policy.DefaultWeight > 1 {
		return fmt.Errorf("policy.default_weight must be within [0,1], got %.2f", c.Policy.DefaultWeight)
	}
	if _, err := c.PolicyMatrix(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	if c.Store.Backend == "" {
		c.Store.Backend = StoreMemory
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			c.Store.RedisURL = DefaultRedisURL
		}
	default:
		return fmt.Errorf("invalid store.backend: %s (must be 'memory' or 'redis')", c.Store.Backend)
	}

	if c.Events.Enabled && !c.Events.Embedded && c.Events.NATSURL == "" {
		return fmt.Errorf("events.nats_url is required unless events.embedded is set")
	}

	if c.Engine.Backend == "" {
		c.Engine.Backend = EngineLocal
	}
	if c.Engine.Backend != EngineLocal && c.Engine.Backend != EngineTemporal {
		return fmt.Errorf("invalid engine.backend: %s (must be 'local' or 'temporal')", c.Engine.Backend)
	}
	if c.Engine.Temporal.HostPort == "" {
		c.Engine.Temporal.HostPort = DefaultTemporalHostPort
	}
	if c.Engine.Temporal.Namespace == "" {
		c.Engine.Temporal.Namespace = DefaultTemporalNS
	}
	if c.Engine.Temporal.TaskQueue == "" {
		c.Engine.Temporal.TaskQueue = DefaultTaskQueue
	}
	if c.Engine.Backend == EngineTemporal && c.Store.Backend == StoreMemory {
		return ErrTemporalNeedsRedis
	}

	if c.Engine.Retry.MaxAttempts == 0 {
		c.Engine.Retry.MaxAttempts = 3
	}
	if c.Engine.Retry.MaxAttempts < 1 {
		return fmt.Errorf("engine.retry.max_attempts must be >= 1, got %d", c.Engine.Retry.MaxAttempts)
	}
	if c.Engine.Retry.InitialInterval == 0 {
		c.Engine.Retry.InitialInterval = time.Second
	}

	t := &c.Engine.Timeouts
	for _, d := range []struct {
		name  string
		value *time.Duration
		def   time.Duration
	}{
		{"agent_call", &t.AgentCall, 10 * time.Second},
		{"proposal_call", &t.ProposalCall, 15 * time.Second},
		{"executor_call", &t.ExecutorCall, 5 * time.Minute},
	} {
		if *d.value == 0 {
			*d.value = d.def
		}
		if *d.value < 0 {
			return fmt.Errorf("engine.timeouts.%s must be positive, got %s", d.name, *d.value)
		}
	}

	if c.Reasoning.Consensus == "" {
		c.Reasoning.Consensus = ConsensusAccept
	}
	if c.Reasoning.Consensus != ConsensusAccept && c.Reasoning.Consensus != ConsensusNegotiated {
		return fmt.Errorf("invalid reasoning.consensus: %s (must be 'accept' or 'negotiated')", c.Reasoning.Consensus)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging.format: %s (must be 'json' or 'text')", c.Logging.Format)
	}

	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}

	if c.Run.ResearchTopic == "" {
		c.Run.ResearchTopic = "Integration of Temporal with AI systems"
	}
	if c.Run.ReportTitle == "" {
		c.Run.ReportTitle = "Benefits of Temporal for AI Workflows"
	}

	return nil
}

// Load reads and validates a config file. The format follows the extension:
// .toml is TOML, anything else is YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyEnv overrides settings from the environment: REDIS_URL switches the store
// to Redis and TEMPORAL_HOSTPORT sets the Temporal frontend.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("REDIS_URL"); v != "" {
		c.Store.Backend = StoreRedis
		c.Store.RedisURL = v
	}
	if v := getenv("TEMPORAL_HOSTPORT"); v != "" {
		c.Engine.Temporal.HostPort = v
	}
}

// Locate returns the config path to use: explicit wins, then PARLEY_CONFIG, then
// parley.yml or parley.toml in dir. Returns "" when none exists.
func Locate(explicit, dir string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	if v := getenv("PARLEY_CONFIG"); v != "" {
		return v
	}
	for _, name := range []string{"parley.yml", "parley.yaml", "parley.toml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
