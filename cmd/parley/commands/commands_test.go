package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, logLevel = "", ""
	forceInit, initTOML, initDir = false, false, "."
	runID, runTopic, runTitle, runTemporal, runJSON, runOutput = "", "", "", false, false, ""
	listOutputFormat, listSince, listUntil, listTopic, listAgent = "default", "", "", "", ""
	historyJSON = false
	watchOutputFormat, watchConversation, watchNATS = "default", "", false

	var out, errOut bytes.Buffer
	restore := printer.SetOutput(&out, &errOut)
	defer restore()

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("TEMPORAL_HOSTPORT", "")
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "parley")
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := executeCommand(t, "--goal", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag: --goal")
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "parley 1.2.3 (commit: abc123, built: 2026-01-01)\n", out)
}

func TestPolicyCommands(t *testing.T) {
	clearEnv(t)

	out, err := executeCommand(t, "policy", "check", "Researcher", "Critic")
	require.NoError(t, err)
	assert.Contains(t, out, "Researcher -> Critic: blocked")

	out, err = executeCommand(t, "policy", "check", "Writer", "Critic")
	require.NoError(t, err)
	assert.Contains(t, out, "Writer -> Critic: allowed")

	out, err = executeCommand(t, "policy", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "FROM")
	assert.Contains(t, out, "Default weight: 0.00")

	_, err = executeCommand(t, "policy", "check", "Writer")
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	_, err := executeCommand(t, "init", "--dir", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "parley.yml"))

	_, err = executeCommand(t, "init", "--dir", dir)
	require.EqualError(t, err, "project already initialized")

	_, err = executeCommand(t, "init", "--dir", dir, "--force", "--toml")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "parley.toml"))
}

func TestRunCommand_JSON(t *testing.T) {
	clearEnv(t)
	docPath := filepath.Join(t.TempDir(), "report.txt")

	out, err := executeCommand(t, "run", "--json", "--run-id", "cli-run", "--log-level", "error", "--output", docPath)
	require.NoError(t, err)

	var res workflow.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res.FinalDocument, "CHALLENGES AND LIMITATIONS")
	assert.Len(t, res.Team, 4)

	doc, err := os.ReadFile(docPath)
	require.NoError(t, err)
	assert.Contains(t, string(doc), res.FinalDocument)
}

func TestRunCommand_Summary(t *testing.T) {
	clearEnv(t)

	out, err := executeCommand(t, "run", "--log-level", "error", "--title", "Custom Title")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Researcher -> Critic blocked by policy")
	assert.Contains(t, out, "REPORT: CUSTOM TITLE")
}

func TestRunCommand_TemporalNeedsRedis(t *testing.T) {
	clearEnv(t)

	_, err := executeCommand(t, "run", "--temporal")
	require.EqualError(t, err, "invalid configuration")
}

func TestInvalidRunConfig_SuggestsStoreOnlyForTemporal(t *testing.T) {
	var out, errOut bytes.Buffer
	restore := printer.SetOutput(&out, &errOut)
	defer restore()

	cfg := config.Default()
	cfg.Engine.Backend = config.EngineTemporal
	err := invalidRunConfig(cfg.Validate())
	require.EqualError(t, err, "invalid configuration")
	assert.Contains(t, errOut.String(), "store.backend: redis")

	errOut.Reset()
	cfg = config.Default()
	cfg.Reasoning.Consensus = "vote"
	err = invalidRunConfig(cfg.Validate())
	require.EqualError(t, err, "invalid configuration")
	assert.Contains(t, errOut.String(), "reasoning.consensus")
	assert.NotContains(t, errOut.String(), "shared store")
}

func TestInspectionCommands_Redis(t *testing.T) {
	clearEnv(t)
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	cfgPath := writeConfig(t, `version: "1.0"
namespace: cli-test
store:
  backend: redis
  redis_url: redis://`+mr.Addr()+`
logging:
  level: error
`)

	out, err := executeCommand(t, "--config", cfgPath, "run", "--json", "--run-id", "inspect")
	require.NoError(t, err)
	var res workflow.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	out, err = executeCommand(t, "--config", cfgPath, "list", "--output", "jsonl")
	require.NoError(t, err)
	lines := 0
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines++
	}
	assert.GreaterOrEqual(t, lines, 2)

	out, err = executeCommand(t, "--config", cfgPath, "list", "--agent", "Critic")
	require.NoError(t, err)
	assert.Contains(t, out, "Conversations in namespace 'cli-test'")

	out, err = executeCommand(t, "--config", cfgPath, "history", res.WritingConversationID[:8])
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation "+res.WritingConversationID)

	_, err = executeCommand(t, "--config", cfgPath, "history", "abc")
	require.EqualError(t, err, "invalid conversation id")

	_, err = executeCommand(t, "--config", cfgPath, "list", "--since", "bogus")
	require.EqualError(t, err, "invalid time filter")
}

func TestInspectionCommands_MemoryStore(t *testing.T) {
	clearEnv(t)

	_, err := executeCommand(t, "list")
	require.EqualError(t, err, "no shared conversation store")
}

func TestAuditCommand(t *testing.T) {
	clearEnv(t)
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	cfgPath := writeConfig(t, `version: "1.0"
audit:
  sqlite_path: `+dbPath+`
logging:
  level: error
`)

	out, err := executeCommand(t, "--config", cfgPath, "run", "--json", "--run-id", "audited")
	require.NoError(t, err)
	var res workflow.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	out, err = executeCommand(t, "--config", cfgPath, "audit")
	require.NoError(t, err)
	assert.Contains(t, out, res.ResearchConversationID)

	out, err = executeCommand(t, "--config", cfgPath, "audit", res.WritingConversationID)
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation "+res.WritingConversationID)

	_, err = executeCommand(t, "audit")
	require.EqualError(t, err, "audit disabled")
}
