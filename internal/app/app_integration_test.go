//go:build integration

package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/logging"
	"github.com/dyluth/parley/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.temporal.io/sdk/testsuite"
)

func setupRedis(t *testing.T) string {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// TestWorkerWiring_RealRedis runs the Temporal workflow against activities wired
// the way cmd/worker wires them, backed by a real Redis server.
func TestWorkerWiring_RealRedis(t *testing.T) {
	cfg := &config.Config{
		Version:   config.Version,
		Namespace: "integration",
		Store:     config.StoreConfig{Backend: config.StoreRedis, RedisURL: setupRedis(t)},
		Engine:    config.EngineConfig{Backend: config.EngineTemporal},
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	workflow.Register(env, a.Activities)

	env.ExecuteWorkflow(workflow.WorkflowName, cfg.WorkflowInput("integration-run"))
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res workflow.Result
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Contains(t, res.FinalDocument, "CHALLENGES AND LIMITATIONS")

	msgs, err := a.Redis.Messages(context.Background(), res.WritingConversationID)
	require.NoError(t, err)
	assert.NotEmpty(t, msgs)
}
