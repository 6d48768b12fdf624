//go:build integration

package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
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

// TestRedisStore_RealRedis runs the idempotent append path against a real server,
// where Lua semantics are authoritative.
func TestRedisStore_RealRedis(t *testing.T) {
	redisURL := setupRedis(t)

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	store, err := NewRedisStore(opts, "integration")
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, store.Ping(ctx))

	conv := newTestConversation("Conversation between Writer and Researcher")
	created, err := store.CreateConversation(ctx, conv)
	require.NoError(t, err)
	assert.True(t, created)

	for attempt := 0; attempt < 3; attempt++ {
		msg := newTestMessage("Writer", "Researcher", MessageTypeQuestion, "How approach X?")
		_, _, err := store.Append(ctx, conv.ID, msg, "integration/question")
		require.NoError(t, err)
	}

	messages, err := store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, MessageTypeQuestion, messages[0].Type)
}
