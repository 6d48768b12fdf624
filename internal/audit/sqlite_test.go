package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/parley/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "audit", "parley.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func snapshotWith(id, topic string, contents ...string) conversation.Snapshot {
	snap := conversation.Snapshot{ConversationID: id, Topic: topic, Messages: []conversation.Message{}}
	for _, c := range contents {
		snap.Messages = append(snap.Messages, conversation.Message{
			ID:         c,
			Sender:     "Research Expert",
			Recipient:  "Technical Writer",
			Recipients: []string{"Technical Writer"},
			Content:    c,
			Type:       conversation.MessageTypeUpdate,
			Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return snap
}

func TestSQLiteSink_WriteAndRead(t *testing.T) {
	sink := setupTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.WriteSnapshot(ctx, snapshotWith("c1", "topic one", "hello")))

	entry, err := sink.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "topic one", entry.Snapshot.Topic)
	require.Len(t, entry.Snapshot.Messages, 1)
	assert.Equal(t, "hello", entry.Snapshot.Messages[0].Content)
	assert.False(t, entry.UpdatedAt.IsZero())
}

func TestSQLiteSink_UpsertKeepsOneRowPerConversation(t *testing.T) {
	sink := setupTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.WriteSnapshot(ctx, snapshotWith("c1", "t", "a")))
	require.NoError(t, sink.WriteSnapshot(ctx, snapshotWith("c1", "t", "a", "b")))
	require.NoError(t, sink.WriteSnapshot(ctx, snapshotWith("c2", "other")))

	entries, err := sink.Snapshots(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entry, err := sink.Snapshot(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, entry.Snapshot.Messages, 2)
}

func TestSQLiteSink_Errors(t *testing.T) {
	sink := setupTestSink(t)
	ctx := context.Background()

	_, err := sink.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	err = sink.WriteSnapshot(ctx, conversation.Snapshot{})
	assert.Error(t, err)
}

func TestSQLiteSink_EmptyMessagesStoredAsArray(t *testing.T) {
	sink := setupTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.WriteSnapshot(ctx, conversation.Snapshot{ConversationID: "c3", Topic: "empty"}))
	entry, err := sink.Snapshot(ctx, "c3")
	require.NoError(t, err)
	assert.NotNil(t, entry.Snapshot.Messages)
	assert.Empty(t, entry.Snapshot.Messages)
}
