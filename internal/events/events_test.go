package events

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/parley/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	srv, err := StartServer(RandomPort)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	pub, err := Connect(srv.ClientURL(), nil)
	require.NoError(t, err)
	t.Cleanup(pub.Close)
	return pub
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "parley.conversation.abc.message", Subject("abc"))
}

func TestPublisher_NotifyAndSubscribe(t *testing.T) {
	pub := setupTestPublisher(t)

	received := make(chan conversation.MessageEvent, 1)
	_, err := pub.Subscribe(SubjectAll, func(e conversation.MessageEvent) {
		received <- e
	})
	require.NoError(t, err)
	require.NoError(t, pub.Flush())

	event := conversation.MessageEvent{
		ConversationID: "conv-1",
		Message: conversation.Message{
			ID:      "m1",
			Sender:  "Project Integrator",
			Content: "plan",
			Type:    conversation.MessageTypeProposal,
		},
	}
	require.NoError(t, pub.Notify(context.Background(), event))
	require.NoError(t, pub.Flush())

	select {
	case got := <-received:
		assert.Equal(t, "conv-1", got.ConversationID)
		assert.Equal(t, "plan", got.Message.Content)
		assert.Equal(t, conversation.MessageTypeProposal, got.Message.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message event")
	}
}

func TestPublisher_SubscribeSingleConversation(t *testing.T) {
	pub := setupTestPublisher(t)

	received := make(chan conversation.MessageEvent, 2)
	_, err := pub.Subscribe(Subject("wanted"), func(e conversation.MessageEvent) {
		received <- e
	})
	require.NoError(t, err)
	require.NoError(t, pub.Flush())

	ctx := context.Background()
	require.NoError(t, pub.Notify(ctx, conversation.MessageEvent{ConversationID: "other"}))
	require.NoError(t, pub.Notify(ctx, conversation.MessageEvent{ConversationID: "wanted"}))
	require.NoError(t, pub.Flush())

	select {
	case got := <-received:
		assert.Equal(t, "wanted", got.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message event")
	}
	assert.Empty(t, received)
}
