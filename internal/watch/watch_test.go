package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/parley/internal/events"
	"github.com/dyluth/parley/pkg/conversation"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type chanSource struct {
	events chan *conversation.MessageEvent
	errors chan error
	closed bool
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan *conversation.MessageEvent, 8), errors: make(chan error, 1)}
}

func (c *chanSource) Events() <-chan *conversation.MessageEvent { return c.events }
func (c *chanSource) Errors() <-chan error                      { return c.errors }
func (c *chanSource) Close() error {
	c.closed = true
	return nil
}

func event(conversationID, sender, content string) *conversation.MessageEvent {
	return &conversation.MessageEvent{
		ConversationID: conversationID,
		Message: conversation.Message{
			ID:         uuid.New().String(),
			Sender:     sender,
			Recipient:  "Writer",
			Recipients: []string{"Writer"},
			Content:    content,
			Type:       conversation.MessageTypeUpdate,
			Timestamp:  time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
		},
	}
}

func TestStream_DefaultFormatAndFilter(t *testing.T) {
	src := newChanSource()
	src.events <- event("conv-aaaaaaaa", "Researcher", "findings ready")
	src.events <- event("conv-bbbbbbbb", "Critic", "ignored")
	close(src.events)

	var buf bytes.Buffer
	require.NoError(t, Stream(context.Background(), src, OutputFormatDefault, "conv-aaaaaaaa", &buf))

	assert.Equal(t, "[09:30:00] conv-aaa Researcher -> Writer (update): findings ready\n", buf.String())
	assert.True(t, src.closed)
}

func TestStream_JSONFormat(t *testing.T) {
	src := newChanSource()
	src.events <- event("c1", "Integrator", "plan")
	close(src.events)

	var buf bytes.Buffer
	require.NoError(t, Stream(context.Background(), src, OutputFormatJSON, "", &buf))

	var decoded conversation.MessageEvent
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded))
	assert.Equal(t, "c1", decoded.ConversationID)
	assert.Equal(t, "plan", decoded.Message.Content)
}

func TestStream_StopsOnCancel(t *testing.T) {
	src := newChanSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, Stream(ctx, src, OutputFormatDefault, "", &bytes.Buffer{}))
	assert.Error(t, Stream(ctx, src, "xml", "", &bytes.Buffer{}))
}

func TestStream_RedisSubscription(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := conversation.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "watch-test")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := store.Subscribe(ctx)
	require.NoError(t, err)

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- Stream(ctx, sub, OutputFormatDefault, "", &out) }()

	conv := &conversation.Conversation{ID: uuid.New().String(), Topic: "t", Status: conversation.StatusActive, CreatedAt: time.Now()}
	_, err = store.CreateConversation(ctx, conv)
	require.NoError(t, err)
	_, _, err = store.Append(ctx, conv.ID, &event(conv.ID, "Writer", "draft outline").Message, "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "draft outline")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestStream_NATS(t *testing.T) {
	srv, err := events.StartServer(events.RandomPort)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	pub, err := events.Connect(srv.ClientURL(), nil)
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	src, err := FromNATS(pub)
	require.NoError(t, err)
	require.NoError(t, pub.Flush())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- Stream(ctx, src, OutputFormatJSON, "", &out) }()

	require.NoError(t, pub.Notify(ctx, *event("nats-conv", "Critic", "add limitations")))
	require.NoError(t, pub.Flush())

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "add limitations")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
