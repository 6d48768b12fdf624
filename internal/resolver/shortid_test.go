package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/dyluth/parley/pkg/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	ids []string
}

func (f *fakeScanner) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	for _, known := range f.ids {
		if known == id {
			return &conversation.Conversation{ID: id, Status: conversation.StatusActive}, nil
		}
	}
	return nil, conversation.ErrNotFound
}

func (f *fakeScanner) ScanConversations(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, id := range f.ids {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out, nil
}

func TestResolveConversationID(t *testing.T) {
	ctx := context.Background()
	store := &fakeScanner{ids: []string{
		"abc12345-0000-4000-8000-000000000001",
		"abc12399-0000-4000-8000-000000000002",
		"def45678-0000-4000-8000-000000000003",
	}}

	t.Run("unique prefix", func(t *testing.T) {
		id, err := ResolveConversationID(ctx, store, "def456")
		require.NoError(t, err)
		assert.Equal(t, store.ids[2], id)
	})

	t.Run("full id", func(t *testing.T) {
		id, err := ResolveConversationID(ctx, store, store.ids[0])
		require.NoError(t, err)
		assert.Equal(t, store.ids[0], id)
	})

	t.Run("unknown full id", func(t *testing.T) {
		_, err := ResolveConversationID(ctx, store, "99999999-0000-4000-8000-000000000000")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveConversationID(ctx, store, "abc")
		assert.ErrorContains(t, err, "at least 6 characters")
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := ResolveConversationID(ctx, store, "abc123")
		require.True(t, IsAmbiguousError(err))
		var amb *AmbiguousError
		require.ErrorAs(t, err, &amb)
		assert.Len(t, amb.Matches, 2)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ResolveConversationID(ctx, store, "ffffff")
		assert.True(t, IsNotFoundError(err))
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	var matches []string
	for i := 0; i < 12; i++ {
		matches = append(matches, fmt.Sprintf("abcdef%02d", i))
	}
	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})

	assert.Contains(t, msg, "matches 12 conversations")
	assert.Contains(t, msg, "abcdef09")
	assert.NotContains(t, msg, "abcdef10")
	assert.Contains(t, msg, "...and 2 more")
}
