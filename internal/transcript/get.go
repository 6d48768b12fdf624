package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dyluth/parley/pkg/conversation"
)

// Getter fetches one conversation with its messages.
type Getter interface {
	GetConversation(ctx context.Context, id string) (*conversation.Conversation, error)
}

// ShowConversation writes one conversation, as JSON when asJSON is set and as a
// transcript otherwise.
func ShowConversation(ctx context.Context, store Getter, id string, asJSON bool, w io.Writer) error {
	c, err := store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return &NotFoundError{ConversationID: id}
		}
		return fmt.Errorf("failed to fetch conversation: %w", err)
	}

	if asJSON {
		return FormatSingleJSON(w, c)
	}
	FormatTranscript(w, c)
	return nil
}

// NotFoundError reports an unknown conversation id.
type NotFoundError struct {
	ConversationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conversation with ID '%s' not found", e.ConversationID)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
