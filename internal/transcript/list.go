// Package transcript lists and prints stored conversations for the CLI.
package transcript

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/dyluth/parley/internal/timespec"
	"github.com/dyluth/parley/pkg/conversation"
)

// OutputFormat specifies how to format the conversation list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table with truncated topics
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete conversations as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Lister returns every stored conversation. conversation.Store satisfies it.
type Lister interface {
	List(ctx context.Context) ([]*conversation.Conversation, error)
}

// FilterCriteria defines filtering options for the list command.
// All filters are ANDed together.
type FilterCriteria struct {
	Window      timespec.Range // On conversation creation time
	TopicGlob   string         // Glob pattern for the topic, empty = no filter
	Participant string         // Agent name that sent or received a message, empty = no filter
}

func (fc *FilterCriteria) matches(c *conversation.Conversation) bool {
	if !fc.Window.Contains(c.CreatedAt) {
		return false
	}

	if fc.TopicGlob != "" {
		matched, err := filepath.Match(fc.TopicGlob, c.Topic)
		if err != nil || !matched {
			return false
		}
	}

	if fc.Participant != "" && !hasParticipant(c, fc.Participant) {
		return false
	}

	return true
}

func hasParticipant(c *conversation.Conversation, name string) bool {
	for _, m := range c.Messages {
		if m.Sender == name {
			return true
		}
		for _, r := range m.Recipients {
			if r == name {
				return true
			}
		}
	}
	return false
}

// ListConversations writes the conversations matching filters to w, oldest first.
func ListConversations(ctx context.Context, store Lister, namespace string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	all, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	var selected []*conversation.Conversation
	for _, c := range all {
		if filters != nil && !filters.matches(c) {
			continue
		}
		selected = append(selected, c)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].CreatedAt.Before(selected[j].CreatedAt)
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, selected, namespace)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, selected); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
