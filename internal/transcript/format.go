package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/parley/pkg/conversation"
)

// FormatTable writes conversations as a table: ID, STATUS, MSGS, AGE and TOPIC.
// Returns the number of conversations formatted.
func FormatTable(w io.Writer, conversations []*conversation.Conversation, namespace string) int {
	if len(conversations) == 0 {
		fmt.Fprintf(w, "No conversations found in namespace '%s'\n", namespace)
		return 0
	}

	fmt.Fprintf(w, "Conversations in namespace '%s':\n\n", namespace)

	fmt.Fprintf(w, "%-10s %-10s %-5s %-8s %s\n", "ID", "STATUS", "MSGS", "AGE", "TOPIC")
	fmt.Fprintf(w, "%-10s %-10s %-5s %-8s %s\n",
		"----------", "----------", "-----", "--------", "----------------------------------------")

	for _, c := range conversations {
		fmt.Fprintf(w, "%-10s %-10s %-5d %-8s %s\n",
			formatID(c.ID),
			c.Status,
			len(c.Messages),
			formatAge(c.CreatedAt, time.Now()),
			truncate(firstLine(c.Topic), 40),
		)
	}

	noun := "conversation"
	if len(conversations) != 1 {
		noun = "conversations"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(conversations), noun)

	return len(conversations)
}

// FormatJSONL writes each conversation as one compact JSON object per line.
func FormatJSONL(w io.Writer, conversations []*conversation.Conversation) error {
	for _, c := range conversations {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one conversation as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, c *conversation.Conversation) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// FormatTranscript writes the conversation as a readable message log.
func FormatTranscript(w io.Writer, c *conversation.Conversation) {
	fmt.Fprintf(w, "Conversation %s (%s)\n", c.ID, c.Status)
	fmt.Fprintf(w, "Topic: %s\n", c.Topic)

	if len(c.Messages) == 0 {
		fmt.Fprintf(w, "\n(no messages)\n")
		return
	}

	for i, m := range c.Messages {
		fmt.Fprintf(w, "\n[%d] %s  %s -> %s  (%s)\n", i+1, m.Timestamp.UTC().Format(time.RFC3339), m.Sender, m.Recipient, m.Type)
		if m.RelatedTo != "" {
			fmt.Fprintf(w, "    re: %s\n", formatID(m.RelatedTo))
		}
		for _, line := range strings.Split(m.Content, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

// FormatMessageLine renders one message as a single line, for streaming output.
func FormatMessageLine(conversationID string, m conversation.Message) string {
	return fmt.Sprintf("[%s] %s %s -> %s (%s): %s",
		m.Timestamp.Format("15:04:05"),
		formatID(conversationID),
		m.Sender,
		m.Recipient,
		m.Type,
		truncate(firstLine(m.Content), 60),
	)
}

// formatID truncates ids to 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return "-"
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// formatAge renders the time since t, e.g. "2m ago".
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
