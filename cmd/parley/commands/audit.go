package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/parley/internal/audit"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/pkg/conversation"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit [CONVERSATION_ID]",
	Short: "Read conversation snapshots from the audit database",
	Long: `Read the conversation snapshots written to audit.sqlite_path.

Without an argument every snapshot is listed. With a full conversation id the
snapshot's messages are printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.SQLitePath == "" {
		return printer.Error("audit disabled", "audit.sqlite_path is not set.", []string{"Set audit.sqlite_path in the configuration and run again"})
	}

	sink, err := audit.NewSQLiteSink(cfg.Audit.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open audit database: %w", err)
	}
	defer sink.Close()

	ctx := context.Background()
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		entry, err := sink.Snapshot(ctx, args[0])
		if err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				return printer.Error("snapshot not found", err.Error(), []string{"List snapshots:\n  parley audit"})
			}
			return err
		}
		fmt.Fprintf(w, "Conversation %s\nTopic: %s\nUpdated: %s\n", entry.Snapshot.ConversationID, entry.Snapshot.Topic, entry.UpdatedAt.Format(time.RFC3339))
		for i, m := range entry.Snapshot.Messages {
			fmt.Fprintf(w, "\n[%d] %s -> %s (%s)\n    %s\n", i+1, m.Sender, m.Recipient, m.Type, m.Content)
		}
		return nil
	}

	entries, err := sink.Snapshots(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No snapshots recorded")
		return nil
	}
	fmt.Fprintf(w, "%-36s %-5s %-20s %s\n", "CONVERSATION", "MSGS", "UPDATED", "TOPIC")
	for _, e := range entries {
		fmt.Fprintf(w, "%-36s %-5d %-20s %s\n", e.Snapshot.ConversationID, len(e.Snapshot.Messages), e.UpdatedAt.Format(time.RFC3339), e.Snapshot.Topic)
	}
	return nil
}
