package commands

import (
	"context"
	"errors"

	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/resolver"
	"github.com/dyluth/parley/internal/transcript"
	"github.com/spf13/cobra"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history CONVERSATION_ID",
	Short: "Show the messages of one conversation",
	Long: `Show the ordered messages of one conversation.

CONVERSATION_ID may be a short prefix of at least 6 characters.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the conversation as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openRedisStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := resolver.ResolveConversationID(ctx, store, args[0])
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		switch {
		case errors.As(err, &ambiguous):
			return printer.Error("ambiguous conversation id", resolver.FormatAmbiguousError(ambiguous), nil)
		case resolver.IsNotFoundError(err):
			return printer.Error("conversation not found", err.Error(), []string{"List conversations:\n  parley list"})
		default:
			return printer.Error("invalid conversation id", err.Error(), nil)
		}
	}

	if err := transcript.ShowConversation(ctx, store, id, historyJSON, cmd.OutOrStdout()); err != nil {
		if transcript.IsNotFound(err) {
			return printer.Error("conversation not found", err.Error(), nil)
		}
		return err
	}
	return nil
}
