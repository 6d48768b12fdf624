package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/timespec"
	"github.com/dyluth/parley/internal/transcript"
	"github.com/spf13/cobra"
)

var (
	listOutputFormat string
	listSince        string
	listUntil        string
	listTopic        string
	listAgent        string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations with filtering",
	Long: `List the conversations in the configured namespace.

Output Formats:
  default - Human-readable table with ID, status, message count and topic
  jsonl   - Line-delimited JSON, one conversation (with messages) per line

Filters:
  --since  - Conversations created after this time (duration or RFC3339)
  --until  - Conversations created before this time
  --topic  - Topic glob pattern ("Collaboration*")
  --agent  - Agent name that sent or received a message

Examples:
  parley list --since=2h
  parley list --agent=Critic --output=jsonl | jq '.messages | length'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	listCmd.Flags().StringVar(&listSince, "since", "", "Show conversations after time (duration or RFC3339)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Show conversations before time (duration or RFC3339)")
	listCmd.Flags().StringVar(&listTopic, "topic", "", "Filter by topic (glob pattern)")
	listCmd.Flags().StringVar(&listAgent, "agent", "", "Filter by participating agent name")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	var format transcript.OutputFormat
	switch listOutputFormat {
	case "default":
		format = transcript.OutputFormatDefault
	case "jsonl":
		format = transcript.OutputFormatJSONL
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", listOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	window, err := timespec.ParseRange(listSince, listUntil, time.Now())
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), []string{"Use a duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z'"})
	}

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

	filters := &transcript.FilterCriteria{Window: window, TopicGlob: listTopic, Participant: listAgent}
	return transcript.ListConversations(ctx, store, cfg.Namespace, format, filters, cmd.OutOrStdout())
}
