package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/parley/internal/events"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchConversation string
	watchNATS         bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream messages as agents exchange them",
	Long: `Stream every message appended to a conversation in real time.

Events come from Redis Pub/Sub on the configured namespace, or from NATS with
--nats (events.nats_url).

Output Formats:
  default - One human-readable line per message
  json    - Line-delimited JSON events

Examples:
  parley watch
  parley watch --conversation 3f2a9c1e-... --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringVar(&watchConversation, "conversation", "", "Only show messages of this conversation id")
	watchCmd.Flags().BoolVar(&watchNATS, "nats", false, "Subscribe through NATS instead of Redis")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var src watch.Source
	if watchNATS {
		if cfg.Events.NATSURL == "" {
			return printer.Error("no NATS server configured", "events.nats_url is empty.", []string{"Set events.nats_url to the server the runs publish to"})
		}
		pub, err := events.Connect(cfg.Events.NATSURL, nil)
		if err != nil {
			return printer.Error("NATS connection failed", err.Error(), nil)
		}
		defer pub.Close()
		if src, err = watch.FromNATS(pub); err != nil {
			return err
		}
	} else {
		store, err := openRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		sub, err := store.Subscribe(ctx)
		if err != nil {
			return err
		}
		src = sub
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching namespace '%s' (Ctrl+C to stop)\n", cfg.Namespace)
	return watch.Stream(ctx, src, format, watchConversation, cmd.OutOrStdout())
}
