package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/filter"
	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/watch"
)

var (
	watchInstanceName string
	watchOutputFormat string
	watchTank         string
	watchContributor  string
	watchVerdict      string
	watchFailed       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream submissions as they are recorded",
	Long: `Stream submissions from the blackboard in real time.

Every run recorded by 'thinktank submit' or 'thinktank serve' appears as it
finishes. Press Ctrl+C to stop.

Examples:
  thinktank watch
  thinktank watch --tank 0xabc... --verdict accept
  thinktank watch -o json | jq .txHash`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInstanceName, "name", "n", "", "Local instance name (default: the configured blackboard)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format: default or json")
	watchCmd.Flags().StringVarP(&watchTank, "tank", "t", "", "Filter by tank address")
	watchCmd.Flags().StringVar(&watchContributor, "contributor", "", "Filter by contributor address")
	watchCmd.Flags().StringVar(&watchVerdict, "verdict", "", "Filter by verdict: accept, reject or error")
	watchCmd.Flags().BoolVar(&watchFailed, "failed", false, "Only show runs that failed")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	format := watch.OutputFormat(watchOutputFormat)
	if format != watch.OutputFormatDefault && format != watch.OutputFormatJSON {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	board, err := openBoard(ctx, watchInstanceName)
	if err != nil {
		return err
	}
	defer board.Close()

	if format == watch.OutputFormatDefault {
		printer.Info("Watching submissions on '%s' (Ctrl+C to stop)...\n", board.InstanceName())
	}

	criteria := &filter.Criteria{
		Tank:        watchTank,
		Contributor: watchContributor,
		Verdict:     watchVerdict,
		FailedOnly:  watchFailed,
	}
	if err := watch.Stream(ctx, board, criteria, format, cmd.OutOrStdout(), os.Stderr); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}
	return nil
}
