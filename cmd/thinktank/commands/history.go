package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/filter"
	"github.com/dyluth/thinktank/internal/history"
	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/resolver"
	"github.com/dyluth/thinktank/internal/timespec"
)

var (
	historyInstanceName string
	historyOutputFormat string
	historySince        string
	historyUntil        string
	historyTank         string
	historyContributor  string
	historyState        string
	historyVerdict      string
	historyFailed       bool
	historyLimit        int
)

var historyCmd = &cobra.Command{
	Use:   "history [SUBMISSION_ID]",
	Short: "Inspect recorded submissions with filtering",
	Long: `Inspect submissions recorded on the blackboard in list or get mode.

List Mode (no SUBMISSION_ID):
  Displays submissions matching filters as a table or JSONL stream.

Get Mode (with SUBMISSION_ID):
  Displays one submission as pretty-printed JSON.
  Supports short IDs (e.g., "3f2f0d" instead of the full UUID).

Examples:
  # Recent submissions
  thinktank history

  # Rejections against one tank in the last day
  thinktank history --tank 0xabc... --verdict reject --since 1d

  # Failed runs that reached signing, as JSONL
  thinktank history --failed --state 'sign*' -o jsonl | jq .error

  # One submission by short ID
  thinktank history 3f2f0d`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyInstanceName, "name", "n", "", "Local instance name (default: the configured blackboard)")
	historyCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")

	// Time-based filters
	historyCmd.Flags().StringVar(&historySince, "since", "", "Show submissions after time (duration, Nd or RFC3339)")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "Show submissions before time (duration, Nd or RFC3339)")

	// Content-based filters
	historyCmd.Flags().StringVarP(&historyTank, "tank", "t", "", "Filter by tank address")
	historyCmd.Flags().StringVar(&historyContributor, "contributor", "", "Filter by contributor address")
	historyCmd.Flags().StringVar(&historyState, "state", "", "Filter by state reached (glob pattern)")
	historyCmd.Flags().StringVar(&historyVerdict, "verdict", "", "Filter by verdict: accept, reject or error")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only show runs that failed")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Show at most this many submissions (0 = all)")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	isGetMode := len(args) > 0

	var outputFormat history.OutputFormat
	if !isGetMode {
		switch historyOutputFormat {
		case "default":
			outputFormat = history.OutputFormatDefault
		case "jsonl":
			outputFormat = history.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", historyOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}
	}

	board, err := openBoard(ctx, historyInstanceName)
	if err != nil {
		return err
	}
	defer board.Close()

	out := cmd.OutOrStdout()

	if isGetMode {
		shortID := args[0]

		fullID, err := resolver.ResolveSubmissionID(ctx, board, shortID)
		if err != nil {
			var notFound *resolver.NotFoundError
			var ambiguous *resolver.AmbiguousError
			switch {
			case errors.As(err, &notFound):
				return printer.Error(
					fmt.Sprintf("submission with ID '%s' not found", shortID),
					"The specified submission does not exist on the blackboard.",
					[]string{"List recent submissions:\n  thinktank history"},
				)
			case errors.As(err, &ambiguous):
				fmt.Fprintln(os.Stderr, ambiguous.Describe())
				return fmt.Errorf("ambiguous short ID")
			}
			return fmt.Errorf("failed to resolve submission ID: %w", err)
		}

		if err := history.Get(ctx, board, fullID, out); err != nil {
			var notFound *history.NotFoundError
			if errors.As(err, &notFound) {
				return printer.Error(
					fmt.Sprintf("submission with ID '%s' not found", fullID),
					"The submission was resolved but could not be fetched.",
					[]string{"This might indicate an expired record. Try again."},
				)
			}
			return fmt.Errorf("failed to get submission: %w", err)
		}
		return nil
	}

	sinceMS, untilMS, err := timespec.ParseRange(historySince, historyUntil)
	if err != nil {
		return printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration like '1h30m', a day count like '2d' or RFC3339 like '2025-10-29T13:00:00Z'"},
		)
	}

	criteria := &filter.Criteria{
		SinceTimestampMs: sinceMS,
		UntilTimestampMs: untilMS,
		Tank:             historyTank,
		Contributor:      historyContributor,
		StateGlob:        historyState,
		Verdict:          historyVerdict,
		FailedOnly:       historyFailed,
	}

	if err := history.List(ctx, board, outputFormat, criteria, historyLimit, out); err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}
	return nil
}
