package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/pipeline"
	"github.com/dyluth/thinktank/internal/printer"
)

var (
	submitTank        string
	submitContributor string
	submitJSON        bool
)

var submitCmd = &cobra.Command{
	Use:   "submit NOTE",
	Short: "Score a note and, if accepted, build the signed addNote transaction",
	Long: `Submit a note against a tank.

The note is scored against the tank's idea and current digest. A rejected note
stops there. An accepted note is merged into a new digest, both are encrypted
under the tank's policy, and a signed addNote transaction is printed.

thinktank never broadcasts the transaction.

Pass "-" as NOTE to read the note from stdin.

Examples:
  thinktank submit --tank 0xabc... --contributor 0xdef... "Use a bloom filter"
  cat note.txt | thinktank submit --tank 0xabc... --contributor 0xdef... -
  thinktank submit --json ... | jq -r .transaction.signedTx`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitTank, "tank", "t", "", "Tank contract address (default: chain.default_tank)")
	submitCmd.Flags().StringVar(&submitContributor, "contributor", "", "Contributor address credited in the transaction")
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "Print the outcome as JSON")
	submitCmd.MarkFlagRequired("contributor")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	note, err := readNote(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	if !common.IsHexAddress(submitContributor) {
		return printer.Error(
			"invalid contributor address",
			fmt.Sprintf("%q is not a valid address.", submitContributor),
			nil,
		)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tank, err := tankAddress(submitTank, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if !submitJSON {
		printer.Step("Submitting note to tank %s...\n", tank.Hex())
	}

	outcome, err := a.pipeline.Run(ctx, pipeline.Submission{
		Tank:        tank,
		Contributor: common.HexToAddress(submitContributor),
		Note:        note,
	})
	if err != nil {
		return renderFailure("submission", err)
	}

	if submitJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	printer.Outcome(outcome)
	return nil
}

// readNote returns arg, or stdin when arg is "-"
func readNote(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read note from stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
