package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/llm"
)

var hintTank string

var hintCmd = &cobra.Command{
	Use:   "hint",
	Short: "Ask the tank's LLM where the next contribution could go",
	Args:  cobra.NoArgs,
	RunE:  runHint,
}

var askTank string

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Ask the tank's LLM a question about the idea and its digest",
	Long: `Ask a free-form question answered from the tank's idea and current digest.

Example:
  thinktank ask --tank 0xabc... "What is still unresolved?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	hintCmd.Flags().StringVarP(&hintTank, "tank", "t", "", "Tank contract address (default: chain.default_tank)")
	askCmd.Flags().StringVarP(&askTank, "tank", "t", "", "Tank contract address (default: chain.default_tank)")
	rootCmd.AddCommand(hintCmd)
	rootCmd.AddCommand(askCmd)
}

func runHint(cmd *cobra.Command, args []string) error {
	return withTankEngine(hintTank, func(ctx context.Context, engine *llm.Engine, snap *chain.Snapshot) (string, error) {
		return engine.Hint(ctx, snap.State.Idea, snap.Digest)
	}, cmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	return withTankEngine(askTank, func(ctx context.Context, engine *llm.Engine, snap *chain.Snapshot) (string, error) {
		return engine.Reason(ctx, snap.State.Idea, snap.Digest, question)
	}, cmd)
}

// withTankEngine snapshots the tank, points the engine at the tank's LLM and
// prints what fn returns
func withTankEngine(tankFlag string, fn func(context.Context, *llm.Engine, *chain.Snapshot) (string, error), cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tank, err := tankAddress(tankFlag, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.reader.Snapshot(ctx, tank)
	if err != nil {
		return renderFailure("request", err)
	}

	engine := a.engine.WithTarget(llm.Target{
		BaseURL: snap.State.LLMURL,
		Model:   snap.Config.Model,
		APIKey:  snap.Config.APIKey,
	})

	answer, err := fn(ctx, engine, snap)
	if err != nil {
		return renderFailure("request", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}
