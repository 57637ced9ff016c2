package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/printer"
)

var (
	readTank    string
	readDecrypt bool
	readJSON    bool
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Show a tank's on-chain state",
	Long: `Read a tank's idea, LLM URL, policy actions and digest hash.

With --decrypt the digest is decrypted through the capability network and
printed. Only use this where the plaintext digest may be shown.`,
	Args: cobra.NoArgs,
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readTank, "tank", "t", "", "Tank contract address (default: chain.default_tank)")
	readCmd.Flags().BoolVar(&readDecrypt, "decrypt", false, "Decrypt and print the current digest")
	readCmd.Flags().BoolVar(&readJSON, "json", false, "Print the state as JSON")
	rootCmd.AddCommand(readCmd)
}

// tankView is the printable tank state. Digest is set only with --decrypt.
type tankView struct {
	Address    string   `json:"address"`
	Idea       string   `json:"idea"`
	IdeaHash   string   `json:"ideaHash"`
	LLMURL     string   `json:"llmUrl"`
	DigestHash string   `json:"digestHash"`
	ConfigHash string   `json:"configHash"`
	PolicyIDs  []string `json:"policyIds"`
	Digest     string   `json:"digest,omitempty"`
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tank, err := tankAddress(readTank, cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.reader.Read(ctx, tank)
	if err != nil {
		return renderFailure("tank read", err)
	}

	view := tankView{
		Address:    state.Address.Hex(),
		Idea:       state.Idea,
		IdeaHash:   state.IdeaHash().Hex(),
		LLMURL:     state.LLMURL,
		DigestHash: state.Digest.Hash,
		ConfigHash: state.Config.Hash,
		PolicyIDs:  state.PolicyIDs,
	}
	if readDecrypt {
		digest, err := a.reader.Digest(ctx, state)
		if err != nil {
			return renderFailure("tank read", err)
		}
		view.Digest = digest
	}

	if readJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	printer.KeyValues(map[string]string{
		"address":     view.Address,
		"idea":        view.Idea,
		"idea hash":   view.IdeaHash,
		"llm url":     view.LLMURL,
		"digest hash": dashIfEmpty(view.DigestHash),
		"config hash": dashIfEmpty(view.ConfigHash),
		"policy ids":  strings.Join(view.PolicyIDs, ", "),
	})
	if readDecrypt {
		printer.Info("Digest:\n")
		fmt.Fprintln(cmd.OutOrStdout(), view.Digest)
	}
	return nil
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
