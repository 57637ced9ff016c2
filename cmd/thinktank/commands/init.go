package commands

import (
	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/scaffold"
)

var (
	initForce         bool
	initMode          string
	initRPCURL        string
	initChainID       uint64
	initCapabilityURL string
	initKeyID         string
	initRedisURL      string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter thinktank.yml",
	Long: `Write thinktank.yml in the current directory.

In local mode (the default) a fresh development key and secret are generated and
written into the file; the printed signer address must be funded on your dev
chain. In http mode the file points at a threshold network gateway and
--key-id names the signing key.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing thinktank.yml")
	initCmd.Flags().StringVar(&initMode, "capability", "local", "Capability mode: local or http")
	initCmd.Flags().StringVar(&initRPCURL, "rpc-url", scaffold.DefaultRPCURL, "Chain JSON-RPC URL")
	initCmd.Flags().Uint64Var(&initChainID, "chain-id", scaffold.DefaultChainID, "Chain ID")
	initCmd.Flags().StringVar(&initCapabilityURL, "capability-url", scaffold.DefaultCapabilityURL, "Threshold network gateway URL (http mode)")
	initCmd.Flags().StringVar(&initKeyID, "key-id", "", "Signing key ID (http mode)")
	initCmd.Flags().StringVar(&initRedisURL, "redis-url", scaffold.DefaultRedisURL, "Blackboard Redis URL")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	res, err := scaffold.Initialize(".", scaffold.Options{
		Force:          initForce,
		CapabilityMode: initMode,
		RPCURL:         initRPCURL,
		ChainID:        initChainID,
		CapabilityURL:  initCapabilityURL,
		KeyID:          initKeyID,
		RedisURL:       initRedisURL,
	}, cmd.OutOrStdout())
	if err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(cmd.OutOrStdout(), res)
	return nil
}
