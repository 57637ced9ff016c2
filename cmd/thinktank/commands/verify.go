package commands

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/txbuilder"
)

var verifyChainID uint64

var verifyCmd = &cobra.Command{
	Use:   "verify SIGNED_TX",
	Short: "Re-check a signed transaction and show its signer and arguments",
	Long: `Decode a 0x-prefixed signed transaction, recover its signer twice and
show the addNote arguments it carries.

The chain ID comes from --chain-id or, when omitted, from chain.chain_id in the
configuration file.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().Uint64Var(&verifyChainID, "chain-id", 0, "Chain ID the transaction must be signed for")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	raw, err := hexutil.Decode(strings.TrimSpace(args[0]))
	if err != nil {
		return printer.Error(
			"invalid transaction hex",
			"SIGNED_TX must be 0x-prefixed hex.",
			nil,
		)
	}

	chainID := verifyChainID
	if chainID == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		chainID = cfg.Chain.ChainID
	}

	verified, err := txbuilder.Verify(raw, new(big.Int).SetUint64(chainID))
	if err != nil {
		return printer.ErrorWithContext(
			"verification failed",
			err.Error(),
			map[string]string{"chain id": fmt.Sprint(chainID)},
			nil,
		)
	}

	values := map[string]string{
		"tx hash":  verified.Hash.Hex(),
		"signer":   verified.Signer.Hex(),
		"chain id": fmt.Sprint(chainID),
		"nonce":    fmt.Sprint(verified.Tx.Nonce()),
		"gas":      fmt.Sprint(verified.Tx.Gas()),
	}
	if to := verified.Tx.To(); to != nil {
		values["to"] = to.Hex()
	}
	if call, err := chain.UnpackAddNote(verified.Tx.Data()); err == nil {
		values["contributor"] = call.Contributor.Hex()
		values["score"] = call.Score.String()
		values["note hash"] = call.NoteHash
		values["digest hash"] = call.NewDigestHash
	} else {
		logger.Debug("transaction data is not an addNote call")
	}

	printer.Success("Transaction verified\n")
	printer.KeyValues(values)
	return nil
}
