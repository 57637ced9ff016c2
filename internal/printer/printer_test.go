package printer

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/pipeline"
	"github.com/dyluth/thinktank/internal/txbuilder"
)

// capture redirects Out and ErrOut and disables colors for the test.
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr, prevNoColor := Out, ErrOut, color.NoColor
	Out, ErrOut, color.NoColor = &out, &errOut, true
	t.Cleanup(func() { Out, ErrOut, color.NoColor = prevOut, prevErr, prevNoColor })
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "This is a test error")
	})

	t.Run("single suggestion is printed bare", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "\nTry this fix\n")
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)
		err := Error("Test Error", "Explanation", []string{"First option", "Second option"})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errOut.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)
	err := ErrorWithContext("Test Error", "Explanation", map[string]string{
		"Tank":     "0x1111",
		"Instance": "default",
	}, nil)
	require.Equal(t, "Test Error", err.Error())
	assert.Contains(t, errOut.String(), "  Instance: default\n  Tank: 0x1111\n")
}

func TestSuccessAndWarningPrefixes(t *testing.T) {
	out, _ := capture(t)
	Success("done\n")
	Success("✓ already prefixed\n")
	Warning("careful\n")
	assert.Equal(t, "✓ done\n✓ already prefixed\n⚠️  careful\n", out.String())
}

func TestOutcome_Rejected(t *testing.T) {
	out, _ := capture(t)
	Outcome(&pipeline.Outcome{
		ID:    "sub-1",
		State: pipeline.StateRejected,
		Evaluation: &llm.Evaluation{
			Criteria:      llm.Criteria{Relevance: 4, Novelty: 1, Depth: 2, Clarity: 6, Impact: 1},
			WeightedScore: 2.8,
			Verdict:       llm.VerdictReject,
			Justification: "Restates existing points.",
		},
	})

	s := out.String()
	assert.Contains(t, s, "weighted    2.8")
	assert.Contains(t, s, "verdict    reject")
	assert.Contains(t, s, "Restates existing points.")
	assert.Contains(t, s, "Note rejected")
	assert.NotContains(t, s, "tx hash")
}

func TestOutcome_Verified(t *testing.T) {
	out, _ := capture(t)
	Outcome(&pipeline.Outcome{
		ID:            "sub-2",
		State:         pipeline.StateVerified,
		Evaluation:    &llm.Evaluation{WeightedScore: 7.5, Verdict: llm.VerdictAccept},
		NoteHash:      "nh",
		NewDigestHash: "dh",
		Transaction: &txbuilder.Result{
			SignedTx: "0xf8",
			TxHash:   common.HexToHash("0x01"),
			Signer:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
			ChainID:  big.NewInt(84532),
		},
	})

	s := out.String()
	assert.Contains(t, s, "transaction verified")
	assert.Contains(t, s, "chain id     84532")
	assert.Contains(t, s, "digest hash  - -> dh")
	assert.Contains(t, s, "0xf8")
}

func TestBar(t *testing.T) {
	assert.Equal(t, "██████████", bar(10))
	assert.Equal(t, "··········", bar(0))
	assert.Equal(t, "████······", bar(3.5))
}

func TestKeyValues(t *testing.T) {
	out, _ := capture(t)
	KeyValues(map[string]string{"idea": "libraries", "llm url": "https://x"})
	assert.Equal(t, "  idea     libraries\n  llm url  https://x\n", out.String())
}
