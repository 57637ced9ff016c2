package commands

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/config"
	"github.com/dyluth/thinktank/internal/failure"
	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/scaffold"
	"github.com/dyluth/thinktank/internal/txbuilder"
)

// capture redirects printer output and disables colors for the test.
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr, prevNoColor := printer.Out, printer.ErrOut, color.NoColor
	printer.Out, printer.ErrOut, color.NoColor = &out, &errOut, true
	t.Cleanup(func() { printer.Out, printer.ErrOut, color.NoColor = prevOut, prevErr, prevNoColor })
	return &out, &errOut
}

// execute runs rootCmd with args, capturing cobra's own output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := Execute()
	return buf.String(), err
}

func TestRootCommand_ShowsHelpWhenNoSubcommand(t *testing.T) {
	output, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, output, "Usage:")
	for _, sub := range []string{"submit", "read", "hint", "ask", "verify", "serve", "history", "watch", "up", "down", "init"} {
		assert.Contains(t, output, sub)
	}
}

func TestRootCommand_RejectsUnknownFlags(t *testing.T) {
	_, err := execute(t, "--goal", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2025-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2025-01-01)", rootCmd.Version)
}

func TestReadNote(t *testing.T) {
	note, err := readNote("inline note", nil)
	require.NoError(t, err)
	assert.Equal(t, "inline note", note)

	note, err = readNote("-", strings.NewReader("from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", note)
}

func TestTankAddress(t *testing.T) {
	_, _ = capture(t)
	cfg := &config.ThinktankConfig{Chain: config.ChainConfig{DefaultTank: "0x1111111111111111111111111111111111111111"}}

	addr, err := tankAddress("", cfg)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), addr)

	addr, err = tankAddress("0x2222222222222222222222222222222222222222", cfg)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), addr)

	_, err = tankAddress("not-an-address", cfg)
	assert.EqualError(t, err, "invalid tank address")

	_, err = tankAddress("", &config.ThinktankConfig{})
	assert.EqualError(t, err, "no tank specified")
}

func TestRenderFailure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantTitle  string
		wantAdvice string
	}{
		{
			name:       "tank busy",
			err:        failure.Newf(failure.KindTankBusy, "pipeline.lock", "held"),
			wantTitle:  "submission failed: tank_busy",
			wantAdvice: "Retry shortly",
		},
		{
			name:       "network",
			err:        failure.New(failure.KindNetwork, "llm.Evaluate", context.DeadlineExceeded),
			wantTitle:  "submission failed: network",
			wantAdvice: "timeouts.remote_call",
		},
		{
			name:      "unclassified",
			err:       errors.New("boom"),
			wantTitle: "submission failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut := capture(t)
			err := renderFailure("submission", tt.err)
			assert.EqualError(t, err, tt.wantTitle)
			if tt.wantAdvice != "" {
				assert.Contains(t, errOut.String(), tt.wantAdvice)
			}
		})
	}
}

func TestVerifyCommand(t *testing.T) {
	local, err := capability.GenerateLocal()
	require.NoError(t, err)

	builder, err := txbuilder.New(local, txbuilder.Config{
		ChainID:  big.NewInt(1337),
		GasLimit: 1_000_000,
		GasPrice: big.NewInt(1_000_000),
		KeyID:    local.KeyID(),
		Probe:    true,
	}, nil)
	require.NoError(t, err)

	res, err := builder.Build(context.Background(), txbuilder.Request{
		Contract:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Contributor:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Note:          capability.Ciphertext{Data: "note-ct", Hash: "note-hash"},
		Digest:        capability.Ciphertext{Data: "digest-ct", Hash: "digest-hash"},
		Score:         80,
		IdeaSignature: []byte{0x01},
	})
	require.NoError(t, err)

	t.Run("matching chain", func(t *testing.T) {
		out, _ := capture(t)
		_, err := execute(t, "verify", "--chain-id", "1337", res.SignedTx)
		require.NoError(t, err)
		assert.Contains(t, out.String(), local.Address().Hex())
		assert.Contains(t, out.String(), "digest-hash")
		assert.Contains(t, out.String(), "80")
	})

	t.Run("foreign chain", func(t *testing.T) {
		_, errOut := capture(t)
		_, err := execute(t, "verify", "--chain-id", "1", res.SignedTx)
		assert.EqualError(t, err, "verification failed")
		assert.Contains(t, errOut.String(), "chain id: 1")
	})

	t.Run("bad hex", func(t *testing.T) {
		_, _ = capture(t)
		_, err := execute(t, "verify", "--chain-id", "1337", "zz")
		assert.EqualError(t, err, "invalid transaction hex")
	})
}

func TestInitCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _ = capture(t)

	output, err := execute(t, "init")
	require.NoError(t, err)
	assert.Contains(t, output, "Successfully initialized thinktank")

	cfg, err := config.Load(scaffold.ConfigFile)
	require.NoError(t, err)
	assert.Equal(t, config.CapabilityModeLocal, cfg.Capability.Mode)

	_, err = execute(t, "init")
	assert.EqualError(t, err, "initialization failed")

	_, err = os.Stat(scaffold.ConfigFile)
	require.NoError(t, err)
}
