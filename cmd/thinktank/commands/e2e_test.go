//go:build integration
// +build integration

package commands

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/pipeline"
	"github.com/dyluth/thinktank/internal/testutil"
	"github.com/dyluth/thinktank/internal/txbuilder"
	"github.com/dyluth/thinktank/internal/vault"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// TestE2E_SubmitThenInspectHistory runs accepted and rejected notes through the
// pipeline against a Docker blackboard, then reads them back with the CLI.
func TestE2E_SubmitThenInspectHistory(t *testing.T) {
	env := testutil.SetupE2EEnvironment(t)
	_, _ = capture(t)

	tank := common.HexToAddress("0x1111111111111111111111111111111111111111")
	contributor := common.HexToAddress("0x2222222222222222222222222222222222222222")
	policyIDs := []string{"QmEval", "QmDigest", "QmHint"}

	local, err := capability.GenerateLocal()
	require.NoError(t, err)
	gw := vault.New(local, local, "", nil)
	caller := testutil.SeedTank(t, gw, tank, "Open protocol for lab notebooks", "Notebooks as signed logs.", "http://llm.invalid/v1", policyIDs)

	builder, err := txbuilder.New(local, txbuilder.Config{
		ChainID:  big.NewInt(1337),
		GasLimit: 1_000_000,
		GasPrice: big.NewInt(1_000_000),
		KeyID:    local.KeyID(),
		Probe:    true,
	}, nil)
	require.NoError(t, err)

	newOrchestrator := func(model llm.Backend) *pipeline.Orchestrator {
		orch, err := pipeline.New(pipeline.Deps{
			Reader:   chain.NewReader(caller, gw, 5*time.Second, nil),
			Engine:   llm.NewEngine(model, 5*time.Second, nil),
			Vault:    gw,
			Builder:  builder,
			Locker:   env.Board,
			Recorder: env.Board,
		}, pipeline.Config{RemoteCallTimeout: 5 * time.Second, LockTTL: time.Minute})
		require.NoError(t, err)
		return orch
	}

	accepted, err := newOrchestrator(testutil.ScriptedModel(8, "accept", "Notebooks as signed logs; entries are content addressed.")).
		Run(env.Ctx, pipeline.Submission{Tank: tank, Contributor: contributor, Note: "Content-address every entry."})
	require.NoError(t, err)
	require.Equal(t, pipeline.StateVerified, accepted.State)

	rejected, err := newOrchestrator(testutil.ScriptedModel(2, "reject", "")).
		Run(env.Ctx, pipeline.Submission{Tank: tank, Contributor: contributor, Note: "Nice idea!"})
	require.NoError(t, err)
	require.Equal(t, pipeline.StateRejected, rejected.State)

	recorded := env.WaitForSubmission(func(s *blackboard.Submission) bool { return s.ID == accepted.ID })
	assert.Equal(t, accepted.Transaction.TxHash.Hex(), recorded.TxHash)

	t.Run("get by short ID", func(t *testing.T) {
		output, err := execute(t, "history", "--name", env.InstanceName, accepted.ID[:8])
		require.NoError(t, err)

		var got blackboard.Submission
		require.NoError(t, json.Unmarshal([]byte(output), &got))
		assert.Equal(t, accepted.ID, got.ID)
		assert.Equal(t, accepted.NewDigestHash, got.NewDigestHash)
	})

	t.Run("list rejections as jsonl", func(t *testing.T) {
		output, err := execute(t, "history", "--name", env.InstanceName, "--verdict", "reject", "-o", "jsonl")
		require.NoError(t, err)
		assert.Contains(t, output, rejected.ID)
		assert.NotContains(t, output, accepted.ID)
	})

	t.Run("verify the recorded transaction", func(t *testing.T) {
		out, _ := capture(t)
		_, err := execute(t, "verify", "--chain-id", "1337", accepted.Transaction.SignedTx)
		require.NoError(t, err)
		assert.Contains(t, out.String(), local.Address().Hex())
	})
}

// TestE2E_UpDown starts and removes an instance through the CLI.
func TestE2E_UpDown(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _ := capture(t)
	name := "test-e2e-updown-" + time.Now().Format("150405")

	output, err := execute(t, "up", "--name", name)
	require.NoError(t, err)
	assert.Contains(t, output, "redis_url: redis://")
	assert.Contains(t, out.String(), "started")

	_, err = execute(t, "up", "--name", name)
	assert.EqualError(t, err, "instance '"+name+"' already exists")

	_, err = execute(t, "down", "--name", name)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "removed")

	_, err = execute(t, "down", "--name", name)
	assert.EqualError(t, err, "instance '"+name+"' not found")
}
