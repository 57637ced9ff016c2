package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/chain/chaintest"
	"github.com/dyluth/thinktank/internal/failure"
	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/txbuilder"
	"github.com/dyluth/thinktank/internal/vault"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

var (
	testTank        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testContributor = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testPolicyIDs   = []string{"QmEval", "QmDigest", "QmHint"}
	testChainID     = big.NewInt(84532)
)

const (
	testIdea   = "Decentralised public libraries"
	testDigest = "Libraries as DAOs; lending tracked on-chain."
)

// fakeModel answers evaluation and digest prompts with canned JSON.
type fakeModel struct {
	score       float64
	verdict     string
	digest      string
	evaluations atomic.Int32
	digests     atomic.Int32
}

func (m *fakeModel) Complete(ctx context.Context, req llm.Request) (string, error) {
	switch {
	case strings.Contains(req.System, "evaluator"):
		m.evaluations.Add(1)
		return fmt.Sprintf(`{"evaluation":{"criteria":{"relevance":%[1]v,"novelty":%[1]v,"depth":%[1]v,"clarity":%[1]v,"impact":%[1]v},"weightedScore":%[1]v,"verdict":%[2]q,"justification":"ok"}}`,
			m.score, m.verdict), nil
	case strings.Contains(req.System, "digest"):
		m.digests.Add(1)
		raw, _ := json.Marshal(map[string]string{"digest": m.digest})
		return string(raw), nil
	}
	return "", fmt.Errorf("unexpected prompt")
}

// countingSigner counts signing requests made against a Local capability.
type countingSigner struct {
	*capability.Local
	signs atomic.Int32
	block bool
	delay time.Duration
}

func (s *countingSigner) Sign(ctx context.Context, digest []byte, keyID string) (capability.Signature, error) {
	s.signs.Add(1)
	if s.block {
		<-ctx.Done()
		return capability.Signature{}, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return capability.Signature{}, ctx.Err()
		}
	}
	return s.Local.Sign(ctx, digest, keyID)
}

// countingEncrypter counts encryption requests made against a Local capability.
type countingEncrypter struct {
	*capability.Local
	encrypts atomic.Int32
}

func (e *countingEncrypter) Encrypt(ctx context.Context, policy capability.Policy, plaintext []byte) (capability.Ciphertext, error) {
	e.encrypts.Add(1)
	return e.Local.Encrypt(ctx, policy, plaintext)
}

type fixture struct {
	caller    *chaintest.Caller
	local     *capability.Local
	signer    *countingSigner
	encrypter *countingEncrypter
	vault     *vault.Gateway
	model     *fakeModel
	board     *blackboard.Client
	orch      *Orchestrator
}

// testingT is the subset of testing.T shared with rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

func setupPipeline(t testingT, model *fakeModel, board *blackboard.Client) *fixture {
	t.Helper()

	local, err := capability.GenerateLocal()
	require.NoError(t, err)
	encrypter := &countingEncrypter{Local: local}
	gw := vault.New(encrypter, local, "", nil)

	caller := chaintest.NewCaller()
	caller.Set(testTank, chain.MethodIdea, testIdea)
	caller.Set(testTank, chain.MethodLLMURL, "https://llm.example/v1")
	caller.Set(testTank, chain.MethodEvaluateAction, testPolicyIDs[0])
	caller.Set(testTank, chain.MethodDigestAction, testPolicyIDs[1])
	caller.Set(testTank, chain.MethodHintAction, testPolicyIDs[2])

	ct, err := gw.Encrypt(context.Background(), testPolicyIDs, []byte(testDigest))
	require.NoError(t, err)
	caller.Set(testTank, chain.MethodDigest, ct.Data)
	caller.Set(testTank, chain.MethodDigestHash, ct.Hash)
	encrypter.encrypts.Store(0)

	signer := &countingSigner{Local: local}
	builder, err := txbuilder.New(signer, txbuilder.Config{
		ChainID:     testChainID,
		GasLimit:    1_000_000,
		GasPrice:    big.NewInt(1_000_000),
		KeyID:       local.KeyID(),
		Probe:       true,
		SignTimeout: 200 * time.Millisecond,
	}, nil)
	require.NoError(t, err)

	deps := Deps{
		Reader:  chain.NewReader(caller, gw, time.Second, nil),
		Engine:  llm.NewEngine(model, time.Second, nil),
		Vault:   gw,
		Builder: builder,
	}
	cfg := Config{RemoteCallTimeout: 200 * time.Millisecond}
	if board != nil {
		deps.Locker = board
		deps.Recorder = board
		cfg.LockTTL = time.Minute
	}

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	return &fixture{caller: caller, local: local, signer: signer, encrypter: encrypter, vault: gw, model: model, board: board, orch: orch}
}

// setupBoard starts a miniredis-backed blackboard client.
func setupBoard(t *testing.T) *blackboard.Client {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	board, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { board.Close() })

	return board
}

type recorderFunc func(ctx context.Context, s *blackboard.Submission) error

func (f recorderFunc) CreateSubmission(ctx context.Context, s *blackboard.Submission) error {
	return f(ctx, s)
}

func testSubmission(note string) Submission {
	return Submission{Tank: testTank, Contributor: testContributor, Note: note}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.Error(t, err)

	f := setupPipeline(t, &fakeModel{}, nil)
	_, err = New(Deps{
		Reader:  f.orch.reader,
		Engine:  f.orch.engine,
		Vault:   f.orch.vault,
		Builder: f.orch.builder,
		Locker:  &blackboard.Client{},
	}, Config{})
	assert.ErrorContains(t, err, "lock TTL")
}

func TestRun_Accepted(t *testing.T) {
	model := &fakeModel{score: 8, verdict: "accept", digest: testDigest + " Volunteer curators review donations."}
	f := setupPipeline(t, model, setupBoard(t))
	note := "Volunteer curators review donations."

	out, err := f.orch.Run(context.Background(), testSubmission(note))
	require.NoError(t, err)

	assert.Equal(t, StateVerified, out.State)
	require.NotNil(t, out.Evaluation)
	assert.Equal(t, llm.VerdictAccept, out.Evaluation.Verdict)
	assert.Equal(t, vault.Hash([]byte(note)), out.NoteHash)
	assert.Equal(t, vault.Hash([]byte(testDigest)), out.PreviousDigestHash)
	assert.Equal(t, vault.Hash([]byte(model.digest)), out.NewDigestHash)
	assert.EqualValues(t, 1, model.evaluations.Load())
	assert.EqualValues(t, 1, model.digests.Load())

	// The transaction verifies independently and carries the encrypted payload.
	require.NotNil(t, out.Transaction)
	assert.Equal(t, f.local.Address(), out.Transaction.Signer)

	raw, err := hexutil.Decode(out.Transaction.SignedTx)
	require.NoError(t, err)
	verified, err := txbuilder.Verify(raw, testChainID)
	require.NoError(t, err)
	assert.Equal(t, f.local.Address(), verified.Signer)
	assert.Equal(t, testTank, *verified.Tx.To())

	args, err := chain.UnpackAddNote(verified.Tx.Data())
	require.NoError(t, err)
	assert.Equal(t, testContributor, args.Contributor)
	assert.Equal(t, out.NoteHash, args.NoteHash)
	assert.Equal(t, out.NewDigestHash, args.NewDigestHash)
	assert.Equal(t, uint64(80), args.Score.Uint64())
	assert.NotContains(t, args.EncryptedNote, note)

	// The new digest decrypts under the tank's policy.
	plain, err := f.vault.Decrypt(context.Background(), testPolicyIDs,
		capability.Ciphertext{Data: args.EncryptedDigest, Hash: args.NewDigestHash})
	require.NoError(t, err)
	assert.Equal(t, model.digest, string(plain))

	// Recorded on the blackboard.
	rec, err := f.board.GetSubmission(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.StateVerified, rec.State)
	assert.Equal(t, "accept", rec.Verdict)
	assert.Equal(t, out.Transaction.TxHash.Hex(), rec.TxHash)
	assert.False(t, rec.Failed())

	// The tank lock is released.
	lock, err := f.board.AcquireTankLock(context.Background(), strings.ToLower(testTank.Hex()), time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(context.Background()))
}

func TestRun_Rejected(t *testing.T) {
	model := &fakeModel{score: 3, verdict: "reject"}
	f := setupPipeline(t, model, setupBoard(t))

	out, err := f.orch.Run(context.Background(), testSubmission("Libraries should sell coffee."))
	require.NoError(t, err)

	assert.Equal(t, StateRejected, out.State)
	assert.Nil(t, out.Transaction)
	assert.Empty(t, out.NewDigestHash)
	assert.EqualValues(t, 0, model.digests.Load())
	assert.EqualValues(t, 0, f.encrypter.encrypts.Load())
	assert.EqualValues(t, 0, f.signer.signs.Load())

	rec, err := f.board.GetSubmission(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, blackboard.StateRejected, rec.State)
	assert.Equal(t, "reject", rec.Verdict)
}

func TestRun_NoteEqualToDigestIsRejectedLocally(t *testing.T) {
	model := &fakeModel{score: 9, verdict: "accept"}
	f := setupPipeline(t, model, nil)

	out, err := f.orch.Run(context.Background(), testSubmission(testDigest))
	require.NoError(t, err)

	assert.Equal(t, StateRejected, out.State)
	assert.Zero(t, out.Evaluation.Criteria.Novelty)
	assert.Zero(t, out.Evaluation.Criteria.Impact)
	assert.EqualValues(t, 0, model.evaluations.Load())
}

func TestRun_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
	}{
		{"empty note", testSubmission("   ")},
		{"missing tank", Submission{Contributor: testContributor, Note: "n"}},
		{"missing contributor", Submission{Tank: testTank, Note: "n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupPipeline(t, &fakeModel{}, setupBoard(t))

			out, err := f.orch.Run(context.Background(), tt.sub)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, failure.ErrInvalidInput)
			assert.Zero(t, f.caller.Calls())

			ids, err := f.board.ListSubmissions(context.Background(), 0, time.Now().Add(time.Hour).UnixMilli())
			require.NoError(t, err)
			assert.Empty(t, ids)
		})
	}
}

func TestRun_TankBusy(t *testing.T) {
	f := setupPipeline(t, &fakeModel{score: 8, verdict: "accept", digest: "new"}, setupBoard(t))

	held, err := f.board.AcquireTankLock(context.Background(), strings.ToLower(testTank.Hex()), time.Minute)
	require.NoError(t, err)
	defer held.Release(context.Background())

	out, err := f.orch.Run(context.Background(), testSubmission("a note"))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, failure.ErrTankBusy)
	assert.Zero(t, f.caller.Calls())
}

func TestRun_ChainReadFailureIsRecorded(t *testing.T) {
	model := &fakeModel{score: 8, verdict: "accept", digest: "new"}
	f := setupPipeline(t, model, setupBoard(t))
	f.caller.Fail(chain.MethodIdea, errors.New("rpc unavailable"))

	out, err := f.orch.Run(context.Background(), testSubmission("a note"))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, failure.ErrChainRead)
	assert.EqualValues(t, 0, model.evaluations.Load())

	subs, err := f.board.ListTankSubmissions(context.Background(), testTank.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, blackboard.StateScoring, subs[0].State)
	assert.Equal(t, string(failure.KindChainRead), subs[0].FailureKind)
	assert.True(t, subs[0].Failed())
}

func TestRun_DigestUnchanged(t *testing.T) {
	model := &fakeModel{score: 8, verdict: "accept", digest: testDigest}
	f := setupPipeline(t, model, nil)

	out, err := f.orch.Run(context.Background(), testSubmission("a new angle"))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, failure.ErrDigestUnchanged)
	assert.EqualValues(t, 0, f.signer.signs.Load())
}

func TestRun_SigningTimeoutIsNetworkFailure(t *testing.T) {
	model := &fakeModel{score: 8, verdict: "accept", digest: "a brand new digest"}
	f := setupPipeline(t, model, setupBoard(t))
	f.signer.block = true

	start := time.Now()
	out, err := f.orch.Run(context.Background(), testSubmission("a new angle"))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, failure.ErrNetwork)
	assert.Less(t, time.Since(start), 2*time.Second)

	subs, err := f.board.ListTankSubmissions(context.Background(), testTank.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, blackboard.StateSigning, subs[0].State)
	assert.NotEmpty(t, subs[0].NewDigestHash)
}

func TestRun_SlowSignerWithinPerCallDeadline(t *testing.T) {
	model := &fakeModel{score: 8, verdict: "accept", digest: "a brand new digest"}
	f := setupPipeline(t, model, nil)
	f.signer.delay = 120 * time.Millisecond

	out, err := f.orch.Run(context.Background(), testSubmission("a new angle"))
	require.NoError(t, err)
	assert.Equal(t, StateVerified, out.State)
	assert.EqualValues(t, 3, f.signer.signs.Load())
	assert.EqualValues(t, 2, f.encrypter.encrypts.Load())
}

func TestRun_RecorderErrorDoesNotFailRun(t *testing.T) {
	model := &fakeModel{score: 3, verdict: "reject"}
	f := setupPipeline(t, model, nil)
	var recorded atomic.Int32
	f.orch.recorder = recorderFunc(func(ctx context.Context, s *blackboard.Submission) error {
		recorded.Add(1)
		return errors.New("redis: connection refused")
	})

	out, err := f.orch.Run(context.Background(), testSubmission("a note"))
	require.NoError(t, err)
	assert.Equal(t, StateRejected, out.State)
	assert.EqualValues(t, 1, recorded.Load())
}

func TestRun_LowScoreNeverSigns(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		score := rapid.Float64Range(0, 4.94).Draw(rt, "score")
		verdict := rapid.SampledFrom([]string{"accept", "reject", "error", "maybe"}).Draw(rt, "verdict")

		model := &fakeModel{score: score, verdict: verdict, digest: "would be new"}
		f := setupPipeline(rt, model, nil)

		out, err := f.orch.Run(context.Background(), testSubmission("a note"))
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if out.State != StateRejected || out.Transaction != nil {
			rt.Fatalf("score %v with verdict %q produced state %s", score, verdict, out.State)
		}
		if n := f.signer.signs.Load(); n != 0 {
			rt.Fatalf("signer called %d times", n)
		}
	})
}
