// Package chain reads tank state from the EVM contract through read-only calls
// and decrypts the digest and config payloads through the encryption gateway.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/failure"
)

// EmptyDigest is the digest value of a tank whose digest ciphertext is empty.
const EmptyDigest = "empty"

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Decrypter decrypts a tank payload under the policy formed by policyIDs.
// *vault.Gateway satisfies it.
type Decrypter interface {
	Decrypt(ctx context.Context, policyIDs []string, ct capability.Ciphertext) ([]byte, error)
}

// TankState is the raw on-chain state of a tank, read once per invocation.
type TankState struct {
	Address   common.Address
	Idea      string
	Digest    capability.Ciphertext // Empty Data means no digest yet
	LLMURL    string
	Config    capability.Ciphertext // Empty Data means no config blob
	PolicyIDs []string              // evaluate, digest and hint action identifiers, in that order
}

// IdeaHash returns keccak-256 over the idea's UTF-8 bytes.
func (s *TankState) IdeaHash() common.Hash {
	return crypto.Keccak256Hash([]byte(s.Idea))
}

// TankConfig is the decrypted per-tank configuration forwarded to the LLM backend.
type TankConfig struct {
	Model  string `json:"model,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// Snapshot is the read-only view of a tank the pipeline works from.
type Snapshot struct {
	State  *TankState
	Digest string
	Config TankConfig
}

// Reader reads tank state.
type Reader struct {
	caller      ContractCaller
	decrypter   Decrypter
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewReader creates a reader. callTimeout bounds each contract call and each
// decryption; zero means only the caller's context applies.
func NewReader(caller ContractCaller, decrypter Decrypter, callTimeout time.Duration, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		caller:      caller,
		decrypter:   decrypter,
		callTimeout: callTimeout,
		logger:      logger.Named("chain"),
	}
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	return client, nil
}

// Read fetches every field of the tank's state. Any failed call fails the whole read.
func (r *Reader) Read(ctx context.Context, tank common.Address) (*TankState, error) {
	const op = "chain.Read"

	if tank == (common.Address{}) {
		return nil, failure.Newf(failure.KindInvalidInput, op, "tank address is the zero address")
	}

	fields := []string{
		MethodIdea, MethodDigest, MethodDigestHash, MethodLLMURL, MethodConfig,
		MethodConfigHash, MethodEvaluateAction, MethodDigestAction, MethodHintAction,
	}
	values := make(map[string]string, len(fields))
	for _, method := range fields {
		v, err := r.callString(ctx, tank, method)
		if err != nil {
			return nil, failure.New(failure.KindChainRead, op, err)
		}
		values[method] = v
	}

	state := &TankState{
		Address: tank,
		Idea:    values[MethodIdea],
		Digest:  capability.Ciphertext{Data: values[MethodDigest], Hash: values[MethodDigestHash]},
		LLMURL:  values[MethodLLMURL],
		Config:  capability.Ciphertext{Data: values[MethodConfig], Hash: values[MethodConfigHash]},
		PolicyIDs: []string{
			values[MethodEvaluateAction],
			values[MethodDigestAction],
			values[MethodHintAction],
		},
	}

	r.logger.Debug("tank state read",
		zap.String("tank", tank.Hex()),
		zap.Int("idea_len", len(state.Idea)),
		zap.Bool("has_digest", !state.Digest.IsEmpty()),
		zap.Bool("has_config", !state.Config.IsEmpty()))

	return state, nil
}

// Digest returns the plaintext digest, or EmptyDigest when the tank has none.
func (r *Reader) Digest(ctx context.Context, state *TankState) (string, error) {
	if state.Digest.IsEmpty() {
		return EmptyDigest, nil
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	plaintext, err := r.decrypter.Decrypt(callCtx, state.PolicyIDs, state.Digest)
	if err != nil {
		return "", failure.New(failure.KindDecryption, "chain.Digest", err)
	}
	return string(plaintext), nil
}

// Config returns the decrypted tank configuration, or the zero value when the
// tank has no config blob.
func (r *Reader) Config(ctx context.Context, state *TankState) (TankConfig, error) {
	const op = "chain.Config"

	if state.Config.IsEmpty() {
		return TankConfig{}, nil
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	plaintext, err := r.decrypter.Decrypt(callCtx, state.PolicyIDs, state.Config)
	if err != nil {
		return TankConfig{}, failure.New(failure.KindDecryption, op, err)
	}

	var cfg TankConfig
	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return TankConfig{}, failure.New(failure.KindDecryption, op, fmt.Errorf("config is not valid JSON: %w", err))
	}
	return cfg, nil
}

// Snapshot reads the tank and decrypts its digest and config.
func (r *Reader) Snapshot(ctx context.Context, tank common.Address) (*Snapshot, error) {
	state, err := r.Read(ctx, tank)
	if err != nil {
		return nil, err
	}

	digest, err := r.Digest(ctx, state)
	if err != nil {
		return nil, err
	}

	cfg, err := r.Config(ctx, state)
	if err != nil {
		return nil, err
	}

	return &Snapshot{State: state, Digest: digest, Config: cfg}, nil
}

// callContext derives the deadline for a single remote call.
func (r *Reader) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout > 0 {
		return context.WithTimeout(ctx, r.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Reader) callString(ctx context.Context, tank common.Address, method string) (string, error) {
	parsed, err := TankABI()
	if err != nil {
		return "", fmt.Errorf("failed to parse tank ABI: %w", err)
	}

	input, err := parsed.Pack(method)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s: %w", method, err)
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	output, err := r.caller.CallContract(callCtx, ethereum.CallMsg{To: &tank, Data: input}, nil)
	if err != nil {
		return "", fmt.Errorf("call %s(): %w", method, err)
	}

	values, err := parsed.Unpack(method, output)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s(): %w", method, err)
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%s() returned %d values", method, len(values))
	}

	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s() returned %T, expected string", method, values[0])
	}
	return s, nil
}
