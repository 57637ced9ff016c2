package txbuilder

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/failure"
)

// Probe transaction parameters. The probe is signed only to learn the signer's
// address; it is never broadcast and its signature is never reused.
const (
	probeGasLimit = 21000
	probeChainID  = 1
)

// Config holds the fixed parameters of every transaction the builder produces.
type Config struct {
	ChainID         *big.Int
	GasLimit        uint64
	GasPrice        *big.Int
	KeyID           string
	ExpectedAddress common.Address // Zero means learn it from the probe
	Probe           bool
	SignTimeout     time.Duration
}

// Request describes one addNote transaction.
type Request struct {
	Contract      common.Address
	Contributor   common.Address
	Note          capability.Ciphertext
	Digest        capability.Ciphertext
	Score         uint64
	IdeaSignature []byte
}

// Result is a verified signed transaction, ready to broadcast.
type Result struct {
	SignedTx string         `json:"signedTx"` // 0x-prefixed RLP
	TxHash   common.Hash    `json:"txHash"`
	Signer   common.Address `json:"signer"`
	ChainID  *big.Int       `json:"chainId"`
	GasLimit uint64         `json:"gasLimit"`
	GasPrice *big.Int       `json:"gasPrice"`
}

// Builder builds and signs addNote transactions.
type Builder struct {
	signer capability.Signer
	cfg    Config
	logger *zap.Logger
}

// New creates a builder.
func New(signer capability.Signer, cfg Config, logger *zap.Logger) (*Builder, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain ID must be positive")
	}
	if cfg.KeyID == "" {
		return nil, fmt.Errorf("signer key ID is required")
	}
	if !cfg.Probe && cfg.ExpectedAddress == (common.Address{}) {
		return nil, fmt.Errorf("expected signer address is required when the probe is disabled")
	}
	if cfg.GasPrice == nil {
		cfg.GasPrice = new(big.Int)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{signer: signer, cfg: cfg, logger: logger.Named("txbuilder")}, nil
}

// Build produces a verified signed addNote transaction for req.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	const op = "txbuilder.Build"

	if req.Contract == (common.Address{}) {
		return nil, failure.Newf(failure.KindInvalidInput, op, "contract address is required")
	}
	if req.Contributor == (common.Address{}) {
		return nil, failure.Newf(failure.KindInvalidInput, op, "contributor address is required")
	}

	expected := b.cfg.ExpectedAddress
	if b.cfg.Probe {
		probed, err := b.Probe(ctx, req.Contract)
		if err != nil {
			return nil, err
		}
		if expected != (common.Address{}) && !SameAddress(expected, probed) {
			return nil, failure.Newf(failure.KindSignatureVerification, op,
				"probe recovered %s, expected %s", probed.Hex(), expected.Hex())
		}
		expected = probed
	}

	data, err := chain.PackAddNote(chain.AddNoteArgs{
		Contributor:     req.Contributor,
		EncryptedNote:   req.Note.Data,
		NoteHash:        req.Note.Hash,
		EncryptedDigest: req.Digest.Data,
		NewDigestHash:   req.Digest.Hash,
		IdeaSignature:   req.IdeaSignature,
		Score:           new(big.Int).SetUint64(req.Score),
	})
	if err != nil {
		return nil, failure.New(failure.KindInvalidInput, op, err)
	}

	tx := &UnsignedTx{
		To:       req.Contract,
		Nonce:    0,
		GasLimit: b.cfg.GasLimit,
		GasPrice: b.cfg.GasPrice,
		Value:    new(big.Int),
		Data:     data,
		ChainID:  b.cfg.ChainID,
	}

	raw, err := b.signTx(ctx, op, tx)
	if err != nil {
		return nil, err
	}

	verified, err := Verify(raw, b.cfg.ChainID)
	if err != nil {
		return nil, failure.New(failure.KindSignatureVerification, op, err)
	}
	if !SameAddress(verified.Signer, expected) {
		return nil, failure.Newf(failure.KindSignatureVerification, op,
			"transaction recovered to %s, expected %s", verified.Signer.Hex(), expected.Hex())
	}

	b.logger.Info("transaction signed and verified",
		zap.String("tx_hash", verified.Hash.Hex()),
		zap.String("signer", verified.Signer.Hex()),
		zap.String("chain_id", b.cfg.ChainID.String()))

	return &Result{
		SignedTx: hexutil.Encode(raw),
		TxHash:   verified.Hash,
		Signer:   verified.Signer,
		ChainID:  new(big.Int).Set(b.cfg.ChainID),
		GasLimit: b.cfg.GasLimit,
		GasPrice: new(big.Int).Set(b.cfg.GasPrice),
	}, nil
}

// Probe signs a throwaway transaction to contract and returns the address the
// signature recovers to.
func (b *Builder) Probe(ctx context.Context, contract common.Address) (common.Address, error) {
	const op = "txbuilder.Probe"

	selector, err := chain.AddNoteSelector()
	if err != nil {
		return common.Address{}, failure.New(failure.KindSigning, op, err)
	}

	tx := &UnsignedTx{
		To:       contract,
		Nonce:    0,
		GasLimit: probeGasLimit,
		GasPrice: big.NewInt(1),
		Value:    new(big.Int),
		Data:     selector,
		ChainID:  big.NewInt(probeChainID),
	}

	raw, err := b.signTx(ctx, op, tx)
	if err != nil {
		return common.Address{}, err
	}

	verified, err := Verify(raw, tx.ChainID)
	if err != nil {
		return common.Address{}, failure.New(failure.KindSignatureVerification, op, err)
	}

	b.logger.Debug("probe recovered signer", zap.String("signer", verified.Signer.Hex()))
	return verified.Signer, nil
}

// SignIdea signs keccak256(idea) and returns the 65-byte r||s||v signature with
// v in {27, 28}.
func (b *Builder) SignIdea(ctx context.Context, idea string) ([]byte, error) {
	const op = "txbuilder.SignIdea"

	hash := crypto.Keccak256([]byte(idea))
	sig, err := b.sign(ctx, hash)
	if err != nil {
		return nil, failure.New(failure.KindSigning, op, err)
	}

	canon, err := canonicalize(sig)
	if err != nil {
		return nil, failure.New(failure.KindSigning, op, err)
	}

	out := make([]byte, 65)
	copy(out[:32], canon.R[:])
	copy(out[32:64], canon.S[:])
	out[64] = 27 + canon.RecID
	return out, nil
}

// signTx hashes tx, obtains a signature and assembles the signed bytes.
func (b *Builder) signTx(ctx context.Context, op string, tx *UnsignedTx) ([]byte, error) {
	hash, err := tx.SigningHash()
	if err != nil {
		return nil, failure.New(failure.KindInvalidInput, op, err)
	}

	sig, err := b.sign(ctx, hash.Bytes())
	if err != nil {
		return nil, failure.New(failure.KindSigning, op, err)
	}

	canon, err := canonicalize(sig)
	if err != nil {
		return nil, failure.New(failure.KindSigning, op, err)
	}

	raw, err := assemble(tx, canon)
	if err != nil {
		return nil, failure.New(failure.KindSigning, op, err)
	}
	return raw, nil
}

func (b *Builder) sign(ctx context.Context, digest []byte) (capability.Signature, error) {
	if b.cfg.SignTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.SignTimeout)
		defer cancel()
	}
	return b.signer.Sign(ctx, digest, b.cfg.KeyID)
}
