// Package txbuilder turns an accepted submission into a raw EIP-155 signed
// transaction calling addNote. The signing key never leaves the threshold
// network: the builder hashes the unsigned transaction, asks the signer for a
// signature over that hash, assembles the signed bytes and refuses to return
// them unless they recover to the expected address.
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/dyluth/thinktank/internal/capability"
)

// UnsignedTx is a legacy transaction before signing. It is always built by the
// builder, never taken from a caller.
type UnsignedTx struct {
	To       common.Address
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int
}

// SigningHash returns the EIP-155 signing hash:
// keccak256(rlp([nonce, gasPrice, gas, to, value, data, chainId, 0, 0])).
func (u *UnsignedTx) SigningHash() (common.Hash, error) {
	if u.ChainID == nil || u.ChainID.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("chain ID must be positive")
	}

	enc, err := rlp.EncodeToBytes([]any{
		u.Nonce,
		bigOrZero(u.GasPrice),
		u.GasLimit,
		u.To,
		bigOrZero(u.Value),
		u.Data,
		u.ChainID,
		uint(0),
		uint(0),
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode signing payload: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// RecoveryID normalizes a raw recovery value to 0 or 1.
// Signers report either 0/1 or the legacy 27/28.
func RecoveryID(v byte) (byte, error) {
	switch v {
	case 0, 1:
		return v, nil
	case 27, 28:
		return v - 27, nil
	}
	return 0, fmt.Errorf("invalid recovery value %d", v)
}

// EIP155V returns the v value of a signed transaction:
// standardV = 27 + recid; v = standardV + chainId*2 + 8.
func EIP155V(v0 byte, chainID *big.Int) (*big.Int, error) {
	recid, err := RecoveryID(v0)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).Mul(chainID, big.NewInt(2))
	v.Add(v, big.NewInt(int64(27+recid)+8))
	return v, nil
}

// canonicalSignature is a signature with R and S padded to exactly 32 bytes,
// S in the lower half of the curve order and a 0/1 recovery id.
type canonicalSignature struct {
	R     [32]byte
	S     [32]byte
	RecID byte
}

// canonicalize left-pads R and S and flips a high S into the lower half of the
// curve order, adjusting the recovery id to match.
func canonicalize(sig capability.Signature) (canonicalSignature, error) {
	var out canonicalSignature

	recid, err := RecoveryID(sig.V)
	if err != nil {
		return out, err
	}
	if len(sig.R) == 0 || len(sig.R) > 32 {
		return out, fmt.Errorf("signature r is %d bytes", len(sig.R))
	}
	if len(sig.S) == 0 || len(sig.S) > 32 {
		return out, fmt.Errorf("signature s is %d bytes", len(sig.S))
	}

	n := btcec.S256().Params().N
	r := new(big.Int).SetBytes(sig.R)
	s := new(big.Int).SetBytes(sig.S)
	if r.Sign() == 0 || r.Cmp(n) >= 0 {
		return out, fmt.Errorf("signature r out of range")
	}
	if s.Sign() == 0 || s.Cmp(n) >= 0 {
		return out, fmt.Errorf("signature s out of range")
	}

	halfN := new(big.Int).Rsh(n, 1)
	if s.Cmp(halfN) > 0 {
		s.Sub(n, s)
		recid ^= 1
	}

	r.FillBytes(out.R[:])
	s.FillBytes(out.S[:])
	out.RecID = recid
	return out, nil
}

// assemble RLP-encodes [nonce, gasPrice, gas, to, value, data, v, r, s].
// R and S are encoded as integers so the bytes decode canonically.
func assemble(u *UnsignedTx, sig canonicalSignature) ([]byte, error) {
	v, err := EIP155V(sig.RecID, u.ChainID)
	if err != nil {
		return nil, err
	}

	enc, err := rlp.EncodeToBytes([]any{
		u.Nonce,
		bigOrZero(u.GasPrice),
		u.GasLimit,
		u.To,
		bigOrZero(u.Value),
		u.Data,
		v,
		new(big.Int).SetBytes(sig.R[:]),
		new(big.Int).SetBytes(sig.S[:]),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	return enc, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
