package txbuilder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verified is a signed transaction that passed the verification gate.
type Verified struct {
	Tx     *types.Transaction
	Signer common.Address
	Hash   common.Hash
}

// Verify decodes raw as an EIP-155 legacy transaction for chainID and recovers
// its signer twice: once through go-ethereum's sender derivation, and once
// independently from the recomputed signing hash with compact recovery. The two
// must agree.
func Verify(raw []byte, chainID *big.Int) (*Verified, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx.Type() != types.LegacyTxType {
		return nil, fmt.Errorf("unexpected transaction type %d", tx.Type())
	}
	if !tx.Protected() {
		return nil, fmt.Errorf("transaction is not replay-protected")
	}
	if tx.ChainId().Cmp(chainID) != 0 {
		return nil, fmt.Errorf("transaction chain ID %s does not match %s", tx.ChainId(), chainID)
	}

	claimed, err := types.Sender(types.NewEIP155Signer(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender: %w", err)
	}

	recovered, err := recoverSigner(tx, chainID)
	if err != nil {
		return nil, err
	}

	if !SameAddress(claimed, recovered) {
		return nil, fmt.Errorf("recovered signer %s does not match transaction sender %s", recovered.Hex(), claimed.Hex())
	}

	return &Verified{Tx: tx, Signer: recovered, Hash: tx.Hash()}, nil
}

// recoverSigner recomputes the signing hash from the decoded fields and
// recovers the public key from (v, r, s) with compact recovery.
func recoverSigner(tx *types.Transaction, chainID *big.Int) (common.Address, error) {
	to := tx.To()
	if to == nil {
		return common.Address{}, fmt.Errorf("transaction has no recipient")
	}

	unsigned := &UnsignedTx{
		To:       *to,
		Nonce:    tx.Nonce(),
		GasLimit: tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
		ChainID:  chainID,
	}
	hash, err := unsigned.SigningHash()
	if err != nil {
		return common.Address{}, err
	}

	v, r, s := tx.RawSignatureValues()
	recid := new(big.Int).Sub(v, new(big.Int).Mul(chainID, big.NewInt(2)))
	recid.Sub(recid, big.NewInt(35))
	if !recid.IsUint64() || recid.Uint64() > 1 {
		return common.Address{}, fmt.Errorf("v %s is not valid for chain %s", v, chainID)
	}
	if r.BitLen() > 256 || s.BitLen() > 256 {
		return common.Address{}, fmt.Errorf("signature values exceed 32 bytes")
	}

	compact := make([]byte, 65)
	compact[0] = 27 + byte(recid.Uint64())
	r.FillBytes(compact[1:33])
	s.FillBytes(compact[33:65])

	pub, _, err := ecdsa.RecoverCompact(compact, hash.Bytes())
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return common.BytesToAddress(crypto.Keccak256(pub.SerializeUncompressed()[1:])[12:]), nil
}

// SameAddress compares two addresses by their hex form, ignoring case.
func SameAddress(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}
